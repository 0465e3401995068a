package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodLauncher drives Chrome over the DevTools protocol with go-rod.
type RodLauncher struct {
	// ControlURL connects to an already running browser instead of launching a local one.
	ControlURL string
}

func (l *RodLauncher) Launch(ctx context.Context, opts Options) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	controlURL := l.ControlURL
	var lnch *launcher.Launcher
	if controlURL == "" {
		lnch = launcher.New().Headless(opts.Headless)
		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("launching chrome: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Kill()
		}
		return nil, fmt.Errorf("connecting to chrome: %w", err)
	}
	return &rodSession{browser: b, launcher: lnch, timeout: defaultTimeout(opts.Timeout)}, nil
}

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher // nil when connected to an external browser
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
}

func (s *rodSession) NewPage(ctx context.Context) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	// Calls are scoped per operation; the page itself must outlive ctx so it can still be closed.
	return &rodPage{page: page.Context(context.Background()), timeout: s.timeout}, nil
}

func (s *rodSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.browser.Close()
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
	return err
}

type rodPage struct {
	page    *rod.Page
	timeout time.Duration
}

// scoped binds the page to ctx and a timeout so every CDP call is cancellable.
// Callers must release the timeout once the operation is done.
func (p *rodPage) scoped(ctx context.Context, d time.Duration) (*rod.Page, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, d)
	return p.page.Context(ctx), cancel
}

func (p *rodPage) Goto(ctx context.Context, url string) error {
	pg, cancel := p.scoped(ctx, p.timeout)
	defer cancel()
	wait := pg.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pg.Navigate(url); err != nil {
		return p.convert(ctx, err, "navigation to", url, p.timeout)
	}
	wait()
	return nil
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) WaitForLoadState(ctx context.Context, state LoadState) error {
	pg, cancel := p.scoped(ctx, p.timeout)
	defer cancel()
	if state == LoadStateNetworkIdle {
		return p.convert(ctx, pg.WaitStable(500*time.Millisecond), "load state", string(state), p.timeout)
	}
	return waitCondition(ctx, p.timeout, "load state", string(state), nil, func() (bool, error) {
		res, err := pg.Eval(`() => document.readyState`)
		if err != nil {
			return false, err
		}
		return res.Value.Str() != "loading", nil
	})
}

func (p *rodPage) WaitForURL(ctx context.Context, url string, timeout time.Duration) error {
	return waitCondition(ctx, timeout, "url", url, p.URL, func() (bool, error) {
		return URLMatches(p.URL(), url), nil
	})
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	pg, cancel := p.scoped(ctx, timeout)
	defer cancel()
	el, err := pg.Element(selector)
	if err == nil {
		err = el.WaitVisible()
	}
	return p.convert(ctx, err, "visible element", selector, timeout)
}

func (p *rodPage) IsVisible(ctx context.Context, selector string) (bool, error) {
	pg, cancel := p.scoped(ctx, p.timeout)
	defer cancel()
	has, el, err := pg.Has(selector)
	if err != nil || !has {
		return false, err
	}
	return el.Visible()
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	pg, cancel := p.scoped(ctx, p.timeout)
	defer cancel()
	el, err := pg.Element(selector)
	if err != nil {
		return p.convert(ctx, err, "clickable element", selector, p.timeout)
	}
	return p.convert(ctx, el.Click(proto.InputMouseButtonLeft, 1), "clickable element", selector, p.timeout)
}

func (p *rodPage) Fill(ctx context.Context, selector, value string) error {
	pg, cancel := p.scoped(ctx, p.timeout)
	defer cancel()
	el, err := pg.Element(selector)
	if err != nil {
		return p.convert(ctx, err, "editable element", selector, p.timeout)
	}
	_, err = el.Eval(`() => { this.value = ''; this.dispatchEvent(new Event('input', { bubbles: true })) }`)
	if err != nil {
		return fmt.Errorf("clearing %s: %w", selector, err)
	}
	if value == "" {
		return nil
	}
	return p.convert(ctx, el.Input(value), "editable element", selector, p.timeout)
}

func (p *rodPage) TextContents(ctx context.Context, selector string) ([]string, error) {
	pg, cancel := p.scoped(ctx, p.timeout)
	defer cancel()
	els, err := pg.Elements(selector)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (p *rodPage) Evaluate(ctx context.Context, script string) (any, error) {
	pg, cancel := p.scoped(ctx, p.timeout)
	defer cancel()
	res, err := pg.Eval(script)
	if err != nil {
		return nil, err
	}
	return res.Value.Val(), nil
}

func (p *rodPage) Close() error { return p.page.Close() }

func (p *rodPage) convert(ctx context.Context, err error, condition, expected string, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Condition: condition, Expected: expected, Timeout: timeout, Err: err}
	}
	return err
}
