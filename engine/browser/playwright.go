package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightLauncher launches Chromium through playwright-go.
type PlaywrightLauncher struct {
	// Install downloads the driver and Chromium before the first launch.
	Install bool
}

func (l *PlaywrightLauncher) Launch(ctx context.Context, opts Options) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("installing playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launching chromium: %w", err)
	}
	return &playwrightSession{pw: pw, browser: b, timeout: defaultTimeout(opts.Timeout)}, nil
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (s *playwrightSession) NewPage(ctx context.Context) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := s.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	page.SetDefaultTimeout(float64(s.timeout.Milliseconds()))
	page.SetDefaultNavigationTimeout(float64(s.timeout.Milliseconds()))
	return &playwrightPage{page: page, timeout: s.timeout}, nil
}

func (s *playwrightSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.browser.Close()
	if stopErr := s.pw.Stop(); err == nil {
		err = stopErr
	}
	return err
}

type playwrightPage struct {
	page    playwright.Page
	timeout time.Duration
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   p.ms(ctx, p.timeout),
	})
	return p.convert(err, "navigation to", url, p.timeout)
}

func (p *playwrightPage) URL() string { return p.page.URL() }

func (p *playwrightPage) WaitForLoadState(ctx context.Context, state LoadState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pwState := playwright.LoadStateDomcontentloaded
	if state == LoadStateNetworkIdle {
		pwState = playwright.LoadStateNetworkidle
	}
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   pwState,
		Timeout: p.ms(ctx, p.timeout),
	})
	return p.convert(err, "load state", string(state), p.timeout)
}

func (p *playwrightPage) WaitForURL(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.WaitForURL(func(actual string) bool { return URLMatches(actual, url) }, playwright.PageWaitForURLOptions{
		Timeout:   p.ms(ctx, timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return p.convert(err, "url", url, timeout)
}

func (p *playwrightPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: p.ms(ctx, timeout),
	})
	return p.convert(err, "visible element", selector, timeout)
}

func (p *playwrightPage) IsVisible(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.page.Locator(selector).First().IsVisible()
}

func (p *playwrightPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: p.ms(ctx, p.timeout),
	})
	return p.convert(err, "clickable element", selector, p.timeout)
}

func (p *playwrightPage) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: p.ms(ctx, p.timeout),
	})
	return p.convert(err, "editable element", selector, p.timeout)
}

func (p *playwrightPage) TextContents(ctx context.Context, selector string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.page.Locator(selector).AllTextContents()
}

func (p *playwrightPage) Evaluate(ctx context.Context, script string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.page.Evaluate(script)
}

func (p *playwrightPage) Close() error {
	err := p.page.Close()
	if errors.Is(err, playwright.ErrTargetClosed) {
		return nil
	}
	return err
}

func (p *playwrightPage) ms(ctx context.Context, d time.Duration) *float64 {
	return playwright.Float(float64(boundedTimeout(ctx, d).Milliseconds()))
}

// convert maps playwright's error values onto this package's error types.
func (p *playwrightPage) convert(err error, condition, expected string, timeout time.Duration) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, playwright.ErrTimeout):
		te := &TimeoutError{Condition: condition, Expected: expected, Timeout: timeout, Err: err}
		if condition == "url" {
			te.Observed = p.page.URL()
		}
		return te
	case errors.Is(err, playwright.ErrTargetClosed):
		return fmt.Errorf("%w: %s", ErrClosed, err)
	default:
		return err
	}
}

func defaultTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}
