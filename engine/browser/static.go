package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
)

// StaticLauncher starts sessions that fetch documents over HTTP and parse them with goquery.
// No JavaScript runs: links navigate, forms submit, and nothing else changes the DOM.
// It suits server-rendered targets and hermetic tests.
type StaticLauncher struct {
	// Transport is used for every request. Nil means http.DefaultTransport.
	Transport http.RoundTripper
}

func (l *StaticLauncher) Launch(ctx context.Context, opts Options) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &StaticSession{
		client:  &http.Client{Jar: jar, Transport: l.Transport, Timeout: defaultTimeout(opts.Timeout)},
		timeout: defaultTimeout(opts.Timeout),
	}, nil
}

// StaticSession shares one cookie jar between its pages, like a browser profile.
type StaticSession struct {
	client  *http.Client
	timeout time.Duration

	mu     sync.Mutex
	pages  []*StaticPage
	closed bool
}

func (s *StaticSession) NewPage(ctx context.Context) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	p := &StaticPage{client: s.client, timeout: s.timeout}
	s.pages = append(s.pages, p)
	return p, nil
}

func (s *StaticSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, p := range s.pages {
		p.Close()
	}
	s.client.CloseIdleConnections()
	return nil
}

// Closed reports whether Close has been called.
func (s *StaticSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type StaticPage struct {
	client  *http.Client
	timeout time.Duration

	mu     sync.Mutex
	doc    *goquery.Document
	url    *url.URL
	closed bool
}

func (p *StaticPage) Goto(ctx context.Context, target string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	return p.load(ctx, http.MethodGet, target, nil)
}

func (p *StaticPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.url == nil {
		return "about:blank"
	}
	return p.url.String()
}

// WaitForLoadState returns immediately: a document is fully loaded once it has been parsed.
func (p *StaticPage) WaitForLoadState(ctx context.Context, state LoadState) error {
	return p.check(ctx)
}

func (p *StaticPage) WaitForURL(ctx context.Context, target string, timeout time.Duration) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	return waitCondition(ctx, timeout, "url", target, p.URL, func() (bool, error) {
		return URLMatches(p.URL(), target), nil
	})
}

func (p *StaticPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	return waitCondition(ctx, timeout, "visible element", selector, nil, func() (bool, error) {
		return p.IsVisible(ctx, selector)
	})
}

func (p *StaticPage) IsVisible(ctx context.Context, selector string) (bool, error) {
	if err := p.check(ctx); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return false, nil
	}
	s := p.doc.Find(selector).First()
	return s.Length() > 0 && visible(s), nil
}

func (p *StaticPage) Click(ctx context.Context, selector string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	s, err := p.first(selector)
	if err != nil {
		return err
	}

	switch {
	case goquery.NodeName(s) == "a":
		href, ok := s.Attr("href")
		if !ok {
			return nil
		}
		return p.load(ctx, http.MethodGet, p.resolve(href), nil)
	case isSubmit(s):
		form := s.Closest("form")
		if id, ok := s.Attr("form"); ok {
			form = s.Closest("html").Find("form").FilterFunction(func(_ int, f *goquery.Selection) bool {
				return f.AttrOr("id", "") == id
			})
		}
		if form.Length() == 0 {
			return nil
		}
		return p.submit(ctx, form, s)
	default:
		slog.Debug("static engine ignored click without navigation", "selector", selector)
		return nil
	}
}

func (p *StaticPage) Fill(ctx context.Context, selector, value string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	s, err := p.first(selector)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch goquery.NodeName(s) {
	case "textarea":
		s.SetText(value)
	case "input":
		s.SetAttr("value", value)
	default:
		return fmt.Errorf("element %q is a <%s>, not an input", selector, goquery.NodeName(s))
	}
	return nil
}

func (p *StaticPage) TextContents(ctx context.Context, selector string) ([]string, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return nil, nil
	}
	var texts []string
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, s.Text())
	})
	return texts, nil
}

// Evaluate is a no-op: the static engine has no JavaScript runtime or layout.
func (p *StaticPage) Evaluate(ctx context.Context, script string) (any, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	slog.Debug("static engine skipped script", "script", script)
	return nil, nil
}

func (p *StaticPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.doc = nil
	return nil
}

func (p *StaticPage) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return nil
}

func (p *StaticPage) first(selector string) (*goquery.Selection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return nil, fmt.Errorf("%w: %s (no document loaded)", ErrNotFound, selector)
	}
	s := p.doc.Find(selector).First()
	if s.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return s, nil
}

func (p *StaticPage) resolve(ref string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.url == nil {
		return ref
	}
	u, err := p.url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return u.String()
}

func (p *StaticPage) submit(ctx context.Context, form, submitter *goquery.Selection) error {
	values := url.Values{}
	form.Find("input[name], textarea[name], select[name]").Each(func(_ int, f *goquery.Selection) {
		if _, disabled := f.Attr("disabled"); disabled {
			return
		}
		name := f.AttrOr("name", "")
		switch goquery.NodeName(f) {
		case "textarea":
			values.Add(name, f.Text())
		case "select":
			opt := f.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = f.Find("option").First()
			}
			values.Add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
		default:
			switch strings.ToLower(f.AttrOr("type", "text")) {
			case "submit", "button", "image", "reset", "file":
			case "checkbox", "radio":
				if _, checked := f.Attr("checked"); checked {
					values.Add(name, f.AttrOr("value", "on"))
				}
			default:
				values.Add(name, f.AttrOr("value", ""))
			}
		}
	})
	if name, ok := submitter.Attr("name"); ok {
		values.Add(name, submitter.AttrOr("value", ""))
	}

	action := submitter.AttrOr("formaction", form.AttrOr("action", ""))
	target, err := url.Parse(p.resolve(action))
	if err != nil {
		return fmt.Errorf("parsing form action %q: %w", action, err)
	}
	if strings.EqualFold(form.AttrOr("method", "get"), "post") {
		return p.load(ctx, http.MethodPost, target.String(), values)
	}
	target.RawQuery = values.Encode()
	return p.load(ctx, http.MethodGet, target.String(), nil)
}

func (p *StaticPage) load(ctx context.Context, method, target string, form url.Values) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", target, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		var ne net.Error
		if ctx.Err() == nil && errors.As(err, &ne) && ne.Timeout() {
			return &TimeoutError{Condition: "navigation to", Expected: target, Timeout: p.timeout, Err: err}
		}
		return fmt.Errorf("loading %s: %w", target, err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", target, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.doc = doc
	p.url = resp.Request.URL
	return nil
}

func isSubmit(s *goquery.Selection) bool {
	typ := strings.ToLower(s.AttrOr("type", ""))
	switch goquery.NodeName(s) {
	case "button":
		return typ == "" || typ == "submit"
	case "input":
		return typ == "submit" || typ == "image"
	}
	return false
}

// visible approximates CSS visibility from markup: hidden attributes and inline styles on the element or its ancestors.
func visible(s *goquery.Selection) bool {
	if goquery.NodeName(s) == "input" && strings.EqualFold(s.AttrOr("type", ""), "hidden") {
		return false
	}
	hidden := false
	s.AddSelection(s.Parents()).EachWithBreak(func(_ int, n *goquery.Selection) bool {
		if _, ok := n.Attr("hidden"); ok {
			hidden = true
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(n.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			hidden = true
			return false
		}
		return true
	})
	return !hidden
}
