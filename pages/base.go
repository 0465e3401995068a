// Package pages models the hotel site's screens as page objects.
//
// A page object wraps a browser.Page it does not own: the scenario that opened the page closes it.
// Selectors and routes come from an injected Contract so markup drift is a data change.
// Every method blocks until its navigation or DOM change has settled, so calls against one
// page must be made sequentially.
package pages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/TheLab-ms/innkeeper/engine/browser"
	"github.com/TheLab-ms/innkeeper/settings"
)

const (
	scrollTopScript      = `() => window.scrollTo(0, 0)`
	scrollBottomScript   = `() => window.scrollBy(0, document.documentElement.scrollHeight)`
	scrollOneThirdScript = `() => window.scrollBy(0, document.documentElement.scrollHeight / 3)`
)

// Base holds what every page object shares: the page, the site root, the contract and the wait bounds.
type Base struct {
	Page     browser.Page
	Contract *Contract
	Timeouts settings.Timeouts

	baseURL string
}

// NewBase fails with a *settings.ConfigurationError when the base URL is missing,
// before anything touches the page.
func NewBase(page browser.Page, s *settings.Settings, c *Contract) (*Base, error) {
	if s == nil || s.BaseURL == "" {
		return nil, &settings.ConfigurationError{Field: "baseURL", Err: errors.New("is required")}
	}
	if _, err := url.Parse(s.BaseURL); err != nil {
		return nil, &settings.ConfigurationError{Field: "baseURL", Err: err}
	}
	if c == nil {
		return nil, errors.New("no selector contract")
	}
	return &Base{
		Page:     page,
		Contract: c,
		Timeouts: s.Timeouts,
		baseURL:  strings.TrimSuffix(s.BaseURL, "/"),
	}, nil
}

// BaseURL is the site root without a trailing slash.
func (b *Base) BaseURL() string { return b.baseURL }

// Resolve appends a site-relative path (which may carry a query) to the base URL.
func (b *Base) Resolve(path string) string {
	return b.baseURL + "/" + strings.TrimPrefix(path, "/")
}

// Navigate opens a site-relative path and waits until the DOM is interactive.
func (b *Base) Navigate(ctx context.Context, path string) error {
	target := b.Resolve(path)
	slog.Debug("navigating", "url", target)
	if err := b.Page.Goto(ctx, target); err != nil {
		return fmt.Errorf("navigating to %s: %w", target, err)
	}
	return b.Page.WaitForLoadState(ctx, browser.LoadStateInteractive)
}

// IsVisible reports whether the first element matching selector is visible.
// A missing element or a failed check reads as not visible.
func (b *Base) IsVisible(ctx context.Context, selector string) bool {
	ok, err := b.Page.IsVisible(ctx, selector)
	if err != nil {
		slog.Debug("visibility check failed", "selector", selector, "error", err)
		return false
	}
	return ok
}

func (b *Base) ScrollToTop(ctx context.Context) error    { return b.eval(ctx, scrollTopScript) }
func (b *Base) ScrollToBottom(ctx context.Context) error { return b.eval(ctx, scrollBottomScript) }

func (b *Base) ScrollToOneThird(ctx context.Context) error {
	return b.eval(ctx, scrollOneThirdScript)
}

// Settle waits a fixed time. Only use it where the page offers no observable condition:
// fixed delays are the main source of flaky runs.
func (b *Base) Settle(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// click waits for the element to be visible before clicking it.
func (b *Base) click(ctx context.Context, selector string) error {
	if err := b.Page.WaitVisible(ctx, selector, b.Timeouts.Element.Std()); err != nil {
		return err
	}
	return b.Page.Click(ctx, selector)
}

func (b *Base) eval(ctx context.Context, script string) error {
	_, err := b.Page.Evaluate(ctx, script)
	return err
}
