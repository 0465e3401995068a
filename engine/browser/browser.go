// Package browser is the narrow slice of a browser-automation engine that page objects consume.
// Engines are swappable: playwright (default), rod, and a JavaScript-free static engine.
package browser

import (
	"context"
	"fmt"
	"time"
)

// LoadState is a page lifecycle milestone that navigation waits for.
type LoadState string

const (
	// LoadStateInteractive means the DOM has been parsed (DOMContentLoaded).
	LoadStateInteractive LoadState = "domcontentloaded"
	// LoadStateNetworkIdle means no network requests for a short quiet period.
	LoadStateNetworkIdle LoadState = "networkidle"
)

// Page is a single tab. Implementations are not safe for concurrent use:
// operations against one page must be issued strictly sequentially.
type Page interface {
	// Goto navigates to an absolute URL and waits until the DOM is interactive.
	Goto(ctx context.Context, url string) error
	URL() string
	WaitForLoadState(ctx context.Context, state LoadState) error
	// WaitForURL blocks until the location matches url (see URLMatches) or the timeout expires.
	WaitForURL(ctx context.Context, url string, timeout time.Duration) error
	// WaitVisible blocks until the first element matching selector is visible or the timeout expires.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	IsVisible(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	// Fill replaces the value of the first input matching selector.
	Fill(ctx context.Context, selector, value string) error
	// TextContents returns the text of every element matching selector, in document order.
	TextContents(ctx context.Context, selector string) ([]string, error)
	Evaluate(ctx context.Context, script string) (any, error)
	Close() error
}

// Session is one browser instance. It is owned by exactly one orchestration unit.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Session, error)
}

type Options struct {
	Headless bool

	// Timeout bounds navigations and element actions that have no explicit timeout.
	Timeout time.Duration
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, opts Options) (Session, error)

func (f LauncherFunc) Launch(ctx context.Context, opts Options) (Session, error) { return f(ctx, opts) }

// Engine names accepted by NewLauncher.
const (
	EnginePlaywright = "playwright"
	EngineRod        = "rod"
	EngineStatic     = "static"
)

// NewLauncher returns the launcher for the named engine.
func NewLauncher(engine string) (Launcher, error) {
	switch engine {
	case EnginePlaywright, "":
		return &PlaywrightLauncher{}, nil
	case EngineRod:
		return &RodLauncher{}, nil
	case EngineStatic:
		return &StaticLauncher{}, nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", engine)
	}
}
