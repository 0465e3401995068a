// Package scenario runs page-object journeys against the hotel site, each in its own browser,
// and reports one Result per run.
//
// A run moves through a fixed lifecycle: the browser session opens, the scenario body runs its
// steps, assertions are collected, and the session closes. Closing always happens, whether the
// body passed, failed an assertion, timed out, or panicked.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/TheLab-ms/innkeeper/engine/browser"
	"github.com/TheLab-ms/innkeeper/pages"
	"github.com/TheLab-ms/innkeeper/settings"
)

// Scenario is a named journey. Body must only use the Session it is given.
type Scenario struct {
	Name string
	Body func(ctx context.Context, s *Session) error
}

type Check struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

type Result struct {
	ID       uuid.UUID     `json:"id"`
	Scenario string        `json:"scenario"`
	Passed   bool          `json:"passed"`
	Message  string        `json:"message,omitempty"`
	Checks   []Check       `json:"checks"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// Failed returns the checks that did not pass.
func (r *Result) Failed() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// Orchestrator owns browser sessions. Settings and the contract are shared read-only between runs.
type Orchestrator struct {
	launcher browser.Launcher
	settings *settings.Settings
	contract *pages.Contract
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func New(l browser.Launcher, s *settings.Settings, c *pages.Contract, opts ...Option) (*Orchestrator, error) {
	if l == nil {
		return nil, errors.New("no browser launcher")
	}
	if s == nil {
		return nil, &settings.ConfigurationError{Err: errors.New("no settings")}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.New("no selector contract")
	}
	o := &Orchestrator{launcher: l, settings: s, contract: c, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RunAll runs the scenarios concurrently, at most Settings.Parallelism at a time.
// Results are returned in the order the scenarios were given.
func (o *Orchestrator) RunAll(ctx context.Context, scenarios ...Scenario) []*Result {
	results := make([]*Result, len(scenarios))
	var g errgroup.Group
	g.SetLimit(o.settings.Parallelism)
	for i, sc := range scenarios {
		g.Go(func() error {
			results[i] = o.Run(ctx, sc)
			return nil
		})
	}
	g.Wait()
	return results
}

// Run executes one scenario in a fresh browser session and always closes it.
func (o *Orchestrator) Run(ctx context.Context, sc Scenario) (res *Result) {
	res = &Result{ID: uuid.New(), Scenario: sc.Name, Started: o.now()}
	logger := o.logger.With("scenario", sc.Name, "run", res.ID)
	defer func() {
		res.Duration = o.now().Sub(res.Started)
		logger.Info("scenario finished", "passed", res.Passed, "message", res.Message, "duration", res.Duration)
	}()

	timeout := o.settings.Timeouts.Scenario.Std()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Debug("opening browser session")
	sess, err := o.launcher.Launch(ctx, o.settings.BrowserOptions())
	if err != nil {
		res.Message = fmt.Sprintf("launching browser: %s", err)
		return res
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("closing browser session", "error", err)
		}
	}()

	page, err := sess.NewPage(ctx)
	if err != nil {
		res.Message = fmt.Sprintf("opening page: %s", err)
		return res
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Debug("closing page", "error", err)
		}
	}()

	s, err := newSession(page, o.settings, o.contract, logger)
	if err != nil {
		res.Message = err.Error()
		return res
	}

	err = runBody(ctx, sc, s)
	res.Checks = s.checks
	o.finish(ctx, res, err, timeout)
	return res
}

func runBody(ctx context.Context, sc Scenario, s *Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scenario panicked: %v", r)
		}
	}()
	return sc.Body(ctx, s)
}

func (o *Orchestrator) finish(ctx context.Context, res *Result, err error, timeout time.Duration) {
	var af *AssertionFailure
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Message = fmt.Sprintf("scenario timed out after %s: %s", timeout, err)
	case errors.As(err, &af):
		res.Checks = append(res.Checks, Check{Name: af.Check, Message: af.Message})
		res.Message = af.Message
	default:
		res.Message = err.Error()
	}

	failed := res.Failed()
	res.Passed = err == nil && len(failed) == 0
	if !res.Passed && res.Message == "" && len(failed) > 0 {
		res.Message = failed[0].Message
	}
}

// Session is one scenario run's view of the site: page objects over a single page,
// plus the checks recorded so far.
type Session struct {
	Settings *settings.Settings
	Home     *pages.HomePage
	Login    *pages.AdminLoginPage
	Room     *pages.RoomPage
	Report   *pages.ReportPage
	Page     browser.Page
	Logger   *slog.Logger

	checks []Check
}

func newSession(page browser.Page, s *settings.Settings, c *pages.Contract, logger *slog.Logger) (*Session, error) {
	base, err := pages.NewBase(page, s, c)
	if err != nil {
		return nil, err
	}
	logger = logger.With("site", base.BaseURL())
	return &Session{
		Settings: s,
		Home:     pages.NewHomePage(base),
		Login:    pages.NewAdminLoginPage(base),
		Room:     pages.NewRoomPage(base),
		Report:   pages.NewReportPage(base),
		Page:     page,
		Logger:   logger,
	}, nil
}

// Step runs fn as a named check. A failed step records its error and returns it wrapped with the step name.
func (s *Session) Step(ctx context.Context, name string, fn func(context.Context) error) error {
	s.Logger.Debug("step", "name", name)
	if err := fn(ctx); err != nil {
		s.checks = append(s.checks, Check{Name: name, Message: err.Error()})
		return fmt.Errorf("%s: %w", name, err)
	}
	s.checks = append(s.checks, Check{Name: name, Passed: true})
	return nil
}

// Expect records a check that does not stop the scenario.
func (s *Session) Expect(name string, ok bool, format string, args ...any) bool {
	c := Check{Name: name, Passed: ok}
	if !ok {
		c.Message = fmt.Sprintf(format, args...)
		s.Logger.Debug("check failed", "name", name, "message", c.Message)
	}
	s.checks = append(s.checks, c)
	return ok
}
