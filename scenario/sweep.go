package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/TheLab-ms/innkeeper/engine/browser"
	"github.com/TheLab-ms/innkeeper/pages"
)

// SweepName is the name results carry for the invalid-login sweep.
const SweepName = "invalid-login-sweep"

// Credentials are the sweep's inputs: one account and passwords it must reject.
type Credentials struct {
	Username  string
	Passwords []string
}

// InvalidLoginSweep tries every password against the login form and records one check each.
// A rejected attempt passes when the site shows the configured error text.
// Attempts run in place on one page. A failed attempt does not stop the sweep unless the page is gone.
func InvalidLoginSweep(creds Credentials) Scenario {
	return Scenario{Name: SweepName, Body: func(ctx context.Context, s *Session) error {
		limiter := rate.NewLimiter(rate.Inf, 1)
		if aps := s.Settings.Sweep.AttemptsPerSecond; aps > 0 {
			limiter = rate.NewLimiter(rate.Limit(aps), 1)
		}

		if err := s.Step(ctx, "open login", s.Login.Open); err != nil {
			return err
		}
		for i, password := range creds.Passwords {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			name := fmt.Sprintf("reject password %d of %d", i+1, len(creds.Passwords))
			err := attemptLogin(ctx, s, name, creds.Username, password)
			if err != nil && (errors.Is(err, browser.ErrClosed) || ctx.Err() != nil) {
				return err
			}
		}
		return nil
	}}
}

// attemptLogin records the check for one attempt and returns any error that wasn't a rejection.
func attemptLogin(ctx context.Context, s *Session, name, username, password string) error {
	err := s.Login.Login(ctx, username, password)
	var authErr *pages.AuthenticationError
	switch {
	case errors.As(err, &authErr):
	case err != nil:
		s.Expect(name, false, "%s", err)
		return err
	case browser.URLMatches(s.Page.URL(), s.Login.Resolve(s.Login.Contract.Routes.AdminArea)):
		s.Expect(name, false, "login succeeded for %s", username)
		return s.Login.Open(ctx)
	}

	expected := s.Settings.Sweep.ExpectedError
	msg, err := s.Login.ErrorMessage(ctx)
	if err != nil {
		s.Expect(name, false, "no login error shown: %s", err)
		return err
	}
	s.Expect(name, strings.Contains(msg, expected), "expected login error containing %q, got %q", expected, msg)
	return nil
}
