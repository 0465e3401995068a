package pages

import (
	"context"
	"fmt"
	"strings"

	"github.com/TheLab-ms/innkeeper/engine/browser"
)

type AdminLoginPage struct {
	*Base
}

func NewAdminLoginPage(b *Base) *AdminLoginPage { return &AdminLoginPage{Base: b} }

func (a *AdminLoginPage) Open(ctx context.Context) error {
	if err := a.Navigate(ctx, a.Contract.Routes.AdminLogin); err != nil {
		return err
	}
	return a.Page.WaitVisible(ctx, a.Contract.Login.Username, a.Timeouts.Element.Std())
}

// Login submits the form and waits for the network to go quiet.
// With both credentials present it also waits for the admin area, returning an
// *AuthenticationError if the site never gets there.
func (a *AdminLoginPage) Login(ctx context.Context, username, password string) error {
	sel := a.Contract.Login
	for _, f := range []struct{ selector, value string }{
		{sel.Username, username},
		{sel.Password, password},
	} {
		if err := a.Page.Fill(ctx, f.selector, ""); err != nil {
			return fmt.Errorf("clearing %s: %w", f.selector, err)
		}
		if err := a.Page.Fill(ctx, f.selector, f.value); err != nil {
			return fmt.Errorf("filling %s: %w", f.selector, err)
		}
	}
	if err := a.Page.Click(ctx, sel.Submit); err != nil {
		return fmt.Errorf("submitting login: %w", err)
	}
	if err := a.Page.WaitForLoadState(ctx, browser.LoadStateNetworkIdle); err != nil {
		return err
	}
	if username == "" || password == "" {
		return nil
	}

	expected := a.Resolve(a.Contract.Routes.AdminArea)
	err := a.Page.WaitForURL(ctx, expected, a.Timeouts.URL.Std())
	if browser.IsTimeout(err) {
		return &AuthenticationError{Expected: expected, Actual: a.Page.URL(), Err: err}
	}
	return err
}

// ErrorMessage waits for the login error and returns its trimmed text.
func (a *AdminLoginPage) ErrorMessage(ctx context.Context) (string, error) {
	sel := a.Contract.Login.Error
	if err := a.Page.WaitVisible(ctx, sel, a.Timeouts.Element.Std()); err != nil {
		return "", err
	}
	texts, err := a.Page.TextContents(ctx, sel)
	if err != nil {
		return "", err
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	return strings.TrimSpace(texts[0]), nil
}
