package pages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/TheLab-ms/innkeeper/engine/browser"
)

type ReportPage struct {
	*Base
}

func NewReportPage(b *Base) *ReportPage { return &ReportPage{Base: b} }

func (r *ReportPage) Open(ctx context.Context) error {
	return r.Navigate(ctx, r.Contract.Routes.Report)
}

// FindBooking reports whether any report entry contains fullName (case-sensitive).
// The report renders asynchronously, so it first waits up to the settle timeout for an entry to appear.
// Entries can keep arriving after the first one shows, so a miss gets one settle pause and a second scan.
// An empty report or a failed query reads as not found.
func (r *ReportPage) FindBooking(ctx context.Context, fullName string) bool {
	sel := r.Contract.Report.Event
	if err := r.Page.WaitVisible(ctx, sel, r.Timeouts.Settle.Std()); err != nil && !browser.IsTimeout(err) {
		slog.Debug("waiting for report entries failed", "error", err)
		return false
	}

	texts, ok := r.scan(ctx, sel)
	if !ok || len(texts) == 0 {
		return false
	}
	if containsName(texts, fullName) {
		return true
	}

	if err := r.Settle(ctx, r.Timeouts.Settle.Std()); err != nil {
		return false
	}
	texts, _ = r.scan(ctx, sel)
	return containsName(texts, fullName)
}

func (r *ReportPage) scan(ctx context.Context, sel string) ([]string, bool) {
	texts, err := r.Page.TextContents(ctx, sel)
	if err != nil {
		slog.Debug("reading report entries failed", "error", err)
		return nil, false
	}
	return texts, true
}

func containsName(texts []string, fullName string) bool {
	for _, text := range texts {
		if strings.Contains(text, fullName) {
			return true
		}
	}
	return false
}

func (r *ReportPage) Logout(ctx context.Context) error {
	if err := r.click(ctx, r.Contract.Report.Logout); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return r.Page.WaitForLoadState(ctx, browser.LoadStateInteractive)
}
