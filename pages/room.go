package pages

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/TheLab-ms/innkeeper/engine/browser"
)

// DateLayout is how stay dates appear in reservation URLs.
const DateLayout = "2006-01-02"

type RoomPage struct {
	*Base

	// Now and Rand drive GenerateRandomDates. Tests replace them to pin the result.
	Now  func() time.Time
	Rand *rand.Rand
}

func NewRoomPage(b *Base) *RoomPage {
	return &RoomPage{Base: b, Now: time.Now, Rand: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

func (r *RoomPage) HasHeading(ctx context.Context) bool {
	return r.IsVisible(ctx, r.Contract.Room.Heading)
}

// GenerateRandomDates picks a stay starting 1 to 30 days from today and lasting 1 to 5 nights.
// Both dates are at midnight in the clock's location.
func (r *RoomPage) GenerateRandomDates() (start, end time.Time) {
	now := r.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start = today.AddDate(0, 0, 1+r.Rand.IntN(30))
	end = start.AddDate(0, 0, 1+r.Rand.IntN(5))
	return start, end
}

// GoToRoomWithDates opens a room's reservation page for the given stay and waits for its heading.
func (r *RoomPage) GoToRoomWithDates(ctx context.Context, roomID string, start, end time.Time) error {
	path := r.Contract.Routes.ReservationPath(roomID, start.Format(DateLayout), end.Format(DateLayout))
	if err := r.Navigate(ctx, path); err != nil {
		return err
	}
	return r.Page.WaitVisible(ctx, r.Contract.Room.Heading, r.Timeouts.Element.Std())
}

// OpenReservationForm reveals the booking form and waits for its first input.
func (r *RoomPage) OpenReservationForm(ctx context.Context) error {
	if err := r.click(ctx, r.Contract.Room.Reserve); err != nil {
		return fmt.Errorf("opening reservation form: %w", err)
	}
	if err := r.Page.WaitForLoadState(ctx, browser.LoadStateInteractive); err != nil {
		return err
	}
	return r.Page.WaitVisible(ctx, r.Contract.Room.Fields[0].Selector, r.Timeouts.Element.Std())
}

// FillAndSubmitBooking fills each payload field once, in payload order, and submits the form once.
// The payload is checked against the contract before the page is touched:
// keys without an input fail with a *FormMappingError.
func (r *RoomPage) FillAndSubmitBooking(ctx context.Context, payload *Payload) error {
	var unmapped []string
	for _, key := range payload.Keys() {
		if _, ok := r.Contract.Room.Field(key); !ok {
			unmapped = append(unmapped, key)
		}
	}
	if len(unmapped) > 0 {
		return &FormMappingError{Fields: unmapped}
	}

	for pair := payload.Oldest(); pair != nil; pair = pair.Next() {
		sel, _ := r.Contract.Room.Field(pair.Key)
		if err := r.Page.Fill(ctx, sel, pair.Value); err != nil {
			return fmt.Errorf("filling %s: %w", pair.Key, err)
		}
	}
	if err := r.Page.Click(ctx, r.Contract.Room.Submit); err != nil {
		return fmt.Errorf("submitting booking: %w", err)
	}
	if err := r.Page.WaitForLoadState(ctx, browser.LoadStateNetworkIdle); err != nil {
		return err
	}

	if conf := r.Contract.Room.Confirmation; conf != "" {
		if err := r.Page.WaitVisible(ctx, conf, r.Timeouts.Element.Std()); err != nil {
			return fmt.Errorf("waiting for booking confirmation: %w", err)
		}
	}
	slog.Debug("booking submitted", "guest", payload.FullName())
	return nil
}
