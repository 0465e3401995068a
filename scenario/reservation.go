package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/TheLab-ms/innkeeper/pages"
)

// ReservationName is the name results carry for the reservation journey.
const ReservationName = "reservation"

// Reservation logs in, books a random stay with payload as the guest, and expects the
// booking in the admin report. It logs out before judging the report so the session ends clean.
func Reservation(payload *pages.Payload) Scenario {
	return Scenario{Name: ReservationName, Body: func(ctx context.Context, s *Session) error {
		cfg := s.Settings
		var start, end time.Time

		steps := []struct {
			name string
			fn   func(context.Context) error
		}{
			{"open home", s.Home.Open},
			{"go to admin", s.Home.GoAdmin},
			{"admin login", func(ctx context.Context) error {
				return s.Login.Login(ctx, cfg.Auth.Username, cfg.Auth.Password)
			}},
			{"back to front", s.Home.BackToFront},
			{"scroll rooms into view", s.Home.ScrollDownOneThird},
			{"open room card", func(ctx context.Context) error {
				return s.Home.OpenNthRoom(ctx, cfg.Reservation.RoomIndex)
			}},
			{"go to room with dates", func(ctx context.Context) error {
				start, end = s.Room.GenerateRandomDates()
				s.Logger.Debug("picked stay", "start", start.Format(pages.DateLayout), "end", end.Format(pages.DateLayout))
				return s.Room.GoToRoomWithDates(ctx, cfg.Reservation.RoomID, start, end)
			}},
			{"open reservation form", s.Room.OpenReservationForm},
			{"submit booking", func(ctx context.Context) error {
				return s.Room.FillAndSubmitBooking(ctx, payload)
			}},
			{"open report", s.Report.Open},
		}
		for _, step := range steps {
			if err := s.Step(ctx, step.name, step.fn); err != nil {
				return err
			}
		}

		name := payload.FullName()
		found := s.Report.FindBooking(ctx, name)
		if err := s.Report.Logout(ctx); err != nil {
			s.Expect("logout", false, "%s", err)
		} else {
			s.Expect("logout", true, "")
		}
		if !found {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("waiting for booking for %s in report: %w", name, err)
			}
			return Failf("booking in report", "booking for %s not found", name)
		}
		s.Expect("booking in report", true, "")
		return nil
	}}
}
