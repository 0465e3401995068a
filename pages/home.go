package pages

import (
	"context"
	"fmt"

	"github.com/TheLab-ms/innkeeper/engine/browser"
)

type HomePage struct {
	*Base
}

func NewHomePage(b *Base) *HomePage { return &HomePage{Base: b} }

func (h *HomePage) Open(ctx context.Context) error {
	return h.Navigate(ctx, h.Contract.Routes.Home)
}

// GoAdmin follows the navbar's admin link.
func (h *HomePage) GoAdmin(ctx context.Context) error {
	if err := h.click(ctx, h.Contract.Home.AdminLink); err != nil {
		return fmt.Errorf("opening admin: %w", err)
	}
	return h.Page.WaitForLoadState(ctx, browser.LoadStateInteractive)
}

// BackToFront returns to the public home page.
func (h *HomePage) BackToFront(ctx context.Context) error {
	if h.IsVisible(ctx, h.Contract.Home.FrontLink) {
		if err := h.Page.Click(ctx, h.Contract.Home.FrontLink); err != nil {
			return fmt.Errorf("returning to front page: %w", err)
		}
		return h.Page.WaitForLoadState(ctx, browser.LoadStateInteractive)
	}
	return h.Open(ctx)
}

func (h *HomePage) ScrollDownOneThird(ctx context.Context) error { return h.ScrollToOneThird(ctx) }

// OpenNthRoom opens the room card at the 1-based position index.
func (h *HomePage) OpenNthRoom(ctx context.Context, index int) error {
	if index < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidRoomIndex, index)
	}
	sel := fmt.Sprintf(h.Contract.Home.RoomAction, index)
	if err := h.click(ctx, sel); err != nil {
		return fmt.Errorf("opening room %d: %w", index, err)
	}
	return h.Page.WaitForLoadState(ctx, browser.LoadStateInteractive)
}
