// Package extension is the background side of the browser extension: it
// tracks which tabs hold a saved page and turns toolbar clicks into save
// or unsave requests for the tab's annotation session.
package extension

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"rabbithole/api/internal/messages"
)

type Icon string

const (
	IconSaved   Icon = "saved"
	IconUnsaved Icon = "unsaved"
)

// StatusLoading is the tab status reported when a navigation starts.
const StatusLoading = "loading"

type Tab struct {
	ID    int
	URL   string
	Title string
}

// Browser is the slice of the extension API the controller needs.
type Browser interface {
	SendToTab(ctx context.Context, tabID int, msg messages.Message) error
	SetIcon(ctx context.Context, tabID int, icon Icon) error
}

// Controller owns per-tab save state. The state only changes when a tab
// confirms it; a click merely sends the intent.
type Controller struct {
	browser Browser
	log     zerolog.Logger

	mu    sync.Mutex
	saved map[int]bool
}

func New(browser Browser, log zerolog.Logger) *Controller {
	return &Controller{
		browser: browser,
		log:     log.With().Str("component", "extension").Logger(),
		saved:   map[int]bool{},
	}
}

func (c *Controller) IsSaved(tabID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved[tabID]
}

// ActionClicked asks the tab to save or unsave depending on its confirmed
// state.
func (c *Controller) ActionClicked(ctx context.Context, tab Tab) error {
	msg := messages.NewSaveRequest(tab.URL, tab.Title)
	if c.IsSaved(tab.ID) {
		msg = messages.NewUnsaveRequest()
	}
	if err := c.browser.SendToTab(ctx, tab.ID, msg); err != nil {
		return fmt.Errorf("send %s to tab %d: %w", msg.Type, tab.ID, err)
	}
	return nil
}

// HandleMessage consumes messages coming from a tab.
func (c *Controller) HandleMessage(ctx context.Context, tabID int, msg messages.Message) error {
	if msg.Type != messages.SaveStateChanged {
		c.log.Debug().Str("type", msg.Type).Int("tab", tabID).Msg("ignored message")
		return nil
	}
	saved := msg.IsSaved()

	c.mu.Lock()
	if saved {
		c.saved[tabID] = true
	} else {
		delete(c.saved, tabID)
	}
	c.mu.Unlock()

	return c.browser.SetIcon(ctx, tabID, iconFor(saved))
}

// TabUpdated resets a tab that starts loading a new document.
func (c *Controller) TabUpdated(ctx context.Context, tabID int, status string) error {
	if status != StatusLoading {
		return nil
	}
	c.TabRemoved(tabID)

	if err := c.browser.SetIcon(ctx, tabID, IconUnsaved); err != nil {
		return err
	}
	if err := c.browser.SendToTab(ctx, tabID, messages.NewUnsaveRequest()); err != nil {
		// the content script of the new document may not be listening yet
		c.log.Debug().Err(err).Int("tab", tabID).Msg("unsave not delivered")
	}
	return nil
}

func (c *Controller) TabRemoved(tabID int) {
	c.mu.Lock()
	delete(c.saved, tabID)
	c.mu.Unlock()
}

func iconFor(saved bool) Icon {
	if saved {
		return IconSaved
	}
	return IconUnsaved
}
