package window

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Opener opens a URL in the user's browser shell.
type Opener interface {
	OpenBrowser(url string) error
}

// Notifier pushes an event to the UI pages connected to the host.
type Notifier interface {
	Broadcast(msgType string, payload any) error
}

// Event types sent to UI pages.
const (
	EventOpened = "window:opened"
	EventFocus  = "window:focus"
	EventClose  = "window:close"
)

// EventPayload identifies the window an event is about.
type EventPayload struct {
	Label string `json:"label"`
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// BrowserBackend opens windows as pages served by the local host and closes
// them by asking the page to close itself.
type BrowserBackend struct {
	baseURL  string
	opener   Opener
	notifier Notifier
}

// NewBrowserBackend creates a backend serving pages from baseURL.
func NewBrowserBackend(baseURL string, opener Opener, notifier Notifier) *BrowserBackend {
	return &BrowserBackend{
		baseURL:  strings.TrimRight(baseURL, "/"),
		opener:   opener,
		notifier: notifier,
	}
}

// PageURL returns the address of the page for h. Presentation parameters
// travel in the query string; the page applies them when it loads.
func (b *BrowserBackend) PageURL(h *Handle) string {
	q := url.Values{}
	q.Set("window", h.Label)
	q.Set("id", h.ID)
	q.Set("title", h.Config.Title)
	q.Set("resizable", strconv.FormatBool(h.Config.Resizable))
	q.Set("center", strconv.FormatBool(h.Config.Center))
	if s := h.Config.Size; s != nil {
		q.Set("width", strconv.FormatFloat(s.Width, 'f', -1, 64))
		q.Set("height", strconv.FormatFloat(s.Height, 'f', -1, 64))
	}
	if s := h.Config.MinSize; s != nil {
		q.Set("minWidth", strconv.FormatFloat(s.Width, 'f', -1, 64))
		q.Set("minHeight", strconv.FormatFloat(s.Height, 'f', -1, 64))
	}
	return fmt.Sprintf("%s/%s?%s", b.baseURL, strings.TrimLeft(h.Config.URL, "/"), q.Encode())
}

func (b *BrowserBackend) Open(_ context.Context, h *Handle) error {
	if err := b.opener.OpenBrowser(b.PageURL(h)); err != nil {
		return err
	}
	return b.notify(EventOpened, h)
}

func (b *BrowserBackend) Focus(_ context.Context, h *Handle) error {
	return b.notify(EventFocus, h)
}

func (b *BrowserBackend) Close(_ context.Context, h *Handle) error {
	return b.notify(EventClose, h)
}

func (b *BrowserBackend) notify(event string, h *Handle) error {
	if b.notifier == nil {
		return nil
	}
	return b.notifier.Broadcast(event, EventPayload{Label: h.Label, ID: h.ID, Title: h.Config.Title})
}
