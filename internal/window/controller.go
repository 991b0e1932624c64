package window

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Backend performs the platform side of window operations.
type Backend interface {
	Open(ctx context.Context, h *Handle) error
	Focus(ctx context.Context, h *Handle) error
	Close(ctx context.Context, h *Handle) error
}

// Result describes the window a decision ended on.
type Result struct {
	Window *Handle  `json:"window"`
	Reused bool     `json:"reused"`
	Closed []string `json:"closed,omitempty"`
}

// Controller owns the label -> window registry. Every operation runs under
// one mutex, so two concurrent decisions cannot both create a window.
type Controller struct {
	backend Backend
	logger  zerolog.Logger

	mu      sync.Mutex
	windows map[string]*Handle
}

// NewController creates a controller with an empty registry.
func NewController(backend Backend, logger zerolog.Logger) *Controller {
	return &Controller{
		backend: backend,
		logger:  logger.With().Str("component", "window").Logger(),
		windows: make(map[string]*Handle),
	}
}

// Create opens a new window. It fails with ErrWindowExists when the label
// is already taken.
func (c *Controller) Create(ctx context.Context, cfg Config) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.create(ctx, cfg)
}

func (c *Controller) create(ctx context.Context, cfg Config) (*Handle, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if _, exists := c.windows[cfg.Label]; exists {
		return nil, fmt.Errorf("%w: %q", ErrWindowExists, cfg.Label)
	}

	h := newHandle(cfg)
	if err := c.backend.Open(ctx, h); err != nil {
		return nil, fmt.Errorf("failed to create window %q: %w", cfg.Label, err)
	}
	c.windows[cfg.Label] = h

	c.logger.Info().Str("label", h.Label).Str("id", h.ID).Str("url", cfg.URL).Msg("window created")
	return h, nil
}

// ensure returns the existing window for cfg.Label, focused, or creates it.
func (c *Controller) ensure(ctx context.Context, cfg Config) (*Handle, bool, error) {
	if h, ok := c.windows[cfg.Label]; ok {
		if err := c.backend.Focus(ctx, h); err != nil {
			c.logger.Warn().Err(err).Str("label", h.Label).Msg("failed to focus existing window")
		}
		c.logger.Debug().Str("label", h.Label).Str("id", h.ID).Msg("window already open, reusing")
		return h, true, nil
	}
	h, err := c.create(ctx, cfg)
	return h, false, err
}

// Close closes the window with label and reports whether one was open.
func (c *Controller) Close(ctx context.Context, label string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close(ctx, label)
}

func (c *Controller) close(ctx context.Context, label string) (bool, error) {
	h, ok := c.windows[label]
	if !ok {
		return false, nil
	}

	// A window the backend failed to close is still open and stays listed.
	if err := c.backend.Close(ctx, h); err != nil {
		return true, fmt.Errorf("failed to close window %q: %w", label, err)
	}
	delete(c.windows, label)
	c.logger.Info().Str("label", label).Str("id", h.ID).Msg("window closed")
	return true, nil
}

// closeBestEffort closes label and only logs failures. Closing a superseded
// window never fails the decision that replaced it.
func (c *Controller) closeBestEffort(ctx context.Context, label string, closed *[]string) {
	ok, err := c.close(ctx, label)
	if err != nil {
		c.logger.Warn().Err(err).Str("label", label).Msg("failed to close window")
		return
	}
	if ok {
		*closed = append(*closed, label)
	}
}

// Forget drops a window the user closed. id must match the open instance;
// reports about an older instance of the same label are ignored.
func (c *Controller) Forget(label, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.windows[label]
	if !ok || (id != "" && h.ID != id) {
		return false
	}
	delete(c.windows, label)
	c.logger.Info().Str("label", label).Str("id", h.ID).Msg("window closed by user")
	return true
}

// Get returns the open window with label.
func (c *Controller) Get(label string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.windows[label]
	return h, ok
}

// List returns the open windows sorted by label.
func (c *Controller) List() []*Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Handle, 0, len(c.windows))
	for _, h := range c.windows {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// LoadWindow shows the main window when the application is initialized and
// the setup window otherwise, then closes the splash window.
func (c *Controller) LoadWindow(ctx context.Context, initialized bool) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := SetupConfig()
	if initialized {
		target = MainConfig()
	}

	h, reused, err := c.ensure(ctx, target)
	if err != nil {
		return Result{}, err
	}

	res := Result{Window: h, Reused: reused}
	if initialized {
		c.closeBestEffort(ctx, LabelSetup, &res.Closed)
	}
	c.closeBestEffort(ctx, LabelIndex, &res.Closed)

	c.logger.Info().
		Bool("initialized", initialized).
		Str("window", h.Label).
		Bool("reused", reused).
		Strs("closed", res.Closed).
		Msg("window decision applied")
	return res, nil
}

// ShowMain shows the main window and closes the setup and splash windows.
// The setup flow calls it once the user finishes initialization.
func (c *Controller) ShowMain(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, reused, err := c.ensure(ctx, MainConfig())
	if err != nil {
		return Result{}, err
	}

	res := Result{Window: h, Reused: reused}
	c.closeBestEffort(ctx, LabelSetup, &res.Closed)
	c.closeBestEffort(ctx, LabelIndex, &res.Closed)
	return res, nil
}
