// Package window tracks the named UI windows of the application and decides
// which one to show at startup.
package window

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Window labels. A label identifies at most one open window.
const (
	LabelIndex = "index"
	LabelSetup = "setup"
	LabelMain  = "main"
)

var (
	ErrWindowExists  = errors.New("a window with the same label already exists")
	ErrInvalidConfig  = errors.New("invalid window config")
)

// Size is a window size in logical pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Config describes how a window is presented.
type Config struct {
	Label     string `json:"label"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Size      *Size  `json:"size,omitempty"`
	MinSize   *Size  `json:"minSize,omitempty"`
	Resizable bool   `json:"resizable"`
	Center    bool   `json:"center"`
}

func (c Config) validate() error {
	if c.Label == "" {
		return errors.Join(ErrInvalidConfig, errors.New("label is required"))
	}
	if c.URL == "" {
		return errors.Join(ErrInvalidConfig, errors.New("url is required"))
	}
	return nil
}

// MainConfig is the primary application window.
func MainConfig() Config {
	return Config{
		Label:     LabelMain,
		URL:       "windows/main.html",
		Title:     "Open 2E: Open Ended Evaluation",
		MinSize:   &Size{Width: 800, Height: 600},
		Resizable: true,
		Center:    true,
	}
}

// SetupConfig is the first-run initialization window.
func SetupConfig() Config {
	return Config{
		Label:     LabelSetup,
		URL:       "windows/setup.html",
		Title:     "Open2E: Initialization",
		Size:      &Size{Width: 800, Height: 600},
		Resizable: false,
		Center:    true,
	}
}

// IndexConfig is the splash window shown while the host starts.
func IndexConfig() Config {
	return Config{
		Label:     LabelIndex,
		URL:       "index.html",
		Title:     "Open2E",
		Size:      &Size{Width: 400, Height: 300},
		Resizable: false,
		Center:    true,
	}
}

// Handle is an open window.
type Handle struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Config    Config    `json:"config"`
	CreatedAt time.Time `json:"createdAt"`
}

func newHandle(cfg Config) *Handle {
	return &Handle{
		ID:        uuid.NewString(),
		Label:     cfg.Label,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}
}
