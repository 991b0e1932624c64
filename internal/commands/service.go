// Package commands implements the operations the UI invokes on the host.
package commands

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/open2e/open2e/internal/settings"
	"github.com/open2e/open2e/internal/window"
)

var ErrUnsupportedScheme = errors.New("unsupported url scheme")

// WindowController applies window decisions.
type WindowController interface {
	LoadWindow(ctx context.Context, initialized bool) (window.Result, error)
	ShowMain(ctx context.Context) (window.Result, error)
}

// MemoryReader reports host memory in whole gigabytes.
type MemoryReader interface {
	TotalMemoryGB() (uint64, error)
}

// KeyValidator checks an API key with the external provider.
type KeyValidator interface {
	Validate(ctx context.Context, key string) (bool, error)
}

// URLOpener opens a URL with the system handler.
type URLOpener interface {
	OpenBrowser(url string) error
}

// Service runs host commands. A failure ends the invocation; nothing is
// retried.
type Service struct {
	store    *settings.Store
	document string
	windows  WindowController
	memory   MemoryReader
	keys     KeyValidator
	opener   URLOpener
	logger   zerolog.Logger
}

// Deps groups the collaborators of Service.
type Deps struct {
	Store    *settings.Store
	Document string
	Windows  WindowController
	Memory   MemoryReader
	Keys     KeyValidator
	Opener   URLOpener
}

// NewService creates a command service.
func NewService(deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		store:    deps.Store,
		document: deps.Document,
		windows:  deps.Windows,
		memory:   deps.Memory,
		keys:     deps.Keys,
		opener:   deps.Opener,
		logger:   logger.With().Str("component", "commands").Logger(),
	}
}

// InitializeApp records that setup has finished and shows the main window.
func (s *Service) InitializeApp(ctx context.Context) (window.Result, error) {
	err := s.store.Update(s.document, func(doc *settings.Document) error {
		settings.MarkInitialized(doc, true)
		return nil
	})
	if err != nil {
		return window.Result{}, wrap(KindStore, "initialize_app", fmt.Errorf("failed to update %s: %w", s.document, err))
	}

	res, err := s.windows.ShowMain(ctx)
	if err != nil {
		return window.Result{}, wrap(KindWindow, "initialize_app", err)
	}
	return res, nil
}

// LoadWindow reads the initialization flag and shows the matching window.
func (s *Service) LoadWindow(ctx context.Context) (window.Result, error) {
	initialized, err := s.readInitialized()
	if err != nil {
		return window.Result{}, wrap(KindStore, "load_window", err)
	}

	res, err := s.windows.LoadWindow(ctx, initialized)
	if err != nil {
		return window.Result{}, wrap(KindWindow, "load_window", err)
	}
	return res, nil
}

// ShowWindow is LoadWindow under the name the splash page uses.
func (s *Service) ShowWindow(ctx context.Context) (window.Result, error) {
	return s.LoadWindow(ctx)
}

// readInitialized holds the document lock only while reading the flag.
func (s *Service) readInitialized() (bool, error) {
	var initialized bool
	err := s.store.View(s.document, func(doc *settings.Document) error {
		initialized = settings.IsInitialized(doc)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", s.document, err)
	}
	return initialized, nil
}

// GetTotalMemoryGB returns host memory in whole gigabytes.
func (s *Service) GetTotalMemoryGB(_ context.Context) (uint64, error) {
	gb, err := s.memory.TotalMemoryGB()
	if err != nil {
		return 0, wrap(KindHostInfo, "get_total_memory_gb", err)
	}
	return gb, nil
}

// ValidateKey asks the provider whether key is accepted.
func (s *Service) ValidateKey(ctx context.Context, key string) (bool, error) {
	ok, err := s.keys.Validate(ctx, key)
	if err != nil {
		return false, wrap(KindValidation, "validate_key", err)
	}
	return ok, nil
}

// OpenURL opens an http, https or mailto URL in the system handler.
func (s *Service) OpenURL(_ context.Context, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || raw == "" {
		return wrap(KindInvalidArgument, "open_url", fmt.Errorf("invalid url %q", raw))
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "mailto":
	default:
		return wrap(KindInvalidArgument, "open_url", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme))
	}

	if err := s.opener.OpenBrowser(u.String()); err != nil {
		return wrap(KindWindow, "open_url", fmt.Errorf("failed to open url: %w", err))
	}
	s.logger.Debug().Str("url", u.String()).Msg("opened url")
	return nil
}
