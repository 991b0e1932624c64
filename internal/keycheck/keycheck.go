// Package keycheck validates API keys against the provider's endpoint.
package keycheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/open2e/open2e/internal/network"
)

var (
	// ErrNetwork means the provider could not be reached. It is distinct
	// from a rejected key, which is reported as (false, nil).
	ErrNetwork = errors.New("key validation service unreachable")
	// ErrService means the provider answered with an unexpected status.
	ErrService = errors.New("key validation service error")
)

// Config configures a Validator.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Validator checks API keys by calling an authenticated endpoint with the
// key as bearer token.
type Validator struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

// New creates a validator.
func New(cfg Config, logger zerolog.Logger) *Validator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Validator{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "keycheck").Logger(),
	}
}

// Validate reports whether the provider accepts key.
func (v *Validator) Validate(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build validation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		if network.IsNetworkError(err) {
			v.logger.Warn().Err(err).Msg("key validation endpoint unreachable")
			return false, fmt.Errorf("%w: %w", ErrNetwork, err)
		}
		return false, fmt.Errorf("%w: %w", ErrService, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		v.logger.Info().Msg("api key accepted")
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		v.logger.Info().Int("status", resp.StatusCode).Msg("api key rejected")
		return false, nil
	default:
		return false, fmt.Errorf("%w: unexpected status %d", ErrService, resp.StatusCode)
	}
}
