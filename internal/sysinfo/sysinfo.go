// Package sysinfo answers host facts the UI needs to pick a local model.
package sysinfo

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
)

var ErrHostQuery = errors.New("failed to query host memory")

const bytesPerGB = 1024 * 1024 * 1024

// Reader returns the total physical memory of the host in bytes.
type Reader interface {
	TotalMemory() (uint64, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func() (uint64, error)

func (f ReaderFunc) TotalMemory() (uint64, error) { return f() }

// HostReader reads memory from the operating system.
func HostReader() Reader {
	return ReaderFunc(hostTotalMemory)
}

// Service reports host memory in whole gigabytes.
type Service struct {
	reader Reader
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewService creates a service backed by reader.
func NewService(reader Reader, logger zerolog.Logger) *Service {
	return &Service{
		reader: reader,
		logger: logger.With().Str("component", "sysinfo").Logger(),
	}
}

// TotalMemoryGB returns the total memory rounded to whole gigabytes,
// adjusted with AdjustForReservedMemory.
func (s *Service) TotalMemoryGB() (uint64, error) {
	s.mu.Lock()
	total, err := s.reader.TotalMemory()
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrHostQuery, err)
	}

	gb := RoundGB(total)
	adjusted := AdjustForReservedMemory(gb)
	s.logger.Debug().
		Uint64("bytes", total).
		Uint64("roundedGB", gb).
		Uint64("reportedGB", adjusted).
		Msg("host memory queried")
	return adjusted, nil
}

// RoundGB converts bytes to gigabytes rounded to the nearest integer.
func RoundGB(bytes uint64) uint64 {
	return uint64(math.Round(float64(bytes) / bytesPerGB))
}

// AdjustForReservedMemory reports 15 GB as 16 GB. Integrated graphics
// reserve part of the RAM, so nominal 16 GB machines show up as 15 GB.
// Other sizes pass through.
func AdjustForReservedMemory(gb uint64) uint64 {
	if gb == 15 {
		return 16
	}
	return gb
}
