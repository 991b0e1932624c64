package logger

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

const (
	defaultBufferSize = 1000

	// EventLogEntry is pushed to UI pages for every streamed entry.
	EventLogEntry = "logs:entry"
)

// Broadcaster pushes typed events to connected UI pages.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// LogEntry is a zerolog line split into its well-known fields.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Stream is an io.Writer fed with zerolog JSON lines. It retains the newest
// entries in a fixed window and forwards each one to the hub, if set.
type Stream struct {
	mu      sync.Mutex
	hub     Broadcaster
	entries []LogEntry
	next    int
	full    bool
}

// NewStream creates a stream retaining up to capacity entries.
func NewStream(capacity int) *Stream {
	if capacity <= 0 {
		capacity = defaultBufferSize
	}
	return &Stream{entries: make([]LogEntry, capacity)}
}

// SetHub starts forwarding entries to hub. A nil hub stops forwarding.
func (s *Stream) SetHub(hub Broadcaster) {
	s.mu.Lock()
	s.hub = hub
	s.mu.Unlock()
}

// Write implements io.Writer. Lines that are not JSON objects are dropped.
func (s *Stream) Write(p []byte) (int, error) {
	entry, ok := parseEntry(p)
	if !ok {
		return len(p), nil
	}

	s.mu.Lock()
	s.entries[s.next] = entry
	s.next = (s.next + 1) % len(s.entries)
	if s.next == 0 {
		s.full = true
	}
	hub := s.hub
	s.mu.Unlock()

	if hub != nil {
		_ = hub.Broadcast(EventLogEntry, entry)
	}
	return len(p), nil
}

// Recent returns every retained entry, oldest first.
func (s *Stream) Recent() []LogEntry {
	return s.Tail(0)
}

// Tail returns at most n of the newest entries, oldest first. n <= 0
// returns everything retained.
func (s *Stream) Tail(n int) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, start := s.next, 0
	if s.full {
		count, start = len(s.entries), s.next
	}
	if n <= 0 || n > count {
		n = count
	}

	out := make([]LogEntry, n)
	for i := range n {
		out[i] = s.entries[(start+count-n+i)%len(s.entries)]
	}
	return out
}

func parseEntry(data []byte) (LogEntry, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogEntry{}, false
	}

	entry := LogEntry{
		Timestamp: take(raw, zerolog.TimestampFieldName),
		Level:     take(raw, zerolog.LevelFieldName),
		Component: take(raw, "component"),
		Message:   take(raw, zerolog.MessageFieldName),
	}
	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry, true
}

// take removes key from raw and returns it when it holds a string.
func take(raw map[string]any, key string) string {
	v, ok := raw[key].(string)
	if ok {
		delete(raw, key)
	}
	return v
}
