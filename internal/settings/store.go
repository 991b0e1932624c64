// Package settings persists the small JSON key-value documents the UI and
// the host share (store.settings, store.config, store.apikeys).
//
// Documents are acquired per use: Open loads the file and takes the
// document's lock, Close releases it. Nothing is cached between uses.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidName = errors.New("invalid settings document name")
	ErrClosed      = errors.New("settings document is closed")
)

var namePattern = regexp.MustCompile(`^(store\.[A-Za-z0-9_-]+|[A-Za-z0-9_-]+\.json)$`)

// Store opens settings documents kept in one directory.
type Store struct {
	dir    string
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string, logger zerolog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "settings").Logger(),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Dir returns the directory holding the documents.
func (s *Store) Dir() string {
	return s.dir
}

// ValidName reports whether name can be used as a document name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

func (s *Store) lockFor(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// Open loads the named document and holds its lock until Close.
// A missing file yields an empty document.
func (s *Store) Open(name string) (*Document, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	lock := s.lockFor(name)
	lock.Lock()

	path := filepath.Join(s.dir, name)
	values, err := readDocument(path)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	s.logger.Debug().Str("document", name).Int("keys", len(values)).Msg("settings document opened")

	return &Document{
		name:   name,
		path:   path,
		values: values,
		lock:   lock,
	}, nil
}

// View opens name, calls fn and closes the document whatever fn returns.
func (s *Store) View(name string, fn func(*Document) error) error {
	doc, err := s.Open(name)
	if err != nil {
		return err
	}
	defer doc.Close()
	return fn(doc)
}

// Update is View followed by Save when fn succeeds.
func (s *Store) Update(name string, fn func(*Document) error) error {
	return s.View(name, func(doc *Document) error {
		if err := fn(doc); err != nil {
			return err
		}
		return doc.Save()
	})
}

func readDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]any), nil
		}
		return nil, fmt.Errorf("failed to read settings document: %w", err)
	}

	values := make(map[string]any)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode settings document %s: %w", filepath.Base(path), err)
	}
	return values, nil
}

// Document is an open settings document.
type Document struct {
	name   string
	path   string
	values map[string]any
	dirty  bool

	lock   *sync.Mutex
	closed bool
}

// Name returns the document name.
func (d *Document) Name() string {
	return d.name
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Set stores value under key. Values must be JSON-encodable.
func (d *Document) Set(key string, value any) {
	d.values[key] = value
	d.dirty = true
}

// Delete removes key and reports whether it was present.
func (d *Document) Delete(key string) bool {
	if _, ok := d.values[key]; !ok {
		return false
	}
	delete(d.values, key)
	d.dirty = true
	return true
}

// Keys returns the document keys in sorted order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.values))
	for k := range d.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns a shallow copy of the document.
func (d *Document) Entries() map[string]any {
	out := make(map[string]any, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// Replace swaps the whole content of the document.
func (d *Document) Replace(values map[string]any) {
	d.values = make(map[string]any, len(values))
	for k, v := range values {
		d.values[k] = v
	}
	d.dirty = true
}

// Save writes the document atomically. It is a no-op when nothing changed.
func (d *Document) Save() error {
	if d.closed {
		return ErrClosed
	}
	if !d.dirty {
		return nil
	}

	data, err := json.MarshalIndent(d.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings document: %w", err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, d.name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write settings document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write settings document: %w", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace settings document: %w", err)
	}

	d.dirty = false
	return nil
}

// Close releases the document. Unsaved changes are discarded.
func (d *Document) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.lock.Unlock()
	return nil
}
