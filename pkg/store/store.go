// Package store persists run state as a single JSON document with
// crash-safe writes. Every mutation rewrites the whole document through
// a temp file, fsync, and rename before returning, so a crash at any
// point leaves either the previous or the new state on disk, never a
// torn file.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// NotFoundError indicates a name absent from a store namespace.
type NotFoundError struct {
	Namespace string
	Name      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found in state", e.Namespace, e.Name)
}

// document is the on-disk shape.
type document struct {
	Resources map[string]map[string]any `json:"resources"`
	Hosts     map[string]map[string]any `json:"hosts"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// Store is a file-backed state store. All methods are safe for
// concurrent use; mutations serialize on an internal mutex.
type Store struct {
	path string
	log  zerolog.Logger

	mu  sync.Mutex
	doc document
}

// Open loads the store at path. A missing file is an empty store; the
// file is created on the first mutation.
func Open(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{
		path: path,
		log:  log.With().Str("component", "state-store").Logger(),
		doc: document{
			Resources: map[string]map[string]any{},
			Hosts:     map[string]map[string]any{},
		},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", path, err)
	}
	if s.doc.Resources == nil {
		s.doc.Resources = map[string]map[string]any{}
	}
	if s.doc.Hosts == nil {
		s.doc.Hosts = map[string]map[string]any{}
	}
	return s, nil
}

// Has reports whether a resource exists.
func (s *Store) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.doc.Resources[name]
	return ok
}

// Get returns a resource's attributes.
func (s *Store) Get(name string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs, ok := s.doc.Resources[name]
	if !ok {
		return nil, &NotFoundError{Namespace: "resource", Name: name}
	}
	return clone(attrs), nil
}

// Add creates or replaces a resource and persists before returning.
func (s *Store) Add(name string, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Resources[name] = clone(attrs)
	return s.save()
}

// Remove deletes a resource and persists before returning.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Resources[name]; !ok {
		return &NotFoundError{Namespace: "resource", Name: name}
	}
	delete(s.doc.Resources, name)
	return s.save()
}

// ResourceNames returns all resource names in sorted order.
func (s *Store) ResourceNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.doc.Resources)
}

// HasHost reports whether a host record exists.
func (s *Store) HasHost(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.doc.Hosts[name]
	return ok
}

// GetHost returns a host record.
func (s *Store) GetHost(name string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs, ok := s.doc.Hosts[name]
	if !ok {
		return nil, &NotFoundError{Namespace: "host", Name: name}
	}
	return clone(attrs), nil
}

// AddHost creates or replaces a host record and persists before
// returning.
func (s *Store) AddHost(name string, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Hosts[name] = clone(attrs)
	return s.save()
}

// RemoveHost deletes a host record and persists before returning.
func (s *Store) RemoveHost(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Hosts[name]; !ok {
		return &NotFoundError{Namespace: "host", Name: name}
	}
	delete(s.doc.Hosts, name)
	return s.save()
}

// HostNames returns all host record names in sorted order.
func (s *Store) HostNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.doc.Hosts)
}

// save rewrites the document atomically. Caller holds the mutex.
func (s *Store) save() error {
	s.doc.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("place state file: %w", err)
	}

	s.log.Debug().Int("resources", len(s.doc.Resources)).Int("hosts", len(s.doc.Hosts)).Msg("state saved")
	return nil
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]map[string]any) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
