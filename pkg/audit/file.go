package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// FileRecorder stores entries in a single JSON document. Each Record
// rewrites the document atomically, mirroring the state store's
// crash-safety: a crash leaves either the previous or the new document.
type FileRecorder struct {
	path string
	log  zerolog.Logger

	mu      sync.Mutex
	entries []*Entry
}

// OpenFile loads the recorder at path. A missing file is an empty log.
func OpenFile(path string, log zerolog.Logger) (*FileRecorder, error) {
	r := &FileRecorder{
		path: path,
		log:  log.With().Str("component", "audit-file").Logger(),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit log %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &r.entries); err != nil {
		return nil, fmt.Errorf("parse audit log %s: %w", path, err)
	}
	return r, nil
}

// Record implements Recorder.
func (r *FileRecorder) Record(_ context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, e)
	if err := r.save(); err != nil {
		r.entries = r.entries[:len(r.entries)-1]
		return err
	}
	return nil
}

// List implements Recorder, newest first. limit <= 0 returns all.
func (r *FileRecorder) List(_ context.Context, limit int) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

// Close implements Recorder.
func (r *FileRecorder) Close() error { return nil }

// save rewrites the document. Caller holds the mutex.
func (r *FileRecorder) save() error {
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode audit log: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create audit directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".audit-*")
	if err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write audit log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync audit log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close audit log: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("place audit log: %w", err)
	}
	return nil
}
