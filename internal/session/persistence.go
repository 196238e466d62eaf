package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage keys. The durable layer is a two-key synchronous text store: the
// serialized session collection and the active session id. No transactional
// guarantee spans the two keys beyond best-effort same-call writes.
const (
	KeySessions = "sessions.json"
	KeyActive   = "active"
)

// KV is the durable storage boundary: a synchronous key-value text store.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// FileKV stores each key as a file in a directory. It is the production
// implementation, backed by the workspace's .refinery directory.
type FileKV struct {
	dir string
}

// NewFileKV creates the backing directory if needed.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileKV{dir: dir}, nil
}

func (f *FileKV) path(key string) string { return filepath.Join(f.dir, key) }

// Get reads a key. A missing file is ("", false, nil), not an error.
func (f *FileKV) Get(key string) (string, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes a key durably.
func (f *FileKV) Set(key, value string) error {
	if err := os.WriteFile(f.path(key), []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (f *FileKV) Delete(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
