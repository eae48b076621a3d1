package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const locksDir = "locks"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// CorruptError is returned when a record exists but cannot be decoded.
type CorruptError struct {
	// Path is the file holding the corrupt record.
	Path string

	// Cause is the decoding error.
	Cause error
}

// Error implements the error interface.
func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt record %q: %v", e.Path, e.Cause)
}

// Unwrap returns the decoding error.
func (e *CorruptError) Unwrap() error {
	return e.Cause
}

// Store reads and writes JSON records below a root directory.
// Keys are slash-separated paths relative to the root (e.g. "drafts/x.json").
// Lock files live under <root>/locks, so every Store opened on the same root,
// in any process, shares the same locks.
type Store struct {
	root  string
	locks *Locker
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store root cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root %q: %w", dir, err)
	}
	return &Store{root: dir, locks: NewLocker(filepath.Join(dir, locksDir))}, nil
}

// Root returns the root directory.
func (s *Store) Root() string {
	return s.root
}

// Path resolves a key to its file path.
func (s *Store) Path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// EnsureDir creates a sub-directory of the root.
func (s *Store) EnsureDir(dir string) error {
	if err := os.MkdirAll(s.Path(dir), 0o755); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", dir, err)
	}
	return nil
}

// Lock acquires the exclusive lock for key and returns its release func.
// The lock holds across processes sharing the root.
func (s *Store) Lock(key string) (func(), error) {
	return s.locks.Lock(key)
}

// Exists reports whether the record for key exists.
func (s *Store) Exists(key string) (bool, error) {
	_, err := os.Stat(s.Path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %q: %w", key, err)
}

// ReadJSON decodes the record for key into v.
// It returns ErrNotFound if the record is absent and *CorruptError if it
// cannot be decoded into v.
func (s *Store) ReadJSON(key string, v any) error {
	return ReadJSONFile(s.Path(key), v)
}

// WriteJSON atomically replaces the record for key with the JSON encoding of v.
func (s *Store) WriteJSON(key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record %q: %w", key, err)
	}
	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", key, err)
	}
	return WriteFileAtomic(path, data, 0o644)
}

// List returns the base names of regular files in dir that end with ext,
// sorted ascending. A missing directory yields an empty list.
func (s *Store) List(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(s.Path(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %q: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ReadJSONFile decodes the JSON file at path into v.
func ReadJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &CorruptError{Path: path, Cause: err}
	}
	return nil
}
