package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Journal is an append-only JSON-lines file.
// Appends are serialized across processes through <path>.lock; readers skip
// nothing themselves, callers decide how to treat lines that fail to decode
// (typically a partial last line).
type Journal struct {
	path  string
	locks *Locker
}

// OpenJournal returns a journal at path, creating its directory if needed.
// The file itself is created on first append.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &Journal{path: path, locks: NewLocker(filepath.Dir(path))}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Append writes the JSON encoding of v as one line.
func (j *Journal) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}
	return j.AppendLine(data)
}

// AppendLine writes data followed by a newline. data must not contain newlines.
func (j *Journal) AppendLine(data []byte) error {
	return j.WithLock(func() error {
		return j.AppendLineLocked(data)
	})
}

// WithLock runs fn while holding the append lock, so fn can read the
// journal tail and append without interleaving with other writers.
func (j *Journal) WithLock(fn func() error) error {
	unlock, err := j.locks.Lock(filepath.Base(j.path))
	if err != nil {
		return fmt.Errorf("failed to lock journal %q: %w", j.path, err)
	}
	defer unlock()
	return fn()
}

// AppendLineLocked is AppendLine for callers already inside WithLock.
func (j *Journal) AppendLineLocked(data []byte) error {
	if bytes.IndexByte(data, '\n') >= 0 {
		return fmt.Errorf("journal entry contains a newline")
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal %q: %w", j.path, err)
	}
	defer f.Close()

	buf := make([]byte, 0, len(data)+2)
	// Terminate a torn last line so the new entry starts on its own line.
	torn, err := endsTorn(f)
	if err != nil {
		return fmt.Errorf("failed to inspect journal %q: %w", j.path, err)
	}
	if torn {
		buf = append(buf, '\n')
	}
	buf = append(buf, data...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("failed to append to journal %q: %w", j.path, err)
	}
	return nil
}

// Tail returns up to n of the last non-empty lines, oldest first.
// A missing journal yields no lines.
func (j *Journal) Tail(n int) ([][]byte, error) {
	if n < 1 {
		n = 1
	}

	ring := make([][]byte, 0, n)
	err := j.Scan(func(line []byte) error {
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ring, nil
}

// Scan calls fn for every non-empty line in append order. The slice passed to
// fn is owned by the callee.
func (j *Journal) Scan(fn func(line []byte) error) error {
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open journal %q: %w", j.path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			if ferr := fn(trimmed); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read journal %q: %w", j.path, err)
		}
	}
}

// Last returns the last non-empty line, or nil if the journal is empty.
func (j *Journal) Last() ([]byte, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open journal %q: %w", j.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat journal %q: %w", j.path, err)
	}

	const chunk = 4096
	var tail []byte
	for off := info.Size(); off > 0; {
		n := int64(chunk)
		if off < n {
			n = off
		}
		off -= n

		buf := make([]byte, n)
		if _, err := f.ReadAt(buf, off); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read journal %q: %w", j.path, err)
		}
		tail = append(buf, tail...)

		trimmed := bytes.TrimRight(tail, " \t\r\n")
		if i := bytes.LastIndexByte(trimmed, '\n'); i >= 0 {
			return bytes.TrimSpace(trimmed[i+1:]), nil
		}
	}

	trimmed := bytes.TrimSpace(tail)
	if len(trimmed) == 0 {
		return nil, nil
	}
	return trimmed, nil
}

func endsTorn(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}
