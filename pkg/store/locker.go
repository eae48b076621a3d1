package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Locker hands out one exclusive lock per key. Holders in the same process
// queue on a mutex. When the Locker has a directory, the holder also takes an
// advisory file lock on <dir>/<key>.lock, which excludes every other process
// locking the same key under the same directory.
//
// Lock files are left in place after release; removing them would let two
// processes lock different inodes for the same key.
type Locker struct {
	dir string

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates a Locker keeping its lock files under dir. An empty dir
// gives an in-process only Locker.
func NewLocker(dir string) *Locker {
	return &Locker{dir: dir, locks: make(map[string]*keyLock)}
}

// Lock blocks until the lock for key is held and returns its release func.
// The release func must be called exactly once; extra calls are no-ops.
func (l *Locker) Lock(key string) (func(), error) {
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return nil, fmt.Errorf("invalid lock key %q", key)
	}

	kl := l.ref(key)
	kl.mu.Lock()

	var f *os.File
	if l.dir != "" {
		var err error
		f, err = lockFile(l.path(key))
		if err != nil {
			kl.mu.Unlock()
			l.unref(key, kl)
			return nil, fmt.Errorf("failed to lock %q: %w", key, err)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if f != nil {
				_ = funlock(f)
				f.Close()
			}
			kl.mu.Unlock()
			l.unref(key, kl)
		})
	}, nil
}

func (l *Locker) path(key string) string {
	return filepath.Join(l.dir, filepath.FromSlash(key)+".lock")
}

func (l *Locker) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *Locker) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// size returns the number of live entries.
func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func lockFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := flock(f); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
