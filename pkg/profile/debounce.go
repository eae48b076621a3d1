package profile

import (
	"sync"
	"time"
)

// debouncer coalesces bursts of events per key and runs the last callback
// for a key once the key has been quiet for interval.
type debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{
		interval: interval,
		timers:   make(map[string]*time.Timer),
	}
}

// trigger schedules fn for key, replacing any pending callback for key.
func (d *debouncer) trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

// stop cancels all pending callbacks. Later triggers are ignored.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
