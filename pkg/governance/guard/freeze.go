package guard

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// FreezeWindow is a recurring period during which profile writes are
// refused. Schedule is a standard five-field cron expression evaluated in
// UTC unless it carries a CRON_TZ= prefix.
type FreezeWindow struct {
	Name     string
	Schedule string
	Duration time.Duration
}

type compiledWindow struct {
	FreezeWindow
	schedule cron.Schedule
}

// FreezeCalendar answers whether a write falls inside a freeze window.
// The zero value and a nil calendar have no windows.
type FreezeCalendar struct {
	windows []compiledWindow
}

// ActiveWindow describes the freeze window covering a point in time.
type ActiveWindow struct {
	Name  string    `json:"name"`
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// NewFreezeCalendar parses windows. An unparsable schedule or a
// non-positive duration is an error.
func NewFreezeCalendar(windows []FreezeWindow) (*FreezeCalendar, error) {
	c := &FreezeCalendar{}
	for _, w := range windows {
		if w.Duration <= 0 {
			return nil, fmt.Errorf("freeze window %q: duration must be positive", w.Name)
		}
		sched, err := cron.ParseStandard(w.Schedule)
		if err != nil {
			return nil, fmt.Errorf("freeze window %q: invalid schedule %q: %w", w.Name, w.Schedule, err)
		}
		c.windows = append(c.windows, compiledWindow{FreezeWindow: w, schedule: sched})
	}
	return c, nil
}

// Active returns the first window whose latest activation covers now.
// A window is active on [activation, activation+duration).
func (c *FreezeCalendar) Active(now time.Time) (*ActiveWindow, bool) {
	if c == nil {
		return nil, false
	}
	now = now.UTC()
	for _, w := range c.windows {
		start := w.schedule.Next(now.Add(-w.Duration))
		if start.IsZero() || start.After(now) {
			continue
		}
		return &ActiveWindow{Name: w.Name, Since: start, Until: start.Add(w.Duration)}, true
	}
	return nil, false
}

// Len returns the number of configured windows.
func (c *FreezeCalendar) Len() int {
	if c == nil {
		return 0
	}
	return len(c.windows)
}
