package thesis

import (
	"sync"
	"time"
)

// Debouncer rate-limits primary-signal transitions per instrument: a
// transition is propagated to consumers only if the configured interval has
// elapsed since the last propagated one for that instrument. Transitions
// that lose the race are still computed and stored, just not signaled.
type Debouncer struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewDebouncer creates a debouncer with the given minimum interval. now is
// injectable for tests; pass nil for wall clock.
func NewDebouncer(interval time.Duration, now func() time.Time) *Debouncer {
	if now == nil {
		now = time.Now
	}
	return &Debouncer{
		interval: interval,
		now:      now,
		last:     make(map[string]time.Time),
	}
}

// Allow reports whether a transition for the instrument may propagate, and
// if so records it as the most recent propagated transition.
func (d *Debouncer) Allow(instrumentKey string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.now()
	if prev, ok := d.last[instrumentKey]; ok && t.Sub(prev) < d.interval {
		return false
	}
	d.last[instrumentKey] = t
	return true
}
