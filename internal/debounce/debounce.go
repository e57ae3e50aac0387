// Package debounce collapses bursts of same-named triggers into a
// single downstream callback carrying the latest trigger's context.
package debounce

import (
	"sync"
	"time"

	"github.com/sells-group/mapsync/internal/loop"
)

// Debouncer funnels each trigger class through a named slot. A new
// trigger on a slot cancels a still-pending one and restarts the wait;
// distinct slots never interfere. Callbacks run on the loop goroutine.
type Debouncer struct {
	loop  *loop.Loop
	mu    sync.Mutex
	slots map[string]*loop.Task
}

// New returns a debouncer bound to the given loop.
func New(l *loop.Loop) *Debouncer {
	return &Debouncer{loop: l, slots: make(map[string]*loop.Task)}
}

// Trigger schedules fn to run after delay, superseding any pending
// trigger on the same slot. Only the most recent trigger in a burst
// ever fires; earlier ones are discarded outright, not merged.
func (d *Debouncer) Trigger(slot string, delay time.Duration, fn func()) {
	d.mu.Lock()
	if prev, ok := d.slots[slot]; ok {
		prev.Cancel()
	}
	var t *loop.Task
	t = d.loop.Schedule(delay, func() {
		d.mu.Lock()
		if d.slots[slot] == t {
			delete(d.slots, slot)
		}
		d.mu.Unlock()
		fn()
	})
	d.slots[slot] = t
	d.mu.Unlock()
}

// Cancel discards a pending trigger on the slot, if any.
func (d *Debouncer) Cancel(slot string) {
	d.mu.Lock()
	if t, ok := d.slots[slot]; ok {
		t.Cancel()
		delete(d.slots, slot)
	}
	d.mu.Unlock()
}

// Pending reports whether the slot has an undelivered trigger.
func (d *Debouncer) Pending(slot string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.slots[slot]
	return ok
}
