// Package loop provides the single-goroutine cooperative scheduler the
// engine runs on. Many logically concurrent event streams (viewport
// moves, filter mutations, clicks) interleave, but every handler and
// every timer callback executes serially on the loop goroutine, so
// engine state never needs locking beyond the loop boundary.
package loop

import (
	"sync"
	"time"
)

// Loop is a serial executor. Functions posted to it run in order on a
// single goroutine. Timers scheduled through it deliver their callback
// onto the same goroutine, and a canceled timer's callback never runs.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	quit    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// New returns a started loop.
func New() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		q := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range q {
			fn()
		}

		select {
		case <-l.wake:
		case <-l.quit:
			return
		}
	}
}

// Post enqueues fn to run on the loop goroutine. Posts after Stop are
// dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Sync posts a barrier and waits for the loop to reach it. Returns
// immediately if the loop is stopped.
func (l *Loop) Sync() {
	done := make(chan struct{})
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, func() { close(done) })
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-done
}

// Stop shuts the loop down. Pending queue entries and timers are
// discarded. Stop waits for the loop goroutine to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()
	close(l.quit)
	l.wg.Wait()
}

// Task is a scheduled, cancelable deferred callback.
type Task struct {
	mu       sync.Mutex
	timer    *time.Timer
	canceled bool
	fired    bool
}

// Cancel prevents the task's callback from running if it has not fired
// yet. Safe to call from any goroutine and more than once.
func (t *Task) Cancel() {
	t.mu.Lock()
	t.canceled = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
}

// Fired reports whether the callback ran.
func (t *Task) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Schedule runs fn on the loop goroutine after d. The returned task can
// be canceled; a cancel that lands before the callback is dequeued wins
// and the callback never runs.
func (l *Loop) Schedule(d time.Duration, fn func()) *Task {
	t := &Task{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			t.mu.Lock()
			if t.canceled {
				t.mu.Unlock()
				return
			}
			t.fired = true
			t.mu.Unlock()
			fn()
		})
	})
	return t
}
