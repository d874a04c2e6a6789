package session

import (
	"sync"
	"time"
)

// DefaultAutosaveDelay is the inactivity window before a draft is written.
const DefaultAutosaveDelay = 600 * time.Millisecond

// Timer is a pending scheduled call.
type Timer interface {
	// Stop prevents the call from running. It reports false when the call has
	// already started or was stopped before.
	Stop() bool
}

// Scheduler runs fn once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// debouncer keeps at most one pending call; each Schedule replaces the
// previous one and restarts the delay.
type debouncer struct {
	mu        sync.Mutex
	scheduler Scheduler
	delay     time.Duration
	pending   Timer
}

func newDebouncer(scheduler Scheduler, delay time.Duration) *debouncer {
	if scheduler == nil {
		scheduler = realScheduler{}
	}
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	return &debouncer{scheduler: scheduler, delay: delay}
}

func (d *debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.Stop()
	}
	d.pending = d.scheduler.AfterFunc(d.delay, fn)
}

// Cancel stops the pending call, reporting whether one was stopped before it ran.
func (d *debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return false
	}
	stopped := d.pending.Stop()
	d.pending = nil
	return stopped
}
