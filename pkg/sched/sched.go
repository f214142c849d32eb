// Package sched provides cancelable delayed and repeating tasks on top of
// an injectable clock, so timer-driven logic stays deterministic in tests.
package sched

import (
	"sync"
	"time"
)

// CancelFunc stops a pending task. It reports whether the task was still
// pending; calling it again after the task fired or was canceled is a no-op.
type CancelFunc func() bool

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) CancelFunc
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, fn func()) CancelFunc {
	timer := time.AfterFunc(d, fn)
	return timer.Stop
}

func Real() Clock {
	return realClock{}
}

// Repeater fires fn at a fixed interval until stopped. The interval can be
// changed while running; the pending fire is rescheduled to the new value.
type Repeater struct {
	clock Clock
	fn    func()

	mu       sync.Mutex
	interval time.Duration
	cancel   CancelFunc
	running  bool
	gen      int
}

func NewRepeater(clock Clock, interval time.Duration, fn func()) *Repeater {
	return &Repeater{
		clock:    clock,
		fn:       fn,
		interval: interval,
	}
}

func (r *Repeater) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	r.running = true
	r.scheduleLocked()
}

func (r *Repeater) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Repeater) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.interval
}

func (r *Repeater) SetInterval(interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interval = interval

	if r.running {
		if r.cancel != nil {
			r.cancel()
		}
		r.scheduleLocked()
	}
}

// scheduleLocked starts a new timer chain. The generation counter lets a
// fire whose chain was replaced (SetInterval from inside the callback)
// detect that and not reschedule, so only one chain is ever live.
func (r *Repeater) scheduleLocked() {
	r.gen++
	gen := r.gen
	r.cancel = r.clock.AfterFunc(r.interval, func() { r.fire(gen) })
}

func (r *Repeater) fire(gen int) {
	r.mu.Lock()
	if !r.running || gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.fn()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running && gen == r.gen {
		r.scheduleLocked()
	}
}
