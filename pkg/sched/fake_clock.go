package sched

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers map[int]*fakeTimer
}

type fakeTimer struct {
	at time.Time
	fn func()
}

func NewFakeClock() *FakeClock {
	return &FakeClock{
		now:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		timers: make(map[int]*fakeTimer),
	}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, fn func()) CancelFunc {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.timers[id] = &fakeTimer{at: c.now.Add(d), fn: fn}

	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()

		_, pending := c.timers[id]
		delete(c.timers, id)
		return pending
	}
}

// Advance moves the clock forward, firing due timers in order. Timers
// scheduled by fired callbacks run too if they fall within the window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)

	for {
		var (
			dueID int
			due   *fakeTimer
		)
		ids := make([]int, 0, len(c.timers))
		for id := range c.timers {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			t := c.timers[id]
			if !t.at.After(target) && (due == nil || t.at.Before(due.at)) {
				dueID, due = id, t
			}
		}
		if due == nil {
			break
		}

		delete(c.timers, dueID)
		if due.at.After(c.now) {
			c.now = due.at
		}
		c.mu.Unlock()
		due.fn()
		c.mu.Lock()
	}

	c.now = target
	c.mu.Unlock()
}

// PendingTimers reports how many timers are scheduled.
func (c *FakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.timers)
}
