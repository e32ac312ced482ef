// ABOUTME: Time source abstraction for scheduled callbacks
// ABOUTME: Real wraps the time package, Fake advances virtual time in tests
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock provides the current time and cancellable scheduled callbacks
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a scheduled callback
type Timer interface {
	// Stop cancels the callback. Returns false if it already fired or was stopped.
	Stop() bool
}

// Real is the wall clock
type Real struct{}

// Now returns time.Now
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules f on its own goroutine after d
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Fake is a manually advanced clock. Due callbacks run synchronously
// inside Advance, in deadline order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *Fake
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
}

// NewFake creates a fake clock starting at start
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the virtual time
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules fn to run once virtual time reaches now+d
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	t := &fakeTimer{clock: f, at: f.now.Add(d), seq: f.seq, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves virtual time forward by d, firing every callback that
// becomes due. Callbacks may schedule further callbacks.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDue(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		if next.at.After(f.now) {
			f.now = next.at
		}
		next.fired = true
		f.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of callbacks that have not fired or been stopped
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.compact()
	return len(f.timers)
}

func (f *Fake) nextDue(target time.Time) *fakeTimer {
	f.compact()
	sort.Slice(f.timers, func(i, j int) bool {
		if f.timers[i].at.Equal(f.timers[j].at) {
			return f.timers[i].seq < f.timers[j].seq
		}
		return f.timers[i].at.Before(f.timers[j].at)
	})
	if len(f.timers) == 0 || f.timers[0].at.After(target) {
		return nil
	}
	return f.timers[0]
}

func (f *Fake) compact() {
	live := f.timers[:0]
	for _, t := range f.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	f.timers = live
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
