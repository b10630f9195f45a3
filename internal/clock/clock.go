// Package clock provides a monotonic time abstraction so the control
// plane's tickers and windows can be driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the single time source every component reads through. All
// spec timestamps are milliseconds since a fixed epoch.
type Clock interface {
	NowMs() int64
	Now() time.Time
	// After returns a channel that fires once d has elapsed according to
	// this clock. Production clocks delegate to time.After; manual clocks
	// fire when Advance crosses the deadline.
	After(d time.Duration) <-chan time.Time
}

// System is the production Clock, backed by the OS wall clock.
type System struct{}

func NewSystem() *System { return &System{} }

func (System) NowMs() int64 { return time.Now().UnixMilli() }
func (System) Now() time.Time { return time.Now() }
func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Manual is a virtual clock for deterministic tests: time only advances
// when Advance or Set is called.
type Manual struct {
	mu      sync.Mutex
	current time.Time
	waiters []manualWaiter
}

type manualWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewManual creates a manual clock pinned at the given time.
func NewManual(start time.Time) *Manual {
	return &Manual{current: start}
}

func (m *Manual) NowMs() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.UnixMilli()
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance moves the clock forward by d, firing any waiters whose
// deadline has now passed, in deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.current = m.current.Add(d)
	now := m.current
	remaining := m.waiters[:0]
	fired := make([]manualWaiter, 0, len(m.waiters))
	for _, w := range m.waiters {
		if !now.Before(w.deadline) {
			fired = append(fired, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	m.waiters = remaining
	m.mu.Unlock()

	sort.SliceStable(fired, func(i, j int) bool { return fired[i].deadline.Before(fired[j].deadline) })
	for _, w := range fired {
		w.ch <- now
		close(w.ch)
	}
}

// Set pins the clock to an absolute time; behaves like Advance for the
// purpose of firing waiters, but refuses to move backwards.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	if t.Before(m.current) {
		m.mu.Unlock()
		return
	}
	delta := t.Sub(m.current)
	m.mu.Unlock()
	m.Advance(delta)
}

func (m *Manual) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline := m.current.Add(d)
	if !deadline.After(m.current) {
		ch <- m.current
		close(ch)
		return ch
	}
	m.waiters = append(m.waiters, manualWaiter{deadline: deadline, ch: ch})
	return ch
}
