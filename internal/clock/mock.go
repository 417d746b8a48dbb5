package clock

import (
	"sort"
	"sync"
	"time"
)

// Mock is a Clock whose time only moves when Advance is called. Timer
// callbacks fire synchronously inside Advance, in deadline order, so tests
// observe a deterministic sequence of events.
type Mock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*mockTimer
	tickers []*mockTicker
}

func NewMock(start time.Time) *Mock {
	return &Mock{now: start.UTC()}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &mockTimer{clock: m, deadline: m.now.Add(d), fn: f}
	m.timers = append(m.timers, t)
	return t
}

func (m *Mock) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &mockTicker{clock: m, interval: d, next: m.now.Add(d), ch: make(chan time.Time, 1)}
	m.tickers = append(m.tickers, t)
	return t
}

// Advance moves the mock's time forward by d, firing every timer whose
// deadline falls inside the window and delivering due ticker ticks.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		fn := m.nextDue(target)
		if fn == nil {
			break
		}
		fn()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

// nextDue pops the earliest pending timer or ticker tick at or before
// target, advances now to its deadline, and returns the work to run. Timer
// callbacks run without holding the lock so they may schedule new timers.
func (m *Mock) nextDue(target time.Time) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.SliceStable(m.timers, func(i, j int) bool {
		return m.timers[i].deadline.Before(m.timers[j].deadline)
	})

	var dueTimer *mockTimer
	for _, t := range m.timers {
		if !t.stopped && !t.deadline.After(target) {
			dueTimer = t
			break
		}
	}

	var dueTicker *mockTicker
	for _, t := range m.tickers {
		if !t.stopped && !t.next.After(target) {
			if dueTicker == nil || t.next.Before(dueTicker.next) {
				dueTicker = t
			}
		}
	}

	switch {
	case dueTimer != nil && (dueTicker == nil || !dueTicker.next.Before(dueTimer.deadline)):
		dueTimer.stopped = true
		m.now = dueTimer.deadline
		return dueTimer.fn
	case dueTicker != nil:
		m.now = dueTicker.next
		dueTicker.next = dueTicker.next.Add(dueTicker.interval)
		tick := m.now
		ch := dueTicker.ch
		return func() {
			select {
			case ch <- tick:
			default:
			}
		}
	default:
		return nil
	}
}

type mockTimer struct {
	clock    *Mock
	deadline time.Time
	fn       func()
	stopped  bool
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type mockTicker struct {
	clock    *Mock
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

func (t *mockTicker) C() <-chan time.Time {
	return t.ch
}

func (t *mockTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
