package eventloop

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Poster and Clock for tests. Posted work and due
// timers run only when the test calls Flush or Advance, on the calling
// goroutine, which plays the role of the event loop.
type Manual struct {
	mu      sync.Mutex
	pending []func()
	now     time.Duration
	timers  []*manualTimer
	seq     int
}

// NewManual creates a manual loop at virtual time zero
func NewManual() *Manual {
	return &Manual{}
}

// Post queues fn until the next Flush. Safe to call from any goroutine.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.pending = append(m.pending, fn)
	m.mu.Unlock()
}

// Flush runs queued work, including work queued while flushing. It returns
// the number of closures run.
func (m *Manual) Flush() int {
	ran := 0
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return ran
		}
		fn := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		fn()
		ran++
	}
}

// Now returns the virtual time elapsed since creation
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules fn at now+d in virtual time
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{owner: m, at: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Pending returns the number of timers that have not fired or been stopped
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance moves virtual time forward by d, firing due timers in deadline
// order. Posted work is flushed before and after every timer.
func (m *Manual) Advance(d time.Duration) {
	m.Flush()
	target := m.Now() + d
	for {
		m.mu.Lock()
		sort.SliceStable(m.timers, func(i, j int) bool {
			if m.timers[i].at == m.timers[j].at {
				return m.timers[i].seq < m.timers[j].seq
			}
			return m.timers[i].at < m.timers[j].at
		})
		if len(m.timers) == 0 || m.timers[0].at > target {
			m.now = target
			m.mu.Unlock()
			m.Flush()
			return
		}
		t := m.timers[0]
		m.timers = m.timers[1:]
		m.now = t.at
		m.mu.Unlock()

		t.fn()
		m.Flush()
	}
}

type manualTimer struct {
	owner *Manual
	at    time.Duration
	seq   int
	fn    func()
}

func (t *manualTimer) Stop() bool {
	m := t.owner
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, other := range m.timers {
		if other == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return true
		}
	}
	return false
}
