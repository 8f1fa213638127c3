// Package eventloop provides the single-threaded execution model the client
// runtime relies on: work produced on I/O goroutines is posted back as
// closures and run one at a time by whoever owns the loop (the bubbletea
// program in the binary, the test goroutine in tests).
package eventloop

import (
	"sync"
	"time"
)

// Poster accepts work to run on the event loop
type Poster interface {
	Post(fn func())
}

// Timer is a cancellable deferred action
type Timer interface {
	// Stop cancels the action. It reports whether the action was still
	// pending. A stopped action never runs, even if its timer already fired
	// and the callback is queued on the loop.
	Stop() bool
}

// Clock schedules deferred actions onto the event loop
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Queue is a Poster backed by a buffered channel. The loop owner drains it
// with Next (or the bubbletea listen command built on it).
type Queue struct {
	work chan func()
	done chan struct{}
	once sync.Once
}

// NewQueue creates a queue with the given buffer size
func NewQueue(size int) *Queue {
	return &Queue{
		work: make(chan func(), size),
		done: make(chan struct{}),
	}
}

// Post enqueues fn. It blocks while the queue is full and returns without
// enqueueing once the queue is closed.
func (q *Queue) Post(fn func()) {
	select {
	case q.work <- fn:
	case <-q.done:
	}
}

// Next blocks until work is available. ok is false once the queue is closed.
func (q *Queue) Next() (fn func(), ok bool) {
	select {
	case fn := <-q.work:
		return fn, true
	case <-q.done:
		return nil, false
	}
}

// Close releases goroutines blocked in Post or Next
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}

// realClock posts timer callbacks to a Poster
type realClock struct {
	poster Poster
}

// NewClock returns a Clock whose callbacks run on the given loop
func NewClock(poster Poster) Clock {
	return &realClock{poster: poster}
}

func (c *realClock) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		c.poster.Post(func() {
			// stopped is only touched on the loop
			if t.stopped {
				return
			}
			t.stopped = true
			fn()
		})
	})
	return t
}

type loopTimer struct {
	timer   *time.Timer
	stopped bool
}

func (t *loopTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	t.timer.Stop()
	return true
}
