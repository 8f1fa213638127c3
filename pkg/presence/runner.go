package presence

import (
	"log"
	"sync"
)

// Runner executes best-effort signal calls off the event loop
type Runner interface {
	Run(fn func())
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(fn func())

// Run calls f(fn)
func (f RunnerFunc) Run(fn func()) { f(fn) }

// Inline runs signals on the caller's goroutine. Used by tests.
var Inline Runner = RunnerFunc(func(fn func()) { fn() })

// SerialRunner runs signals one at a time on a dedicated goroutine so a
// typing/stop never overtakes the typing/start queued before it. When the
// queue is full the signal is dropped.
type SerialRunner struct {
	jobs   chan func()
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *log.Logger
}

// NewSerialRunner starts a runner with a queue of the given size
func NewSerialRunner(size int, logger *log.Logger) *SerialRunner {
	r := &SerialRunner{
		jobs:   make(chan func(), size),
		done:   make(chan struct{}),
		logger: logger,
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *SerialRunner) loop() {
	defer r.wg.Done()
	for {
		select {
		case fn := <-r.jobs:
			fn()
		case <-r.done:
			return
		}
	}
}

// Run queues fn without blocking
func (r *SerialRunner) Run(fn func()) {
	select {
	case <-r.done:
		return
	default:
	}

	select {
	case r.jobs <- fn:
	default:
		if r.logger != nil {
			r.logger.Printf("presence: signal queue full, dropping signal")
		}
	}
}

// Close stops the runner and waits for the running signal to finish.
// Signals still queued are discarded.
func (r *SerialRunner) Close() {
	r.once.Do(func() { close(r.done) })
	r.wg.Wait()
}
