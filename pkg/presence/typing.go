// Package presence implements the outbound half of typing indicators and
// the online/offline status announcements. All signals are best-effort:
// failures are logged and otherwise ignored.
package presence

import (
	"context"
	"log"
	"time"

	"github.com/aeolun/kindred/pkg/eventloop"
)

const (
	// DebounceDelay is the quiet period after the last keystroke before
	// typing/stop is sent
	DebounceDelay = 3000 * time.Millisecond

	// SignalTimeout bounds a single signal request
	SignalTimeout = 5 * time.Second
)

// Signaler sends typing signals to the server
type Signaler interface {
	TypingStart(ctx context.Context, room string) error
	TypingStop(ctx context.Context, room string) error
}

// Typing debounces local keystrokes into typing/start and typing/stop
// signals. It keeps at most one pending stop timer per room. Methods must be
// called from the event loop.
type Typing struct {
	signaler Signaler
	clock    eventloop.Clock
	runner   Runner
	logger   *log.Logger
	timers   map[string]eventloop.Timer
}

// NewTyping creates a debouncer. logger may be nil.
func NewTyping(signaler Signaler, clock eventloop.Clock, runner Runner, logger *log.Logger) *Typing {
	return &Typing{
		signaler: signaler,
		clock:    clock,
		runner:   runner,
		logger:   logger,
		timers:   make(map[string]eventloop.Timer),
	}
}

func (t *Typing) logf(format string, args ...interface{}) {
	if t.logger != nil {
		t.logger.Printf(format, args...)
	}
}

// Keystroke sends typing/start for room and restarts its stop timer
func (t *Typing) Keystroke(room string) {
	if room == "" {
		return
	}
	t.send(room, true)

	if timer, ok := t.timers[room]; ok {
		timer.Stop()
	}
	var timer eventloop.Timer
	timer = t.clock.AfterFunc(DebounceDelay, func() {
		if t.timers[room] == timer {
			delete(t.timers, room)
		}
		t.send(room, false)
	})
	t.timers[room] = timer
}

// MessageSent cancels room's timer and sends typing/stop immediately
func (t *Typing) MessageSent(room string) {
	if room == "" {
		return
	}
	if timer, ok := t.timers[room]; ok {
		timer.Stop()
		delete(t.timers, room)
	}
	t.send(room, false)
}

// Active reports whether room has a pending stop timer
func (t *Typing) Active(room string) bool {
	_, ok := t.timers[room]
	return ok
}

// SessionStarted implements store.SessionHook
func (t *Typing) SessionStarted(string) {}

// SessionEnded cancels every pending timer without sending anything
func (t *Typing) SessionEnded() {
	for room, timer := range t.timers {
		timer.Stop()
		delete(t.timers, room)
	}
}

func (t *Typing) send(room string, start bool) {
	t.runner.Run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), SignalTimeout)
		defer cancel()

		var err error
		if start {
			err = t.signaler.TypingStart(ctx, room)
		} else {
			err = t.signaler.TypingStop(ctx, room)
		}
		if err != nil {
			t.logf("presence: typing signal for %s (start=%v) failed: %v", room, start, err)
		}
	})
}
