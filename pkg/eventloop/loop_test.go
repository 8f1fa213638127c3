package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualAdvanceFiresInOrder(t *testing.T) {
	m := NewManual()
	var fired []string

	m.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })
	m.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	m.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })

	m.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"a"}, fired)

	m.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 3*time.Second, m.Now())
	assert.Equal(t, 0, m.Pending())
}

func TestManualStop(t *testing.T) {
	m := NewManual()
	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	m.Advance(time.Minute)
	assert.False(t, fired)
}

func TestManualTimerScheduledFromTimer(t *testing.T) {
	m := NewManual()
	var at []time.Duration

	m.AfterFunc(time.Second, func() {
		at = append(at, m.Now())
		m.AfterFunc(time.Second, func() { at = append(at, m.Now()) })
	})

	m.Advance(5 * time.Second)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, at)
}

func TestManualFlushRunsNestedPosts(t *testing.T) {
	m := NewManual()
	var order []int
	m.Post(func() {
		order = append(order, 1)
		m.Post(func() { order = append(order, 3) })
	})
	m.Post(func() { order = append(order, 2) })

	assert.Equal(t, 3, m.Flush())
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestQueuePostAndNext(t *testing.T) {
	q := NewQueue(4)
	ran := false
	q.Post(func() { ran = true })

	fn, ok := q.Next()
	require.True(t, ok)
	fn()
	assert.True(t, ran)

	q.Close()
	_, ok = q.Next()
	assert.False(t, ok)

	// Post after close must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			q.Post(func() {})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Post blocked on a closed queue")
	}
}

func TestRealClockStopAfterFire(t *testing.T) {
	q := NewQueue(4)
	clock := NewClock(q)

	fired := false
	timer := clock.AfterFunc(time.Millisecond, func() { fired = true })

	// Wait for the callback to be posted, then cancel before running it
	fn, ok := q.Next()
	require.True(t, ok)
	assert.True(t, timer.Stop())
	fn()

	assert.False(t, fired)
}

func TestRealClockFires(t *testing.T) {
	q := NewQueue(4)
	clock := NewClock(q)

	fired := false
	timer := clock.AfterFunc(time.Millisecond, func() { fired = true })

	fn, ok := q.Next()
	require.True(t, ok)
	fn()

	assert.True(t, fired)
	assert.False(t, timer.Stop())
}
