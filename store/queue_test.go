package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactstore/value"
)

func TestUpdateQueue_FIFO(t *testing.T) {
	var q updateQueue

	_, ok := q.tryDequeue()
	assert.False(t, ok)

	for i := 1; i <= 3; i++ {
		q.enqueue(pendingUpdate{ctx: context.Background(), delta: value.Object{"n": i}})
	}
	assert.Equal(t, 3, q.size())

	for i := 1; i <= 3; i++ {
		u, ok := q.tryDequeue()
		require.True(t, ok)
		assert.Equal(t, i, u.delta["n"])
	}
	assert.Equal(t, 0, q.size())
}

func TestUpdateQueue_Reset(t *testing.T) {
	var q updateQueue
	q.enqueue(pendingUpdate{delta: value.Object{"a": 1}})
	q.enqueue(pendingUpdate{delta: value.Object{"b": 1}, direct: true})

	dropped := q.reset()
	require.Len(t, dropped, 2)
	assert.True(t, dropped[1].direct)
	assert.Equal(t, 0, q.size())
	assert.Empty(t, q.reset())
}

func TestPendingUpdate_Finish(t *testing.T) {
	pendingUpdate{}.finish(errors.New("nobody waits"))

	u := pendingUpdate{done: make(chan error, 1)}
	u.finish(ErrUpdateDropped)
	assert.ErrorIs(t, <-u.done, ErrUpdateDropped)
}

func TestTracker_IdleWhenEmpty(t *testing.T) {
	tr := newTracker()
	assert.NoError(t, tr.wait(context.Background()))
}

func TestTracker_WaitsAndCollects(t *testing.T) {
	tr := newTracker()
	boom := errors.New("boom")

	tr.add()
	tr.add()
	go func() {
		time.Sleep(10 * time.Millisecond)
		tr.done(nil)
		tr.done(boom)
	}()

	err := tr.wait(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, tr.wait(context.Background()))
}

func TestTracker_WaitTimeout(t *testing.T) {
	tr := newTracker()
	tr.add()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.wait(ctx), context.DeadlineExceeded)

	tr.done(nil)
	assert.NoError(t, tr.wait(context.Background()))
}

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestUUIDv7Generator(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestIterationLimitError_Message(t *testing.T) {
	err := &IterationLimitError{Limit: 3, Iterations: 4}
	assert.Contains(t, err.Error(), "exceeded 3 iterations")
	assert.True(t, errors.Is(err, ErrIterationLimit))
	assert.False(t, errors.Is(err, ErrSubscriberNotFound))
}

func TestClock_ResumesFrom(t *testing.T) {
	c := NewClockFrom(41)
	assert.Equal(t, int64(42), c.Next())
}
