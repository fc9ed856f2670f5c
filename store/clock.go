package store

import "sync/atomic"

// Clock stamps update cycles with a strictly increasing sequence number.
// Cycle reports are ordered by this number, never by wall time.
type Clock interface {
	Next() int64
}

// SeqClock is the default monotonic logical clock. Safe for concurrent use.
type SeqClock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *SeqClock {
	return &SeqClock{}
}

// NewClockFrom creates a clock that continues after seq, so a store resumed
// against an existing journal does not reuse sequence numbers.
func NewClockFrom(seq int64) *SeqClock {
	c := &SeqClock{}
	c.seq.Store(seq)
	return c
}

// Next returns the next sequence number.
func (c *SeqClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *SeqClock) Current() int64 {
	return c.seq.Load()
}
