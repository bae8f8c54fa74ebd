package chain

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Sequencer hands out logical sequence numbers for new actions.
type Sequencer interface {
	Next() int64
}

// Clock is a monotonic logical clock. Every action is stamped with a
// strictly increasing seq from it, never a wall-clock time.
//
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// SeqSource reports the highest seq already stored.
type SeqSource interface {
	MaxSeq(ctx context.Context) (int64, error)
}

// SeedClock returns a clock that continues after the highest seq in src,
// so reopening a store never reuses a seq.
func SeedClock(ctx context.Context, src SeqSource) (*Clock, error) {
	seq, err := src.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed clock: %w", err)
	}
	return NewClockAt(seq), nil
}
