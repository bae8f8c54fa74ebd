package testutil

import "sync/atomic"

// DeterministicClock is a resettable sequencer for tests. It satisfies
// chain.Sequencer, so a scenario replayed on a fresh clock produces the same
// seq values and therefore the same action addresses.
type DeterministicClock struct {
	seq atomic.Int64
}

// NewDeterministicClock returns a clock whose first Next is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// NewDeterministicClockAt returns a clock whose first Next is start+1.
func NewDeterministicClockAt(start int64) *DeterministicClock {
	c := &DeterministicClock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *DeterministicClock) Next() int64 { return c.seq.Add(1) }

// Current returns the last value handed out.
func (c *DeterministicClock) Current() int64 { return c.seq.Load() }

// Reset rewinds the clock to zero.
func (c *DeterministicClock) Reset() { c.seq.Store(0) }
