package capture

import (
	"fmt"
	"sync/atomic"
)

// clock is a monotonic logical sequence generator for step ids within a
// single scope — adapted from the teacher's engine.Clock (an
// atomic.Int64-backed Next()), generalized to render "step-NNNNNN" ids
// instead of a bare int64 sequence.
type clock struct {
	seq atomic.Int64
}

func newClock() *clock { return &clock{} }

// next returns the next gap-free step id.
func (c *clock) next() string {
	n := c.seq.Add(1)
	return fmt.Sprintf("step-%06d", n)
}

// current returns the number of ids issued so far without advancing.
func (c *clock) current() int64 {
	return c.seq.Load()
}
