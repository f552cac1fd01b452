// Package timeutil provides millisecond wall time and the controllable
// virtual clock the emulator runs on.
package timeutil

import (
	"errors"
	"sync"
	"time"
)

// ErrBackwards is returned when a set would move the virtual clock backward.
var ErrBackwards = errors.New("cannot move time backwards")

// NowMillis returns the current wall-clock time in Unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// VirtualClock is a monotonic millisecond clock detached from wall time.
// It starts at the wall clock and only moves forward, except through Reset
// which snaps it back to the current wall clock. Safe for concurrent use.
type VirtualClock struct {
	mu        sync.Mutex
	nowMillis int64
}

// NewVirtualClock returns a clock initialized to the current wall time.
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{nowMillis: NowMillis()}
}

// NowMillis returns the clock's current reading.
func (c *VirtualClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowMillis
}

// Advance moves the clock forward by delta milliseconds and returns the old
// and new readings. Negative deltas are the caller's responsibility to
// reject; Advance itself clamps them to zero.
func (c *VirtualClock) Advance(deltaMillis int64) (old, now int64) {
	if deltaMillis < 0 {
		deltaMillis = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	old = c.nowMillis
	c.nowMillis += deltaMillis
	return old, c.nowMillis
}

// Set moves the clock to an absolute timestamp. Moving backward fails with
// ErrBackwards; setting the current reading is a no-op.
func (c *VirtualClock) Set(timestampMillis int64) (old int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timestampMillis < c.nowMillis {
		return c.nowMillis, ErrBackwards
	}
	old = c.nowMillis
	c.nowMillis = timestampMillis
	return old, nil
}

// Reset snaps the clock back to the current wall time. This is the only
// operation allowed to move the reading backward.
func (c *VirtualClock) Reset() (old, now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old = c.nowMillis
	c.nowMillis = NowMillis()
	return old, c.nowMillis
}
