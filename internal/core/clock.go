package core

import (
	"sync"
	"time"
)

// Clock supplies the current time in Unix seconds.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// MonotonicClock wraps a clock so that readings never decrease. Equal
// readings across calls are allowed.
type MonotonicClock struct {
	mu   sync.Mutex
	src  Clock
	last uint64
}

// NewMonotonicClock wraps src.
func NewMonotonicClock(src Clock) *MonotonicClock {
	return &MonotonicClock{src: src}
}

func (c *MonotonicClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now := c.src.Now(); now > c.last {
		c.last = now
	}
	return c.last
}

// ManualClock is a settable clock for tests and simulations.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock starts at now.
func NewManualClock(now uint64) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to now.
func (c *ManualClock) Set(now uint64) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d uint64) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}
