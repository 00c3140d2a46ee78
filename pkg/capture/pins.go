package capture

import (
	"sync/atomic"
	"time"
)

// Pin is a digital output line (camera clock, SI strobe, status LED).
type Pin interface {
	High()
	Low()
}

// NopPin ignores all writes.
type NopPin struct{}

func (NopPin) High() {}
func (NopPin) Low()  {}

// Clock is a free-running millisecond counter.
type Clock interface {
	Millis() uint64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint64

// Millis calls f().
func (f ClockFunc) Millis() uint64 {
	return f()
}

type systemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock counting milliseconds since its creation.
func NewSystemClock() Clock {
	return systemClock{start: time.Now()}
}

func (c systemClock) Millis() uint64 {
	return uint64(time.Since(c.start).Milliseconds())
}

// ManualClock is a Clock advanced explicitly. Useful for simulation and tests.
type ManualClock struct {
	ms atomic.Uint64
}

// Millis returns the current counter value.
func (c *ManualClock) Millis() uint64 {
	return c.ms.Load()
}

// Advance moves the counter forward by d milliseconds.
func (c *ManualClock) Advance(d uint64) {
	c.ms.Add(d)
}

// Set overwrites the counter.
func (c *ManualClock) Set(ms uint64) {
	c.ms.Store(ms)
}
