// Package detect turns captured frames into heartbeat events and rate
// estimates.
package detect

import (
	"errors"
	"time"

	"github.com/itohio/gohrm/pkg/sample"
)

// DefaultTick is the duration of one stamp unit. Frames are stamped with
// the millisecond clock.
const DefaultTick = time.Millisecond

var ErrZeroInterval = errors.New("detect: zero interval")

// Parity tags the two halves of a detect cycle.
type Parity uint8

const (
	Even Parity = iota
	Odd
)

func (p Parity) String() string {
	if p == Odd {
		return "odd"
	}
	return "even"
}

// Flip returns the other parity.
func (p Parity) Flip() Parity {
	return p ^ 1
}

// RateSample is a qualifying peak candidate.
type RateSample struct {
	Stamp  uint64 // Clock ticks
	Parity Parity
	Index  int // Position in the line; 0 for streaming samples
	Value  uint16
}

// Estimate is a heart rate derived from the interval between two samples.
type Estimate struct {
	Interval uint64  // Ticks between the two samples
	Rate     float64 // 1/Interval, per tick
	BPM      float64
}

// NewEstimate builds an estimate from an interval of ticks, each tick long.
func NewEstimate(interval uint64, tick time.Duration) (Estimate, error) {
	if interval == 0 || tick <= 0 {
		return Estimate{}, ErrZeroInterval
	}
	seconds := (time.Duration(interval) * tick).Seconds()
	return Estimate{
		Interval: interval,
		Rate:     1 / float64(interval),
		BPM:      60 / seconds,
	}, nil
}

// Event is emitted for every frame that produced a qualifying sample.
// Complete is set when the sample closed an interval and Estimate is valid.
type Event struct {
	Sample   RateSample
	Estimate Estimate
	Complete bool
}

// Detector consumes frames one at a time.
type Detector interface {
	// Process analyses f and returns an event when f contained a
	// qualifying sample.
	Process(f sample.Frame) (Event, bool)
	// Reset forgets all state gathered so far.
	Reset()
}
