package detect

import (
	"sync/atomic"
	"time"

	"github.com/itohio/gohrm/pkg/sample"
)

// MaxTracker follows the brightest pixel of line frames across passes.
//
// Analysed passes alternate parity starting with odd. A pass that raises
// the running maximum yields one RateSample (the last new maximum in the
// line). Each even pass closes a detect cycle: when both halves of the
// cycle recorded a sample the interval between them becomes an estimate.
type MaxTracker struct {
	tick   time.Duration
	parity atomic.Uint32

	max   uint16
	slots [2]RateSample
	have  [2]bool
}

func NewMaxTracker(tick time.Duration) *MaxTracker {
	if tick <= 0 {
		tick = DefaultTick
	}
	t := &MaxTracker{tick: tick}
	t.parity.Store(uint32(Odd))
	return t
}

// Parity returns the parity the next analysed pass will be tagged with.
// Safe to call from other goroutines.
func (t *MaxTracker) Parity() Parity {
	return Parity(t.parity.Load())
}

// Max returns the running maximum.
func (t *MaxTracker) Max() uint16 {
	return t.max
}

func (t *MaxTracker) Reset() {
	t.max = 0
	t.slots = [2]RateSample{}
	t.have = [2]bool{}
	t.parity.Store(uint32(Odd))
}

func (t *MaxTracker) Process(f sample.Frame) (Event, bool) {
	p := t.Parity()

	var (
		ev    Event
		found bool
	)
	for i, v := range f.Values {
		if v > t.max {
			t.max = v
			ev.Sample = RateSample{Stamp: f.Stamp, Parity: p, Index: i, Value: v}
			found = true
		}
	}
	if found {
		t.slots[p] = ev.Sample
		t.have[p] = true
	}

	if p == Even {
		if t.have[Odd] && t.have[Even] {
			est, err := NewEstimate(absDiff(t.slots[Odd].Stamp, t.slots[Even].Stamp), t.tick)
			if err == nil {
				ev.Estimate = est
				ev.Complete = true
			}
		}
		t.slots = [2]RateSample{}
		t.have = [2]bool{}
	}
	t.parity.Store(uint32(p.Flip()))

	return ev, found
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
