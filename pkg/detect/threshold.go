package detect

import (
	"time"

	"github.com/itohio/gohrm/pkg/sample"
)

const (
	DefaultLow        = 1.149 // V
	DefaultHigh       = 1.9   // V
	DefaultRefractory = 333 * time.Millisecond
)

// Threshold detects beats in a stream of single-value samples.
//
// A beat is a sample whose voltage enters the [Low, High] band. The first
// beat only sets the reference. A later beat further than Refractory from
// the reference yields an estimate and becomes the new reference; closer
// beats are suppressed and the reference is kept.
type Threshold struct {
	Low        float32 // V
	High       float32 // V
	Bits       int
	VRef       float32
	Refractory time.Duration
	Tick       time.Duration

	primed bool
	inBand bool
	seeded bool
	last   uint64
}

// NewThreshold returns a detector with the default band and refractory
// period for a bits-wide ADC referenced to vref.
func NewThreshold(bits int, vref float32) *Threshold {
	return &Threshold{
		Low:        DefaultLow,
		High:       DefaultHigh,
		Bits:       bits,
		VRef:       vref,
		Refractory: DefaultRefractory,
		Tick:       DefaultTick,
	}
}

func (t *Threshold) Reset() {
	t.primed = false
	t.inBand = false
	t.seeded = false
	t.last = 0
}

// Process handles every value of f as taken at f.Stamp.
func (t *Threshold) Process(f sample.Frame) (Event, bool) {
	var (
		ev    Event
		found bool
	)
	for i, raw := range f.Values {
		if e, ok := t.step(f.Stamp, i, raw); ok {
			ev, found = e, true
		}
	}
	return ev, found
}

func (t *Threshold) step(stamp uint64, index int, raw uint16) (Event, bool) {
	v := sample.Volts(raw, t.Bits, t.VRef)
	in := v >= t.Low && v <= t.High
	entered := t.primed && in && !t.inBand
	t.primed = true
	t.inBand = in
	if !entered {
		return Event{}, false
	}

	ev := Event{Sample: RateSample{Stamp: stamp, Index: index, Value: raw}}
	if !t.seeded {
		t.seeded = true
		t.last = stamp
		return ev, true
	}
	if stamp <= t.last {
		return ev, true
	}

	elapsed := stamp - t.last
	tick := t.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	if time.Duration(elapsed)*tick <= t.Refractory {
		return ev, true
	}

	est, err := NewEstimate(elapsed, tick)
	if err != nil {
		return ev, true
	}
	ev.Estimate = est
	ev.Complete = true
	t.last = stamp
	return ev, true
}
