package capture

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/itohio/gohrm/pkg/sample"
)

const (
	// DefaultPixels is the photodiode count of a TSL1401 linescan camera.
	DefaultPixels = 128
	// MinPixels is the shortest line the machine captures. A single
	// element would be indistinguishable from a streamed reading.
	MinPixels = 2
	// MaxPixels bounds the line length the machine accepts.
	MaxPixels = 4096
	// DefaultFrameBuffer is the number of completed passes the machine may
	// hold before the reader picks them up.
	DefaultFrameBuffer = 2

	// preRoll is the counter value a pass starts from. The two steps before
	// zero sequence the SI strobe.
	preRoll = -2
)

var (
	ErrPixels   = errors.New("capture: invalid pixel count")
	ErrNoPin    = errors.New("capture: clock and strobe pins are required")
	ErrNoLatch  = errors.New("capture: latch is required")
	ErrInterval = errors.New("capture: integration time out of range")
)

// Stats is a snapshot of machine counters.
type Stats struct {
	Edges     uint64 // Edges that advanced the counter
	Ignored   uint64 // Edges delivered while disarmed
	Completed uint64 // Passes retired
	Dropped   uint64 // Completed passes the reader did not pick up in time
	Overruns  uint64 // Windows that fired while a pass was still in flight

	Conversions uint64 // Results stored in the latch
}

// Machine is the capture state machine: it drives the camera clock and SI
// strobe one edge at a time and latches one pixel per clock period.
//
// Edge must be called from a single context (the edge source). Arm may be
// called concurrently from the window timer.
type Machine struct {
	pixels int
	clock  Pin
	strobe Pin
	latch  *Latch
	conv   Converter
	ms     Clock

	gate   gate
	armed  chan struct{}
	frames chan sample.Frame

	// owned by the edge context
	counter int
	level   bool
	pass    uint64
	line    []uint16

	edges     atomic.Uint64
	ignored   atomic.Uint64
	completed atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a Machine.
type Option func(*Machine)

// WithConverter triggers c on every edge before the latch is read.
func WithConverter(c Converter) Option {
	return func(m *Machine) {
		m.conv = c
	}
}

// WithClock stamps completed passes with c.
func WithClock(c Clock) Option {
	return func(m *Machine) {
		m.ms = c
	}
}

// WithFrameBuffer sets how many completed passes may queue up for the reader.
func WithFrameBuffer(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.frames = make(chan sample.Frame, n)
		}
	}
}

// NewMachine creates a disarmed capture machine for a line of the given pixel count.
func NewMachine(pixels int, clock, strobe Pin, latch *Latch, opts ...Option) (*Machine, error) {
	if pixels < MinPixels || pixels > MaxPixels {
		return nil, fmt.Errorf("%w: %d", ErrPixels, pixels)
	}
	if clock == nil || strobe == nil {
		return nil, ErrNoPin
	}
	if latch == nil {
		return nil, ErrNoLatch
	}

	m := &Machine{
		pixels:  pixels,
		clock:   clock,
		strobe:  strobe,
		latch:   latch,
		armed:   make(chan struct{}, 1),
		frames:  make(chan sample.Frame, DefaultFrameBuffer),
		counter: preRoll,
		line:    make([]uint16, pixels),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ms == nil {
		m.ms = NewSystemClock()
	}

	clock.Low()
	strobe.Low()

	return m, nil
}

// Pixels returns the line length.
func (m *Machine) Pixels() int {
	return m.pixels
}

// EdgesPerPass returns the number of edge events one pass takes from arming to retiring.
func (m *Machine) EdgesPerPass() int {
	return 2*m.pixels - preRoll
}

// Frames returns the channel completed passes are delivered on.
func (m *Machine) Frames() <-chan sample.Frame {
	return m.frames
}

// Armed signals that the machine was armed. Edge sources that only run
// while a pass is in flight wait on it.
func (m *Machine) Armed() <-chan struct{} {
	return m.armed
}

// Active reports whether a pass is armed or in flight.
func (m *Machine) Active() bool {
	return m.gate.active()
}

// Arm hands a new integration window to the machine. It returns false when
// a pass is still in flight; the window is then kept pending and the next
// pass starts as soon as the current one retires.
func (m *Machine) Arm(pass uint64) bool {
	if !m.gate.fire(pass) {
		return false
	}
	m.notifyArmed()
	return true
}

// Edge processes one clock-edge event. It returns true when the edge
// completed a pass.
func (m *Machine) Edge() bool {
	if !m.gate.active() {
		m.ignored.Add(1)
		return false
	}
	m.edges.Add(1)

	if m.counter == preRoll {
		m.pass = m.gate.pass()
	}

	m.toggle()
	if m.conv != nil {
		m.conv.Convert(m.latch)
	}

	switch c := m.counter; {
	case c == -1:
		m.strobe.High()
	case c == 1:
		// The sensor shifts out pixel 0 as soon as SI drops.
		m.strobe.Low()
		m.line[0] = m.latch.Load()
	case c >= 2 && c < 2*m.pixels && !m.level:
		m.line[c/2] = m.latch.Load()
	}

	m.counter++
	if m.counter == 2*m.pixels {
		m.finish()
		return true
	}
	return false
}

// Stats returns a snapshot of the machine counters.
func (m *Machine) Stats() Stats {
	return Stats{
		Edges:     m.edges.Load(),
		Ignored:   m.ignored.Load(),
		Completed: m.completed.Load(),
		Dropped:   m.dropped.Load(),
		Overruns:  m.gate.overruns.Load(),

		Conversions: m.latch.Conversions(),
	}
}

func (m *Machine) toggle() {
	m.level = !m.level
	if m.level {
		m.clock.High()
	} else {
		m.clock.Low()
	}
}

// finish retires the pass: clock low, counter back to pre-roll, line handed
// off, and the gate either parks the machine or re-arms it for a window
// that already elapsed.
func (m *Machine) finish() {
	m.clock.Low()
	m.level = false
	m.counter = preRoll

	frame := sample.Frame{
		Pass:   m.pass,
		Stamp:  m.ms.Millis(),
		Values: slices.Clone(m.line),
	}
	select {
	case m.frames <- frame:
	default:
		m.dropped.Add(1)
	}
	m.completed.Add(1)

	if m.gate.retire() {
		m.notifyArmed()
	}
}

func (m *Machine) notifyArmed() {
	select {
	case m.armed <- struct{}{}:
	default:
	}
}
