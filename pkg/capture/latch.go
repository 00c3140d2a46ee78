package capture

import "sync/atomic"

// Latch holds the most recent conversion result.
// Single slot, last write wins. Safe to write from the conversion-complete
// context while the capture path reads it.
type Latch struct {
	v atomic.Uint32
	n atomic.Uint64
}

// Store records a completed conversion.
func (l *Latch) Store(v uint16) {
	l.v.Store(uint32(v))
	l.n.Add(1)
}

// Load returns the last completed conversion.
func (l *Latch) Load() uint16 {
	return uint16(l.v.Load())
}

// Conversions returns how many results were stored so far.
func (l *Latch) Conversions() uint64 {
	return l.n.Load()
}

// Converter starts a conversion whose result lands in the latch.
// The capture machine triggers one on every clock edge, the same way the
// capture timer hardware-triggers the ADC.
type Converter interface {
	Convert(l *Latch)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(l *Latch)

// Convert calls f(l).
func (f ConverterFunc) Convert(l *Latch) {
	f(l)
}
