package sample

import "github.com/chewxy/math32"

const (
	// DefaultBits is the conversion width of the camera ADC.
	DefaultBits = 12
	// DefaultVRef is the ADC reference voltage in volts.
	DefaultVRef = 3.3
)

// Frame is one unit of captured data.
// A capture pass carries N pixel values, a streamed reading carries one.
type Frame struct {
	Pass   uint64   // Integration window (or stream sample) number
	Stamp  uint64   // Millisecond counter when the frame completed
	Values []uint16 // Raw conversion results, index = pixel
}

// IsLine reports whether the frame holds a full capture pass rather than a streamed reading.
func (f Frame) IsLine() bool {
	return len(f.Values) > 1
}

// Max returns the largest value in the frame and its index.
// Returns -1 for an empty frame.
func (f Frame) Max() (uint16, int) {
	idx := -1
	var max uint16
	for i, v := range f.Values {
		if idx < 0 || v > max {
			max = v
			idx = i
		}
	}
	return max, idx
}

// FullScale returns the largest code an ADC of the given width produces.
func FullScale(bits int) uint32 {
	if bits <= 0 || bits > 16 {
		bits = 16
	}
	return (1 << uint(bits)) - 1
}

// Volts converts a raw conversion result to volts.
func Volts(raw uint16, bits int, vref float32) float32 {
	return float32(raw) / float32(FullScale(bits)) * vref
}

// Raw converts volts back to the nearest conversion code, clamped to the ADC range.
func Raw(volts float32, bits int, vref float32) uint16 {
	if vref <= 0 {
		return 0
	}
	full := float32(FullScale(bits))
	code := math32.Round(volts / vref * full)
	code = math32.Max(0, math32.Min(code, full))
	return uint16(code)
}

// Trace converts all values of a frame to volts.
// Reuses dst when it has enough capacity.
func Trace(dst []float32, f Frame, bits int, vref float32) []float32 {
	if cap(dst) < len(f.Values) {
		dst = make([]float32, len(f.Values))
	}
	dst = dst[:len(f.Values)]
	for i, v := range f.Values {
		dst[i] = Volts(v, bits, vref)
	}
	return dst
}
