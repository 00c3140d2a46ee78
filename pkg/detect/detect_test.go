package detect

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gohrm/pkg/capture"
	"github.com/itohio/gohrm/pkg/sample"
)

func line(stamp uint64, values ...uint16) sample.Frame {
	return sample.Frame{Stamp: stamp, Values: values}
}

func TestNewEstimate(t *testing.T) {
	est, err := NewEstimate(250, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), est.Interval)
	assert.InDelta(t, 1.0/250, est.Rate, 1e-12)
	assert.InDelta(t, 240.0, est.BPM, 1e-9)

	_, err = NewEstimate(0, time.Millisecond)
	assert.ErrorIs(t, err, ErrZeroInterval)
}

func TestParity(t *testing.T) {
	assert.Equal(t, Even, Odd.Flip())
	assert.Equal(t, Odd, Even.Flip())
	assert.Equal(t, "odd", Odd.String())
	assert.Equal(t, "even", Even.String())
}

func TestMaxTracker_ParityAlternatesFromOdd(t *testing.T) {
	d := NewMaxTracker(time.Millisecond)
	assert.Equal(t, Odd, d.Parity())

	ev, ok := d.Process(line(10, 1, 5, 3))
	require.True(t, ok)
	assert.Equal(t, Odd, ev.Sample.Parity)
	assert.Equal(t, 1, ev.Sample.Index)
	assert.Equal(t, uint16(5), ev.Sample.Value)
	assert.Equal(t, Even, d.Parity())

	ev, ok = d.Process(line(20, 7, 2, 9))
	require.True(t, ok)
	assert.Equal(t, Even, ev.Sample.Parity)
	assert.Equal(t, 2, ev.Sample.Index, "last new maximum in the line wins")
	assert.Equal(t, Odd, d.Parity())
}

// peakLine is a full camera line with a single maximum of value v at k.
func peakLine(stamp uint64, k int, v uint16) sample.Frame {
	values := make([]uint16, capture.DefaultPixels)
	for i := range values {
		values[i] = 10
	}
	values[k] = v
	return sample.Frame{Stamp: stamp, Values: values}
}

func TestMaxTracker_FullLine(t *testing.T) {
	tests := []struct {
		k      int
		value  uint16
		parity Parity
	}{
		{0, 100, Odd},
		{capture.DefaultPixels / 2, 200, Even},
		{capture.DefaultPixels - 1, 300, Odd},
		{17, 400, Even},
		{90, 500, Odd},
		{63, 600, Even},
	}

	d := NewMaxTracker(time.Millisecond)
	for pass, tt := range tests {
		t.Run(fmt.Sprintf("pass %d at %d", pass+1, tt.k), func(t *testing.T) {
			ev, ok := d.Process(peakLine(uint64(pass)*250, tt.k, tt.value))
			require.True(t, ok)
			assert.Equal(t, tt.k, ev.Sample.Index)
			assert.Equal(t, tt.value, ev.Sample.Value)
			assert.Equal(t, tt.parity, ev.Sample.Parity)
			assert.Equal(t, tt.parity == Even, ev.Complete)
			if ev.Complete {
				assert.Equal(t, uint64(250), ev.Estimate.Interval)
			}
		})
	}
	assert.Equal(t, uint16(600), d.Max())
}

func TestMaxTracker_EstimateFromCycle(t *testing.T) {
	d := NewMaxTracker(time.Millisecond)

	_, ok := d.Process(line(100, 10, 20))
	require.True(t, ok)

	ev, ok := d.Process(line(350, 30, 25))
	require.True(t, ok)
	require.True(t, ev.Complete)
	assert.Equal(t, uint64(250), ev.Estimate.Interval)
	assert.InDelta(t, 1.0/250, ev.Estimate.Rate, 1e-12)
	assert.InDelta(t, 240.0, ev.Estimate.BPM, 1e-9)
}

func TestMaxTracker_NoReportForNonIncreasingPass(t *testing.T) {
	d := NewMaxTracker(time.Millisecond)

	_, ok := d.Process(line(0, 50, 10))
	require.True(t, ok)

	// Even pass never beats the running maximum: no sample, no estimate,
	// the cycle is cleared anyway.
	ev, ok := d.Process(line(10, 50, 49))
	assert.False(t, ok)
	assert.False(t, ev.Complete)
	assert.Equal(t, uint16(50), d.Max())

	// Next odd pass raises the max, next even does not: still nothing.
	_, ok = d.Process(line(20, 60))
	assert.True(t, ok)
	ev, ok = d.Process(line(30, 1))
	assert.False(t, ok)
	assert.False(t, ev.Complete)
}

func TestMaxTracker_ZeroIntervalHasNoEstimate(t *testing.T) {
	d := NewMaxTracker(time.Millisecond)

	_, ok := d.Process(line(40, 10))
	require.True(t, ok)
	ev, ok := d.Process(line(40, 11))
	assert.True(t, ok)
	assert.False(t, ev.Complete)
}

func TestMaxTracker_Reset(t *testing.T) {
	d := NewMaxTracker(0)
	d.Process(line(0, 100))
	d.Reset()

	assert.Equal(t, Odd, d.Parity())
	assert.Equal(t, uint16(0), d.Max())
	_, ok := d.Process(line(1, 1))
	assert.True(t, ok)
}

// stream returns a frame holding one raw code at volts.
func stream(stamp uint64, volts float32) sample.Frame {
	return sample.Frame{Stamp: stamp, Values: []uint16{sample.Raw(volts, sample.DefaultBits, sample.DefaultVRef)}}
}

func TestThreshold(t *testing.T) {
	type step struct {
		stamp    uint64
		volts    float32
		beat     bool
		complete bool
		bpm      float64
	}

	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "150 bpm",
			steps: []step{
				{0, 0.5, false, false, 0},
				{10, 1.5, true, false, 0},
				{100, 0.5, false, false, 0},
				{410, 1.5, true, true, 150},
			},
		},
		{
			name: "refractory keeps reference",
			steps: []step{
				{0, 0.5, false, false, 0},
				{10, 1.5, true, false, 0},
				{100, 0.5, false, false, 0},
				{210, 1.5, true, false, 0},
				{300, 0.5, false, false, 0},
				{410, 1.5, true, true, 150},
			},
		},
		{
			name: "staying in band is one beat",
			steps: []step{
				{0, 0.5, false, false, 0},
				{10, 1.5, true, false, 0},
				{500, 1.6, false, false, 0},
				{900, 1.7, false, false, 0},
			},
		},
		{
			name: "above band does not count",
			steps: []step{
				{0, 0.5, false, false, 0},
				{10, 2.5, false, false, 0},
				{500, 3.0, false, false, 0},
			},
		},
		{
			name: "first sample in band only primes",
			steps: []step{
				{0, 1.5, false, false, 0},
				{10, 1.6, false, false, 0},
			},
		},
		{
			name: "falling into band from above",
			steps: []step{
				{0, 2.5, false, false, 0},
				{10, 1.8, true, false, 0},
				{20, 2.5, false, false, 0},
				{1010, 1.8, true, true, 60},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewThreshold(sample.DefaultBits, sample.DefaultVRef)
			for i, s := range tt.steps {
				ev, ok := d.Process(stream(s.stamp, s.volts))
				assert.Equal(t, s.beat, ok, "step %d", i)
				assert.Equal(t, s.complete, ev.Complete, "step %d", i)
				if s.complete {
					assert.InDelta(t, s.bpm, ev.Estimate.BPM, 1e-9, "step %d", i)
				}
			}
		})
	}
}

func TestThreshold_Reset(t *testing.T) {
	d := NewThreshold(sample.DefaultBits, sample.DefaultVRef)
	d.Process(stream(0, 0.5))
	d.Process(stream(10, 1.5))
	d.Reset()

	_, ok := d.Process(stream(20, 0.5))
	assert.False(t, ok)
	ev, ok := d.Process(stream(1000, 1.5))
	assert.True(t, ok)
	assert.False(t, ev.Complete, "reset forgets the reference")
}
