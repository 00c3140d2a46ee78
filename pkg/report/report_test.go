package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gohrm/pkg/detect"
	"github.com/itohio/gohrm/pkg/sample"
)

type lines []string

func (l *lines) Send(s string) error {
	*l = append(*l, s)
	return nil
}

type ledPin struct {
	level  bool
	toggle int
}

func (p *ledPin) High() { p.level = true; p.toggle++ }
func (p *ledPin) Low()  { p.level = false; p.toggle++ }

func TestCadence(t *testing.T) {
	c := Cadence{Every: 500}

	tests := []struct {
		pass uint64
		due  bool
	}{
		{1, false},
		{499, false},
		{500, true},
		{501, false},
		{999, false},
		{1000, true},
		{1702, true},
		{2201, false},
		{2202, true},
	}
	for _, tt := range tests {
		f := sample.Frame{Pass: tt.pass, Values: []uint16{1, 2}}
		assert.Equal(t, tt.due, c.Due(f), "pass %d", tt.pass)
	}

	assert.True(t, c.Due(sample.Frame{Pass: 2203, Values: []uint16{1}}), "streaming frames are always due")
}

func TestReporter_LineFrames(t *testing.T) {
	var out lines
	led := &ledPin{}
	r := New(detect.NewMaxTracker(time.Millisecond), &out, 2, led)
	assert.True(t, led.level)

	frames := []sample.Frame{
		{Pass: 1, Stamp: 50, Values: []uint16{1, 2, 3}},
		{Pass: 2, Stamp: 100, Values: []uint16{10, 20, 5}},
		{Pass: 3, Stamp: 200, Values: []uint16{90, 0, 0}},
		{Pass: 4, Stamp: 350, Values: []uint16{0, 30, 0}},
	}

	var events []detect.Event
	for _, f := range frames {
		ev, ok, _, err := r.Handle(f)
		require.NoError(t, err)
		if ok {
			events = append(events, ev)
		}
	}

	assert.Equal(t, []string{
		"F,2,100,10,20,5",
		"F,4,350,0,30,0",
		"R,350,250,240.0",
	}, []string(out))
	require.Len(t, events, 2)
	assert.True(t, events[1].Complete)
	assert.True(t, led.level, "indicator released after the report")
	assert.Equal(t, 1+2*2, led.toggle)
}

func TestReporter_Stream(t *testing.T) {
	var out lines
	det := detect.NewThreshold(sample.DefaultBits, sample.DefaultVRef)
	r := New(det, &out, 500, nil)

	low := sample.Raw(0.5, sample.DefaultBits, sample.DefaultVRef)
	high := sample.Raw(1.5, sample.DefaultBits, sample.DefaultVRef)
	for i, v := range []uint16{low, high, low, high} {
		_, _, analysed, err := r.Handle(sample.Frame{Stamp: uint64(i) * 400, Values: []uint16{v}})
		require.NoError(t, err)
		assert.True(t, analysed)
	}

	require.Len(t, out, 5)
	assert.Equal(t, "S,0,620", out[0])
	assert.Equal(t, "R,1200,800,75.0", out[4])
}

func TestReporter_SendError(t *testing.T) {
	boom := errors.New("boom")
	failing := senderFunc(func(string) error { return boom })
	r := New(detect.NewMaxTracker(0), failing, 1, nil)

	_, ok, analysed, err := r.Handle(sample.Frame{Pass: 1, Values: []uint16{1, 2}})
	assert.ErrorIs(t, err, boom)
	assert.True(t, analysed)
	assert.True(t, ok, "detector still runs when the link is down")
}

func TestReporter_Reset(t *testing.T) {
	var out lines
	r := New(detect.NewMaxTracker(0), &out, 10, nil)

	_, _, analysed, _ := r.Handle(sample.Frame{Pass: 10, Values: []uint16{1, 2}})
	assert.True(t, analysed)
	r.Reset()
	_, _, analysed, _ = r.Handle(sample.Frame{Pass: 10, Values: []uint16{1, 2}})
	assert.True(t, analysed)
}

type senderFunc func(string) error

func (f senderFunc) Send(s string) error { return f(s) }
