// Package report runs the background analysis of captured frames: it
// picks the frames due for a report, dumps them, runs the detector and
// reports rate estimates. It has no dependencies beyond the capture path
// so the firmware and the host share it.
package report

import (
	"github.com/itohio/gohrm/pkg/capture"
	"github.com/itohio/gohrm/pkg/detect"
	"github.com/itohio/gohrm/pkg/sample"
	"github.com/itohio/gohrm/pkg/telemetry/line"
)

// DefaultEvery is the number of passes between two analysed line frames.
const DefaultEvery = 500

// Sender transmits one line of text.
type Sender interface {
	Send(line string) error
}

// Cadence decides which line frames are analysed. A frame is due when at
// least Every passes went by since the last due frame. Streaming frames
// are always due.
type Cadence struct {
	Every uint64
	last  uint64
}

// Due reports whether f should be analysed and records it when it is.
func (c *Cadence) Due(f sample.Frame) bool {
	if !f.IsLine() {
		return true
	}
	every := c.Every
	if every == 0 {
		every = DefaultEvery
	}
	if f.Pass < c.last+every {
		return false
	}
	c.last = f.Pass
	return true
}

// Reset starts counting from pass zero again.
func (c *Cadence) Reset() {
	c.last = 0
}

// Reporter analyses due frames with a detector and sends the frame dump
// and rate lines. The indicator is held low while a report is produced.
type Reporter struct {
	Cadence

	det       detect.Detector
	out       Sender
	indicator capture.Pin
	buf       []byte
}

// New creates a reporter. A nil indicator is replaced with a no-op pin.
func New(det detect.Detector, out Sender, every uint64, indicator capture.Pin) *Reporter {
	if indicator == nil {
		indicator = capture.NopPin{}
	}
	indicator.High()
	return &Reporter{
		Cadence:   Cadence{Every: every},
		det:       det,
		out:       out,
		indicator: indicator,
	}
}

// Detector returns the detector frames are analysed with.
func (r *Reporter) Detector() detect.Detector {
	return r.det
}

// Handle processes one frame. analysed is false when the frame was not
// due. ok is true when the detector produced an event. err carries the
// first send failure; the report is still completed.
func (r *Reporter) Handle(f sample.Frame) (ev detect.Event, ok, analysed bool, err error) {
	if !r.Due(f) {
		return ev, false, false, nil
	}

	r.indicator.Low()
	defer r.indicator.High()

	if f.IsLine() {
		r.buf = line.AppendFrame(r.buf[:0], f)
	} else if len(f.Values) == 1 {
		r.buf = line.AppendSample(r.buf[:0], f.Stamp, f.Values[0])
	} else {
		return ev, false, true, nil
	}
	err = r.out.Send(string(r.buf))

	ev, ok = r.det.Process(f)
	if ok && ev.Complete {
		r.buf = line.AppendRate(r.buf[:0], ev.Sample.Stamp, ev.Estimate.Interval, ev.Estimate.BPM)
		if sendErr := r.out.Send(string(r.buf)); err == nil {
			err = sendErr
		}
	}
	return ev, ok, true, err
}

// Reset clears the cadence and the detector state.
func (r *Reporter) Reset() {
	r.Cadence.Reset()
	r.det.Reset()
}
