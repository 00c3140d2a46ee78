// Package line formats and parses the text protocol spoken between the
// monitor firmware and the host. One record per line:
//
//	F,<pass>,<stamp_ms>,<v0>,...,<vN-1>   captured line
//	R,<stamp_ms>,<interval_ticks>,<bpm>   heart rate estimate
//	S,<stamp_ms>,<raw>                    streaming sample
//
// The host programs the integration time with "I<micros>".
package line

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/gohrm/pkg/sample"
)

// Marker is the report preamble older firmware prints before every frame.
const Marker = "start: -1"

var (
	ErrEmpty     = errors.New("line: empty")
	ErrMalformed = errors.New("line: malformed record")
	ErrCommand   = errors.New("line: malformed command")
)

// Kind identifies a record.
type Kind byte

const (
	KindMarker Kind = 'M'
	KindFrame  Kind = 'F'
	KindRate   Kind = 'R'
	KindSample Kind = 'S'
)

func (k Kind) String() string {
	switch k {
	case KindMarker:
		return "marker"
	case KindFrame:
		return "frame"
	case KindRate:
		return "rate"
	case KindSample:
		return "sample"
	}
	return "unknown"
}

// Record is one parsed line.
type Record struct {
	Kind     Kind
	Pass     uint64   // frame
	Stamp    uint64   // all but marker
	Values   []uint16 // frame; single value for samples
	Interval uint64   // rate
	BPM      float64  // rate
}

// Frame returns the frame carried by a frame or sample record.
func (r Record) Frame() sample.Frame {
	return sample.Frame{Pass: r.Pass, Stamp: r.Stamp, Values: r.Values}
}

// AppendFrame appends the frame record for f, without newline.
func AppendFrame(dst []byte, f sample.Frame) []byte {
	dst = append(dst, byte(KindFrame), ',')
	dst = strconv.AppendUint(dst, f.Pass, 10)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, f.Stamp, 10)
	for _, v := range f.Values {
		dst = append(dst, ',')
		dst = strconv.AppendUint(dst, uint64(v), 10)
	}
	return dst
}

// AppendRate appends a rate record with the rate rounded to one decimal.
func AppendRate(dst []byte, stamp, interval uint64, bpm float64) []byte {
	dst = append(dst, byte(KindRate), ',')
	dst = strconv.AppendUint(dst, stamp, 10)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, interval, 10)
	dst = append(dst, ',')
	return strconv.AppendFloat(dst, bpm, 'f', 1, 64)
}

// AppendSample appends a streaming sample record.
func AppendSample(dst []byte, stamp uint64, raw uint16) []byte {
	dst = append(dst, byte(KindSample), ',')
	dst = strconv.AppendUint(dst, stamp, 10)
	dst = append(dst, ',')
	return strconv.AppendUint(dst, uint64(raw), 10)
}

// Frame formats f as a frame record, or as a sample record when f holds a
// single streaming value.
func Frame(f sample.Frame) string {
	if !f.IsLine() && len(f.Values) == 1 {
		return string(AppendSample(nil, f.Stamp, f.Values[0]))
	}
	return string(AppendFrame(make([]byte, 0, 16+6*len(f.Values)), f))
}

// Rate formats a rate record.
func Rate(stamp, interval uint64, bpm float64) string {
	return string(AppendRate(nil, stamp, interval, bpm))
}

// Parse decodes one line. Surrounding whitespace is ignored.
func Parse(s string) (Record, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Record{}, ErrEmpty
	}
	if s == Marker {
		return Record{Kind: KindMarker}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts[0]) != 1 {
		return Record{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, parts[0])
	}

	switch Kind(parts[0][0]) {
	case KindFrame:
		return parseFrame(parts[1:])
	case KindRate:
		return parseRate(parts[1:])
	case KindSample:
		return parseSample(parts[1:])
	}
	return Record{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, parts[0])
}

func parseFrame(fields []string) (Record, error) {
	if len(fields) < 3 {
		return Record{}, fmt.Errorf("%w: frame needs pass, stamp and values, got %d fields", ErrMalformed, len(fields))
	}
	pass, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: invalid pass: %w", ErrMalformed, err)
	}
	stamp, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: invalid stamp: %w", ErrMalformed, err)
	}

	values := make([]uint16, len(fields)-2)
	for i, f := range fields[2:] {
		v, err := strconv.ParseUint(f, 10, 16)
		if err != nil {
			return Record{}, fmt.Errorf("%w: invalid value %d: %w", ErrMalformed, i, err)
		}
		values[i] = uint16(v)
	}

	return Record{Kind: KindFrame, Pass: pass, Stamp: stamp, Values: values}, nil
}

func parseRate(fields []string) (Record, error) {
	if len(fields) != 3 {
		return Record{}, fmt.Errorf("%w: rate needs 3 fields, got %d", ErrMalformed, len(fields))
	}
	stamp, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: invalid stamp: %w", ErrMalformed, err)
	}
	interval, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: invalid interval: %w", ErrMalformed, err)
	}
	bpm, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: invalid rate: %w", ErrMalformed, err)
	}

	return Record{Kind: KindRate, Stamp: stamp, Interval: interval, BPM: bpm}, nil
}

func parseSample(fields []string) (Record, error) {
	if len(fields) != 2 {
		return Record{}, fmt.Errorf("%w: sample needs 2 fields, got %d", ErrMalformed, len(fields))
	}
	stamp, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: invalid stamp: %w", ErrMalformed, err)
	}
	raw, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return Record{}, fmt.Errorf("%w: invalid sample: %w", ErrMalformed, err)
	}

	return Record{Kind: KindSample, Stamp: stamp, Values: []uint16{uint16(raw)}}, nil
}

// Integration formats the command that sets the integration time.
func Integration(d time.Duration) string {
	return "I" + strconv.FormatInt(d.Microseconds(), 10) + "\n"
}

// ParseCommand decodes an integration time command.
func ParseCommand(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != 'I' {
		return 0, fmt.Errorf("%w: %q", ErrCommand, s)
	}
	us, err := strconv.ParseUint(s[1:], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCommand, err)
	}
	return time.Duration(us) * time.Microsecond, nil
}
