package hrm

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/gohrm/pkg/capture"
	"github.com/itohio/gohrm/pkg/config"
	"github.com/itohio/gohrm/pkg/sample"
)

// systole is where in the cardiac cycle the simulated pulse peaks, and
// systoleWidth its spread, both as fractions of the beat period.
const (
	systole      = 0.2
	systoleWidth = 0.06
)

// Sensor simulates a linescan camera looking at a fingertip lit from behind.
// The line shows a single bright spot whose brightness pulses with the
// heart. Its clock and strobe inputs track the pixel being shifted out the
// same way the real sensor does.
type Sensor struct {
	cfg    config.MockConfig
	bits   int
	vref   float64
	center float64
	start  time.Time

	mu     sync.Mutex
	si     bool
	pixel  int
	pulses uint64
	done   bool
}

// NewSensor creates a simulated sensor for a line of the given pixel count.
func NewSensor(cfg config.MockConfig, pixels, bits int, vref float64) *Sensor {
	return &Sensor{
		cfg:    cfg,
		bits:   bits,
		vref:   vref,
		center: float64(pixels) / 2,
		start:  time.Now(),
		pixel:  -1,
	}
}

// ClockPin returns the camera clock input.
func (s *Sensor) ClockPin() capture.Pin {
	return sensorPin{high: s.clockRising}
}

// StrobePin returns the SI input.
func (s *Sensor) StrobePin() capture.Pin {
	return sensorPin{high: func() { s.setSI(true) }, low: func() { s.setSI(false) }}
}

// Pixel returns the element currently on the output, -1 before the first
// strobe.
func (s *Sensor) Pixel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pixel
}

// Pulses returns how many SI strobes the sensor has seen.
func (s *Sensor) Pulses() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulses
}

func (s *Sensor) setSI(v bool) {
	s.mu.Lock()
	if v && !s.si {
		s.pulses++
	}
	s.si = v
	s.mu.Unlock()
}

// clockRising restarts the shift register when SI is high, otherwise
// advances it by one element.
func (s *Sensor) clockRising() {
	s.mu.Lock()
	if s.si {
		s.pixel = 0
	} else if s.pixel >= 0 {
		s.pixel++
	}
	s.mu.Unlock()
}

// Calibrate completes immediately.
func (s *Sensor) Calibrate() error {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	return nil
}

func (s *Sensor) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Convert samples the current pixel into l.
func (s *Sensor) Convert(l *capture.Latch) {
	l.Store(s.Level(s.Pixel(), time.Since(s.start)))
}

// Level returns the conversion result for a pixel at time t. A negative
// pixel reads the spot center, which is what a single photodiode sees.
func (s *Sensor) Level(pixel int, t time.Duration) uint16 {
	spot := 1.0
	if pixel >= 0 {
		d := (float64(pixel) - s.center) / s.cfg.PeakWidth
		spot = math.Exp(-d * d / 2)
	}

	m := s.cfg.Modulation
	v := s.cfg.Baseline + s.cfg.Amplitude*spot*(1-m+m*s.pulse(t))
	if s.cfg.NoiseLevel > 0 {
		v += rand.NormFloat64() * s.cfg.NoiseLevel
	}
	return sample.Raw(float32(v), s.bits, float32(s.vref))
}

// pulse is the heart waveform in [0, 1].
func (s *Sensor) pulse(t time.Duration) float64 {
	if s.cfg.HeartRate <= 0 {
		return 0
	}
	period := 60 / s.cfg.HeartRate
	phase := math.Mod(t.Seconds(), period) / period
	d := (phase - systole) / systoleWidth
	return math.Exp(-d * d / 2)
}

type sensorPin struct {
	high func()
	low  func()
}

func (p sensorPin) High() {
	if p.high != nil {
		p.high()
	}
}

func (p sensorPin) Low() {
	if p.low != nil {
		p.low()
	}
}

// Mock is a Local device capturing from a simulated sensor.
type Mock struct {
	*Local
	sensor *Sensor
}

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)

// NewMock creates a mocked device running the real capture path.
func NewMock(cfg *config.Config, log *zap.Logger) (*Mock, error) {
	if cfg == nil {
		cfg = config.Default()
		cfg.Camera.Backend = config.BackendMock
	}
	s := NewSensor(cfg.Mock, cfg.Camera.Pixels, cfg.Camera.ADCBits, cfg.Camera.VRef)

	local, err := NewLocal(cfg, Hardware{
		Clock:      s.ClockPin(),
		Strobe:     s.StrobePin(),
		LED:        capture.NopPin{},
		Converter:  s,
		Calibrator: s,
	}, log)
	if err != nil {
		return nil, err
	}
	return &Mock{Local: local, sensor: s}, nil
}

// Sensor returns the simulated sensor.
func (m *Mock) Sensor() *Sensor {
	return m.sensor
}
