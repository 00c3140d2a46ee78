package monitor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/gohrm/pkg/capture"
	"github.com/itohio/gohrm/pkg/config"
	"github.com/itohio/gohrm/pkg/detect"
	"github.com/itohio/gohrm/pkg/report"
	"github.com/itohio/gohrm/pkg/sample"
	"github.com/itohio/gohrm/pkg/telemetry"
)

var _ HeartMonitor = (*Monitor)(nil)

// HeartMonitor analyses frames, keeps recent heartbeat events and notifies
// listeners.
type HeartMonitor interface {
	ProcessFrames(input <-chan sample.Frame)
	Frame() sample.Frame                                      // Last analysed frame
	Events() []detect.Event                                   // Events within the history window, oldest first
	Latest() (detect.Estimate, bool)                          // Most recent rate estimate
	OnUpdate(func(frame sample.Frame, events []detect.Event)) // Register callback for updates
}

// Stats counts what the monitor did with its input.
type Stats struct {
	Frames    uint64
	Analysed  uint64
	Beats     uint64
	Estimates uint64
	SendErrs  uint64
}

// Monitor implements HeartMonitor on top of a report.Reporter.
type Monitor struct {
	repMu  sync.Mutex // guards rep, which holds the detector and cadence state
	rep    *report.Reporter
	log    *zap.Logger
	window uint64 // history length in stamp units

	mu       sync.RWMutex
	frame    sample.Frame
	events   []detect.Event
	latest   detect.Estimate
	hasRate  bool
	stats    Stats
	shutdown bool // Set when the input channel closes, prevents further callbacks

	callbacks []func(frame sample.Frame, events []detect.Event)
	cbMu      sync.RWMutex
}

// Option configures a Monitor.
type Option func(*options)

type options struct {
	det       detect.Detector
	sink      telemetry.Sink
	indicator capture.Pin
	log       *zap.Logger
}

// WithDetector overrides the detector picked from the configuration.
func WithDetector(d detect.Detector) Option {
	return func(o *options) { o.det = d }
}

// WithSink sends report lines to s.
func WithSink(s telemetry.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithIndicator pulls p low while a report is produced.
func WithIndicator(p capture.Pin) Option {
	return func(o *options) { o.indicator = p }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// NewDetector creates the detector selected by the configuration.
func NewDetector(cfg *config.Config) detect.Detector {
	if cfg.Detect.Mode == config.ModeThreshold {
		d := detect.NewThreshold(cfg.Camera.ADCBits, float32(cfg.Camera.VRef))
		d.Low = float32(cfg.Detect.Low)
		d.High = float32(cfg.Detect.High)
		d.Refractory = cfg.Detect.Refractory
		d.Tick = cfg.Detect.Tick
		return d
	}
	return detect.NewMaxTracker(cfg.Detect.Tick)
}

// New creates a monitor.
func New(cfg *config.Config, opts ...Option) *Monitor {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.det == nil {
		o.det = NewDetector(cfg)
	}
	if o.sink == nil {
		o.sink = telemetry.Discard
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}

	tick := cfg.Detect.Tick
	if tick <= 0 {
		tick = detect.DefaultTick
	}
	window := time.Duration(cfg.Report.WindowSeconds * float64(time.Second))

	return &Monitor{
		rep:    report.New(o.det, o.sink, cfg.Report.Every, o.indicator),
		log:    o.log,
		window: uint64(window / tick),
	}
}

// ProcessFrames analyses frames until the input channel closes. After that
// no more callbacks are sent until ResetShutdown is called.
func (m *Monitor) ProcessFrames(input <-chan sample.Frame) {
	for f := range input {
		m.processFrame(f)
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
	m.log.Debug("monitor input closed")
}

func (m *Monitor) processFrame(f sample.Frame) {
	m.repMu.Lock()
	ev, ok, analysed, err := m.rep.Handle(f)
	m.repMu.Unlock()

	m.mu.Lock()
	m.stats.Frames++
	if err != nil {
		m.stats.SendErrs++
		m.log.Warn("telemetry send failed", zap.Error(err))
	}
	if !analysed {
		m.mu.Unlock()
		return
	}

	m.stats.Analysed++
	m.frame = f
	if ok {
		m.stats.Beats++
		m.events = append(m.events, ev)
		if ev.Complete {
			m.stats.Estimates++
			m.latest = ev.Estimate
			m.hasRate = true
			m.log.Info("heart rate",
				zap.Float64("bpm", ev.Estimate.BPM),
				zap.Uint64("interval", ev.Estimate.Interval),
				zap.Uint64("stamp", ev.Sample.Stamp),
			)
		}
	}
	m.trim(f.Stamp)

	shouldNotify := !m.shutdown
	m.mu.Unlock()

	if shouldNotify {
		m.notifyCallbacks()
	}
}

// trim drops events older than the history window. Caller holds mu.
func (m *Monitor) trim(now uint64) {
	if m.window == 0 || now < m.window {
		return
	}
	cutoff := now - m.window
	i := 0
	for i < len(m.events) && m.events[i].Sample.Stamp < cutoff {
		i++
	}
	if i > 0 {
		m.events = append(m.events[:0], m.events[i:]...)
	}
}

// Frame returns the last analysed frame.
func (m *Monitor) Frame() sample.Frame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frame
}

// Events returns a copy of the events within the history window.
func (m *Monitor) Events() []detect.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]detect.Event, len(m.events))
	copy(result, m.events)
	return result
}

// Latest returns the most recent rate estimate.
func (m *Monitor) Latest() (detect.Estimate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.hasRate
}

func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// OnUpdate registers a callback invoked after every analysed frame.
// The callback should copy what it needs and return quickly.
func (m *Monitor) OnUpdate(callback func(frame sample.Frame, events []detect.Event)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// ResetShutdown re-enables callbacks and clears the analysis state.
// Call it before starting a new capture chain. It is safe to call while
// ProcessFrames is running.
func (m *Monitor) ResetShutdown() {
	m.repMu.Lock()
	m.rep.Reset()
	m.repMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
	m.events = m.events[:0]
	m.hasRate = false
}

// notifyCallbacks invokes all registered callbacks with a copy of the
// current state, without holding any locks.
func (m *Monitor) notifyCallbacks() {
	m.mu.RLock()
	frame := m.frame
	events := make([]detect.Event, len(m.events))
	copy(events, m.events)
	m.mu.RUnlock()

	m.cbMu.RLock()
	callbacks := make([]func(frame sample.Frame, events []detect.Event), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(frame, events)
		}
	}
}
