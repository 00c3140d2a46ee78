package hrm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/gohrm/pkg/capture"
	"github.com/itohio/gohrm/pkg/config"
	"github.com/itohio/gohrm/pkg/detect"
	"github.com/itohio/gohrm/pkg/monitor"
	"github.com/itohio/gohrm/pkg/report"
	"github.com/itohio/gohrm/pkg/sample"
	"github.com/itohio/gohrm/pkg/telemetry/line"
)

// frameBuffer is how many completed passes may wait for the analysis loop.
const frameBuffer = 8

var ErrStreaming = errors.New("integration time does not apply to streaming capture")

// Hardware is what a Local device drives.
type Hardware struct {
	Clock      capture.Pin
	Strobe     capture.Pin
	LED        capture.Pin
	Converter  capture.Converter
	Calibrator capture.Calibrator // optional
}

// Local runs the capture path in-process, the same way the firmware does
// on the microcontroller, and delivers the records the firmware would
// print.
type Local struct {
	cfg *config.Config
	hw  Hardware
	log *zap.Logger

	latch   *capture.Latch
	machine *capture.Machine
	window  *capture.Window
	source  capture.EdgeSource
	rep     *report.Reporter
	clock   capture.Clock

	records   chan line.Record
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected bool
	closed    bool
}

// NewLocal builds the capture path around hw.
func NewLocal(cfg *config.Config, hw Hardware, log *zap.Logger) (*Local, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hw.Converter == nil {
		return nil, errors.New("hardware converter is required")
	}
	if hw.Clock == nil {
		hw.Clock = capture.NopPin{}
	}
	if hw.Strobe == nil {
		hw.Strobe = capture.NopPin{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &Local{
		cfg:     cfg,
		hw:      hw,
		log:     log,
		latch:   &capture.Latch{},
		clock:   capture.NewSystemClock(),
		records: make(chan line.Record, DefaultBufferSize),
	}

	det := monitor.NewDetector(cfg)
	d.rep = report.New(det, recordSender{d}, cfg.Report.Every, hw.LED)

	if cfg.Detect.Mode == config.ModeThreshold {
		return d, nil
	}

	m, err := capture.NewMachine(cfg.Camera.Pixels, hw.Clock, hw.Strobe, d.latch,
		capture.WithConverter(hw.Converter),
		capture.WithClock(d.clock),
		capture.WithFrameBuffer(frameBuffer),
	)
	if err != nil {
		return nil, err
	}
	src, err := capture.NewEdgeSource(cfg.Camera.EdgeSource, cfg.Camera.EdgePeriod)
	if err != nil {
		return nil, err
	}

	opts := []capture.WindowOption{capture.WithEdgePeriod(cfg.Camera.EdgePeriod)}
	if ts, ok := src.(*capture.TickerSource); ok {
		if mt, ok := det.(*detect.MaxTracker); ok {
			opts = append(opts, capture.WithResync(func() bool { return mt.Parity() == detect.Even }, ts.Resync))
		}
	}
	w, err := capture.NewWindow(m, cfg.Camera.Integration, opts...)
	if err != nil {
		return nil, err
	}

	d.machine = m
	d.source = src
	d.window = w
	return d, nil
}

// recordSender feeds report lines back through the line parser, exactly
// as a host reading the firmware output would see them.
type recordSender struct {
	d *Local
}

func (s recordSender) Send(l string) error {
	rec, err := line.Parse(l)
	if err != nil {
		return err
	}
	select {
	case s.d.records <- rec:
		return nil
	default:
		return fmt.Errorf("records channel full, dropping %s", rec.Kind)
	}
}

// Connect calibrates the converter and starts capturing.
func (d *Local) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrConnected
	}
	if d.closed {
		return errors.New("device closed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	if d.hw.Calibrator != nil {
		cctx, ccancel := context.WithTimeout(ctx, 5*time.Second)
		err := capture.WaitCalibrated(cctx, d.hw.Calibrator, time.Millisecond)
		ccancel()
		if err != nil {
			cancel()
			return err
		}
	}

	d.cancel = cancel
	d.connected = true

	if d.machine == nil {
		d.start(func() { d.stream(ctx) })
	} else {
		d.start(func() { d.source.Run(ctx, d.machine) })
		d.start(func() { d.window.Run(ctx) })
		d.start(func() { d.analyse(ctx) })
	}
	d.log.Info("capture started",
		zap.String("mode", d.cfg.Detect.Mode),
		zap.Int("pixels", d.cfg.Camera.Pixels),
		zap.Duration("integration", d.cfg.Camera.Integration),
	)

	return nil
}

func (d *Local) start(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// Close stops capturing and closes the records channel.
func (d *Local) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()
	d.wg.Wait()
	d.connected = false
	d.closed = true
	close(d.records)

	if d.machine != nil {
		st := d.machine.Stats()
		d.log.Info("capture stopped",
			zap.Uint64("passes", d.window.Passes()),
			zap.Uint64("completed", st.Completed),
			zap.Uint64("overruns", st.Overruns),
			zap.Uint64("dropped", st.Dropped),
			zap.Uint64("conversions", st.Conversions),
		)
	}
	return nil
}

// Records returns the channel records are delivered on.
func (d *Local) Records() <-chan line.Record {
	return d.records
}

// SetIntegration reprograms the integration window.
func (d *Local) SetIntegration(t time.Duration) error {
	if d.window == nil {
		return ErrStreaming
	}
	if err := d.window.SetPeriod(t); err != nil {
		return err
	}
	d.log.Info("integration time changed", zap.Duration("integration", t))
	return nil
}

// IsConnected returns whether the device is capturing.
func (d *Local) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Stats returns the capture machine counters. A streaming capture only
// counts conversions.
func (d *Local) Stats() capture.Stats {
	if d.machine == nil {
		return capture.Stats{Conversions: d.latch.Conversions()}
	}
	return d.machine.Stats()
}

// analyse is the background loop picking up completed passes.
func (d *Local) analyse(ctx context.Context) {
	var lastOverruns uint64
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-d.machine.Frames():
			if _, _, _, err := d.rep.Handle(f); err != nil {
				d.log.Debug("report dropped", zap.Error(err))
			}
			if o := d.window.Overruns(); o != lastOverruns {
				d.log.Warn("integration window elapsed before the pass completed",
					zap.Uint64("overruns", o),
					zap.Uint64("pass", f.Pass),
				)
				lastOverruns = o
			}
		}
	}
}

// stream samples the converter at a fixed rate for band threshold detection.
func (d *Local) stream(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Camera.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.hw.Converter.Convert(d.latch)
			f := sample.Frame{Stamp: d.clock.Millis(), Values: []uint16{d.latch.Load()}}
			if _, _, _, err := d.rep.Handle(f); err != nil {
				d.log.Debug("report dropped", zap.Error(err))
			}
		}
	}
}
