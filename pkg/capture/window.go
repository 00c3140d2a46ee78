package capture

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

const (
	MinIntegration     = 1250 * time.Microsecond
	MaxIntegration     = 100 * time.Millisecond
	DefaultIntegration = 7500 * time.Microsecond
	// DefaultEdgePeriod is the spacing between two clock edges (half a
	// camera clock period).
	DefaultEdgePeriod = 10 * time.Microsecond
)

// MinPassTime returns how long one complete capture pass takes when edges
// arrive every edgePeriod.
func MinPassTime(pixels int, edgePeriod time.Duration) time.Duration {
	return time.Duration(2*pixels-preRoll) * edgePeriod
}

// ValidateIntegration checks d against the integration bounds. The window
// must also be long enough for a full pass to fit into it.
func ValidateIntegration(d time.Duration, pixels int, edgePeriod time.Duration) error {
	lo := max(MinIntegration, MinPassTime(pixels, edgePeriod))
	if d < lo || d > MaxIntegration {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrInterval, d, lo, MaxIntegration)
	}
	return nil
}

// Window is the integration window timer. Each Fire arms the capture
// machine for exactly one pass and advances the pass counter used for the
// reporting cadence. It never touches the line buffer.
type Window struct {
	m          *Machine
	edgePeriod time.Duration
	period     atomic.Int64
	passes     atomic.Uint64
	changed    chan struct{}

	resyncWhen func() bool
	resync     func()
}

// WindowOption configures a Window.
type WindowOption func(*Window)

// WithEdgePeriod sets the edge spacing used to validate integration times.
func WithEdgePeriod(d time.Duration) WindowOption {
	return func(w *Window) {
		if d > 0 {
			w.edgePeriod = d
		}
	}
}

// WithResync calls fn on every fire for which when() reports true.
// Typically when is bound to the detector parity and fn realigns the edge
// source with the window.
func WithResync(when func() bool, fn func()) WindowOption {
	return func(w *Window) {
		w.resyncWhen = when
		w.resync = fn
	}
}

// NewWindow creates a window timer for m with the given integration period.
func NewWindow(m *Machine, period time.Duration, opts ...WindowOption) (*Window, error) {
	w := &Window{
		m:          m,
		edgePeriod: DefaultEdgePeriod,
		changed:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := ValidateIntegration(period, m.Pixels(), w.edgePeriod); err != nil {
		return nil, err
	}
	w.period.Store(int64(period))
	return w, nil
}

// Period returns the current integration time.
func (w *Window) Period() time.Duration {
	return time.Duration(w.period.Load())
}

// SetPeriod reprograms the integration time. Out of range values are
// rejected and the current period is kept.
func (w *Window) SetPeriod(d time.Duration) error {
	if err := ValidateIntegration(d, w.m.Pixels(), w.edgePeriod); err != nil {
		return err
	}
	w.period.Store(int64(d))
	select {
	case w.changed <- struct{}{}:
	default:
	}
	return nil
}

// Passes returns how many windows fired so far.
func (w *Window) Passes() uint64 {
	return w.passes.Load()
}

// Overruns returns how many windows elapsed before the previous pass retired.
func (w *Window) Overruns() uint64 {
	return w.m.gate.overruns.Load()
}

// Fire handles one window expiry. Returns true when it armed an idle machine.
func (w *Window) Fire() bool {
	pass := w.passes.Add(1)
	if w.resync != nil && (w.resyncWhen == nil || w.resyncWhen()) {
		w.resync()
	}
	return w.m.Arm(pass)
}

// Run fires the window periodically until ctx is done.
func (w *Window) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.changed:
			ticker.Reset(w.Period())
		case <-ticker.C:
			w.Fire()
		}
	}
}
