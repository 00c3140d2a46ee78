package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	SourceTicker = "ticker"
	SourceBurst  = "burst"
)

var ErrEdgeSource = errors.New("capture: unknown edge source")

// EdgeSource delivers clock-edge events to a machine until ctx is done.
type EdgeSource interface {
	Run(ctx context.Context, m *Machine) error
}

// NewEdgeSource picks an edge source by name.
func NewEdgeSource(kind string, period time.Duration) (EdgeSource, error) {
	switch kind {
	case SourceTicker:
		return NewTickerSource(period), nil
	case SourceBurst, "":
		return &BurstSource{Delay: period}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrEdgeSource, kind)
}

// TickerSource delivers edges at a fixed period whether the machine is
// armed or not. Edges arriving while disarmed are ignored by the machine.
type TickerSource struct {
	period time.Duration
	resync chan struct{}
}

func NewTickerSource(period time.Duration) *TickerSource {
	if period <= 0 {
		period = DefaultEdgePeriod
	}
	return &TickerSource{
		period: period,
		resync: make(chan struct{}, 1),
	}
}

// Resync restarts the edge ticker so that its phase lines up with the
// caller. Safe to call from any goroutine.
func (s *TickerSource) Resync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

func (s *TickerSource) Run(ctx context.Context, m *Machine) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.resync:
			ticker.Reset(s.period)
		case <-ticker.C:
			m.Edge()
		}
	}
}

// minSleep is the shortest lead a BurstSource sleeps off. Shorter leads
// are carried over to the next edge.
const minSleep = time.Millisecond

// BurstSource runs edges back to back while a pass is in flight and sleeps
// on the machine's armed signal otherwise.
type BurstSource struct {
	// Average delay between two edges. Zero runs them as fast as possible.
	Delay time.Duration
}

func (s *BurstSource) Run(ctx context.Context, m *Machine) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.Armed():
		}

		start := time.Now()
		for n := 1; m.Active(); n++ {
			m.Edge()
			if s.Delay <= 0 {
				continue
			}
			if lead := time.Until(start.Add(time.Duration(n) * s.Delay)); lead >= minSleep {
				time.Sleep(lead)
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
