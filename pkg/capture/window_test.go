package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate(t *testing.T) {
	var g gate

	assert.False(t, g.active())
	assert.False(t, g.retire(), "retire on idle gate is a no-op")

	assert.True(t, g.fire(1))
	assert.True(t, g.active())
	assert.Equal(t, uint64(1), g.pass())
	assert.False(t, g.retire())
	assert.False(t, g.active())

	assert.True(t, g.fire(2))
	assert.False(t, g.fire(3))
	assert.Equal(t, uint64(2), g.pass(), "a window fired mid-pass must not rename it")
	assert.False(t, g.fire(4))
	assert.Equal(t, uint64(2), g.overruns.Load())
	assert.True(t, g.retire(), "pending window re-arms")
	assert.True(t, g.active())
	assert.Equal(t, uint64(4), g.pass())
	assert.False(t, g.retire())
	assert.False(t, g.active())
}

func TestValidateIntegration(t *testing.T) {
	tests := []struct {
		name   string
		d      time.Duration
		pixels int
		edge   time.Duration
		ok     bool
	}{
		{"default", DefaultIntegration, DefaultPixels, DefaultEdgePeriod, true},
		{"lower bound", MinIntegration, DefaultPixels, time.Microsecond, true},
		{"upper bound", MaxIntegration, DefaultPixels, DefaultEdgePeriod, true},
		{"too short", time.Millisecond, DefaultPixels, time.Microsecond, false},
		{"too long", 101 * time.Millisecond, DefaultPixels, DefaultEdgePeriod, false},
		{"pass does not fit", 2 * time.Millisecond, DefaultPixels, DefaultEdgePeriod, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIntegration(tt.d, tt.pixels, tt.edge)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInterval)
			}
		})
	}
}

func TestMinPassTime(t *testing.T) {
	assert.Equal(t, 2580*time.Microsecond, MinPassTime(DefaultPixels, DefaultEdgePeriod))
}

func TestWindow_SetPeriod(t *testing.T) {
	m, _ := newTestMachine(t, DefaultPixels)
	w, err := NewWindow(m, DefaultIntegration)
	require.NoError(t, err)

	require.NoError(t, w.SetPeriod(20*time.Millisecond))
	assert.Equal(t, 20*time.Millisecond, w.Period())

	assert.ErrorIs(t, w.SetPeriod(200*time.Millisecond), ErrInterval)
	assert.Equal(t, 20*time.Millisecond, w.Period(), "rejected period must not change the window")

	_, err = NewWindow(m, time.Millisecond)
	assert.ErrorIs(t, err, ErrInterval)
}

func TestWindow_FireArmsOnePass(t *testing.T) {
	m, _ := newTestMachine(t, 4)
	w, err := NewWindow(m, DefaultIntegration)
	require.NoError(t, err)

	assert.True(t, w.Fire())
	assert.False(t, w.Fire())
	assert.Equal(t, uint64(2), w.Passes())
	assert.Equal(t, uint64(1), w.Overruns())

	for !m.Edge() {
	}
	for !m.Edge() {
	}
	assert.False(t, m.Active())
	assert.Equal(t, uint64(1), (<-m.Frames()).Pass)
	assert.Equal(t, uint64(2), (<-m.Frames()).Pass)
}

func TestWindow_Resync(t *testing.T) {
	m, _ := newTestMachine(t, 4)

	even := false
	resyncs := 0
	w, err := NewWindow(m, DefaultIntegration, WithResync(
		func() bool {
			even = !even
			return even
		},
		func() { resyncs++ },
	))
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		w.Fire()
	}
	assert.Equal(t, 3, resyncs)
}

func TestWindow_RunWithBurstSource(t *testing.T) {
	m, err := NewMachine(8, NopPin{}, NopPin{}, &Latch{}, WithFrameBuffer(64))
	require.NoError(t, err)
	w, err := NewWindow(m, 2*time.Millisecond, WithEdgePeriod(time.Microsecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 2)
	go func() { done <- w.Run(ctx) }()
	go func() { done <- (&BurstSource{}).Run(ctx, m) }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.True(t, errors.Is(err, context.DeadlineExceeded))
		case <-time.After(2 * time.Second):
			t.Fatal("window or edge source did not stop")
		}
	}

	assert.Greater(t, w.Passes(), uint64(0))
	assert.Greater(t, m.Stats().Completed, uint64(0))
}

func TestWindow_RunAppliesNewPeriod(t *testing.T) {
	m, _ := newTestMachine(t, 4)
	w, err := NewWindow(m, MaxIntegration, WithEdgePeriod(time.Microsecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, w.SetPeriod(2*time.Millisecond))
	assert.Eventually(t, func() bool {
		return w.Passes() >= 5
	}, time.Second, time.Millisecond)
}

func TestTickerSource(t *testing.T) {
	m, err := NewMachine(2, NopPin{}, NopPin{}, &Latch{})
	require.NoError(t, err)
	src := NewTickerSource(50 * time.Microsecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx, m)

	require.True(t, m.Arm(1))
	src.Resync()

	select {
	case f := <-m.Frames():
		assert.Equal(t, uint64(1), f.Pass)
	case <-time.After(time.Second):
		t.Fatal("no frame from ticker source")
	}
	assert.Eventually(t, func() bool {
		return m.Stats().Ignored > 0
	}, time.Second, time.Millisecond, "ticker keeps delivering edges while disarmed")
}

func TestNewEdgeSource(t *testing.T) {
	src, err := NewEdgeSource(SourceTicker, time.Microsecond)
	require.NoError(t, err)
	assert.IsType(t, &TickerSource{}, src)

	src, err = NewEdgeSource(SourceBurst, 0)
	require.NoError(t, err)
	assert.IsType(t, &BurstSource{}, src)

	_, err = NewEdgeSource("pio", 0)
	assert.ErrorIs(t, err, ErrEdgeSource)
}

type fakeCalibrator struct {
	polls int
	after int
	err   error
}

func (c *fakeCalibrator) Calibrate() error { return c.err }

func (c *fakeCalibrator) Done() bool {
	c.polls++
	return c.polls > c.after
}

func TestWaitCalibrated(t *testing.T) {
	c := &fakeCalibrator{after: 3}
	require.NoError(t, WaitCalibrated(context.Background(), c, time.Millisecond))
	assert.Equal(t, 4, c.polls)

	boom := errors.New("boom")
	assert.ErrorIs(t, WaitCalibrated(context.Background(), &fakeCalibrator{err: boom}, 0), boom)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := WaitCalibrated(ctx, &fakeCalibrator{after: 1 << 30}, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLatch(t *testing.T) {
	var l Latch
	l.Store(10)
	l.Store(4095)
	assert.Equal(t, uint16(4095), l.Load())
	assert.Equal(t, uint64(2), l.Conversions())
}
