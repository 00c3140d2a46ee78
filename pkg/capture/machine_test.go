package capture

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) pin(name string) Pin {
	return &recPin{name: name, r: r}
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type recPin struct {
	name string
	r    *recorder
}

func (p *recPin) High() { p.r.add(p.name + "+") }
func (p *recPin) Low()  { p.r.add(p.name + "-") }

// edgeCounter stores 100+k into the latch on the k-th edge.
func edgeCounter() (Converter, *int) {
	k := new(int)
	return ConverterFunc(func(l *Latch) {
		l.Store(uint16(100 + *k))
		*k++
	}), k
}

func newTestMachine(t *testing.T, pixels int, opts ...Option) (*Machine, *recorder) {
	t.Helper()
	rec := &recorder{}
	m, err := NewMachine(pixels, rec.pin("clk"), rec.pin("si"), &Latch{}, opts...)
	require.NoError(t, err)
	rec.reset()
	return m, rec
}

func TestNewMachine_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		pixels int
		clk    Pin
		si     Pin
		latch  *Latch
		err    error
	}{
		{"zero pixels", 0, NopPin{}, NopPin{}, &Latch{}, ErrPixels},
		{"one pixel", 1, NopPin{}, NopPin{}, &Latch{}, ErrPixels},
		{"negative pixels", -1, NopPin{}, NopPin{}, &Latch{}, ErrPixels},
		{"too many pixels", MaxPixels + 1, NopPin{}, NopPin{}, &Latch{}, ErrPixels},
		{"no clock", 8, nil, NopPin{}, &Latch{}, ErrNoPin},
		{"no strobe", 8, NopPin{}, nil, &Latch{}, ErrNoPin},
		{"no latch", 8, NopPin{}, NopPin{}, nil, ErrNoLatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMachine(tt.pixels, tt.clk, tt.si, tt.latch)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMachine_IgnoresEdgesWhileDisarmed(t *testing.T) {
	m, rec := newTestMachine(t, 8)

	for i := 0; i < 10; i++ {
		assert.False(t, m.Edge())
	}

	st := m.Stats()
	assert.Equal(t, uint64(10), st.Ignored)
	assert.Equal(t, uint64(0), st.Edges)
	assert.Empty(t, rec.snapshot(), "pins must not move while disarmed")
}

func TestMachine_PassTakesExactEdgeCount(t *testing.T) {
	for _, pixels := range []int{MinPixels, 8, DefaultPixels} {
		t.Run(fmt.Sprint(pixels), func(t *testing.T) {
			m, _ := newTestMachine(t, pixels)
			require.True(t, m.Arm(1))

			n := m.EdgesPerPass()
			assert.Equal(t, 2*pixels+2, n)
			for i := 0; i < n-1; i++ {
				require.False(t, m.Edge(), "edge %d completed the pass early", i)
			}
			assert.True(t, m.Edge())
			assert.False(t, m.Active())
			assert.Equal(t, preRoll, m.counter)

			// Next edge is ignored until rearmed.
			assert.False(t, m.Edge())
			assert.Equal(t, uint64(1), m.Stats().Ignored)
		})
	}
}

func TestMachine_EachElementLatchedOnce(t *testing.T) {
	conv, edges := edgeCounter()
	m, _ := newTestMachine(t, DefaultPixels, WithConverter(conv))

	require.True(t, m.Arm(7))
	for i := 0; i < m.EdgesPerPass(); i++ {
		m.Edge()
	}
	assert.Equal(t, m.EdgesPerPass(), *edges)
	assert.Equal(t, uint64(m.EdgesPerPass()), m.Stats().Conversions)

	frame := <-m.Frames()
	assert.Equal(t, uint64(7), frame.Pass)
	require.Len(t, frame.Values, DefaultPixels)
	// Element 0 is taken when SI drops (edge 3), element i on the falling
	// edge 2i+3.
	for i, v := range frame.Values {
		assert.Equal(t, uint16(100+2*i+3), v, "element %d", i)
	}
}

func TestMachine_StrobeSpansOneRisingEdge(t *testing.T) {
	m, rec := newTestMachine(t, 4)
	require.True(t, m.Arm(1))

	for i := 0; i < 4; i++ {
		m.Edge()
	}
	assert.Equal(t, []string{"clk+", "clk-", "si+", "clk+", "clk-", "si-"}, rec.snapshot())
}

func TestMachine_ClockLowAfterPass(t *testing.T) {
	m, rec := newTestMachine(t, 4)
	require.True(t, m.Arm(1))
	for i := 0; i < m.EdgesPerPass(); i++ {
		m.Edge()
	}

	ev := rec.snapshot()
	require.NotEmpty(t, ev)
	assert.Equal(t, "clk-", ev[len(ev)-1])

	highs := 0
	for _, e := range ev {
		if e == "clk+" {
			highs++
		}
	}
	assert.Equal(t, 4+1, highs)
}

func TestMachine_PendingWindowRearmsImmediately(t *testing.T) {
	m, _ := newTestMachine(t, 4)

	require.True(t, m.Arm(1))
	m.Edge()
	m.Edge()

	// Two windows elapse mid-pass: coalesced into one pending re-arm.
	assert.False(t, m.Arm(2))
	assert.False(t, m.Arm(3))
	assert.Equal(t, uint64(2), m.Stats().Overruns)

	for !m.Edge() {
	}
	assert.True(t, m.Active(), "pending window must re-arm at retire")
	select {
	case <-m.Armed():
	default:
		t.Fatal("armed signal not raised on re-arm")
	}

	for !m.Edge() {
	}
	assert.False(t, m.Active())

	first := <-m.Frames()
	second := <-m.Frames()
	assert.Equal(t, uint64(1), first.Pass)
	assert.Equal(t, uint64(3), second.Pass)
	assert.Equal(t, uint64(2), m.Stats().Completed)
}

func TestMachine_WindowBeforeFirstEdgeKeepsPassNumbers(t *testing.T) {
	m, _ := newTestMachine(t, 4)

	require.True(t, m.Arm(1))
	// The next window fires before the edge source delivered a single edge.
	assert.False(t, m.Arm(2))

	for !m.Edge() {
	}
	for !m.Edge() {
	}
	assert.False(t, m.Active())

	assert.Equal(t, uint64(1), (<-m.Frames()).Pass)
	assert.Equal(t, uint64(2), (<-m.Frames()).Pass)
	assert.Equal(t, uint64(1), m.Stats().Overruns)
}

func TestMachine_DropsFramesWhenReaderIsSlow(t *testing.T) {
	m, _ := newTestMachine(t, 2, WithFrameBuffer(1))

	for pass := uint64(1); pass <= 3; pass++ {
		require.True(t, m.Arm(pass))
		for !m.Edge() {
		}
	}

	st := m.Stats()
	assert.Equal(t, uint64(3), st.Completed)
	assert.Equal(t, uint64(2), st.Dropped)
	assert.Equal(t, uint64(1), (<-m.Frames()).Pass)
}

func TestMachine_FrameStamp(t *testing.T) {
	clk := &ManualClock{}
	clk.Set(1234)
	m, _ := newTestMachine(t, 2, WithClock(clk))

	require.True(t, m.Arm(1))
	for !m.Edge() {
	}
	assert.Equal(t, uint64(1234), (<-m.Frames()).Stamp)
}

func TestMachine_ConcurrentArm(t *testing.T) {
	m, _ := newTestMachine(t, 8, WithFrameBuffer(1024))

	const fires = 200
	var armed atomic.Uint64
	stop := make(chan struct{})
	go func() {
		for pass := uint64(1); pass <= fires; pass++ {
			if m.Arm(pass) {
				armed.Add(1)
			}
		}
		close(stop)
	}()

	for running := true; running; {
		select {
		case <-stop:
			running = false
		default:
		}
		m.Edge()
	}
	for m.Active() {
		m.Edge()
	}

	st := m.Stats()
	// Every fire either armed an idle machine or was counted as an overrun.
	assert.Equal(t, uint64(fires), armed.Load()+st.Overruns)
	assert.GreaterOrEqual(t, st.Completed, armed.Load())
	assert.LessOrEqual(t, st.Completed, uint64(fires))
	assert.Equal(t, st.Completed*uint64(m.EdgesPerPass()), st.Edges)

	var last uint64
	for i := uint64(0); i < st.Completed; i++ {
		f := <-m.Frames()
		assert.Len(t, f.Values, 8)
		assert.Greater(t, f.Pass, last)
		last = f.Pass
	}
}
