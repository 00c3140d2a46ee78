package capture

import (
	"sync"
	"sync/atomic"
)

// gate states
const (
	gateIdle    int32 = iota // disarmed, waiting for the next window
	gateRunning              // pass in flight
	gatePending              // pass in flight and the next window already fired
)

// gate is the two-phase handshake between the window timer and the capture
// machine. The window arms, the machine retires; a pass never starts
// before the previous one retired and the two sides never both arm.
//
// The gate also carries pass numbers. current is written only on the
// idle to running transition and on a pending re-arm; next is staged by
// windows that fire while a pass is in flight.
type gate struct {
	state    atomic.Int32
	overruns atomic.Uint64

	mu      sync.Mutex // serialises fire
	current atomic.Uint64
	next    atomic.Uint64
}

// fire records a new window for pass. Returns true when it armed an idle
// machine. A window that fires while a pass is in flight is kept pending
// and counted as an overrun; the latest such window names the next pass.
func (g *gate) fire(pass uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		switch s := g.state.Load(); s {
		case gateIdle:
			g.current.Store(pass)
			if g.state.CompareAndSwap(gateIdle, gateRunning) {
				return true
			}
		case gateRunning:
			g.next.Store(pass)
			if g.state.CompareAndSwap(gateRunning, gatePending) {
				g.overruns.Add(1)
				return false
			}
		default:
			g.next.Store(pass)
			g.overruns.Add(1)
			return false
		}
	}
}

// retire ends the current pass. Returns true when a pending window
// re-armed the machine immediately; its pass number becomes current.
func (g *gate) retire() bool {
	for {
		switch s := g.state.Load(); s {
		case gatePending:
			next := g.next.Load()
			if g.state.CompareAndSwap(gatePending, gateRunning) {
				g.current.Store(next)
				return true
			}
		case gateRunning:
			if g.state.CompareAndSwap(gateRunning, gateIdle) {
				return false
			}
		default:
			return false
		}
	}
}

func (g *gate) active() bool {
	return g.state.Load() != gateIdle
}

// pass returns the number of the armed pass.
func (g *gate) pass() uint64 {
	return g.current.Load()
}
