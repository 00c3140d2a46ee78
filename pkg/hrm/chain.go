package hrm

import (
	"go.uber.org/zap"

	"github.com/itohio/gohrm/pkg/monitor"
	"github.com/itohio/gohrm/pkg/telemetry/line"
)

// Chain is a running device → converter → monitor pipeline.
type Chain struct {
	dev  Device
	done chan struct{}
}

// Start connects dev and feeds its frames into mon until the chain is
// closed. Rate records computed by the device go to onRate, which may be nil.
func Start(dev Device, mon *monitor.Monitor, log *zap.Logger, onRate func(line.Record)) (*Chain, error) {
	if err := dev.Connect(); err != nil {
		return nil, err
	}

	// Re-enable callbacks and clear the previous chain's analysis.
	mon.ResetShutdown()

	frames := NewConverter(500, log, onRate)(dev.Records())
	c := &Chain{dev: dev, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		mon.ProcessFrames(frames)
	}()
	return c, nil
}

// Device returns the device the chain reads from.
func (c *Chain) Device() Device {
	return c.dev
}

// Close closes the device and waits until the monitor drained the frames
// that were still in flight.
func (c *Chain) Close() error {
	err := c.dev.Close()
	<-c.done
	return err
}

// Done is closed once the monitor has stopped.
func (c *Chain) Done() <-chan struct{} {
	return c.done
}
