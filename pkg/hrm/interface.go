package hrm

import (
	"time"

	"github.com/itohio/gohrm/pkg/telemetry/line"
)

// Device defines the interface for heart rate monitor devices (serial,
// in-process or mocked).
type Device interface {
	Connect() error
	Close() error
	Records() <-chan line.Record
	SetIntegration(d time.Duration) error
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Local implements Device.
var _ Device = (*Local)(nil)
