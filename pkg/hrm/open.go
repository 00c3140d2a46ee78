package hrm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/itohio/gohrm/pkg/config"
)

// Open creates the device selected by cfg.Camera.Backend. The device is
// not connected yet.
func Open(cfg *config.Config, log *zap.Logger) (Device, error) {
	switch cfg.Camera.Backend {
	case config.BackendSerial, "":
		return New(cfg.Serial.Port, cfg.Serial.BaudRate, DefaultBufferSize, log), nil
	case config.BackendMock:
		return NewMock(cfg, log)
	case config.BackendRPi:
		return openRPi(cfg, log)
	}
	return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalid, cfg.Camera.Backend)
}
