//go:build !linux

package hrm

import (
	"errors"

	"go.uber.org/zap"

	"github.com/itohio/gohrm/pkg/config"
)

var ErrNoGPIO = errors.New("raspberry pi backend is only available on linux")

func openRPi(*config.Config, *zap.Logger) (Device, error) {
	return nil, ErrNoGPIO
}
