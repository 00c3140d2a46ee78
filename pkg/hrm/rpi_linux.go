//go:build linux

package hrm

import (
	"go.uber.org/zap"

	"github.com/itohio/gohrm/pkg/capture/rpi"
	"github.com/itohio/gohrm/pkg/config"
)

// RPi is a Local device driving the camera from Raspberry Pi GPIO.
type RPi struct {
	*Local
	cam *rpi.Camera
}

// NewRPi opens the GPIO pins named in cfg and builds the capture path on them.
// The ADC width is forced to that of the ADC0832.
func NewRPi(cfg *config.Config, log *zap.Logger) (*RPi, error) {
	cam, err := rpi.Open(cameraConfig(cfg.Camera.RPi))
	if err != nil {
		return nil, err
	}

	c := *cfg
	c.Camera.ADCBits = rpi.Bits
	local, err := NewLocal(&c, Hardware{
		Clock:     cam.ClockPin(),
		Strobe:    cam.StrobePin(),
		LED:       cam.LEDPin(),
		Converter: cam,
	}, log)
	if err != nil {
		cam.Close()
		return nil, err
	}
	return &RPi{Local: local, cam: cam}, nil
}

func cameraConfig(p config.RPiConfig) rpi.Config {
	return rpi.Config{
		Pins: rpi.Pins{
			Clock:      p.Clock,
			Strobe:     p.Strobe,
			LED:        p.LED,
			ADCClock:   p.ADCClock,
			ADCSelect:  p.ADCSelect,
			ADCDataIn:  p.ADCDataIn,
			ADCDataOut: p.ADCDataOut,
		},
		Channel: p.ADCChannel,
	}
}

func (d *RPi) Close() error {
	if err := d.Local.Close(); err != nil {
		return err
	}
	return d.cam.Close()
}

func openRPi(cfg *config.Config, log *zap.Logger) (Device, error) {
	return NewRPi(cfg, log)
}
