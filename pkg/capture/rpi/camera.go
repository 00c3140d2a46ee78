//go:build linux

// Package rpi drives a linescan camera from Raspberry Pi GPIO, with the
// analog output read by an ADC0832 bit-banged on four more pins.
package rpi

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/gpio"
	"github.com/warthog618/gpio/spi/adc0832"

	"github.com/itohio/gohrm/pkg/capture"
)

// Bits is the ADC0832 conversion width.
const Bits = 8

// DefaultTClk is the ADC clock half period used when Config leaves it unset.
const DefaultTClk = 2500 * time.Nanosecond

// Pins holds BCM pin numbers.
type Pins struct {
	Clock      int
	Strobe     int
	LED        int
	ADCClock   int
	ADCSelect  int
	ADCDataIn  int
	ADCDataOut int
}

// Config configures a Camera.
type Config struct {
	Pins    Pins
	Channel int
	// ADC clock half period and mux settling time.
	TClk time.Duration
	TSet time.Duration
}

func (c Config) withDefaults() Config {
	if c.TClk <= 0 {
		c.TClk = DefaultTClk
	}
	if c.TSet <= 0 {
		c.TSet = c.TClk
	}
	return c
}

// Camera owns the GPIO pins of the camera and its ADC. It implements
// capture.Converter: a conversion is taken while the camera clock is low,
// which is the only level the capture machine latches on.
type Camera struct {
	clock  *gpio.Pin
	strobe *gpio.Pin
	led    *gpio.Pin
	adc    *adc0832.ADC0832
	ch     int

	mu   sync.Mutex
	high bool
}

// Open maps the GPIO block and configures all pins.
func Open(cfg Config) (*Camera, error) {
	cfg = cfg.withDefaults()
	if err := gpio.Open(); err != nil {
		return nil, fmt.Errorf("rpi: open gpio: %w", err)
	}

	c := &Camera{
		clock:  gpio.NewPin(cfg.Pins.Clock),
		strobe: gpio.NewPin(cfg.Pins.Strobe),
		led:    gpio.NewPin(cfg.Pins.LED),
		adc: adc0832.New(cfg.TClk, cfg.TSet,
			cfg.Pins.ADCClock, cfg.Pins.ADCSelect, cfg.Pins.ADCDataIn, cfg.Pins.ADCDataOut),
		ch: cfg.Channel,
	}
	for _, p := range []*gpio.Pin{c.clock, c.strobe} {
		p.Low()
		p.Output()
	}
	c.led.High()
	c.led.Output()

	return c, nil
}

// ClockPin returns the camera clock output.
func (c *Camera) ClockPin() capture.Pin {
	return clockPin{c}
}

// StrobePin returns the SI output.
func (c *Camera) StrobePin() capture.Pin {
	return c.strobe
}

// LEDPin returns the status LED output.
func (c *Camera) LEDPin() capture.Pin {
	return c.led
}

func (c *Camera) Convert(l *capture.Latch) {
	c.mu.Lock()
	high := c.high
	c.mu.Unlock()
	if high {
		return
	}
	l.Store(uint16(c.adc.Read(c.ch)))
}

// Close releases the pins and unmaps the GPIO block.
func (c *Camera) Close() error {
	c.adc.Close()
	c.clock.Input()
	c.strobe.Input()
	c.led.Input()
	return gpio.Close()
}

type clockPin struct {
	c *Camera
}

func (p clockPin) High() {
	p.c.mu.Lock()
	p.c.high = true
	p.c.mu.Unlock()
	p.c.clock.High()
}

func (p clockPin) Low() {
	p.c.mu.Lock()
	p.c.high = false
	p.c.mu.Unlock()
	p.c.clock.Low()
}
