//go:build tinygo

package main

import (
	"machine"
	"time"
)

const (
	// Camera
	PIXELS      = 128
	INTEGRATION = 7500 * time.Microsecond // Initial integration window
	EDGE_PERIOD = 10 * time.Microsecond   // Half a camera clock period

	// Detection
	STREAMING       = false                // Sample a single photodiode instead of the camera
	SAMPLE_INTERVAL = 4 * time.Millisecond // Streaming sample period
	REPORT_EVERY    = 500                  // Passes between two reports

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)
	ADC_VREF         = 3.3

	// Camera pins
	PIN_CLK = machine.D2
	PIN_SI  = machine.D3
	PIN_LED = machine.LED

	// ADC pin (camera AO or photodiode amplifier)
	PIN_ADC = machine.A1

	// Serial configuration
	// A 128 pixel frame line is ~650 bytes. At 7.5ms windows and one
	// report every 500 passes that is under 200 bytes/sec, far below what
	// 115200 baud carries.
	UART_BAUD_RATE = 115200
)
