//go:build linux

package rpi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_WithDefaults(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		tclk time.Duration
		tset time.Duration
	}{
		{"unset", Config{}, DefaultTClk, DefaultTClk},
		{"clock only", Config{TClk: time.Microsecond}, time.Microsecond, time.Microsecond},
		{"both", Config{TClk: time.Microsecond, TSet: 3 * time.Microsecond}, time.Microsecond, 3 * time.Microsecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.cfg.withDefaults()
			assert.Equal(t, tt.tclk, c.TClk)
			assert.Equal(t, tt.tset, c.TSet)
		})
	}
}
