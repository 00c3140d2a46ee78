package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntegrationOptions(t *testing.T) {
	tests := []struct {
		name       string
		pixels     int
		edgePeriod time.Duration
		want       []string
	}{
		{
			name:       "default camera",
			pixels:     128,
			edgePeriod: 10 * time.Microsecond,
			want:       []string{"5ms", "7.5ms", "10ms", "20ms", "50ms", "100ms"},
		},
		{
			name:       "short line reaches the shortest preset",
			pixels:     64,
			edgePeriod: 10 * time.Microsecond,
			want:       []string{"2.5ms", "5ms", "7.5ms", "10ms", "20ms", "50ms", "100ms"},
		},
		{
			name:       "slow clock drops short windows",
			pixels:     128,
			edgePeriod: 40 * time.Microsecond,
			want:       []string{"20ms", "50ms", "100ms"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, integrationOptions(tt.pixels, tt.edgePeriod))
		})
	}
}
