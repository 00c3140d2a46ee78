package scope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppendHistory(t *testing.T) {
	tests := []struct {
		name   string
		stamps []uint64
		window uint64
		want   []uint64
	}{
		{"keeps everything without window", []uint64{0, 1000, 50000}, 0, []uint64{0, 1000, 50000}},
		{"keeps points inside window", []uint64{0, 1000, 2000}, 30000, []uint64{0, 1000, 2000}},
		{"drops points older than window", []uint64{0, 1000, 20000, 31500}, 30000, []uint64{20000, 31500}},
		{"cutoff is inclusive", []uint64{1000, 31000}, 30000, []uint64{1000, 31000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h []Point
			for _, s := range tt.stamps {
				h = AppendHistory(h, Point{Stamp: s}, tt.window)
			}
			got := make([]uint64, 0, len(h))
			for _, p := range h {
				got = append(got, p.Stamp)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.149V", formatVoltage(1.149))
	assert.Equal(t, "0.25s", formatTime(250*time.Millisecond))
	assert.Equal(t, "12.5s", formatTime(12500*time.Millisecond))
}
