package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownsample_NoDownsampling(t *testing.T) {
	src := []float32{1.0, 1.1, 1.2}

	result := Downsample(nil, src, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, src, result)

	dst := make([]float32, 0, 10)
	result = Downsample(dst, src, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, src, result)
	assert.Equal(t, cap(dst), cap(result), "should reuse dst")
}

func TestDownsample_WithDownsampling(t *testing.T) {
	src := make([]float64, 100)
	for i := range src {
		src[i] = float64(i) * 0.01
	}

	dst := make([]float64, 0, 20)
	result := Downsample(dst, src, 10)
	require.Equal(t, 10, len(result))

	assert.Equal(t, src[0], result[0], "first element always kept")
	assert.GreaterOrEqual(t, result[len(result)-1], 0.8)
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_DestinationTooSmall(t *testing.T) {
	src := make([]uint16, 50)
	for i := range src {
		src[i] = uint16(i)
	}

	dst := make([]uint16, 0, 2)
	result := Downsample(dst, src, 5)
	require.Len(t, result, 5)
	assert.Equal(t, []uint16{0, 10, 20, 30, 40}, result)
}

func TestDownsample_ZeroMaxPointsCopiesAll(t *testing.T) {
	src := []int{1, 2, 3}
	result := Downsample(nil, src, 0)
	assert.Equal(t, src, result)
}

func TestDownsample_Frames(t *testing.T) {
	frames := []Frame{{Pass: 1}, {Pass: 2}, {Pass: 3}, {Pass: 4}}
	result := Downsample(nil, frames, 2)
	require.Len(t, result, 2)
	assert.Equal(t, uint64(1), result[0].Pass)
	assert.Equal(t, uint64(3), result[1].Pass)
}
