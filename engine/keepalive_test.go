package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeepalive_FiresOnNthTimeout(t *testing.T) {
	k := NewKeepaliveCounter(3)

	// Two quiet windows, the third fires
	assert.False(t, k.Tick())
	assert.False(t, k.Tick())
	assert.True(t, k.Tick())

	// Rearmed; the cycle repeats
	assert.False(t, k.Tick())
	assert.False(t, k.Tick())
	assert.True(t, k.Tick())
}

func TestKeepalive_FrequencyOneFiresEveryTime(t *testing.T) {
	k := NewKeepaliveCounter(1)

	for i := 0; i < 5; i++ {
		assert.True(t, k.Tick(), "tick %d", i)
	}
}

func TestKeepalive_ZeroDisables(t *testing.T) {
	k := NewKeepaliveCounter(0)

	assert.False(t, k.Enabled())
	for i := 0; i < 10; i++ {
		assert.False(t, k.Tick(), "tick %d", i)
	}
}

func TestKeepalive_ResetRearms(t *testing.T) {
	k := NewKeepaliveCounter(3)

	assert.False(t, k.Tick())
	assert.False(t, k.Tick())
	assert.Equal(t, 1, k.Remaining())

	// A full resync from another trigger pushes the next periodic one
	// out by the full frequency again
	k.Reset()
	assert.Equal(t, 3, k.Remaining())

	assert.False(t, k.Tick())
	assert.False(t, k.Tick())
	assert.True(t, k.Tick())
}

func TestKeepalive_Remaining(t *testing.T) {
	k := NewKeepaliveCounter(2)
	assert.Equal(t, 2, k.Remaining())
	assert.True(t, k.Enabled())

	k.Tick()
	assert.Equal(t, 1, k.Remaining())

	k.Tick()
	assert.Equal(t, 2, k.Remaining())
}
