package imu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccelScale(t *testing.T) {
	// Full-scale counts map to the range limit in m/s^2.
	assert.InDelta(t, StandardGravity, AccelScale(0)*16384, 1e-12)
	assert.InDelta(t, 2*StandardGravity, AccelScale(1)*16384, 1e-12)
	assert.InDelta(t, 16*StandardGravity, AccelScale(3)*32768, 1e-10)
}

func TestGyroScale(t *testing.T) {
	// One LSB at the finest range is 1/131 of a degree per second.
	assert.InDelta(t, math.Pi/180, GyroScale(0)*131, 1e-12)
	assert.InDelta(t, math.Pi/180, GyroScale(1)*65.5, 1e-12)
}

func TestFromRaw(t *testing.T) {
	raw := Raw{Ax: 16384, Ay: 0, Az: -8192, Gx: 131, Gy: -262, Gz: 0}
	s := FromRaw(raw, 0, 0, 0.01)

	require.True(t, s.Valid)
	assert.InDelta(t, 0.01, s.Dt, 0)
	assert.InDelta(t, StandardGravity, s.Acc[0], 1e-10)
	assert.InDelta(t, 0, s.Acc[1], 0)
	assert.InDelta(t, -StandardGravity/2, s.Acc[2], 1e-10)
	assert.InDelta(t, math.Pi/180, s.Gyro[0], 1e-12)
	assert.InDelta(t, -2*math.Pi/180, s.Gyro[1], 1e-12)
}

func TestMockSource(t *testing.T) {
	src := NewMockSource(0.01)

	for i := 0; i < 10; i++ {
		s, err := src.Next()
		require.NoError(t, err)
		require.True(t, s.Valid)
		assert.InDelta(t, 0.01, s.Dt, 0)

		// Gravity-dominated specific force with a bounded wobble.
		assert.InDelta(t, StandardGravity, s.Acc[2], 1e-12)
		assert.LessOrEqual(t, math.Abs(s.Acc[0]), 0.2)
		assert.LessOrEqual(t, math.Abs(s.Acc[1]), 0.15)

		// Constant slow turn about z.
		assert.InDelta(t, 10*math.Pi/180, s.Gyro[2], 1e-12)
	}
}
