package orientation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

func TestFromRotation(t *testing.T) {
	deg := math.Pi / 180

	cases := []struct {
		name             string
		roll, pitch, yaw float64 // degrees
	}{
		{"identity", 0, 0, 0},
		{"pure roll", 30, 0, 0},
		{"pure pitch", 0, -45, 0},
		{"pure yaw", 0, 0, 120},
		{"combined", 10, 20, -75},
		{"negative combined", -25, 15, 179},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := spatial.RotRPY(tc.roll*deg, tc.pitch*deg, tc.yaw*deg)
			pose := FromRotation(r)
			assert.InDelta(t, tc.roll, pose.Roll, 1e-10)
			assert.InDelta(t, tc.pitch, pose.Pitch, 1e-10)
			assert.InDelta(t, tc.yaw, pose.Yaw, 1e-10)
		})
	}
}

func TestFromRotationGimbalLock(t *testing.T) {
	// pitch = 90 degrees: the decomposition must stay finite and reproduce
	// the rotation even though roll/yaw are not unique there.
	r := spatial.RotRPY(0, math.Pi/2, 0)
	pose := FromRotation(r)
	assert.InDelta(t, 90, pose.Pitch, 1e-9)
	assert.False(t, math.IsNaN(pose.Roll))
	assert.False(t, math.IsNaN(pose.Yaw))
}
