package orientation

import (
	"math"

	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

// Pose is the human-readable orientation used by the console, web and
// display apps: ZYX Euler angles in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// FromRotation extracts roll/pitch/yaw (ZYX convention) from a rotation.
// Near pitch = ±90° roll and yaw become coupled (gimbal lock); the values
// returned there are still a valid decomposition, just not a unique one.
func FromRotation(r spatial.Rot3) Pose {
	m := r.Matrix()

	sinPitch := -m.At(2, 0)
	if sinPitch > 1 {
		sinPitch = 1
	} else if sinPitch < -1 {
		sinPitch = -1
	}

	rollRad := math.Atan2(m.At(2, 1), m.At(2, 2))
	pitchRad := math.Asin(sinPitch)
	yawRad := math.Atan2(m.At(1, 0), m.At(0, 0))

	return Pose{
		Roll:  rollRad * 180.0 / math.Pi,
		Pitch: pitchRad * 180.0 / math.Pi,
		Yaw:   yawRad * 180.0 / math.Pi,
	}
}
