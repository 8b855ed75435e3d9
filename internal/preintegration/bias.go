// Package preintegration summarizes a stream of high-rate IMU samples taken
// between two instants into relative motion deltas (rotation, velocity,
// position), their first-order sensitivity to the bias estimate used during
// integration, and a propagated 9x9 covariance of the deltas. The summary is
// what the factor package turns into an optimizer constraint.
package preintegration

import "github.com/relabs-tech/inertial_navigator/internal/spatial"

// Bias is a constant accelerometer/gyroscope bias pair, assumed fixed over
// one preintegration interval. The estimator that owns the bias lives
// outside this package; we only ever subtract it.
type Bias struct {
	Acc  spatial.Vec3 `json:"acc"`  // m/s^2
	Gyro spatial.Vec3 `json:"gyro"` // rad/s
}

// CorrectAcc removes the accelerometer bias from a measurement.
func (b Bias) CorrectAcc(acc spatial.Vec3) spatial.Vec3 {
	return acc.Sub(b.Acc)
}

// CorrectGyro removes the gyroscope bias from a measurement.
func (b Bias) CorrectGyro(omega spatial.Vec3) spatial.Vec3 {
	return omega.Sub(b.Gyro)
}

// Sub returns the componentwise difference b - o, used for first-order
// re-linearization when the bias estimate has drifted since integration.
func (b Bias) Sub(o Bias) Bias {
	return Bias{
		Acc:  b.Acc.Sub(o.Acc),
		Gyro: b.Gyro.Sub(o.Gyro),
	}
}
