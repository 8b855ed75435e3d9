package preintegration

import (
	"time"

	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

// Summary is the wire form of a finished preintegration interval: a plain
// structural dump of the deltas and covariance, suitable for JSON over MQTT.
type Summary struct {
	Time        string  `json:"time"` // RFC3339 publish time
	DeltaT      float64 `json:"delta_t"`
	SampleCount int     `json:"sample_count"`

	// Rotation delta as a row-major 3x3 matrix, then the vector deltas.
	DeltaR [9]float64 `json:"delta_r"`
	DeltaV [3]float64 `json:"delta_v"`
	DeltaP [3]float64 `json:"delta_p"`

	// Bias removed during integration.
	BiasAcc  [3]float64 `json:"bias_acc"`
	BiasGyro [3]float64 `json:"bias_gyro"`

	// Full 9x9 covariance, row-major, over (position, velocity, rotation)
	// error.
	Covariance [81]float64 `json:"covariance"`
}

// Summarize snapshots a preintegrator for publishing.
func Summarize(p *Preintegrator, sampleCount int, at time.Time) Summary {
	s := Summary{
		Time:        at.Format(time.RFC3339Nano),
		DeltaT:      p.DeltaT(),
		SampleCount: sampleCount,
		DeltaR:      [9]float64(p.DeltaR().Matrix()),
		DeltaV:      [3]float64(p.DeltaV()),
		DeltaP:      [3]float64(p.DeltaP()),
		BiasAcc:     [3]float64(p.BiasHat().Acc),
		BiasGyro:    [3]float64(p.BiasHat().Gyro),
	}
	cov := p.Covariance()
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			s.Covariance[9*i+j] = cov.At(i, j)
		}
	}
	return s
}

// RotationDelta rebuilds the rotation delta value from the wire form.
func (s Summary) RotationDelta() spatial.Rot3 {
	return spatial.RotFromMatrix(spatial.Mat3(s.DeltaR))
}

// CovarianceTrace is the total variance across the nine error dimensions,
// a cheap scalar health signal for consoles and displays.
func (s Summary) CovarianceTrace() float64 {
	var tr float64
	for i := 0; i < 9; i++ {
		tr += s.Covariance[9*i+i]
	}
	return tr
}
