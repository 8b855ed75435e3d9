package preintegration

import (
	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

// Params holds the continuous-time process noise of one IMU, as 3x3 spectral
// density blocks, plus the integration options.
type Params struct {
	// IntegrationCov models the error of the numeric position integration
	// itself (continuous-time spectral density, (m/s^2)^2 / Hz).
	IntegrationCov spatial.Mat3
	// AccCov is the accelerometer white-noise density.
	AccCov spatial.Mat3
	// GyroCov is the gyroscope white-noise density.
	GyroCov spatial.Mat3

	// SecondOrderIntegration adds the 1/2 * R * a * dt^2 term to the
	// position delta update.
	SecondOrderIntegration bool

	// BodyPSensor is the fixed sensor-to-body transform, nil when the IMU
	// frame coincides with the body frame.
	BodyPSensor *spatial.Pose3
}

// NewParams builds isotropic Params from per-axis standard deviations, the
// way they are quoted on IMU datasheets and in the config file.
func NewParams(accSigma, gyroSigma, integrationSigma float64) Params {
	return Params{
		IntegrationCov: spatial.Identity3().Scale(integrationSigma * integrationSigma),
		AccCov:         spatial.Identity3().Scale(accSigma * accSigma),
		GyroCov:        spatial.Identity3().Scale(gyroSigma * gyroSigma),
	}
}

// measurementCovariance assembles the 9x9 block-diagonal continuous-time
// noise matrix over the (position, velocity, rotation) error state.
func (p Params) measurementCovariance() *mat.Dense {
	q := mat.NewDense(9, 9, nil)
	setBlock(q, 0, 0, p.IntegrationCov)
	setBlock(q, 3, 3, p.AccCov)
	setBlock(q, 6, 6, p.GyroCov)
	return q
}

// setBlock copies a 3x3 block into m at (row, col).
func setBlock(m *mat.Dense, row, col int, b spatial.Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(row+i, col+j, b.At(i, j))
		}
	}
}
