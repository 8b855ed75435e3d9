package imu

import (
	"math"

	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

// StandardGravity is the conventional value used to convert accelerometer
// counts to m/s^2 and to remove gravity from stationary readings.
const StandardGravity = 9.80665 // m/s^2

// Sample is one calibrated IMU reading in physical units, ready for
// preintegration: linear acceleration in m/s^2, angular velocity in rad/s,
// and the interval since the previous sample in seconds.
type Sample struct {
	Acc   spatial.Vec3 `json:"acc"`
	Gyro  spatial.Vec3 `json:"gyro"`
	Dt    float64      `json:"dt"`
	Valid bool         `json:"valid"`
}

// Source is anything that can provide calibrated samples over time: the real
// MPU9250 reader, the mock trajectory source, or a replay source from file.
type Source interface {
	Next() (Sample, error)
}

// AccelScale returns m/s^2 per LSB for an MPU9250 accel range setting
// (0=±2g, 1=±4g, 2=±8g, 3=±16g).
func AccelScale(rangeSetting byte) float64 {
	lsbPerG := []float64{16384, 8192, 4096, 2048}[rangeSetting&3]
	return StandardGravity / lsbPerG
}

// GyroScale returns rad/s per LSB for an MPU9250 gyro range setting
// (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s).
func GyroScale(rangeSetting byte) float64 {
	lsbPerDps := []float64{131, 65.5, 32.8, 16.4}[rangeSetting&3]
	return (math.Pi / 180) / lsbPerDps
}

// FromRaw converts a raw count sample to physical units.
func FromRaw(r Raw, accelRange, gyroRange byte, dt float64) Sample {
	as := AccelScale(accelRange)
	gs := GyroScale(gyroRange)
	return Sample{
		Acc:   spatial.Vec3{as * float64(r.Ax), as * float64(r.Ay), as * float64(r.Az)},
		Gyro:  spatial.Vec3{gs * float64(r.Gx), gs * float64(r.Gy), gs * float64(r.Gz)},
		Dt:    dt,
		Valid: true,
	}
}
