package imu

// Raw represents a single raw IMU sample in sensor counts.
type Raw struct {
	Source string `json:"source"`

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// RawSource is anything that can produce raw IMU samples.
type RawSource interface {
	ReadRaw() (Raw, error)
}
