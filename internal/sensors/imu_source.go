// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_navigator/internal/config"
	"github.com/relabs-tech/inertial_navigator/internal/imu"
)

type imuSource struct {
	name       string
	dev        *mpu9250.MPU9250
	accelRange byte
	gyroRange  byte
	last       time.Time
}

// NewIMUSource initializes the MPU9250 over SPI per the loaded config and
// returns a calibrated sample source for the preintegration pipeline.
func NewIMUSource() (imu.Source, error) {
	cfg := config.Get()
	return newIMUSource("imu", cfg.IMUSPIDevice, cfg.IMUCSPin)
}

func newIMUSource(name, spiDev, csPin string) (imu.Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s: periph host init: %w", name, err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("%s: CS pin %q not found", name, csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("%s: SPI transport (%s): %w", name, spiDev, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("%s: device creation: %w", name, err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%s: initialization: %w", name, err)
	}

	cfg := config.Get()
	if err := dev.SetAccelRange(cfg.IMUAccelRange); err != nil {
		return nil, fmt.Errorf("%s: set accel range: %w", name, err)
	}
	log.Printf("%s: accelerometer range set to %d (±%dg)", name, cfg.IMUAccelRange, []int{2, 4, 8, 16}[cfg.IMUAccelRange])

	if err := dev.SetGyroRange(cfg.IMUGyroRange); err != nil {
		return nil, fmt.Errorf("%s: set gyro range: %w", name, err)
	}
	log.Printf("%s: gyroscope range set to %d (±%d°/s)", name, cfg.IMUGyroRange, []int{250, 500, 1000, 2000}[cfg.IMUGyroRange])

	if err := dev.SetDLPFMode(cfg.IMUDLPFConfig); err != nil {
		return nil, fmt.Errorf("%s: set DLPF config: %w", name, err)
	}
	if err := dev.SetSampleRateDivider(cfg.IMUSampleRateDiv); err != nil {
		return nil, fmt.Errorf("%s: set sample rate divider: %w", name, err)
	}
	internalRate := 1000 // 1kHz for DLPF modes 0-6
	if cfg.IMUDLPFConfig == 7 {
		internalRate = 8000 // 8kHz when DLPF disabled
	}
	log.Printf("%s: output rate %d Hz", name, internalRate/(1+int(cfg.IMUSampleRateDiv)))

	// Self-test and on-device calibration are non-fatal; the bias estimate
	// from the calibration session covers what they miss.
	if testResult, err := dev.SelfTest(); err != nil {
		log.Printf("warning: %s self-test failed: %v", name, err)
	} else {
		log.Printf("%s self-test passed:", name)
		log.Printf("  accelerometer deviation: X: %.2f%%, Y: %.2f%%, Z: %.2f%%",
			testResult.AccelDeviation.X, testResult.AccelDeviation.Y, testResult.AccelDeviation.Z)
		log.Printf("  gyroscope deviation: X: %.2f%%, Y: %.2f%%, Z: %.2f%%",
			testResult.GyroDeviation.X, testResult.GyroDeviation.Y, testResult.GyroDeviation.Z)
	}
	if err := dev.Calibrate(); err != nil {
		log.Printf("warning: %s calibration failed: %v", name, err)
	}

	return &imuSource{
		name:       name,
		dev:        dev,
		accelRange: cfg.IMUAccelRange,
		gyroRange:  cfg.IMUGyroRange,
	}, nil
}

// ReadRaw reads one accelerometer + gyroscope sample in sensor counts.
func (s *imuSource) ReadRaw() (imu.Raw, error) {
	ax, err := s.dev.GetAccelerationX()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("%s accel X: %w", s.name, err)
	}
	ay, err := s.dev.GetAccelerationY()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("%s accel Y: %w", s.name, err)
	}
	az, err := s.dev.GetAccelerationZ()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("%s accel Z: %w", s.name, err)
	}

	gx, err := s.dev.GetRotationX()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("%s gyro X: %w", s.name, err)
	}
	gy, err := s.dev.GetRotationY()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("%s gyro Y: %w", s.name, err)
	}
	gz, err := s.dev.GetRotationZ()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("%s gyro Z: %w", s.name, err)
	}

	return imu.Raw{
		Source: s.name,
		Ax:     ax, Ay: ay, Az: az,
		Gx: gx, Gy: gy, Gz: gz,
	}, nil
}

// Next reads one sample and converts it to physical units, stamping dt from
// the wall clock. The first sample after startup reports the configured
// nominal interval since there is no previous read to difference against.
func (s *imuSource) Next() (imu.Sample, error) {
	raw, err := s.ReadRaw()
	if err != nil {
		return imu.Sample{}, err
	}

	now := time.Now()
	dt := float64(config.Get().IMUSampleInterval) / 1000.0
	if !s.last.IsZero() {
		dt = now.Sub(s.last).Seconds()
	}
	s.last = now

	return imu.FromRaw(raw, s.accelRange, s.gyroRange, dt), nil
}
