// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package app

import (
	"fmt"
	"time"

	"github.com/relabs-tech/inertial_navigator/internal/imu"
	"github.com/relabs-tech/inertial_navigator/internal/orientation"
	"github.com/relabs-tech/inertial_navigator/internal/preintegration"
)

// RunMockConsole integrates the mock IMU source and prints the evolving
// deltas. No hardware and no broker, just the integration core end to end.
func RunMockConsole() error {
	const dt = 0.01 // 100 Hz, matches the producer default

	src := imu.NewMockSource(dt)
	params := preintegration.NewParams(0.02, 0.002, 1e-4)
	pim := preintegration.New(preintegration.Bias{}, params)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		// Ten samples per tick keeps simulated time at wall speed.
		for i := 0; i < 10; i++ {
			sample, err := src.Next()
			if err != nil {
				return err
			}
			if err := pim.IntegrateMeasurement(sample.Acc, sample.Gyro, sample.Dt); err != nil {
				return err
			}
		}

		pose := orientation.FromRotation(pim.DeltaR())
		dV := pim.DeltaV()
		dP := pim.DeltaP()

		fmt.Printf(
			"t=%6.2f  ROLL=%6.2f PITCH=%6.2f YAW=%7.2f  dV=(%6.2f %6.2f %6.2f)  dP=(%7.2f %7.2f %7.2f)\n",
			pim.DeltaT(),
			pose.Roll, pose.Pitch, pose.Yaw,
			dV[0], dV[1], dV[2],
			dP[0], dP[1], dP[2],
		)
	}
	return nil
}
