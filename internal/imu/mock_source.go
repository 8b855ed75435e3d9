// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package imu

import (
	"math"

	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

type mockSource struct {
	t    float64
	dt   float64
	rate spatial.Vec3
}

// NewMockSource creates a mock sample source that simulates a body resting
// under gravity while turning at a slow constant rate about z. Useful for
// demos without hardware and for integration sanity checks.
func NewMockSource(dt float64) Source {
	return &mockSource{
		dt:   dt,
		rate: spatial.Vec3{0, 0, 10 * math.Pi / 180},
	}
}

func (m *mockSource) Next() (Sample, error) {
	m.t += m.dt

	// Specific force cancels gravity exactly; add a small lateral wobble so
	// the velocity delta is not trivially zero.
	acc := spatial.Vec3{
		0.2 * math.Sin(m.t),
		0.15 * math.Cos(m.t*0.7),
		StandardGravity,
	}
	return Sample{
		Acc:   acc,
		Gyro:  m.rate,
		Dt:    m.dt,
		Valid: true,
	}, nil
}
