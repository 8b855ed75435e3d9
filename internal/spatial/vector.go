// Package spatial provides the small fixed-size linear algebra used by the
// preintegration core: 3-vectors, 3x3 matrices, SO(3) rotations with
// exponential/log maps and right Jacobians, and rigid transforms.
//
// Vectors and matrices here are plain value types so the 100+ Hz integration
// loop does not allocate. Anything 9-dimensional (covariances, factor
// Jacobians) lives in gonum matrices instead; see the preintegration and
// factor packages.
package spatial

import "math"

// Vec3 is a 3-vector (x, y, z).
type Vec3 [3]float64

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v[0] + w[0], v[1] + w[1], v[2] + w[2]}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v[0] - w[0], v[1] - w[1], v[2] - w[2]}
}

// Scale returns s * v.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{s * v[0], s * v[1], s * v[2]}
}

// Dot returns the inner product of v and w.
func (v Vec3) Dot(w Vec3) float64 {
	return v[0]*w[0] + v[1]*w[1] + v[2]*w[2]
}

// Cross returns v x w.
func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{
		v[1]*w[2] - v[2]*w[1],
		v[2]*w[0] - v[0]*w[2],
		v[0]*w[1] - v[1]*w[0],
	}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}
