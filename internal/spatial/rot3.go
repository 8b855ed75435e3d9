package spatial

import "math"

// smallAngle is the rotation-vector norm below which the trigonometric
// coefficients of the exponential map and its Jacobians switch to their
// series expansions. Above this the closed forms are exact; below it they
// lose digits to cancellation (theta - sin theta underflows long before
// theta does).
const smallAngle = 1e-3

// Rot3 is a rotation in SO(3), stored as an orthonormal 3x3 matrix.
// The zero value is NOT a valid rotation; use RotIdentity or Exp.
type Rot3 struct {
	m Mat3
}

// RotIdentity returns the identity rotation.
func RotIdentity() Rot3 {
	return Rot3{m: Identity3()}
}

// RotFromMatrix wraps an orthonormal matrix as a rotation. The matrix is
// trusted; no orthonormalization is performed.
func RotFromMatrix(m Mat3) Rot3 {
	return Rot3{m: m}
}

// RotRPY builds the rotation Rz(yaw) * Ry(pitch) * Rx(roll).
func RotRPY(roll, pitch, yaw float64) Rot3 {
	rx := Exp(Vec3{roll, 0, 0})
	ry := Exp(Vec3{0, pitch, 0})
	rz := Exp(Vec3{0, 0, yaw})
	return rz.Compose(ry).Compose(rx)
}

// Exp is the SO(3) exponential map: it turns an axis-angle rotation vector
// into a rotation via the Rodrigues formula.
func Exp(v Vec3) Rot3 {
	theta := v.Norm()
	a, b := expCoefficients(theta)
	s := Skew(v)
	m := Identity3().Add(s.Scale(a)).Add(s.Mul(s).Scale(b))
	return Rot3{m: m}
}

// Log is the inverse of Exp: the rotation vector of r. The zero-angle and
// near-pi cases are handled by dedicated branches and never fail.
func (r Rot3) Log() Vec3 {
	m := r.m
	tr := m[0] + m[4] + m[8]
	cosTheta := 0.5 * (tr - 1)
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	theta := math.Acos(cosTheta)

	// vee(R - R^T) = 2 sin(theta) * axis
	vee := Vec3{m[7] - m[5], m[2] - m[6], m[3] - m[1]}

	if theta < smallAngle {
		// theta/(2 sin theta) = 1/2 * (1 + theta^2/6 + ...)
		return vee.Scale(0.5 * (1 + theta*theta/6))
	}
	if math.Pi-theta < smallAngle {
		// sin(theta) vanishes; recover the axis from the diagonal of
		// R = I + 2 sin^2(theta/2) [a]x^2, whose entries give a_i^2.
		k := 0
		if m.At(1, 1) > m.At(k, k) {
			k = 1
		}
		if m.At(2, 2) > m.At(k, k) {
			k = 2
		}
		var axis Vec3
		axis[k] = math.Sqrt((m.At(k, k) + 1) / 2)
		for j := 0; j < 3; j++ {
			if j != k {
				axis[j] = (m.At(k, j) + m.At(j, k)) / (4 * axis[k])
			}
		}
		// Fix the overall sign from the off-diagonal antisymmetric part.
		if vee.Dot(axis) < 0 {
			axis = axis.Scale(-1)
		}
		n := axis.Norm()
		return axis.Scale(theta / n)
	}
	return vee.Scale(theta / (2 * math.Sin(theta)))
}

// Compose returns the rotation r followed by o (matrix product r * o).
func (r Rot3) Compose(o Rot3) Rot3 {
	return Rot3{m: r.m.Mul(o.m)}
}

// Inverse returns the inverse rotation.
func (r Rot3) Inverse() Rot3 {
	return Rot3{m: r.m.Transpose()}
}

// Rotate applies the rotation to a vector.
func (r Rot3) Rotate(v Vec3) Vec3 {
	return r.m.MulVec(v)
}

// Unrotate applies the inverse rotation to a vector.
func (r Rot3) Unrotate(v Vec3) Vec3 {
	return r.m.Transpose().MulVec(v)
}

// Matrix returns the rotation matrix.
func (r Rot3) Matrix() Mat3 {
	return r.m
}

// Between returns the relative rotation r^-1 * o.
func (r Rot3) Between(o Rot3) Rot3 {
	return Rot3{m: r.m.Transpose().Mul(o.m)}
}

// RightJacobian returns the right Jacobian of the exponential map at v: the
// matrix relating a perturbation of the rotation vector to the resulting
// local perturbation of Exp(v).
func RightJacobian(v Vec3) Mat3 {
	theta := v.Norm()
	_, b := expCoefficients(theta)
	c := rightJacobianC(theta)
	s := Skew(v)
	return Identity3().Sub(s.Scale(b)).Add(s.Mul(s).Scale(c))
}

// RightJacobianInverse returns the inverse of RightJacobian(v) in closed
// form, with the same small-angle safeguard.
func RightJacobianInverse(v Vec3) Mat3 {
	theta := v.Norm()
	var d float64
	if theta < smallAngle {
		d = 1.0/12 + theta*theta/720
	} else {
		d = 1/(theta*theta) - (1+math.Cos(theta))/(2*theta*math.Sin(theta))
	}
	s := Skew(v)
	return Identity3().Add(s.Scale(0.5)).Add(s.Mul(s).Scale(d))
}

// expCoefficients returns a = sin(theta)/theta and b = (1-cos(theta))/theta^2.
func expCoefficients(theta float64) (a, b float64) {
	if theta < smallAngle {
		t2 := theta * theta
		return 1 - t2/6, 0.5 - t2/24
	}
	t2 := theta * theta
	return math.Sin(theta) / theta, (1 - math.Cos(theta)) / t2
}

// rightJacobianC returns (theta - sin(theta))/theta^3.
func rightJacobianC(theta float64) float64 {
	if theta < smallAngle {
		return 1.0/6 - theta*theta/120
	}
	return (theta - math.Sin(theta)) / (theta * theta * theta)
}
