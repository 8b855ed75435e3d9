package spatial

// Mat3 is a 3x3 matrix stored row-major, numbered left to right, top to
// bottom.
type Mat3 [9]float64

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return Mat3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// At returns the element at row i, column j.
func (m Mat3) At(i, j int) float64 {
	return m[3*i+j]
}

// Add returns m + n.
func (m Mat3) Add(n Mat3) Mat3 {
	var r Mat3
	for i := range m {
		r[i] = m[i] + n[i]
	}
	return r
}

// Sub returns m - n.
func (m Mat3) Sub(n Mat3) Mat3 {
	var r Mat3
	for i := range m {
		r[i] = m[i] - n[i]
	}
	return r
}

// Scale returns s * m.
func (m Mat3) Scale(s float64) Mat3 {
	var r Mat3
	for i := range m {
		r[i] = s * m[i]
	}
	return r
}

// Mul returns the matrix product m * n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[3*i+j] = m[3*i]*n[j] + m[3*i+1]*n[3+j] + m[3*i+2]*n[6+j]
		}
	}
	return r
}

// MulVec returns m * v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[3]*v[0] + m[4]*v[1] + m[5]*v[2],
		m[6]*v[0] + m[7]*v[1] + m[8]*v[2],
	}
}

// Transpose returns the transpose of m.
func (m Mat3) Transpose() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Skew returns the skew-symmetric matrix [v]x such that [v]x * w == v x w.
func Skew(v Vec3) Mat3 {
	return Mat3{
		0, -v[2], v[1],
		v[2], 0, -v[0],
		-v[1], v[0], 0,
	}
}
