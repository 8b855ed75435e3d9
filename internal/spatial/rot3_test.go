package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vecsClose(t *testing.T, want, got Vec3, tol float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		assert.InDelta(t, want[i], got[i], tol, "component %d", i)
	}
}

func matsClose(t *testing.T, want, got Mat3, tol float64) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], tol, "element %d", i)
	}
}

func TestExpLogRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		v    Vec3
	}{
		{"zero", Vec3{}},
		{"tiny", Vec3{1e-8, -2e-8, 3e-9}},
		{"below cutoff", Vec3{5e-4, 3e-4, -4e-4}},
		{"moderate", Vec3{0.3, -0.5, 0.7}},
		{"large", Vec3{1.5, 2.0, -0.8}},
		{"axis aligned", Vec3{0, 0, 1.2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Exp(tc.v).Log()
			vecsClose(t, tc.v, got, 1e-12)
		})
	}
}

func TestLogNearPi(t *testing.T) {
	// sin(theta) vanishes near pi, forcing the diagonal-recovery branch.
	axis := Vec3{1, 2, -2}.Scale(1.0 / 3.0) // unit
	for _, theta := range []float64{math.Pi - 1e-5, math.Pi - 1e-7} {
		v := axis.Scale(theta)
		got := Exp(v).Log()
		vecsClose(t, v, got, 1e-6)
	}
}

func TestExpOrthonormal(t *testing.T) {
	r := Exp(Vec3{0.4, -1.1, 0.9})
	shouldBeI := r.Matrix().Mul(r.Matrix().Transpose())
	matsClose(t, Identity3(), shouldBeI, 1e-14)
}

func TestComposeInverseBetween(t *testing.T) {
	r := Exp(Vec3{0.2, 0.3, -0.1})
	o := Exp(Vec3{-0.5, 0.1, 0.4})

	matsClose(t, Identity3(), r.Compose(r.Inverse()).Matrix(), 1e-14)
	matsClose(t, r.Inverse().Compose(o).Matrix(), r.Between(o).Matrix(), 1e-14)
}

func TestRotateUnrotate(t *testing.T) {
	r := Exp(Vec3{0.7, -0.2, 0.5})
	v := Vec3{1, -2, 3}
	vecsClose(t, v, r.Unrotate(r.Rotate(v)), 1e-13)

	// Rotation preserves length.
	assert.InDelta(t, v.Norm(), r.Rotate(v).Norm(), 1e-13)
}

func TestRotRPY(t *testing.T) {
	t.Run("pure yaw maps x to y", func(t *testing.T) {
		r := RotRPY(0, 0, math.Pi/2)
		vecsClose(t, Vec3{0, 1, 0}, r.Rotate(Vec3{1, 0, 0}), 1e-14)
	})
	t.Run("pure roll maps y to z", func(t *testing.T) {
		r := RotRPY(math.Pi/2, 0, 0)
		vecsClose(t, Vec3{0, 0, 1}, r.Rotate(Vec3{0, 1, 0}), 1e-14)
	})
	t.Run("matches explicit composition", func(t *testing.T) {
		roll, pitch, yaw := 0.3, -0.2, 0.9
		want := Exp(Vec3{0, 0, yaw}).Compose(Exp(Vec3{0, pitch, 0})).Compose(Exp(Vec3{roll, 0, 0}))
		matsClose(t, want.Matrix(), RotRPY(roll, pitch, yaw).Matrix(), 1e-14)
	})
}

// numericRightJacobian builds Jr(v) column by column from the definition
// Log(Exp(v)^-1 * Exp(v + d e_k)) = Jr(v) * d e_k + O(d^2).
func numericRightJacobian(v Vec3, step float64) Mat3 {
	var j Mat3
	base := Exp(v)
	for k := 0; k < 3; k++ {
		var dv Vec3
		dv[k] = step
		col := base.Between(Exp(v.Add(dv))).Log().Scale(1 / step)
		for i := 0; i < 3; i++ {
			j[3*i+k] = col[i]
		}
	}
	return j
}

func TestRightJacobianNumeric(t *testing.T) {
	for _, v := range []Vec3{
		{0.3, -0.5, 0.7},
		{1.2, 0.1, -0.4},
		{1e-4, -2e-4, 5e-5}, // series branch
	} {
		want := numericRightJacobian(v, 1e-6)
		got := RightJacobian(v)
		matsClose(t, want, got, 1e-6)
	}
}

func TestRightJacobianInverse(t *testing.T) {
	for _, v := range []Vec3{
		{0.3, -0.5, 0.7},
		{2.1, 0.4, -1.0},
		{1e-5, 2e-5, -3e-5}, // series branch
		{},
	} {
		prod := RightJacobian(v).Mul(RightJacobianInverse(v))
		matsClose(t, Identity3(), prod, 1e-10)
	}
}

func TestSkew(t *testing.T) {
	a := Vec3{1, -2, 3}
	b := Vec3{-4, 5, 0.5}
	vecsClose(t, a.Cross(b), Skew(a).MulVec(b), 1e-14)

	s := Skew(a)
	require.Equal(t, s.Transpose(), s.Scale(-1))
}
