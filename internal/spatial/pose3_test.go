package spatial

import (
	"math"
	"testing"
)

func TestPoseComposeInverse(t *testing.T) {
	p := Pose3{Rot: Exp(Vec3{0.2, -0.4, 0.6}), Trans: Vec3{1, 2, -3}}

	ident := p.Compose(p.Inverse())
	matsClose(t, Identity3(), ident.Rot.Matrix(), 1e-14)
	vecsClose(t, Vec3{}, ident.Trans, 1e-13)
}

func TestPoseBetween(t *testing.T) {
	p := Pose3{Rot: Exp(Vec3{0.1, 0.2, 0.3}), Trans: Vec3{1, 0, -1}}
	o := Pose3{Rot: Exp(Vec3{-0.3, 0.5, 0.1}), Trans: Vec3{2, -1, 4}}

	// p * (p^-1 * o) == o
	back := p.Compose(p.Between(o))
	matsClose(t, o.Rot.Matrix(), back.Rot.Matrix(), 1e-14)
	vecsClose(t, o.Trans, back.Trans, 1e-13)
}

func TestTransformFrom(t *testing.T) {
	p := Pose3{Rot: RotRPY(0, 0, math.Pi/2), Trans: Vec3{10, 0, 0}}
	// Local x axis points along world y, then the translation.
	vecsClose(t, Vec3{10, 1, 0}, p.TransformFrom(Vec3{1, 0, 0}), 1e-14)
}

func TestRetract(t *testing.T) {
	p := Pose3{Rot: Exp(Vec3{0.4, -0.1, 0.2}), Trans: Vec3{-1, 5, 2}}

	t.Run("zero tangent is identity", func(t *testing.T) {
		q := p.Retract(Vec3{}, Vec3{})
		matsClose(t, p.Rot.Matrix(), q.Rot.Matrix(), 1e-14)
		vecsClose(t, p.Trans, q.Trans, 1e-14)
	})

	t.Run("rotation is right-multiplied, translation body-frame", func(t *testing.T) {
		omega := Vec3{0.01, -0.02, 0.03}
		tr := Vec3{0.5, -0.5, 1}
		q := p.Retract(omega, tr)
		matsClose(t, p.Rot.Compose(Exp(omega)).Matrix(), q.Rot.Matrix(), 1e-14)
		vecsClose(t, p.Trans.Add(p.Rot.Rotate(tr)), q.Trans, 1e-14)
	})
}
