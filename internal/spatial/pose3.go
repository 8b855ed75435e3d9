package spatial

// Pose3 is a rigid transform: a rotation followed by a translation.
type Pose3 struct {
	Rot   Rot3
	Trans Vec3
}

// PoseIdentity returns the identity transform.
func PoseIdentity() Pose3 {
	return Pose3{Rot: RotIdentity()}
}

// Compose returns p followed by o.
func (p Pose3) Compose(o Pose3) Pose3 {
	return Pose3{
		Rot:   p.Rot.Compose(o.Rot),
		Trans: p.Trans.Add(p.Rot.Rotate(o.Trans)),
	}
}

// Inverse returns the inverse transform.
func (p Pose3) Inverse() Pose3 {
	rInv := p.Rot.Inverse()
	return Pose3{
		Rot:   rInv,
		Trans: rInv.Rotate(p.Trans).Scale(-1),
	}
}

// Between returns the relative transform p^-1 * o.
func (p Pose3) Between(o Pose3) Pose3 {
	return p.Inverse().Compose(o)
}

// TransformFrom maps a point from the local frame of p to the world frame.
func (p Pose3) TransformFrom(v Vec3) Vec3 {
	return p.Rot.Rotate(v).Add(p.Trans)
}

// Retract perturbs the pose by a 6-tangent [omega, t]: the rotation is
// right-multiplied by Exp(omega) and the translation is moved by t expressed
// in the body frame. The factor Jacobians are written against exactly this
// local parameterization.
func (p Pose3) Retract(omega, t Vec3) Pose3 {
	return Pose3{
		Rot:   p.Rot.Compose(Exp(omega)),
		Trans: p.Trans.Add(p.Rot.Rotate(t)),
	}
}
