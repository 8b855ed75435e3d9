package factor

import (
	"github.com/relabs-tech/inertial_navigator/internal/preintegration"
	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

// Predict forward-propagates the start state through the preintegrated
// deltas, gravity and the Coriolis terms: it returns the end pose and
// velocity at which the residual vanishes. Useful for dead reckoning
// between optimizer runs and as the seed for new variables.
func (f *MotionFactor) Predict(poseI spatial.Pose3, velI spatial.Vec3,
	biasI preintegration.Bias) (spatial.Pose3, spatial.Vec3) {

	dt := f.snap.deltaT
	dP, dV, dR, _, _ := f.correctedDeltas(biasI)

	thetaBCC := dR.Log().Sub(poseI.Rot.Unrotate(f.omegaCoriolis).Scale(dt))
	rotJ := poseI.Rot.Compose(spatial.Exp(thetaBCC))

	coriolisVel := f.omegaCoriolis.Cross(velI)
	posJ := poseI.Trans.
		Add(poseI.Rot.Rotate(dP)).
		Add(velI.Scale(dt)).
		Sub(coriolisVel.Scale(dt * dt)).
		Add(f.gravity.Scale(0.5 * dt * dt))
	velJ := velI.
		Add(poseI.Rot.Rotate(dV)).
		Sub(coriolisVel.Scale(2 * dt)).
		Add(f.gravity.Scale(dt))
	if f.secondOrderCoriolis {
		centripetal := f.omegaCoriolis.Cross(f.omegaCoriolis.Cross(poseI.Trans))
		posJ = posJ.Sub(centripetal.Scale(0.5 * dt * dt))
		velJ = velJ.Sub(centripetal.Scale(dt))
	}
	return spatial.Pose3{Rot: rotJ, Trans: posJ}, velJ
}
