package preintegration

import "github.com/relabs-tech/inertial_navigator/internal/spatial"

// Delta is the capability a motion factor needs from any IMU preintegration
// scheme: the accumulated manifold deltas and their bias sensitivities.
// Base implements it; Preintegrator adds covariance propagation on top.
type Delta interface {
	DeltaT() float64
	DeltaR() spatial.Rot3
	DeltaV() spatial.Vec3
	DeltaP() spatial.Vec3
	BiasHat() Bias
	BiasJacobians() BiasJacobians
}

// BiasJacobians maps a perturbation of the bias used during integration to a
// perturbation of each delta, so a bias change at optimization time can be
// folded in to first order without re-integrating raw samples.
type BiasJacobians struct {
	PAcc  spatial.Mat3 // d(deltaP)/d(biasAcc)
	PGyro spatial.Mat3 // d(deltaP)/d(biasGyro)
	VAcc  spatial.Mat3 // d(deltaV)/d(biasAcc)
	VGyro spatial.Mat3 // d(deltaV)/d(biasGyro)
	RGyro spatial.Mat3 // d(deltaR)/d(biasGyro), in the tangent of deltaR
}

// Base accumulates the rotation/velocity/position deltas of one interval and
// the bias Jacobians. It holds a copy of the bias estimate used for removal;
// that estimate is owned by an external provider.
type Base struct {
	biasHat     Bias
	secondOrder bool

	deltaT float64
	deltaR spatial.Rot3
	deltaV spatial.Vec3
	deltaP spatial.Vec3

	jac BiasJacobians
}

func newBase(biasHat Bias, secondOrderIntegration bool) Base {
	b := Base{biasHat: biasHat, secondOrder: secondOrderIntegration}
	b.reset()
	return b
}

// reset clears the deltas to the identity and the Jacobians to zero.
// Idempotent.
func (b *Base) reset() {
	b.deltaT = 0
	b.deltaR = spatial.RotIdentity()
	b.deltaV = spatial.Vec3{}
	b.deltaP = spatial.Vec3{}
	b.jac = BiasJacobians{}
}

// DeltaT returns the accumulated interval length in seconds.
func (b *Base) DeltaT() float64 { return b.deltaT }

// DeltaR returns the accumulated rotation delta.
func (b *Base) DeltaR() spatial.Rot3 { return b.deltaR }

// DeltaV returns the accumulated velocity delta.
func (b *Base) DeltaV() spatial.Vec3 { return b.deltaV }

// DeltaP returns the accumulated position delta.
func (b *Base) DeltaP() spatial.Vec3 { return b.deltaP }

// BiasHat returns the bias estimate that was removed during integration.
func (b *Base) BiasHat() Bias { return b.biasHat }

// BiasJacobians returns the accumulated bias sensitivities.
func (b *Base) BiasJacobians() BiasJacobians { return b.jac }

// correctMeasurements removes the bias and, when a sensor-to-body transform
// is set, rotates the angular rate into the body frame and applies the
// centripetal lever-arm correction to the linear acceleration. This step is
// exact, not linearized.
func (b *Base) correctMeasurements(acc, omega spatial.Vec3, bodyPSensor *spatial.Pose3) (spatial.Vec3, spatial.Vec3) {
	correctedAcc := b.biasHat.CorrectAcc(acc)
	correctedOmega := b.biasHat.CorrectGyro(omega)
	if bodyPSensor != nil {
		bRs := bodyPSensor.Rot
		correctedOmega = bRs.Rotate(correctedOmega)
		omegaCross := spatial.Skew(correctedOmega)
		leverArm := omegaCross.Mul(omegaCross).MulVec(bodyPSensor.Trans)
		correctedAcc = bRs.Rotate(correctedAcc).Sub(leverArm)
	}
	return correctedAcc, correctedOmega
}

// updateBiasJacobians advances the bias-sensitivity recursions. It must run
// before updateDeltas: every right-hand side below is a function of the
// still-unadvanced rotation delta.
func (b *Base) updateBiasJacobians(correctedAcc spatial.Vec3, jrIncr spatial.Mat3, incr spatial.Rot3, dt float64) {
	dR := b.deltaR.Matrix()
	accCross := spatial.Skew(correctedAcc)

	if b.secondOrder {
		b.jac.PAcc = b.jac.PAcc.Add(b.jac.VAcc.Scale(dt)).Sub(dR.Scale(0.5 * dt * dt))
		b.jac.PGyro = b.jac.PGyro.Add(b.jac.VGyro.Scale(dt)).
			Sub(dR.Mul(accCross).Mul(b.jac.RGyro).Scale(0.5 * dt * dt))
	} else {
		b.jac.PAcc = b.jac.PAcc.Add(b.jac.VAcc.Scale(dt))
		b.jac.PGyro = b.jac.PGyro.Add(b.jac.VGyro.Scale(dt))
	}
	b.jac.VAcc = b.jac.VAcc.Sub(dR.Scale(dt))
	b.jac.VGyro = b.jac.VGyro.Sub(dR.Mul(accCross).Mul(b.jac.RGyro).Scale(dt))
	b.jac.RGyro = incr.Inverse().Matrix().Mul(b.jac.RGyro).Sub(jrIncr.Scale(dt))
}

// updateDeltas advances the manifold deltas. Position uses the pre-update
// velocity; velocity and the optional second-order position term use the
// pre-update rotation.
func (b *Base) updateDeltas(correctedAcc spatial.Vec3, incr spatial.Rot3, dt float64) {
	rotatedAccDt := b.deltaR.Rotate(correctedAcc).Scale(dt)
	if b.secondOrder {
		b.deltaP = b.deltaP.Add(b.deltaV.Scale(dt)).Add(rotatedAccDt.Scale(0.5 * dt))
	} else {
		b.deltaP = b.deltaP.Add(b.deltaV.Scale(dt))
	}
	b.deltaV = b.deltaV.Add(rotatedAccDt)
	b.deltaR = b.deltaR.Compose(incr)
	b.deltaT += dt
}
