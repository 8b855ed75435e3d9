// Package factor turns a finished preintegration interval into the
// residual-and-Jacobian contract a nonlinear least-squares optimizer
// consumes: a 9-vector error between the preintegrated relative motion and
// the motion implied by the current end-state estimates, plus analytic
// Jacobian blocks with respect to each of the five variables involved.
package factor

import (
	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/inertial_navigator/internal/preintegration"
	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

// Key identifies one optimization variable in the enclosing factor graph.
// The graph owns key management; a factor only references keys.
type Key uint64

// NoiseModel is what the optimizer side builds from Covariance to weight
// the residual. It is deliberately the only thing this package knows about
// noise models.
type NoiseModel interface {
	// Whiten scales a raw 9-residual into the unit-covariance frame.
	Whiten(residual *mat.VecDense) *mat.VecDense
}

// snapshot is the immutable copy of the preintegration state a factor keeps,
// so later mutation of the source preintegrator cannot change the factor.
type snapshot struct {
	deltaT  float64
	deltaR  spatial.Rot3
	deltaV  spatial.Vec3
	deltaP  spatial.Vec3
	biasHat preintegration.Bias
	jac     preintegration.BiasJacobians
	cov     *mat.SymDense
}

// MotionFactor constrains (poseI, velI, poseJ, velJ, biasI) with the motion
// summarized by one preintegration interval, folding in gravity and,
// optionally, a second-order Coriolis correction for a rotating reference
// frame. Immutable once built; Evaluate is pure and safe to call from
// multiple optimizer threads.
type MotionFactor struct {
	PoseIKey, VelIKey, PoseJKey, VelJKey, BiasKey Key

	snap                snapshot
	gravity             spatial.Vec3
	omegaCoriolis       spatial.Vec3
	secondOrderCoriolis bool
}

// New copies the preintegrator's state into a factor over the five given
// variables. gravity and omegaCoriolis are expressed in the world frame.
func New(poseI, velI, poseJ, velJ, bias Key, p *preintegration.Preintegrator,
	gravity, omegaCoriolis spatial.Vec3, secondOrderCoriolis bool) *MotionFactor {
	return &MotionFactor{
		PoseIKey: poseI,
		VelIKey:  velI,
		PoseJKey: poseJ,
		VelJKey:  velJ,
		BiasKey:  bias,
		snap: snapshot{
			deltaT:  p.DeltaT(),
			deltaR:  p.DeltaR(),
			deltaV:  p.DeltaV(),
			deltaP:  p.DeltaP(),
			biasHat: p.BiasHat(),
			jac:     p.BiasJacobians(),
			cov:     p.Covariance(),
		},
		gravity:             gravity,
		omegaCoriolis:       omegaCoriolis,
		secondOrderCoriolis: secondOrderCoriolis,
	}
}

// Dim is the residual dimension.
func (f *MotionFactor) Dim() int { return 9 }

// Keys lists the referenced variables in Evaluate argument order.
func (f *MotionFactor) Keys() []Key {
	return []Key{f.PoseIKey, f.VelIKey, f.PoseJKey, f.VelJKey, f.BiasKey}
}

// Covariance returns a copy of the 9x9 covariance of the preintegrated
// deltas, from which the optimizer derives its Gaussian noise model.
func (f *MotionFactor) Covariance() *mat.SymDense {
	c := mat.NewSymDense(9, nil)
	c.CopySym(f.snap.cov)
	return c
}

// correctedDeltas applies the stored bias Jacobians to re-linearize the
// deltas at biasI. A first-order correction: exact when biasI equals the
// bias used during integration, approximate for small drift since then. No
// re-integration fallback exists here.
func (f *MotionFactor) correctedDeltas(biasI preintegration.Bias) (dP, dV spatial.Vec3, dR spatial.Rot3, dbAcc, dbGyro spatial.Vec3) {
	db := biasI.Sub(f.snap.biasHat)
	dbAcc, dbGyro = db.Acc, db.Gyro
	dP = f.snap.deltaP.
		Add(f.snap.jac.PAcc.MulVec(dbAcc)).
		Add(f.snap.jac.PGyro.MulVec(dbGyro))
	dV = f.snap.deltaV.
		Add(f.snap.jac.VAcc.MulVec(dbAcc)).
		Add(f.snap.jac.VGyro.MulVec(dbGyro))
	dR = f.snap.deltaR.Compose(spatial.Exp(f.snap.jac.RGyro.MulVec(dbGyro)))
	return dP, dV, dR, dbAcc, dbGyro
}

// Evaluate computes the 9-residual [position error, velocity error,
// rotation error] at the given variable estimates, and fills any non-nil
// Jacobian output with the analytic partial of the residual with respect to
// a local perturbation of that variable (H1: 9x6 poseI, H2: 9x3 velI,
// H3: 9x6 poseJ, H4: 9x3 velJ, H5: 9x6 biasI). A nil output skips the
// corresponding computation entirely.
//
// Pose tangents are ordered [rotation, translation] with the translation
// perturbation in the body frame; bias tangents are [accelerometer,
// gyroscope]. Degenerate (zero-angle) rotations are absorbed by the
// small-angle branches, never surfaced as errors; a zero-interval snapshot
// yields a residual driven purely by the poses, velocities and gravity.
func (f *MotionFactor) Evaluate(poseI spatial.Pose3, velI spatial.Vec3,
	poseJ spatial.Pose3, velJ spatial.Vec3, biasI preintegration.Bias,
	h1, h2, h3, h4, h5 *mat.Dense) *mat.VecDense {

	dt := f.snap.deltaT
	dP, dV, dR, _, dbGyro := f.correctedDeltas(biasI)

	rotI := poseI.Rot
	rotJ := poseJ.Rot

	// Rotation residual: compare the bias- and Coriolis-corrected rotation
	// delta against the relative rotation of the pose estimates.
	thetaBC := dR.Log()
	coriolisTheta := rotI.Unrotate(f.omegaCoriolis).Scale(dt)
	thetaBCC := thetaBC.Sub(coriolisTheta)
	deltaRCorrected := spatial.Exp(thetaBCC)
	fRhat := deltaRCorrected.Between(rotI.Between(rotJ))
	fR := fRhat.Log()

	omegaCross := spatial.Skew(f.omegaCoriolis)
	coriolisVel := omegaCross.MulVec(velI)

	fp := poseJ.Trans.Sub(poseI.Trans).
		Sub(rotI.Rotate(dP)).
		Sub(velI.Scale(dt)).
		Add(coriolisVel.Scale(dt * dt)).
		Sub(f.gravity.Scale(0.5 * dt * dt))
	fv := velJ.Sub(velI).
		Sub(rotI.Rotate(dV)).
		Add(coriolisVel.Scale(2 * dt)).
		Sub(f.gravity.Scale(dt))
	if f.secondOrderCoriolis {
		centripetal := omegaCross.Mul(omegaCross).MulVec(poseI.Trans)
		fp = fp.Add(centripetal.Scale(0.5 * dt * dt))
		fv = fv.Add(centripetal.Scale(dt))
	}

	if h1 != nil || h3 != nil || h5 != nil {
		f.fillJacobians(h1, h2, h3, h4, h5, jacobianTerms{
			dt: dt, rotI: rotI, rotJ: rotJ,
			dP: dP, dV: dV,
			thetaBC: thetaBC, thetaBCC: thetaBCC,
			coriolisTheta: coriolisTheta,
			fRhat:         fRhat, fR: fR,
			dbGyro: dbGyro,
		})
	} else {
		// Only the vector-variable blocks were requested.
		fillVelBlocks(h2, h4, omegaCross, dt)
	}

	r := mat.NewVecDense(9, nil)
	for i := 0; i < 3; i++ {
		r.SetVec(i, fp[i])
		r.SetVec(3+i, fv[i])
		r.SetVec(6+i, fR[i])
	}
	return r
}

type jacobianTerms struct {
	dt            float64
	rotI, rotJ    spatial.Rot3
	dP, dV        spatial.Vec3
	thetaBC       spatial.Vec3
	thetaBCC      spatial.Vec3
	coriolisTheta spatial.Vec3
	fRhat         spatial.Rot3
	fR            spatial.Vec3
	dbGyro        spatial.Vec3
}

func (f *MotionFactor) fillJacobians(h1, h2, h3, h4, h5 *mat.Dense, t jacobianTerms) {
	dt := t.dt
	omegaCross := spatial.Skew(f.omegaCoriolis)
	rI := t.rotI.Matrix()
	rJ := t.rotJ.Matrix()

	// Jrinv at the rotation residual closes every rotation-row block; the
	// left-Jacobian inverse Jrinv(fR) * fRhat^T handles blocks that enter
	// as left perturbations of fRhat.
	jrInvFR := spatial.RightJacobianInverse(t.fR)
	jlInvFR := jrInvFR.Mul(t.fRhat.Matrix().Transpose())
	jrThetaBCC := spatial.RightJacobian(t.thetaBCC)

	fillVelBlocks(h2, h4, omegaCross, dt)

	if h1 != nil {
		reuseZeroed(h1, 9, 6)
		// Position and velocity rows against the rotation of pose i.
		setBlock(h1, 0, 0, rI.Mul(spatial.Skew(t.dP)))
		setBlock(h1, 3, 0, rI.Mul(spatial.Skew(t.dV)))
		// Translation columns; a second-order Coriolis correction makes
		// them rate-dependent.
		dfPdTi := rI.Scale(-1)
		dfVdTi := spatial.Mat3{}
		if f.secondOrderCoriolis {
			ww := omegaCross.Mul(omegaCross)
			dfPdTi = dfPdTi.Add(ww.Mul(rI).Scale(0.5 * dt * dt))
			dfVdTi = ww.Mul(rI).Scale(dt)
		}
		setBlock(h1, 0, 3, dfPdTi)
		setBlock(h1, 3, 3, dfVdTi)
		// Rotation row: the relative-rotation term plus the sensitivity of
		// the Coriolis correction to the orientation of frame i.
		dfRdRi := jrInvFR.Mul(t.rotJ.Between(t.rotI).Matrix()).Scale(-1).
			Add(jlInvFR.Mul(jrThetaBCC).Mul(spatial.Skew(t.coriolisTheta)))
		setBlock(h1, 6, 0, dfRdRi)
	}
	if h3 != nil {
		reuseZeroed(h3, 9, 6)
		setBlock(h3, 0, 3, rJ)
		setBlock(h3, 6, 0, jrInvFR)
	}
	if h5 != nil {
		reuseZeroed(h5, 9, 6)
		setBlock(h5, 0, 0, rI.Mul(f.snap.jac.PAcc).Scale(-1))
		setBlock(h5, 0, 3, rI.Mul(f.snap.jac.PGyro).Scale(-1))
		setBlock(h5, 3, 0, rI.Mul(f.snap.jac.VAcc).Scale(-1))
		setBlock(h5, 3, 3, rI.Mul(f.snap.jac.VGyro).Scale(-1))
		// Chain rule through the multiplicative bias correction of the
		// rotation delta.
		jrInvThetaBC := spatial.RightJacobianInverse(t.thetaBC)
		jrBiasIncr := spatial.RightJacobian(f.snap.jac.RGyro.MulVec(t.dbGyro))
		dfRdBiasGyro := jlInvFR.Mul(jrThetaBCC).Mul(jrInvThetaBC).
			Mul(jrBiasIncr).Mul(f.snap.jac.RGyro).Scale(-1)
		setBlock(h5, 6, 3, dfRdBiasGyro)
	}
}

func fillVelBlocks(h2, h4 *mat.Dense, omegaCross spatial.Mat3, dt float64) {
	if h2 != nil {
		reuseZeroed(h2, 9, 3)
		setBlock(h2, 0, 0, spatial.Identity3().Scale(-dt).Add(omegaCross.Scale(dt*dt)))
		setBlock(h2, 3, 0, spatial.Identity3().Scale(-1).Add(omegaCross.Scale(2*dt)))
	}
	if h4 != nil {
		reuseZeroed(h4, 9, 3)
		setBlock(h4, 3, 0, spatial.Identity3())
	}
}

// reuseZeroed sizes an empty output matrix, or zeroes an already-sized one.
func reuseZeroed(h *mat.Dense, r, c int) {
	if h.IsEmpty() {
		h.ReuseAs(r, c)
		return
	}
	h.Zero()
}

func setBlock(m *mat.Dense, row, col int, b spatial.Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(row+i, col+j, b.At(i, j))
		}
	}
}
