package preintegration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

// ErrNonPositiveDeltaT is returned by IntegrateMeasurement when the sample
// interval is not strictly positive. The preintegrator is left untouched.
var ErrNonPositiveDeltaT = errors.New("preintegration: measurement dt must be > 0")

// Preintegrator consumes IMU samples and maintains the deltas of Base plus a
// 9x9 covariance over their (position, velocity, rotation) error, propagated
// through an EKF-style first-order linearization at every step.
//
// A Preintegrator is not safe for concurrent use; the caller owns the
// serialization of IntegrateMeasurement calls. Typical use is one instance
// per interval between optimizer calls.
type Preintegrator struct {
	Base

	params Params
	// measurementCov is the continuous-time 9x9 process noise assembled
	// from params; cov is the propagated covariance of the deltas.
	measurementCov *mat.Dense
	cov            *mat.Dense
}

// New returns a Preintegrator that removes biasHat from every sample and
// propagates the noise described by params. The covariance starts at zero.
func New(biasHat Bias, params Params) *Preintegrator {
	return &Preintegrator{
		Base:           newBase(biasHat, params.SecondOrderIntegration),
		params:         params,
		measurementCov: params.measurementCovariance(),
		cov:            mat.NewDense(9, 9, nil),
	}
}

// Reset clears the deltas, the bias Jacobians and the covariance, keeping
// the bias estimate and params. Idempotent.
func (p *Preintegrator) Reset() {
	p.reset()
	p.cov.Zero()
}

// IntegrateMeasurement folds one (acceleration, angular velocity, dt) sample
// into the accumulated deltas, bias Jacobians and covariance. Samples must
// arrive in time order; only dt > 0 is validated here.
func (p *Preintegrator) IntegrateMeasurement(acc, omega spatial.Vec3, dt float64) error {
	return p.integrate(acc, omega, dt, nil, nil)
}

// IntegrateMeasurementWithDiagnostics is IntegrateMeasurement but also
// writes the 9x9 error-transition matrix F and noise-mapping matrix G of the
// step into any non-nil output. Normal operation never needs these; they
// exist for validation.
func (p *Preintegrator) IntegrateMeasurementWithDiagnostics(acc, omega spatial.Vec3, dt float64, fOut, gOut *mat.Dense) error {
	return p.integrate(acc, omega, dt, fOut, gOut)
}

func (p *Preintegrator) integrate(acc, omega spatial.Vec3, dt float64, fOut, gOut *mat.Dense) error {
	if dt <= 0 {
		return fmt.Errorf("%w: got %v", ErrNonPositiveDeltaT, dt)
	}

	correctedAcc, correctedOmega := p.correctMeasurements(acc, omega, p.params.BodyPSensor)

	thetaIncr := correctedOmega.Scale(dt)
	incr := spatial.Exp(thetaIncr)
	jrIncr := spatial.RightJacobian(thetaIncr)

	// The recursions and the transition matrix are linearized at the
	// rotation delta as it was BEFORE this sample, so capture it and run
	// the Jacobian update first. The inverse-right-Jacobian term closing
	// the rotation-error row is the one exception: it is evaluated at the
	// advanced rotation.
	p.updateBiasJacobians(correctedAcc, jrIncr, incr, dt)

	thetaI := p.deltaR.Log()
	rI := p.deltaR.Matrix()
	jrI := spatial.RightJacobian(thetaI)

	p.updateDeltas(correctedAcc, incr, dt)

	thetaJ := p.deltaR.Log()
	jrInvJ := spatial.RightJacobianInverse(thetaJ)

	hVelRot := rI.Mul(spatial.Skew(correctedAcc)).Mul(jrI).Scale(-dt)
	hRotRot := jrInvJ.Mul(incr.Inverse().Matrix()).Mul(jrI)

	f := mat.NewDense(9, 9, nil)
	setBlock(f, 0, 0, spatial.Identity3())
	setBlock(f, 0, 3, spatial.Identity3().Scale(dt))
	setBlock(f, 3, 3, spatial.Identity3())
	setBlock(f, 3, 6, hVelRot)
	setBlock(f, 6, 6, hRotRot)

	// First-order propagation; dt converts the continuous-time density to
	// this step's discrete covariance.
	var fp, fpf mat.Dense
	fp.Mul(f, p.cov)
	fpf.Mul(&fp, f.T())
	var qdt mat.Dense
	qdt.Scale(dt, p.measurementCov)
	p.cov.Add(&fpf, &qdt)

	if fOut != nil {
		fOut.CloneFrom(f)
	}
	if gOut != nil {
		g := mat.NewDense(9, 9, nil)
		setBlock(g, 0, 0, spatial.Identity3().Scale(dt))
		setBlock(g, 3, 3, rI.Scale(dt))
		setBlock(g, 6, 6, jrInvJ.Mul(jrIncr).Scale(dt))
		gOut.CloneFrom(g)
	}
	return nil
}

// Covariance returns a copy of the propagated 9x9 covariance over the
// (position, velocity, rotation) error of the deltas.
func (p *Preintegrator) Covariance() *mat.SymDense {
	s := mat.NewSymDense(9, nil)
	for i := 0; i < 9; i++ {
		for j := i; j < 9; j++ {
			s.SetSym(i, j, 0.5*(p.cov.At(i, j)+p.cov.At(j, i)))
		}
	}
	return s
}

// AllClose reports whether two preintegrators hold the same deltas, bias
// Jacobians and covariance within an absolute elementwise tolerance.
func (p *Preintegrator) AllClose(o *Preintegrator, tol float64) bool {
	if math.Abs(p.deltaT-o.deltaT) > tol {
		return false
	}
	if !mat3Close(p.deltaR.Matrix(), o.deltaR.Matrix(), tol) {
		return false
	}
	if !vecClose(p.deltaV, o.deltaV, tol) || !vecClose(p.deltaP, o.deltaP, tol) {
		return false
	}
	pairs := [][2]spatial.Mat3{
		{p.jac.PAcc, o.jac.PAcc},
		{p.jac.PGyro, o.jac.PGyro},
		{p.jac.VAcc, o.jac.VAcc},
		{p.jac.VGyro, o.jac.VGyro},
		{p.jac.RGyro, o.jac.RGyro},
	}
	for _, pr := range pairs {
		if !mat3Close(pr[0], pr[1], tol) {
			return false
		}
	}
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			if math.Abs(p.cov.At(i, j)-o.cov.At(i, j)) > tol {
				return false
			}
		}
	}
	return true
}

func vecClose(a, b spatial.Vec3, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func mat3Close(a, b spatial.Mat3, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}
