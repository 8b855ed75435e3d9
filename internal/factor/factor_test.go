package factor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/inertial_navigator/internal/preintegration"
	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

// buildPreintegrator integrates a deterministic, rotation-rich sequence so
// every Jacobian term is exercised.
func buildPreintegrator(t *testing.T, biasHat preintegration.Bias) *preintegration.Preintegrator {
	t.Helper()
	params := preintegration.NewParams(0.02, 0.002, 1e-4)
	params.SecondOrderIntegration = true
	p := preintegration.New(biasHat, params)
	dt := 0.01
	for i := 0; i < 50; i++ {
		tm := float64(i) * dt
		acc := spatial.Vec3{0.5 * math.Sin(3*tm), -0.3 * math.Cos(2*tm), 9.81 + 0.2*math.Sin(tm)}
		omega := spatial.Vec3{0.4 * math.Cos(tm), 0.1, -0.3 * math.Sin(2*tm)}
		require.NoError(t, p.IntegrateMeasurement(acc, omega, dt))
	}
	return p
}

var (
	testGravity  = spatial.Vec3{0, 0, -9.81}
	testCoriolis = spatial.Vec3{1e-4, -5e-5, 7.292115e-5}
)

func TestKeysAndDim(t *testing.T) {
	p := buildPreintegrator(t, preintegration.Bias{})
	f := New(1, 2, 3, 4, 5, p, testGravity, spatial.Vec3{}, false)

	assert.Equal(t, 9, f.Dim())
	assert.Equal(t, []Key{1, 2, 3, 4, 5}, f.Keys())
}

func TestCovarianceIsACopy(t *testing.T) {
	p := buildPreintegrator(t, preintegration.Bias{})
	f := New(1, 2, 3, 4, 5, p, testGravity, spatial.Vec3{}, false)

	c1 := f.Covariance()
	c1.SetSym(0, 0, 1e6)
	c2 := f.Covariance()
	assert.NotEqual(t, 1e6, c2.At(0, 0))
}

func TestFactorSnapshotIsImmutable(t *testing.T) {
	p := buildPreintegrator(t, preintegration.Bias{})
	f := New(1, 2, 3, 4, 5, p, testGravity, spatial.Vec3{}, false)

	poseI := spatial.PoseIdentity()
	velI := spatial.Vec3{}
	poseJ, velJ := f.Predict(poseI, velI, preintegration.Bias{})

	before := f.Evaluate(poseI, velI, poseJ, velJ, preintegration.Bias{}, nil, nil, nil, nil, nil)

	// Mutating the source preintegrator afterwards must not change the factor.
	require.NoError(t, p.IntegrateMeasurement(spatial.Vec3{5, 5, 5}, spatial.Vec3{1, 1, 1}, 0.1))
	after := f.Evaluate(poseI, velI, poseJ, velJ, preintegration.Bias{}, nil, nil, nil, nil, nil)

	for i := 0; i < 9; i++ {
		assert.Equal(t, before.AtVec(i), after.AtVec(i))
	}
}

func TestPredictGivesZeroResidual(t *testing.T) {
	biasHat := preintegration.Bias{
		Acc:  spatial.Vec3{0.05, -0.02, 0.1},
		Gyro: spatial.Vec3{0.01, 0.005, -0.02},
	}
	p := buildPreintegrator(t, biasHat)

	cases := []struct {
		name        string
		coriolis    spatial.Vec3
		secondOrder bool
		biasI       preintegration.Bias
	}{
		{"no coriolis, bias unchanged", spatial.Vec3{}, false, biasHat},
		{"coriolis", testCoriolis, false, biasHat},
		{"second order coriolis", testCoriolis, true, biasHat},
		{"drifted bias", testCoriolis, true, preintegration.Bias{
			Acc:  biasHat.Acc.Add(spatial.Vec3{0.01, -0.005, 0.002}),
			Gyro: biasHat.Gyro.Add(spatial.Vec3{-0.003, 0.001, 0.004}),
		}},
	}

	poseI := spatial.Pose3{
		Rot:   spatial.RotRPY(0.1, -0.2, 0.7),
		Trans: spatial.Vec3{100, -50, 10},
	}
	velI := spatial.Vec3{1, -2, 0.5}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := New(1, 2, 3, 4, 5, p, testGravity, tc.coriolis, tc.secondOrder)
			poseJ, velJ := f.Predict(poseI, velI, tc.biasI)

			r := f.Evaluate(poseI, velI, poseJ, velJ, tc.biasI, nil, nil, nil, nil, nil)
			for i := 0; i < 9; i++ {
				assert.InDelta(t, 0, r.AtVec(i), 1e-9, "residual %d", i)
			}
		})
	}
}

func TestStationaryBodyZeroResidual(t *testing.T) {
	// A body at rest measures +g on the accelerometer. Integrating that and
	// evaluating with identical start and end states must cancel exactly
	// against gravity.
	params := preintegration.NewParams(0.02, 0.002, 1e-4)
	params.SecondOrderIntegration = true
	p := preintegration.New(preintegration.Bias{}, params)
	for i := 0; i < 100; i++ {
		require.NoError(t, p.IntegrateMeasurement(spatial.Vec3{0, 0, 9.81}, spatial.Vec3{}, 0.01))
	}

	f := New(1, 2, 3, 4, 5, p, testGravity, spatial.Vec3{}, false)
	r := f.Evaluate(spatial.PoseIdentity(), spatial.Vec3{},
		spatial.PoseIdentity(), spatial.Vec3{}, preintegration.Bias{},
		nil, nil, nil, nil, nil)

	for i := 0; i < 9; i++ {
		assert.InDelta(t, 0, r.AtVec(i), 1e-12, "residual %d", i)
	}
}

func TestZeroIntervalFactor(t *testing.T) {
	params := preintegration.NewParams(0.02, 0.002, 1e-4)
	p := preintegration.New(preintegration.Bias{}, params)

	f := New(1, 2, 3, 4, 5, p, testGravity, spatial.Vec3{}, false)

	poseI := spatial.PoseIdentity()
	poseJ := spatial.Pose3{Rot: spatial.RotIdentity(), Trans: spatial.Vec3{1, 2, 3}}
	velI := spatial.Vec3{0.5, 0, 0}
	velJ := spatial.Vec3{0, 0.5, 0}

	r := f.Evaluate(poseI, velI, poseJ, velJ, preintegration.Bias{}, nil, nil, nil, nil, nil)

	// With dt = 0 gravity and velocity drop out of the position rows.
	want := []float64{1, 2, 3, -0.5, 0.5, 0, 0, 0, 0}
	for i := 0; i < 9; i++ {
		assert.InDelta(t, want[i], r.AtVec(i), 1e-12, "residual %d", i)
	}
}

func TestNilJacobiansSkipComputation(t *testing.T) {
	p := buildPreintegrator(t, preintegration.Bias{})
	f := New(1, 2, 3, 4, 5, p, testGravity, testCoriolis, true)

	poseI := spatial.Pose3{Rot: spatial.RotRPY(0.2, 0.1, -0.3), Trans: spatial.Vec3{1, 2, 3}}
	poseJ := spatial.Pose3{Rot: spatial.RotRPY(0.25, 0.05, -0.2), Trans: spatial.Vec3{1.5, 2, 3.1}}
	velI := spatial.Vec3{1, 0, 0}
	velJ := spatial.Vec3{1.2, -0.1, 0}
	bias := preintegration.Bias{Acc: spatial.Vec3{0.01, 0, 0}}

	var h1, h2, h3, h4, h5 mat.Dense
	withH := f.Evaluate(poseI, velI, poseJ, velJ, bias, &h1, &h2, &h3, &h4, &h5)
	without := f.Evaluate(poseI, velI, poseJ, velJ, bias, nil, nil, nil, nil, nil)

	for i := 0; i < 9; i++ {
		assert.Equal(t, withH.AtVec(i), without.AtVec(i), "residual %d", i)
	}

	r, c := h1.Dims()
	assert.Equal(t, 9, r)
	assert.Equal(t, 6, c)
	r, c = h2.Dims()
	assert.Equal(t, 9, r)
	assert.Equal(t, 3, c)

	// Only the velocity blocks requested.
	var onlyH2, onlyH4 mat.Dense
	f.Evaluate(poseI, velI, poseJ, velJ, bias, nil, &onlyH2, nil, &onlyH4, nil)
	for i := 0; i < 9; i++ {
		for j := 0; j < 3; j++ {
			assert.Equal(t, h2.At(i, j), onlyH2.At(i, j))
			assert.Equal(t, h4.At(i, j), onlyH4.At(i, j))
		}
	}
}

// TestJacobiansNumeric verifies all five analytic blocks against central
// finite differences over the variables' local parameterizations, with
// Coriolis terms and bias drift switched on so every term contributes.
func TestJacobiansNumeric(t *testing.T) {
	biasHat := preintegration.Bias{
		Acc:  spatial.Vec3{0.05, -0.02, 0.1},
		Gyro: spatial.Vec3{0.01, 0.005, -0.02},
	}
	p := buildPreintegrator(t, biasHat)
	f := New(1, 2, 3, 4, 5, p, testGravity, testCoriolis, true)

	poseI := spatial.Pose3{
		Rot:   spatial.RotRPY(0.1, -0.2, 0.7),
		Trans: spatial.Vec3{10, -5, 2},
	}
	velI := spatial.Vec3{1, -2, 0.5}
	// A deliberately wrong end state so the residual is nonzero, and a bias
	// estimate that drifted since integration.
	poseJ := spatial.Pose3{
		Rot:   spatial.RotRPY(0.15, -0.1, 0.8),
		Trans: spatial.Vec3{10.4, -5.8, 1.1},
	}
	velJ := spatial.Vec3{0.8, -1.5, 0.2}
	biasI := preintegration.Bias{
		Acc:  biasHat.Acc.Add(spatial.Vec3{0.01, -0.005, 0.002}),
		Gyro: biasHat.Gyro.Add(spatial.Vec3{-0.003, 0.001, 0.004}),
	}

	eval := func(pi spatial.Pose3, vi spatial.Vec3, pj spatial.Pose3, vj spatial.Vec3,
		b preintegration.Bias) *mat.VecDense {
		return f.Evaluate(pi, vi, pj, vj, b, nil, nil, nil, nil, nil)
	}

	var h1, h2, h3, h4, h5 mat.Dense
	f.Evaluate(poseI, velI, poseJ, velJ, biasI, &h1, &h2, &h3, &h4, &h5)

	const eps = 1e-6
	const tol = 1e-5

	unit := func(k int) spatial.Vec3 {
		var v spatial.Vec3
		v[k%3] = eps
		return v
	}

	checkColumn := func(t *testing.T, h *mat.Dense, col int, plus, minus *mat.VecDense) {
		t.Helper()
		for i := 0; i < 9; i++ {
			num := (plus.AtVec(i) - minus.AtVec(i)) / (2 * eps)
			assert.InDelta(t, num, h.At(i, col), tol, "row %d col %d", i, col)
		}
	}

	t.Run("H1 poseI", func(t *testing.T) {
		for k := 0; k < 6; k++ {
			var plus, minus spatial.Pose3
			if k < 3 {
				plus = poseI.Retract(unit(k), spatial.Vec3{})
				minus = poseI.Retract(unit(k).Scale(-1), spatial.Vec3{})
			} else {
				plus = poseI.Retract(spatial.Vec3{}, unit(k))
				minus = poseI.Retract(spatial.Vec3{}, unit(k).Scale(-1))
			}
			checkColumn(t, &h1, k,
				eval(plus, velI, poseJ, velJ, biasI),
				eval(minus, velI, poseJ, velJ, biasI))
		}
	})

	t.Run("H2 velI", func(t *testing.T) {
		for k := 0; k < 3; k++ {
			checkColumn(t, &h2, k,
				eval(poseI, velI.Add(unit(k)), poseJ, velJ, biasI),
				eval(poseI, velI.Sub(unit(k)), poseJ, velJ, biasI))
		}
	})

	t.Run("H3 poseJ", func(t *testing.T) {
		for k := 0; k < 6; k++ {
			var plus, minus spatial.Pose3
			if k < 3 {
				plus = poseJ.Retract(unit(k), spatial.Vec3{})
				minus = poseJ.Retract(unit(k).Scale(-1), spatial.Vec3{})
			} else {
				plus = poseJ.Retract(spatial.Vec3{}, unit(k))
				minus = poseJ.Retract(spatial.Vec3{}, unit(k).Scale(-1))
			}
			checkColumn(t, &h3, k,
				eval(poseI, velI, plus, velJ, biasI),
				eval(poseI, velI, minus, velJ, biasI))
		}
	})

	t.Run("H4 velJ", func(t *testing.T) {
		for k := 0; k < 3; k++ {
			checkColumn(t, &h4, k,
				eval(poseI, velI, poseJ, velJ.Add(unit(k)), biasI),
				eval(poseI, velI, poseJ, velJ.Sub(unit(k)), biasI))
		}
	})

	t.Run("H5 biasI", func(t *testing.T) {
		for k := 0; k < 6; k++ {
			plus, minus := biasI, biasI
			if k < 3 {
				plus.Acc = plus.Acc.Add(unit(k))
				minus.Acc = minus.Acc.Sub(unit(k))
			} else {
				plus.Gyro = plus.Gyro.Add(unit(k))
				minus.Gyro = minus.Gyro.Sub(unit(k))
			}
			checkColumn(t, &h5, k,
				eval(poseI, velI, poseJ, velJ, plus),
				eval(poseI, velI, poseJ, velJ, minus))
		}
	})
}

func TestBiasCorrectionMatchesReintegration(t *testing.T) {
	// The first-order bias correction in the factor must track a full
	// re-integration with the true bias, to first order in the drift.
	trueBias := preintegration.Bias{
		Acc:  spatial.Vec3{0.051, -0.019, 0.1005},
		Gyro: spatial.Vec3{0.0102, 0.0049, -0.0198},
	}
	usedBias := preintegration.Bias{
		Acc:  spatial.Vec3{0.05, -0.02, 0.1},
		Gyro: spatial.Vec3{0.01, 0.005, -0.02},
	}

	pUsed := buildPreintegrator(t, usedBias)
	pTrue := buildPreintegrator(t, trueBias)

	f := New(1, 2, 3, 4, 5, pUsed, testGravity, spatial.Vec3{}, false)

	poseI := spatial.PoseIdentity()
	velI := spatial.Vec3{}
	poseJ, velJ := f.Predict(poseI, velI, trueBias)

	fTrue := New(1, 2, 3, 4, 5, pTrue, testGravity, spatial.Vec3{}, false)
	r := fTrue.Evaluate(poseI, velI, poseJ, velJ, trueBias, nil, nil, nil, nil, nil)

	// Drift is ~1e-3, so the quadratic remainder is well below 1e-4.
	for i := 0; i < 9; i++ {
		assert.InDelta(t, 0, r.AtVec(i), 1e-4, "residual %d", i)
	}
}
