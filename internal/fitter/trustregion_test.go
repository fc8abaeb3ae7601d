// Copyright Volt Labs Inc., 2026. All rights reserved.

package fitter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestProject(t *testing.T) {
	p := &trustProblem{
		lower: []float64{0, 0, 0, 0, math.Inf(-1)},
		upper: []float64{1, 1, 1, 1, math.Inf(1)},
	}

	t.Run("clamps into box", func(t *testing.T) {
		x := []float64{-0.5, 1.5, 0.5, 0.6, 2}
		p.project(x)
		assert.Equal(t, []float64{0, 1, 0.5, 0.6, 2}, x)
	})

	t.Run("snaps inverted pairs to midpoint", func(t *testing.T) {
		x := []float64{0.8, 0.2, 0.9, 0.3, 0}
		p.project(x)
		assert.Equal(t, 0.5, x[0])
		assert.Equal(t, 0.5, x[1])
		assert.Equal(t, 0.6, x[2])
		assert.Equal(t, 0.6, x[3])
	})

	t.Run("feasible points pass through", func(t *testing.T) {
		x := []float64{0.1, 0.9, 0.2, 0.8, -0.3}
		p.project(x)
		assert.Equal(t, []float64{0.1, 0.9, 0.2, 0.8, -0.3}, x)
	})
}

func TestGradientAndHessian_Quadratic(t *testing.T) {
	// f(x) = 2 x0^2 + 3 x1^2 + x0 x1
	fn := func(x []float64) float64 {
		return 2*x[0]*x[0] + 3*x[1]*x[1] + x[0]*x[1]
	}
	p := &trustProblem{fn: fn}
	at := []float64{0.3, -0.2}

	g := p.gradient(at)
	assert.InDelta(t, 4*at[0]+at[1], g[0], 1e-6)
	assert.InDelta(t, 6*at[1]+at[0], g[1], 1e-6)

	hess := p.hessian(at)
	assert.InDelta(t, 4, hess.At(0, 0), 1e-4)
	assert.InDelta(t, 6, hess.At(1, 1), 1e-4)
	assert.InDelta(t, 1, hess.At(0, 1), 1e-4)
}

func TestTrustStep_TakesNewtonStepInsideRadius(t *testing.T) {
	// Convex quadratic with identity curvature: the unconstrained
	// minimizer of the model is -g, which fits inside a radius of 2.
	hess := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	g := []float64{0.5, -0.5}

	step := trustStep(g, hess, 2)
	assert.InDelta(t, -0.5, step[0], 1e-10)
	assert.InDelta(t, 0.5, step[1], 1e-10)
}

func TestTrustStep_RespectsRadius(t *testing.T) {
	hess := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	g := []float64{10, 0}

	step := trustStep(g, hess, 0.1)
	norm := math.Hypot(step[0], step[1])
	assert.InDelta(t, 0.1, norm, 1e-6)
	assert.Negative(t, step[0], "step descends against the gradient")
}

func TestTrustStep_IndefiniteCurvature(t *testing.T) {
	// A negative eigenvalue must not produce an ascent direction; the
	// spectrum shift keeps the step bounded and descending.
	hess := mat.NewSymDense(2, []float64{-1, 0, 0, 1})
	g := []float64{1, 1}

	step := trustStep(g, hess, 0.5)
	norm := math.Hypot(step[0], step[1])
	assert.LessOrEqual(t, norm, 0.5+1e-6)
}

func TestUpdateBFGS_SatisfiesSecantCondition(t *testing.T) {
	b := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	s := []float64{0.1, -0.2}
	// Gradient difference sampled from curvature diag(4, 6).
	y := []float64{0.4, -1.2}

	updateBFGS(b, s, y)

	assert.InDelta(t, y[0], b.At(0, 0)*s[0]+b.At(0, 1)*s[1], 1e-12)
	assert.InDelta(t, y[1], b.At(1, 0)*s[0]+b.At(1, 1)*s[1], 1e-12)
}

func TestUpdateBFGS_DampsNegativeCurvature(t *testing.T) {
	b := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	s := []float64{1, 0}
	y := []float64{-1, 0}

	updateBFGS(b, s, y)

	// Powell damping pulls the sampled direction toward the existing
	// model instead of driving the diagonal negative.
	assert.InDelta(t, 0.2, b.At(0, 0), 1e-12)
	assert.Positive(t, b.At(0, 0))
	assert.Equal(t, 1.0, b.At(1, 1))
}

func TestMinimizeTrustRegion_BoundConstrainedQuadratic(t *testing.T) {
	// The unconstrained minimizer (2, 3, 0, 0) sits outside the box, so
	// the solution lands on the corner (1, 1, 0, 0), which satisfies
	// both ordering constraints as equalities.
	fn := func(x []float64) float64 {
		return (x[0]-2)*(x[0]-2) + (x[1]-3)*(x[1]-3) + x[2]*x[2] + x[3]*x[3]
	}

	res := minimizeTrustRegion(fn,
		[]float64{0.2, 0.4, 0.3, 0.6},
		[]float64{0, 0, 0, 0},
		[]float64{1, 1, 1, 1},
		1e-8, 1000)

	assert.True(t, res.Success, "message: %s", res.Message)
	assert.InDelta(t, 1, res.X[0], 1e-6)
	assert.InDelta(t, 1, res.X[1], 1e-6)
	assert.InDelta(t, 0, res.X[2], 1e-6)
	assert.InDelta(t, 0, res.X[3], 1e-6)
	assert.Positive(t, res.NumEval)
}

func TestMinimizeTrustRegion_OrderingKeptThroughout(t *testing.T) {
	// The unconstrained minimizer has x0 > x1; under x0 <= x1 the
	// separable quadratic is minimized at their snapped midpoint 0.5.
	fn := func(x []float64) float64 {
		return (x[0]-0.9)*(x[0]-0.9) + (x[1]-0.1)*(x[1]-0.1) +
			(x[2]-0.2)*(x[2]-0.2) + (x[3]-0.8)*(x[3]-0.8)
	}

	res := minimizeTrustRegion(fn,
		[]float64{0.2, 0.8, 0.2, 0.8},
		[]float64{0, 0, 0, 0},
		[]float64{1, 1, 1, 1},
		1e-8, 1000)

	assert.True(t, res.Success, "message: %s", res.Message)
	assert.LessOrEqual(t, res.X[0], res.X[1]+1e-12)
	assert.InDelta(t, 0.5, res.X[0], 1e-3)
	assert.InDelta(t, 0.5, res.X[1], 1e-3)
	assert.InDelta(t, 0.2, res.X[2], 1e-3)
	assert.InDelta(t, 0.8, res.X[3], 1e-3)
}

func TestMinimizeTrustRegion_MaxIterReportsFailure(t *testing.T) {
	fn := func(x []float64) float64 {
		return (x[0]-2)*(x[0]-2) + (x[1]-3)*(x[1]-3) + x[2]*x[2] + x[3]*x[3]
	}

	res := minimizeTrustRegion(fn,
		[]float64{0.2, 0.4, 0.3, 0.6},
		[]float64{0, 0, 0, 0},
		[]float64{1, 1, 1, 1},
		1e-12, 1)

	assert.False(t, res.Success)
	assert.Equal(t, "Maximum number of iterations reached.", res.Message)
	require.Len(t, res.X, 4)
}
