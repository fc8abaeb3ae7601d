// Copyright Volt Labs Inc., 2026. All rights reserved.

package fitter

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// The local solver is a projected trust-region method with damped BFGS
// curvature: a quadratic model built from finite-difference gradients is
// minimized inside the trust radius, and each candidate is projected
// back onto the feasible set before acceptance. The feasible set is the
// box bounds intersected with the electrode ordering constraints
// xn0 <= xn1 and xp0 <= xp1, so every iterate is feasible; the
// constraints are enforced by construction, not by a penalty.
//
// Curvature comes from BFGS updates of gradient differences, never from
// second differences of the objective: the objective sums absolute
// residuals, and differencing twice across their kinks produces spurious
// curvature on the order of |slope|/h that stalls the iteration in the
// shallow valley near the optimum. gonum/optimize offers no constrained
// method, so the loop lives here on top of gonum/mat.

// orderedPairs are the index pairs (lower, upper) the ordering
// constraints apply to.
var orderedPairs = [2][2]int{{0, 1}, {2, 3}}

const (
	initialTrustRadius = 0.1
	maxTrustRadius     = 10.0
	gradStep           = 1e-6
	hessStep           = 1e-5
	maxBacktracks      = 40
)

// trustResult carries the raw state of a finished minimization.
type trustResult struct {
	X            []float64
	Fun          float64
	NumEval      int
	Iterations   int
	Success      bool
	Message      string
	TrustRadius  float64
	GradientNorm float64
}

type trustProblem struct {
	fn           func([]float64) float64
	lower, upper []float64
	nfev         int
}

func (p *trustProblem) eval(x []float64) float64 {
	p.nfev++
	return p.fn(x)
}

// project moves x onto the feasible set: clamp into the box, then snap
// any inverted pair to its midpoint inside the overlap of the two box
// intervals. The boxes of a pair share a center construction, so the
// overlap is never empty.
func (p *trustProblem) project(x []float64) {
	for i := range x {
		x[i] = math.Min(p.upper[i], math.Max(p.lower[i], x[i]))
	}
	for _, pr := range orderedPairs {
		i, j := pr[0], pr[1]
		if x[i] > x[j] {
			mid := 0.5 * (x[i] + x[j])
			lo := math.Max(p.lower[i], p.lower[j])
			hi := math.Min(p.upper[i], p.upper[j])
			mid = math.Min(hi, math.Max(lo, mid))
			x[i], x[j] = mid, mid
		}
	}
}

// gradient estimates the objective gradient by central differences.
func (p *trustProblem) gradient(x []float64) []float64 {
	g := make([]float64, len(x))
	xx := append([]float64(nil), x...)
	for i := range x {
		h := gradStep * math.Max(1, math.Abs(x[i]))
		xx[i] = x[i] + h
		fp := p.eval(xx)
		xx[i] = x[i] - h
		fm := p.eval(xx)
		xx[i] = x[i]
		g[i] = (fp - fm) / (2 * h)
	}
	return g
}

// hessian estimates a Hessian by central second differences. The
// optimization loop never calls it; it serves the uncertainty estimate,
// whose squared-residual objective is smooth.
func (p *trustProblem) hessian(x []float64) *mat.SymDense {
	n := len(x)
	h := make([]float64, n)
	for i := range x {
		h[i] = hessStep * math.Max(1, math.Abs(x[i]))
	}

	fx := p.eval(x)
	hess := mat.NewSymDense(n, nil)
	xx := append([]float64(nil), x...)

	for i := 0; i < n; i++ {
		xx[i] = x[i] + h[i]
		fp := p.eval(xx)
		xx[i] = x[i] - h[i]
		fm := p.eval(xx)
		xx[i] = x[i]
		hess.SetSym(i, i, (fp-2*fx+fm)/(h[i]*h[i]))

		for j := i + 1; j < n; j++ {
			xx[i], xx[j] = x[i]+h[i], x[j]+h[j]
			fpp := p.eval(xx)
			xx[j] = x[j] - h[j]
			fpm := p.eval(xx)
			xx[i] = x[i] - h[i]
			fmm := p.eval(xx)
			xx[j] = x[j] + h[j]
			fmp := p.eval(xx)
			xx[i], xx[j] = x[i], x[j]
			hess.SetSym(i, j, (fpp-fpm-fmp+fmm)/(4*h[i]*h[j]))
		}
	}
	return hess
}

// lineCandidate projects x+step onto the feasible set and, while the
// projected point does not decrease the objective, halves the step. It
// reports failure when the point stops moving or no decrease is found.
func (p *trustProblem) lineCandidate(x []float64, fx float64, step []float64) ([]float64, float64, bool) {
	s := append([]float64(nil), step...)
	cand := make([]float64, len(x))
	for k := 0; k < maxBacktracks; k++ {
		floats.AddTo(cand, x, s)
		p.project(cand)

		moved := false
		for i := range cand {
			if cand[i] != x[i] {
				moved = true
				break
			}
		}
		if !moved {
			return nil, 0, false
		}
		if fc := p.eval(cand); fc < fx {
			return cand, fc, true
		}
		floats.Scale(0.5, s)
	}
	return nil, 0, false
}

// trustStep solves the trust-region subproblem min g.p + p'Bp/2 subject
// to |p| <= delta via the eigendecomposition of B, shifting the spectrum
// until the step fits inside the radius.
func trustStep(g []float64, hess *mat.SymDense, delta float64) []float64 {
	n := len(g)

	var eig mat.EigenSym
	if !eig.Factorize(hess, true) {
		// Model curvature is unusable (NaN or failed factorization):
		// fall back to a steepest-descent step of length delta.
		return scaledDescent(g, delta)
	}

	vals := eig.Values(nil)
	var q mat.Dense
	eig.VectorsTo(&q)

	// gh = Q' g
	gh := make([]float64, n)
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			gh[k] += q.At(i, k) * g[i]
		}
	}

	solve := func(lambda float64) []float64 {
		p := make([]float64, n)
		for k := 0; k < n; k++ {
			d := vals[k] + lambda
			if d <= 0 {
				continue
			}
			c := -gh[k] / d
			for i := 0; i < n; i++ {
				p[i] += c * q.At(i, k)
			}
		}
		return p
	}

	lambda := 0.0
	if minEig := floats.Min(vals); minEig < 1e-10 {
		lambda = 1e-10 - minEig
	}

	p := solve(lambda)
	if floats.Norm(p, 2) <= delta {
		return p
	}

	// Bisect on the shift until the step length matches the radius.
	lo, hi := lambda, lambda+1
	for floats.Norm(solve(hi), 2) > delta {
		hi *= 2
		if hi > 1e16 {
			return scaledDescent(g, delta)
		}
	}
	for iter := 0; iter < 64; iter++ {
		mid := 0.5 * (lo + hi)
		if floats.Norm(solve(mid), 2) > delta {
			lo = mid
		} else {
			hi = mid
		}
	}
	return solve(hi)
}

func scaledDescent(g []float64, delta float64) []float64 {
	p := make([]float64, len(g))
	norm := floats.Norm(g, 2)
	if norm == 0 || math.IsNaN(norm) {
		return p
	}
	for i := range g {
		p[i] = -g[i] / norm * delta
	}
	return p
}

// updateBFGS applies a damped BFGS update to the model curvature b given
// a step s and the gradient difference y across it. Powell damping keeps
// b positive definite when the sampled curvature is negative or
// vanishing; degenerate updates are skipped.
func updateBFGS(b *mat.SymDense, s, y []float64) {
	n := len(s)

	bs := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			bs[i] += b.At(i, j) * s[j]
		}
	}
	sBs := floats.Dot(s, bs)
	if sBs <= 0 || math.IsNaN(sBs) {
		return
	}

	sy := floats.Dot(s, y)
	yy := y
	if sy < 0.2*sBs {
		theta := 0.8 * sBs / (sBs - sy)
		yy = make([]float64, n)
		for i := range yy {
			yy[i] = theta*y[i] + (1-theta)*bs[i]
		}
		sy = floats.Dot(s, yy)
	}
	if sy <= 1e-12*sBs || math.IsNaN(sy) {
		return
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			b.SetSym(i, j, b.At(i, j)+yy[i]*yy[j]/sy-bs[i]*bs[j]/sBs)
		}
	}
}

// minimizeTrustRegion minimizes fn over the box [lower, upper] under the
// ordering constraints, starting from x0 (projected if infeasible).
// Every accepted move strictly decreases the objective; when neither the
// model step nor plain descent finds a decrease the iterate is a
// projected stationary point. Termination: accepted step below xtol or a
// stationary iterate (success), a vanishing gradient (success), or
// maxiter (failure).
func minimizeTrustRegion(fn func([]float64) float64, x0, lower, upper []float64, xtol float64, maxiter int) trustResult {
	p := &trustProblem{fn: fn, lower: lower, upper: upper}
	n := len(x0)

	x := append([]float64(nil), x0...)
	p.project(x)
	fx := p.eval(x)
	g := p.gradient(x)

	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		b.SetSym(i, i, 1)
	}

	delta := initialTrustRadius
	gradNorm := floats.Norm(g, 2)
	success := false
	message := "Maximum number of iterations reached."

	iter := 0
	for iter = 1; iter <= maxiter; iter++ {
		if gradNorm < 1e-14 {
			success = true
			message = "Local gradient vanished within tolerance."
			break
		}

		step := trustStep(g, b, delta)
		cand, fc, ok := p.lineCandidate(x, fx, step)
		if !ok {
			cand, fc, ok = p.lineCandidate(x, fx, scaledDescent(g, delta))
		}
		if !ok {
			success = true
			message = "`xtol` termination condition is satisfied."
			break
		}

		actualStep := make([]float64, n)
		floats.SubTo(actualStep, cand, x)

		actual := fx - fc
		predicted := -quadModel(g, b, actualStep)
		ratio := 0.0
		if predicted > 0 {
			ratio = actual / predicted
		}

		gNew := p.gradient(cand)
		y := make([]float64, n)
		floats.SubTo(y, gNew, g)
		updateBFGS(b, actualStep, y)

		copy(x, cand)
		fx = fc
		g = gNew
		gradNorm = floats.Norm(g, 2)

		if floats.Norm(actualStep, math.Inf(1)) < xtol {
			success = true
			message = "`xtol` termination condition is satisfied."
			break
		}

		stepLen := floats.Norm(actualStep, 2)
		if ratio > 0.75 && stepLen > 0.9*delta {
			delta = math.Min(2*delta, maxTrustRadius)
		} else if ratio < 0.25 {
			delta = math.Max(0.25*stepLen, xtol)
		}
	}
	if iter > maxiter {
		iter = maxiter
	}

	return trustResult{
		X:            x,
		Fun:          fx,
		NumEval:      p.nfev,
		Iterations:   iter,
		Success:      success,
		Message:      message,
		TrustRadius:  delta,
		GradientNorm: gradNorm,
	}
}

// quadModel evaluates g.p + p'Bp/2.
func quadModel(g []float64, hess *mat.SymDense, p []float64) float64 {
	v := floats.Dot(g, p)
	for i := range p {
		for j := range p {
			v += 0.5 * p[i] * hess.At(i, j) * p[j]
		}
	}
	return v
}
