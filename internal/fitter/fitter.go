// Copyright Volt Labs Inc., 2026. All rights reserved.

// Package fitter implements the stoichiometry-window fitting engine.
// A Fitter owns spline models for the negative electrode, positive
// electrode, and full cell, synthesizes full-cell voltage and
// differential-capacity curves from trial window parameters, and scores
// them against the measured cell curve with normalized error terms. Grid
// search provides a coarse warm start; a projected trust-region solver
// refines it under the electrode ordering constraints.
package fitter

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/voltlab/ocvfit/internal/spline"
	"github.com/voltlab/ocvfit/pkg/types"
)

// gridPoints is the fixed resolution of the shared SOC grid the
// full-cell data is resampled onto when the cell dataset is assigned.
const gridPoints = 201

// Domain names one of the three curve domains.
type Domain string

const (
	DomainNeg  Domain = "neg"
	DomainPos  Domain = "pos"
	DomainCell Domain = "cell"
)

// Fitter holds the three datasets and the active cost-term selection.
// It is long-lived and mutable: datasets and cost terms can be swapped
// between fits to amortize spline construction over a cell's life. It is
// not safe for concurrent use; run concurrent fits on separate Fitters.
type Fitter struct {
	costTerms types.CostTerm

	neg  *spline.Model
	pos  *spline.Model
	cell *spline.Model

	// Fixed-resolution data arrays, rebuilt when the cell dataset is
	// assigned. Every candidate fit is scored against these.
	soc      []float64
	voltData []float64
	dvdqData []float64
	dqdvData []float64
}

// New returns a Fitter with the given cost-term selection and no
// datasets. All three datasets must be set before evaluating.
func New(costTerms types.CostTerm) (*Fitter, error) {
	if err := costTerms.Validate(); err != nil {
		return nil, err
	}
	return &Fitter{costTerms: costTerms}, nil
}

// CostTerms returns the active cost-term selection.
func (f *Fitter) CostTerms() types.CostTerm {
	return f.costTerms
}

// SetCostTerms replaces the active cost-term selection.
func (f *Fitter) SetCostTerms(t types.CostTerm) error {
	if err := t.Validate(); err != nil {
		return err
	}
	f.costTerms = t
	return nil
}

// SetNegative assigns the negative-electrode OCV curve and rebuilds its
// spline. Voltage must decrease with stoichiometry; this is an input
// contract, not something the fitter checks.
func (f *Fitter) SetNegative(c types.Curve) error {
	m, err := spline.New(c)
	if err != nil {
		return fmt.Errorf("neg: %w", err)
	}
	f.neg = m
	return nil
}

// SetPositive assigns the positive-electrode OCV curve and rebuilds its
// spline.
func (f *Fitter) SetPositive(c types.Curve) error {
	m, err := spline.New(c)
	if err != nil {
		return fmt.Errorf("pos: %w", err)
	}
	f.pos = m
	return nil
}

// SetCell assigns the full-cell OCV curve, rebuilds its spline, and
// resamples voltage, dV/dQ, and dQ/dV onto the fixed SOC grid. The
// resampled arrays are the data every candidate fit is scored against.
func (f *Fitter) SetCell(c types.Curve) error {
	m, err := spline.New(c)
	if err != nil {
		return fmt.Errorf("cell: %w", err)
	}
	f.cell = m

	f.soc = make([]float64, gridPoints)
	floats.Span(f.soc, 0, 1)

	f.voltData = make([]float64, gridPoints)
	f.dvdqData = make([]float64, gridPoints)
	f.dqdvData = make([]float64, gridPoints)
	for i, s := range f.soc {
		f.voltData[i] = m.Eval(s)
		f.dvdqData[i] = m.EvalDeriv(s)
		f.dqdvData[i] = 1 / f.dvdqData[i]
	}
	return nil
}

// checkReady returns a configuration error naming every missing dataset,
// or nil when all three splines are built.
func (f *Fitter) checkReady(op string) error {
	var missing []string
	if f.neg == nil {
		missing = append(missing, string(DomainNeg))
	}
	if f.pos == nil {
		missing = append(missing, string(DomainPos))
	}
	if f.cell == nil {
		missing = append(missing, string(DomainCell))
	}
	if len(missing) > 0 {
		return fmt.Errorf("cannot run %s until all data is available: missing [%s]", op, strings.Join(missing, " "))
	}
	return nil
}

func (f *Fitter) domainSpline(domain Domain) (*spline.Model, error) {
	var m *spline.Model
	switch domain {
	case DomainNeg:
		m = f.neg
	case DomainPos:
		m = f.pos
	case DomainCell:
		m = f.cell
	default:
		return nil, fmt.Errorf("domain must be one of [neg pos cell], got %q", domain)
	}
	if m == nil {
		return nil, fmt.Errorf("%s spline is not constructed yet: set the %s dataset first", domain, domain)
	}
	return m, nil
}

// OCV evaluates the voltage spline for the given domain.
func (f *Fitter) OCV(domain Domain, soc float64) (float64, error) {
	m, err := f.domainSpline(domain)
	if err != nil {
		return 0, err
	}
	return m.Eval(soc), nil
}

// DVDQ evaluates the voltage-derivative spline for the given domain.
func (f *Fitter) DVDQ(domain Domain, soc float64) (float64, error) {
	m, err := f.domainSpline(domain)
	if err != nil {
		return 0, err
	}
	return m.EvalDeriv(soc), nil
}

// DQDV evaluates the reciprocal voltage derivative for the given domain.
func (f *Fitter) DQDV(domain Domain, soc float64) (float64, error) {
	d, err := f.DVDQ(domain, soc)
	if err != nil {
		return 0, err
	}
	return 1 / d, nil
}

// splitParams validates the parameter vector, clips the four
// stoichiometry components into [0, 1], and returns the components.
// The clip protects against optimizer overshoot at bound edges. iR is 0
// when only four components are supplied.
func splitParams(params []float64) (xn0, xn1, xp0, xp1, iR float64, err error) {
	if len(params) != 4 && len(params) != 5 {
		err = fmt.Errorf("params must have 4 or 5 components, has %d", len(params))
		return
	}
	clip := func(v float64) float64 { return math.Min(1, math.Max(0, v)) }
	xn0, xn1 = clip(params[0]), clip(params[1])
	xp0, xp1 = clip(params[2]), clip(params[3])
	if len(params) == 5 {
		iR = params[4]
	}
	return
}

// ErrTerms holds the synthesized full-cell curves and their mean
// absolute percentage errors against the resampled measured data.
type ErrTerms struct {
	SOC []float64

	VoltFit  []float64
	VoltData []float64
	DqdvFit  []float64
	DqdvData []float64
	DvdqFit  []float64
	DvdqData []float64

	// Mean absolute percentage errors. The normalization keeps voltage,
	// dQ/dV, and dV/dQ comparable despite differing units, so the terms
	// can be summed in one objective.
	VoltErr float64
	DqdvErr float64
	DvdqErr float64
}

// ErrTerms synthesizes the full-cell curves for the trial parameters and
// scores them against the measured data. params is (xn0, xn1, xp0, xp1)
// with an optional trailing iR.
func (f *Fitter) ErrTerms(params []float64) (ErrTerms, error) {
	if err := f.checkReady("ErrTerms"); err != nil {
		return ErrTerms{}, err
	}
	xn0, xn1, xp0, xp1, iR, err := splitParams(params)
	if err != nil {
		return ErrTerms{}, err
	}

	n := len(f.soc)
	terms := ErrTerms{
		SOC:      f.soc,
		VoltFit:  make([]float64, n),
		VoltData: f.voltData,
		DqdvFit:  make([]float64, n),
		DqdvData: f.dqdvData,
		DvdqFit:  make([]float64, n),
		DvdqData: f.dvdqData,
	}

	dxn := xn1 - xn0
	dxp := xp1 - xp0

	var voltSum, dqdvSum, dvdqSum float64
	for i, s := range f.soc {
		xNeg := xn0 + dxn*s
		xPos := xp0 + dxp*s

		volt := f.pos.Eval(xPos) - f.neg.Eval(xNeg) - iR
		dvdq := f.pos.EvalDeriv(xPos)*dxp - f.neg.EvalDeriv(xNeg)*dxn
		dqdv := 1 / dvdq

		terms.VoltFit[i] = volt
		terms.DvdqFit[i] = dvdq
		terms.DqdvFit[i] = dqdv

		voltSum += math.Abs((volt - f.voltData[i]) / f.voltData[i])
		dqdvSum += math.Abs((dqdv - f.dqdvData[i]) / f.dqdvData[i])
		dvdqSum += math.Abs((dvdq - f.dvdqData[i]) / f.dvdqData[i])
	}

	terms.VoltErr = voltSum / float64(n) * 100
	terms.DqdvErr = dqdvSum / float64(n) * 100
	terms.DvdqErr = dvdqSum / float64(n) * 100
	return terms, nil
}

// evalErrors computes the three percentage errors without materializing
// the fitted curves. It backs the hot optimization loops; callers must
// have checked readiness.
func (f *Fitter) evalErrors(params []float64) (voltErr, dqdvErr, dvdqErr float64) {
	xn0, xn1, xp0, xp1, iR, _ := splitParams(params)

	dxn := xn1 - xn0
	dxp := xp1 - xp0

	var voltSum, dqdvSum, dvdqSum float64
	for i, s := range f.soc {
		xNeg := xn0 + dxn*s
		xPos := xp0 + dxp*s

		volt := f.pos.Eval(xPos) - f.neg.Eval(xNeg) - iR
		dvdq := f.pos.EvalDeriv(xPos)*dxp - f.neg.EvalDeriv(xNeg)*dxn

		voltSum += math.Abs((volt - f.voltData[i]) / f.voltData[i])
		dqdvSum += math.Abs((1/dvdq - f.dqdvData[i]) / f.dqdvData[i])
		dvdqSum += math.Abs((dvdq - f.dvdqData[i]) / f.dvdqData[i])
	}

	n := float64(len(f.soc))
	return voltSum / n * 100, dqdvSum / n * 100, dvdqSum / n * 100
}

// objectiveScale keeps gradient magnitudes in a numerically convenient
// range; it does not change relative weighting between terms.
const objectiveScale = 1e-2

// objective is the scalar cost shared by grid search and the constrained
// fit: the sum of the selected percentage errors, uniformly scaled.
func (f *Fitter) objective(params []float64) float64 {
	voltErr, dqdvErr, dvdqErr := f.evalErrors(params)

	total := 0.0
	if f.costTerms.Has(types.CostVoltage) {
		total += voltErr * objectiveScale
	}
	if f.costTerms.Has(types.CostDqdv) {
		total += dqdvErr * objectiveScale
	}
	if f.costTerms.Has(types.CostDvdq) {
		total += dvdqErr * objectiveScale
	}
	return total
}

// ssr is the unweighted sum of squared residuals over the active cost
// terms. It is the objective the uncertainty Hessian differentiates:
// raw squared differences, no percentage normalization.
func (f *Fitter) ssr(params []float64) float64 {
	xn0, xn1, xp0, xp1, iR, _ := splitParams(params)

	dxn := xn1 - xn0
	dxp := xp1 - xp0

	var voltSSR, dqdvSSR, dvdqSSR float64
	for i, s := range f.soc {
		xNeg := xn0 + dxn*s
		xPos := xp0 + dxp*s

		volt := f.pos.Eval(xPos) - f.neg.Eval(xNeg) - iR
		dvdq := f.pos.EvalDeriv(xPos)*dxp - f.neg.EvalDeriv(xNeg)*dxn

		voltSSR += (volt - f.voltData[i]) * (volt - f.voltData[i])
		dqdvSSR += (1/dvdq - f.dqdvData[i]) * (1/dvdq - f.dqdvData[i])
		dvdqSSR += (dvdq - f.dvdqData[i]) * (dvdq - f.dvdqData[i])
	}

	total := 0.0
	if f.costTerms.Has(types.CostVoltage) {
		total += voltSSR
	}
	if f.costTerms.Has(types.CostDqdv) {
		total += dqdvSSR
	}
	if f.costTerms.Has(types.CostDvdq) {
		total += dvdqSSR
	}
	return total
}
