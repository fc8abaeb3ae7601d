// Copyright Volt Labs Inc., 2026. All rights reserved.

package results

import (
	"encoding/json"
	"fmt"
	"math"
)

// AgingRow holds the degradation metrics derived from one fitted
// stoichiometry window: theoretical electrode capacities, loss of active
// material per electrode, and loss of lithium inventory, each with a
// first-order propagated uncertainty. Losses are relative to the first
// row of the table.
type AgingRow struct {
	Qn     float64 `json:"Qn" yaml:"Qn"`
	QnStd  float64 `json:"Qn_std" yaml:"Qn_std"`
	Qp     float64 `json:"Qp" yaml:"Qp"`
	QpStd  float64 `json:"Qp_std" yaml:"Qp_std"`
	LAMn   float64 `json:"LAMn" yaml:"LAMn"`
	LAMnSd float64 `json:"LAMn_std" yaml:"LAMn_std"`
	LAMp   float64 `json:"LAMp" yaml:"LAMp"`
	LAMpSd float64 `json:"LAMp_std" yaml:"LAMp_std"`
	LLI    float64 `json:"LLI" yaml:"LLI"`
	LLISd  float64 `json:"LLI_std" yaml:"LLI_std"`
}

// MarshalJSON writes NaN uncertainties as null. Rows fitted without
// uncertainty estimates carry NaN, which encoding/json rejects.
func (r AgingRow) MarshalJSON() ([]byte, error) {
	num := func(v float64) any {
		if math.IsNaN(v) {
			return nil
		}
		return v
	}
	return json.Marshal(map[string]any{
		"Qn":       r.Qn,
		"Qn_std":   num(r.QnStd),
		"Qp":       r.Qp,
		"Qp_std":   num(r.QpStd),
		"LAMn":     r.LAMn,
		"LAMn_std": num(r.LAMnSd),
		"LAMp":     r.LAMp,
		"LAMp_std": num(r.LAMpSd),
		"LLI":      r.LLI,
		"LLI_std":  num(r.LLISd),
	})
}

// Aging computes electrode capacities, LAM, and LLI for every row of the
// table. Electrode capacity is the measured capacity divided by the
// window width, Q = Ah/(x1-x0); LAM is 1 - Q/Q[0]; lithium inventory is
// xn1*Qn + (1-xp1)*Qp and LLI is 1 - inv/inv[0]. Uncertainties propagate
// from the parameter standard deviations under a first-order Taylor
// assumption and come out NaN for rows without uncertainty estimates.
func Aging(t *Table) ([]AgingRow, error) {
	if t == nil || len(t.Rows) == 0 {
		return nil, fmt.Errorf("aging requires a non-empty fit table")
	}
	for i, r := range t.Rows {
		if r.Params.Xn1 <= r.Params.Xn0 || r.Params.Xp1 <= r.Params.Xp0 {
			return nil, fmt.Errorf("row %d has a non-positive stoichiometry window", i)
		}
	}

	out := make([]AgingRow, len(t.Rows))

	var qn0, qp0, inv0 float64
	for i, r := range t.Rows {
		p := r.Params
		sd := r.stdevOrNaN()

		wn := p.Xn1 - p.Xn0
		wp := p.Xp1 - p.Xp0

		qn := r.Ah / wn
		qp := r.Ah / wp

		// |dQ/dx0| = |dQ/dx1| = Ah/w^2 for both electrodes.
		dqn := r.Ah / (wn * wn)
		dqp := r.Ah / (wp * wp)

		qnStd := math.Sqrt((dqn*sd.Xn0)*(dqn*sd.Xn0) + (dqn*sd.Xn1)*(dqn*sd.Xn1))
		qpStd := math.Sqrt((dqp*sd.Xp0)*(dqp*sd.Xp0) + (dqp*sd.Xp1)*(dqp*sd.Xp1))

		inv := p.Xn1*qn + (1-p.Xp1)*qp

		// Partials of the inventory with respect to each stoichiometry.
		dInvXn0 := p.Xn1 * dqn
		dInvXn1 := qn - p.Xn1*dqn
		dInvXp0 := (1 - p.Xp1) * dqp
		dInvXp1 := qp + (1-p.Xp1)*dqp

		invStd := math.Sqrt(
			(dInvXn0*sd.Xn0)*(dInvXn0*sd.Xn0) +
				(dInvXn1*sd.Xn1)*(dInvXn1*sd.Xn1) +
				(dInvXp0*sd.Xp0)*(dInvXp0*sd.Xp0) +
				(dInvXp1*sd.Xp1)*(dInvXp1*sd.Xp1))

		if i == 0 {
			qn0, qp0, inv0 = qn, qp, inv
		}

		out[i] = AgingRow{
			Qn:     qn,
			QnStd:  qnStd,
			Qp:     qp,
			QpStd:  qpStd,
			LAMn:   1 - qn/qn0,
			LAMnSd: qnStd / qn0,
			LAMp:   1 - qp/qp0,
			LAMpSd: qpStd / qp0,
			LLI:    1 - inv/inv0,
			LLISd:  invStd / inv0,
		}
	}
	return out, nil
}
