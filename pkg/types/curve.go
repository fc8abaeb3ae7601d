// Copyright Volt Labs Inc., 2026. All rights reserved.

// Package types defines the shared value types used across the fitting
// pipeline: voltage curves, fit parameters, fit summaries, and
// configuration structs.
package types

import "fmt"

// Curve holds ordered (soc, voltage) samples for one electrode or the
// full cell. SOC is the normalized coordinate on [0, 1]; for a half cell
// it is the electrode stoichiometry. By convention, negative-electrode
// voltage decreases with soc while positive-electrode and full-cell
// voltage increase; the fitting engine does not verify this.
type Curve struct {
	SOC     []float64 `json:"soc" yaml:"soc"`
	Voltage []float64 `json:"voltage" yaml:"voltage"`
}

// Len returns the number of samples.
func (c Curve) Len() int {
	return len(c.SOC)
}

// Validate reports whether the curve is usable: equal-length columns and
// at least two samples.
func (c Curve) Validate() error {
	if len(c.SOC) != len(c.Voltage) {
		return fmt.Errorf("curve has %d soc values but %d voltages", len(c.SOC), len(c.Voltage))
	}
	if len(c.SOC) < 2 {
		return fmt.Errorf("curve needs at least 2 samples, has %d", len(c.SOC))
	}
	return nil
}
