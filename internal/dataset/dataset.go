// Copyright Volt Labs Inc., 2026. All rights reserved.

// Package dataset reads cleaned instrument CSV exports into curves the
// fitting engine consumes. Two layouts are supported: direct
// (soc, voltage) tables, and cycler logs of (seconds, amps, volts) that
// are integrated to capacity and normalized to SOC.
package dataset

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/voltlab/ocvfit/pkg/types"
)

// ReadCurve reads a CSV file with soc and voltage columns (header match
// is case-insensitive; extra columns are ignored) into a Curve.
func ReadCurve(path string) (types.Curve, error) {
	rows, err := readRows(path)
	if err != nil {
		return types.Curve{}, err
	}

	cols, err := columnIndex(rows[0], "soc", "voltage")
	if err != nil {
		return types.Curve{}, fmt.Errorf("%s: %w", path, err)
	}

	curve := types.Curve{}
	for i, row := range rows[1:] {
		soc, err := parseCell(row, cols[0], i+2)
		if err != nil {
			return types.Curve{}, fmt.Errorf("%s: soc: %w", path, err)
		}
		volt, err := parseCell(row, cols[1], i+2)
		if err != nil {
			return types.Curve{}, fmt.Errorf("%s: voltage: %w", path, err)
		}
		curve.SOC = append(curve.SOC, soc)
		curve.Voltage = append(curve.Voltage, volt)
	}

	if err := curve.Validate(); err != nil {
		return types.Curve{}, fmt.Errorf("%s: %w", path, err)
	}
	return curve, nil
}

// ReadCyclerLog reads a CSV file with seconds, amps, and volts columns,
// integrates current over time to capacity, and normalizes to SOC. The
// sign convention is positive current on charge, negative on discharge;
// a log whose mean current disagrees with its net voltage direction is
// rejected. For discharge data SOC runs from 1 down to 0. The second
// return value is the total capacity in Ah.
func ReadCyclerLog(path string) (types.Curve, float64, error) {
	rows, err := readRows(path)
	if err != nil {
		return types.Curve{}, 0, err
	}

	cols, err := columnIndex(rows[0], "seconds", "amps", "volts")
	if err != nil {
		return types.Curve{}, 0, fmt.Errorf("%s: %w", path, err)
	}

	n := len(rows) - 1
	if n < 2 {
		return types.Curve{}, 0, fmt.Errorf("%s: cycler log needs at least 2 samples, has %d", path, n)
	}

	seconds := make([]float64, n)
	amps := make([]float64, n)
	volts := make([]float64, n)
	for i, row := range rows[1:] {
		if seconds[i], err = parseCell(row, cols[0], i+2); err != nil {
			return types.Curve{}, 0, fmt.Errorf("%s: seconds: %w", path, err)
		}
		if amps[i], err = parseCell(row, cols[1], i+2); err != nil {
			return types.Curve{}, 0, fmt.Errorf("%s: amps: %w", path, err)
		}
		if volts[i], err = parseCell(row, cols[2], i+2); err != nil {
			return types.Curve{}, 0, fmt.Errorf("%s: volts: %w", path, err)
		}
	}

	isNetCharge := volts[0] < volts[n-1]
	meanAmps := stat.Mean(amps, nil)
	if isNetCharge && meanAmps <= 0 {
		return types.Curve{}, 0, fmt.Errorf("%s: expected positive current for charge data", path)
	}
	if !isNetCharge && meanAmps >= 0 {
		return types.Curve{}, 0, fmt.Errorf("%s: expected negative current for discharge data", path)
	}

	sign := 1.0
	if !isNetCharge {
		sign = -1.0
	}

	// Cumulative trapezoid of sign*I dt, in amp hours.
	ah := make([]float64, n)
	for i := 1; i < n; i++ {
		dt := (seconds[i] - seconds[i-1]) / 3600
		ah[i] = ah[i-1] + sign*0.5*(amps[i]+amps[i-1])*dt
	}

	totalAh := floats.Max(ah)
	curve := types.Curve{SOC: make([]float64, n), Voltage: volts}
	for i := range ah {
		soc := ah[i] / totalAh
		if !isNetCharge {
			soc = 1 - soc
		}
		curve.SOC[i] = soc
	}
	return curve, totalAh, nil
}

// Downsample keeps the first sample and every later sample whose
// abscissa moved by at least resolution since the last kept one. It
// works on curves running in either direction, so a discharge log with
// SOC descending from 1 thins the same way a charge log does.
func Downsample(c types.Curve, resolution float64) types.Curve {
	if c.Len() == 0 || resolution <= 0 {
		return c
	}

	out := types.Curve{
		SOC:     []float64{c.SOC[0]},
		Voltage: []float64{c.Voltage[0]},
	}
	last := c.SOC[0]
	for i := 1; i < c.Len(); i++ {
		// The slack keeps steps that land exactly on the resolution from
		// being dropped by float rounding (1 - 0.9 is just under 0.1).
		if math.Abs(c.SOC[i]-last) >= resolution-1e-12 {
			out.SOC = append(out.SOC, c.SOC[i])
			out.Voltage = append(out.Voltage, c.Voltage[i])
			last = c.SOC[i]
		}
	}
	return out
}

func readRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("%s: file is empty", path)
	}
	return rows, nil
}

// columnIndex maps each requested header name to its column position,
// matching case-insensitively after trimming.
func columnIndex(header []string, names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i] = -1
		for j, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), name) {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}
	return idx, nil
}

func parseCell(row []string, col, line int) (float64, error) {
	if col >= len(row) {
		return 0, fmt.Errorf("line %d has only %d fields", line, len(row))
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", line, err)
	}
	return v, nil
}
