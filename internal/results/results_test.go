// Copyright Volt Labs Inc., 2026. All rights reserved.

package results

import (
	"encoding/json"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/voltlab/ocvfit/pkg/types"
)

func TestTableAppend(t *testing.T) {
	table := &Table{}

	err := table.Append(1.0, types.FitSummary{
		Success:    true,
		Message:    "ok",
		Iterations: 12,
		Objective:  0.5,
		X:          []float64{0.05, 0.95, 0.1, 0.9, 0.01},
		Stdev:      []float64{1e-3, 2e-3, 3e-3, 4e-3, 5e-4},
	})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	assert.Equal(t, 1.0, row.Ah)
	assert.Equal(t, types.FitParams{Xn0: 0.05, Xn1: 0.95, Xp0: 0.1, Xp1: 0.9, IR: 0.01}, row.Params)
	require.NotNil(t, row.Stdev)
	assert.Equal(t, 2e-3, row.Stdev.Xn1)

	// Grid-search summaries carry no usable uncertainty but still append.
	err = table.Append(0.9, types.FitSummary{
		Success:    true,
		Iterations: -1,
		X:          []float64{0.1, 0.9, 0.1, 0.9, 0},
	})
	require.NoError(t, err)
	assert.Nil(t, table.Rows[1].Stdev)

	err = table.Append(1.0, types.FitSummary{X: []float64{0.1, 0.9, 0.1, 0.9}})
	require.Error(t, err, "short parameter vectors are rejected")
}

func TestAging(t *testing.T) {
	table := &Table{}
	require.NoError(t, table.Append(1.0, types.FitSummary{
		X:     []float64{0.0, 1.0, 0.0, 1.0, 0},
		Stdev: []float64{0.01, 0.02, 0.01, 0.02, 0},
	}))
	require.NoError(t, table.Append(0.72, types.FitSummary{
		X: []float64{0.1, 0.9, 0.05, 0.85, 0},
	}))

	rows, err := Aging(table)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Beginning of life: Q = Ah/window = 1.0 for both electrodes, all
	// losses zero by construction.
	assert.InDelta(t, 1.0, rows[0].Qn, 1e-12)
	assert.InDelta(t, 1.0, rows[0].Qp, 1e-12)
	assert.Zero(t, rows[0].LAMn)
	assert.Zero(t, rows[0].LAMp)
	assert.Zero(t, rows[0].LLI)

	// dQ/dx = Ah/w^2 = 1, so QnStd = sqrt(0.01^2 + 0.02^2).
	assert.InDelta(t, math.Sqrt(5e-4), rows[0].QnStd, 1e-12)

	// Aged cell: Qn = 0.72/0.8 = 0.9, Qp = 0.72/0.8 = 0.9, so both
	// electrodes lost 10%. Inventory is 0.9*0.9 + 0.15*0.9 = 0.945
	// against a beginning-of-life inventory of 1.
	assert.InDelta(t, 0.9, rows[1].Qn, 1e-12)
	assert.InDelta(t, 0.9, rows[1].Qp, 1e-12)
	assert.InDelta(t, 0.1, rows[1].LAMn, 1e-12)
	assert.InDelta(t, 0.1, rows[1].LAMp, 1e-12)
	assert.InDelta(t, 0.055, rows[1].LLI, 1e-12)

	// Rows without uncertainty estimates propagate to NaN.
	assert.True(t, math.IsNaN(rows[1].QnStd))
	assert.True(t, math.IsNaN(rows[1].LLISd))
}

func TestAging_Errors(t *testing.T) {
	_, err := Aging(nil)
	require.Error(t, err)
	_, err = Aging(&Table{})
	require.Error(t, err)

	table := &Table{}
	require.NoError(t, table.Append(1.0, types.FitSummary{
		X: []float64{0.9, 0.1, 0.0, 1.0, 0},
	}))
	_, err = Aging(table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-positive stoichiometry window")
}

func TestStoreRoundTrip(t *testing.T) {
	dbPath := t.TempDir() + "/sub/fits.db"

	store, err := OpenStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	table := &Table{}
	require.NoError(t, table.Append(1.0, types.FitSummary{
		Success:    true,
		Message:    "`xtol` termination condition is satisfied.",
		Iterations: 42,
		Objective:  1.5e-3,
		X:          []float64{0.05, 0.95, 0.1, 0.9, 0.012},
		Stdev:      []float64{1e-3, 2e-3, 3e-3, 4e-3, 5e-4},
	}))
	require.NoError(t, table.Append(0.9, types.FitSummary{
		Success:    true,
		Message:    "Done searching.",
		Iterations: -1,
		Objective:  0.2,
		X:          []float64{0.1, 0.9, 0.1, 0.9, 0},
	}))

	for _, row := range table.Rows {
		require.NoError(t, store.Append(row))
	}

	loaded, err := store.List()
	require.NoError(t, err)
	require.Len(t, loaded.Rows, 2)

	assert.Equal(t, table.Rows[0].Params, loaded.Rows[0].Params)
	require.NotNil(t, loaded.Rows[0].Stdev)
	assert.Equal(t, *table.Rows[0].Stdev, *loaded.Rows[0].Stdev)
	assert.Equal(t, 42, loaded.Rows[0].Iterations)
	assert.Equal(t, table.Rows[0].Message, loaded.Rows[0].Message)

	// NULL columns round-trip back to the in-memory conventions.
	assert.Nil(t, loaded.Rows[1].Stdev)
	assert.Equal(t, -1, loaded.Rows[1].Iterations)
}

func TestStoreSurvivesReopen(t *testing.T) {
	dbPath := t.TempDir() + "/fits.db"

	store, err := OpenStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Append(Row{
		Ah:      1.0,
		Params:  types.FitParams{Xn0: 0.05, Xn1: 0.95, Xp0: 0.1, Xp1: 0.9},
		Success: true,
	}))
	require.NoError(t, store.Close())

	store, err = OpenStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.List()
	require.NoError(t, err)
	require.Len(t, loaded.Rows, 1)
	assert.Equal(t, 0.95, loaded.Rows[0].Params.Xn1)
}

func TestExport(t *testing.T) {
	table := &Table{}
	require.NoError(t, table.Append(1.0, types.FitSummary{
		Success: true,
		X:       []float64{0.0, 1.0, 0.0, 1.0, 0},
	}))
	aging, err := Aging(table)
	require.NoError(t, err)

	dir := t.TempDir()

	yamlPath := dir + "/fits.yaml"
	require.NoError(t, ExportYAML(yamlPath, table, aging))
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	var fromYAML exportDocument
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	require.Len(t, fromYAML.Fits, 1)
	require.Len(t, fromYAML.Aging, 1)
	assert.Equal(t, 1.0, fromYAML.Fits[0].Params.Xn1)

	jsonPath := dir + "/fits.json"
	require.NoError(t, ExportJSON(jsonPath, table, aging))
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	var fromJSON exportDocument
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	require.Len(t, fromJSON.Fits, 1)
	assert.Equal(t, 1.0, fromJSON.Fits[0].Ah)

	// Without aging rows the key is omitted entirely.
	require.NoError(t, ExportJSON(jsonPath, table, nil))
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "aging")
}
