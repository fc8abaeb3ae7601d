// Copyright Volt Labs Inc., 2026. All rights reserved.

package results

import (
	"encoding/json"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// ExportYAML writes the table (and, when aging is non-nil, the derived
// aging rows) to a YAML file.
func ExportYAML(path string, table *Table, aging []AgingRow) error {
	data, err := yaml.Marshal(exportDoc(table, aging))
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the table (and optional aging rows) to a JSON file.
func ExportJSON(path string, table *Table, aging []AgingRow) error {
	data, err := json.MarshalIndent(exportDoc(table, aging), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

type exportDocument struct {
	Fits  []Row      `json:"fits" yaml:"fits"`
	Aging []AgingRow `json:"aging,omitempty" yaml:"aging,omitempty"`
}

func exportDoc(table *Table, aging []AgingRow) exportDocument {
	doc := exportDocument{Aging: aging}
	if table != nil {
		doc.Fits = table.Rows
	}
	return doc
}
