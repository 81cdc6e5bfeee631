package pipeline

import (
	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/pkg/support/exception"
)

// NormalizeOptions configures the Normalizer.
type NormalizeOptions struct {
	// Drop lists identity columns removed from the table.
	Drop []string
	// Rename maps source column names to new names. The region column must map to "country".
	Rename map[string]string
	// Tolerant turns missing Drop/Rename columns into no-ops.
	Tolerant bool
}

// Normalize drops and renames columns, leaving a table of (country, date columns...).
// Row count and order are preserved; t is not modified.
func Normalize(t *model.RawTable, opts NormalizeOptions) (*model.RawTable, error) {
	const module = "normalizer"

	drop := make(map[string]bool, len(opts.Drop))
	for _, c := range opts.Drop {
		drop[c] = true
	}
	if !opts.Tolerant {
		for _, c := range opts.Drop {
			if t.ColumnIndex(c) < 0 {
				return nil, exception.NewSchemaError(module, "%s table: column %q to drop not found", t.Metric, c)
			}
		}
		for c := range opts.Rename {
			if t.ColumnIndex(c) < 0 {
				return nil, exception.NewSchemaError(module, "%s table: column %q to rename not found", t.Metric, c)
			}
		}
	}

	keep := make([]int, 0, len(t.Columns))
	columns := make([]string, 0, len(t.Columns))
	seen := make(map[string]bool, len(t.Columns))
	for i, c := range t.Columns {
		if drop[c] {
			continue
		}
		if renamed, ok := opts.Rename[c]; ok {
			c = renamed
		}
		if seen[c] {
			return nil, exception.NewSchemaError(module, "%s table: duplicate column %q after normalization", t.Metric, c)
		}
		seen[c] = true
		keep = append(keep, i)
		columns = append(columns, c)
	}
	if !seen[model.CountryColumn] {
		return nil, exception.NewSchemaError(module, "%s table: no %q column after normalization", t.Metric, model.CountryColumn)
	}

	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, exception.NewSchemaError(module, "%s table: row %d has %d cells, header has %d", t.Metric, r+1, len(row), len(t.Columns))
		}
		out := make([]string, len(keep))
		for j, i := range keep {
			out[j] = row[i]
		}
		rows[r] = out
	}

	return &model.RawTable{Metric: t.Metric, Columns: columns, Rows: rows}, nil
}
