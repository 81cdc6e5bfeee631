package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/pkg/support/exception"
)

// ParseDateLabel parses an m/d/yy column label such as "1/22/20".
func ParseDateLabel(label string) (time.Time, error) {
	d, err := time.Parse(model.DateLayout, strings.TrimSpace(label))
	if err != nil {
		return time.Time{}, exception.NewDateParseError("melter", label, err)
	}
	return d, nil
}

// Melt reshapes a normalized wide table into one LongRecord per row and date column.
// Every column except "country" is a date column. Records are ordered by date column,
// then by row, both in input order. An empty cell counts as 0.
func Melt(t *model.RawTable) ([]model.LongRecord, error) {
	countryIdx := t.ColumnIndex(model.CountryColumn)
	if countryIdx < 0 {
		return nil, exception.NewSchemaError("melter", "%s table: no %q column", t.Metric, model.CountryColumn)
	}

	type dateColumn struct {
		idx  int
		date time.Time
	}
	dates := make([]dateColumn, 0, len(t.Columns)-1)
	for i, label := range t.Columns {
		if i == countryIdx {
			continue
		}
		d, err := ParseDateLabel(label)
		if err != nil {
			return nil, err
		}
		dates = append(dates, dateColumn{idx: i, date: d})
	}

	for r, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, exception.NewSchemaError("melter", "%s table: row %d has %d cells, header has %d", t.Metric, r+1, len(row), len(t.Columns))
		}
	}

	out := make([]model.LongRecord, 0, len(dates)*len(t.Rows))
	for _, dc := range dates {
		for r, row := range t.Rows {
			count, err := parseCount(row[dc.idx])
			if err != nil {
				return nil, exception.NewPipelineError("melter", exception.ErrSchema,
					fmt.Sprintf("non-integer cell in %s table at row %d, column %q", t.Metric, r+1, t.Columns[dc.idx]), err, false)
			}
			out = append(out, model.LongRecord{Country: row[countryIdx], Date: dc.date, Count: count})
		}
	}
	return out, nil
}

func parseCount(cell string) (int64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, nil
	}
	return strconv.ParseInt(cell, 10, 64)
}
