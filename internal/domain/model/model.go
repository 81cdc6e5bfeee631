// Package model defines the tables and records flowing through the covidash pipeline.
package model

import (
	"fmt"
	"time"
)

// Metric identifies one of the three upstream time-series tables.
type Metric string

const (
	Confirmed Metric = "confirmed"
	Recovered Metric = "recovered"
	Death     Metric = "death"
)

// Metrics lists every metric in join order.
var Metrics = []Metric{Confirmed, Recovered, Death}

// ParseMetric converts a metric name to a Metric.
func ParseMetric(s string) (Metric, error) {
	for _, m := range Metrics {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// DateLayout is the layout of the upstream date-column labels (m/d/yy).
const DateLayout = "1/2/06"

// CountryColumn is the column name the normalizer produces for the region.
const CountryColumn = "country"

// RawTable is one wide upstream table: identifier columns followed by one column per date.
type RawTable struct {
	Metric  Metric
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the position of name in Columns, or -1.
func (t *RawTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// LongRecord is one (country, date) observation of a single metric before aggregation.
type LongRecord struct {
	Country string
	Date    time.Time
	Count   int64
}

// AggregatedRecord is the per-country daily total of a single metric.
type AggregatedRecord struct {
	Country string
	Date    time.Time
	Count   int64
}

// Key identifies a (country, date) cell.
type Key struct {
	Country string
	Date    time.Time
}

// Key returns the record's (country, date) key.
func (r AggregatedRecord) Key() Key {
	return Key{Country: r.Country, Date: r.Date}
}

// MergedRecord joins the three metrics of one (country, date) and the derived values.
// Active always equals Confirmed - Recovered - Death.
type MergedRecord struct {
	Country           string    `json:"country"`
	Date              time.Time `json:"date"`
	Confirmed         int64     `json:"confirmed"`
	Recovered         int64     `json:"recovered"`
	Death             int64     `json:"death"`
	Active            int64     `json:"active"`
	CaseFatalityRatio int64     `json:"case_fatality_ratio"`
	// Complete is false when the record came from an outer join and a metric was missing.
	Complete bool `json:"complete"`
}
