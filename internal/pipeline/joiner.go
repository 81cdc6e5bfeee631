package pipeline

import (
	"fmt"
	"strings"

	"github.com/tigerroll/covidash/internal/domain/model"
)

// JoinMode selects which (country, date) keys survive the join.
type JoinMode string

const (
	// JoinInner keeps keys present in all three metric tables.
	JoinInner JoinMode = "inner"
	// JoinOuter keeps every key; missing metrics are 0 and the record is marked incomplete.
	JoinOuter JoinMode = "outer"
)

// ParseJoinMode converts a configuration value to a JoinMode.
func ParseJoinMode(s string) (JoinMode, error) {
	switch JoinMode(s) {
	case JoinInner, JoinOuter:
		return JoinMode(s), nil
	case "":
		return JoinInner, nil
	default:
		return "", fmt.Errorf("unknown join mode %q", s)
	}
}

// JoinOptions configures Join.
type JoinOptions struct {
	Mode     JoinMode
	Rounding RoundingMode
}

// JoinStats holds the diagnostics collected while joining.
type JoinStats struct {
	// JoinGaps counts keys missing from at least one table, by the tables they were present in
	// (e.g. "confirmed+death"). Under JoinInner these keys were dropped.
	JoinGaps map[string]int
	// DivisionEdgeCases counts merged records with confirmed == 0, whose ratio was set to 0.
	DivisionEdgeCases int
}

// JoinGapTotal returns the number of keys missing from at least one table.
func (s JoinStats) JoinGapTotal() int {
	total := 0
	for _, n := range s.JoinGaps {
		total += n
	}
	return total
}

type joinCell struct {
	counts  [3]int64
	present [3]bool
}

// Join merges the three aggregated tables on (country, date) and derives active and
// the case fatality ratio. Output is sorted by (country, date).
func Join(confirmed, recovered, death []model.AggregatedRecord, opts JoinOptions) ([]model.MergedRecord, JoinStats) {
	cells := make(map[model.Key]*joinCell, len(confirmed))
	for i, table := range [][]model.AggregatedRecord{confirmed, recovered, death} {
		for _, r := range table {
			c, ok := cells[r.Key()]
			if !ok {
				c = &joinCell{}
				cells[r.Key()] = c
			}
			c.counts[i] += r.Count
			c.present[i] = true
		}
	}

	stats := JoinStats{JoinGaps: map[string]int{}}
	out := make([]model.MergedRecord, 0, len(cells))
	for k, c := range cells {
		complete := c.present[0] && c.present[1] && c.present[2]
		if !complete {
			stats.JoinGaps[presentIn(c.present)]++
			if opts.Mode != JoinOuter {
				continue
			}
		}

		rec := model.MergedRecord{
			Country:   k.Country,
			Date:      k.Date,
			Confirmed: c.counts[0],
			Recovered: c.counts[1],
			Death:     c.counts[2],
			Complete:  complete,
		}
		rec.Active = rec.Confirmed - rec.Recovered - rec.Death
		ratio, ok := CaseFatalityRatio(rec.Death, rec.Confirmed, opts.Rounding)
		if !ok {
			stats.DivisionEdgeCases++
		}
		rec.CaseFatalityRatio = ratio
		out = append(out, rec)
	}

	sortByKey(out, func(r model.MergedRecord) model.Key { return model.Key{Country: r.Country, Date: r.Date} })
	return out, stats
}

func presentIn(present [3]bool) string {
	names := make([]string, 0, 3)
	for i, ok := range present {
		if ok {
			names = append(names, string(model.Metrics[i]))
		}
	}
	return strings.Join(names, "+")
}
