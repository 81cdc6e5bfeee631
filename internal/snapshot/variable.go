package snapshot

import (
	"fmt"

	"github.com/tigerroll/covidash/internal/domain/model"
)

// Variable names a per-record value that can be charted.
type Variable string

const (
	Confirmed         Variable = "confirmed"
	Recovered         Variable = "recovered"
	Death             Variable = "death"
	Active            Variable = "active"
	CaseFatalityRatio Variable = "case_fatality_ratio"
)

// DefaultVariable is the interest variable selected when none is given.
const DefaultVariable = Active

// Option is one entry of the interest-variable selector.
type Option struct {
	Label string   `json:"label"`
	Value Variable `json:"value"`
}

var labels = map[Variable]string{
	Confirmed:         "Total Confirmed",
	Recovered:         "Total Recovered",
	Death:             "Total Deaths",
	Active:            "Total Active",
	CaseFatalityRatio: "Case Fatality Ratio",
}

// InterestOptions lists the selector entries, default first.
func InterestOptions() []Option {
	return []Option{
		{Label: labels[Active], Value: Active},
		{Label: labels[Death], Value: Death},
		{Label: labels[Recovered], Value: Recovered},
		{Label: labels[Confirmed], Value: Confirmed},
		{Label: labels[CaseFatalityRatio], Value: CaseFatalityRatio},
	}
}

// ParseVariable converts s to a Variable. The empty string selects DefaultVariable.
func ParseVariable(s string) (Variable, error) {
	if s == "" {
		return DefaultVariable, nil
	}
	v := Variable(s)
	if _, ok := labels[v]; !ok {
		return "", fmt.Errorf("unknown variable %q", s)
	}
	return v, nil
}

// Label returns the display label of v.
func (v Variable) Label() string {
	return labels[v]
}

// Value reads v from rec.
func Value(rec model.MergedRecord, v Variable) int64 {
	switch v {
	case Confirmed:
		return rec.Confirmed
	case Recovered:
		return rec.Recovered
	case Death:
		return rec.Death
	case CaseFatalityRatio:
		return rec.CaseFatalityRatio
	default:
		return rec.Active
	}
}
