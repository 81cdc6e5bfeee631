package pipeline

import (
	"fmt"
	"math"
)

// RoundingMode selects how the case fatality ratio is rounded to an integer.
type RoundingMode string

const (
	// RoundHalfUp rounds halves away from zero: 12.5 -> 13.
	RoundHalfUp RoundingMode = "half_up"
	// RoundHalfEven rounds halves to the even neighbour: 12.5 -> 12, 13.5 -> 14.
	RoundHalfEven RoundingMode = "half_even"
)

// ParseRoundingMode converts a configuration value to a RoundingMode.
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch RoundingMode(s) {
	case RoundHalfUp, RoundHalfEven:
		return RoundingMode(s), nil
	case "":
		return RoundHalfUp, nil
	default:
		return "", fmt.Errorf("unknown rounding mode %q", s)
	}
}

// Round rounds x according to m.
func (m RoundingMode) Round(x float64) float64 {
	if m == RoundHalfEven {
		return math.RoundToEven(x)
	}
	return math.Round(x)
}

// CaseFatalityRatio returns deaths per 100 confirmed cases, rounded by mode.
// The quotient is computed as death / (confirmed / 100) in float64.
// ok is false when confirmed is 0; the ratio is then 0.
func CaseFatalityRatio(death, confirmed int64, mode RoundingMode) (ratio int64, ok bool) {
	if confirmed == 0 {
		return 0, false
	}
	return int64(mode.Round(float64(death) / (float64(confirmed) / 100))), true
}
