package pipeline

import (
	"slices"
	"strings"

	"github.com/tigerroll/covidash/internal/domain/model"
)

// CompareKeys orders keys by country, then date.
func CompareKeys(a, b model.Key) int {
	if c := strings.Compare(a.Country, b.Country); c != 0 {
		return c
	}
	return a.Date.Compare(b.Date)
}

func sortByKey[T any](items []T, key func(T) model.Key) {
	slices.SortFunc(items, func(a, b T) int { return CompareKeys(key(a), key(b)) })
}
