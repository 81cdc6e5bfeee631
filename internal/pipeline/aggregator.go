package pipeline

import (
	"github.com/tigerroll/covidash/internal/domain/model"
)

// Canonicalizer maps a raw country name to the name used for grouping.
type Canonicalizer func(country string) string

// AliasCanonicalizer returns a Canonicalizer rewriting names found in aliases.
// A nil or empty map yields nil, the identity.
func AliasCanonicalizer(aliases map[string]string) Canonicalizer {
	if len(aliases) == 0 {
		return nil
	}
	copied := make(map[string]string, len(aliases))
	for k, v := range aliases {
		copied[k] = v
	}
	return func(country string) string {
		if alias, ok := copied[country]; ok {
			return alias
		}
		return country
	}
}

// Aggregate sums counts per (country, date) in one pass. Country names are compared
// exactly after canonicalize (nil means identity). Output is sorted by (country, date).
func Aggregate(records []model.LongRecord, canonicalize Canonicalizer) []model.AggregatedRecord {
	sums := make(map[model.Key]int64, len(records))
	for _, r := range records {
		country := r.Country
		if canonicalize != nil {
			country = canonicalize(country)
		}
		sums[model.Key{Country: country, Date: r.Date}] += r.Count
	}

	out := make([]model.AggregatedRecord, 0, len(sums))
	for k, sum := range sums {
		out = append(out, model.AggregatedRecord{Country: k.Country, Date: k.Date, Count: sum})
	}
	sortByKey(out, func(r model.AggregatedRecord) model.Key { return r.Key() })
	return out
}
