// Package snapshot publishes the merged table to readers and rebuilds it on demand.
//
// A Snapshot is immutable once built. The Store hands out the current Snapshot
// through an atomic pointer, and the Refresher builds a new one and swaps it in,
// so any number of readers can query concurrently without locking.
package snapshot

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/internal/pipeline"
)

// DateFormat is the textual form of a snapshot date.
const DateFormat = "2006-01-02"

// Snapshot is one published build of the merged table.
type Snapshot struct {
	ID      string
	BuiltAt time.Time
	Report  pipeline.Report

	records   []model.MergedRecord
	dates     []time.Time
	countries []string
	byDate    map[string][]model.MergedRecord
	byCountry map[string][]model.MergedRecord
}

// New builds a Snapshot over records with a fresh ID. records are copied and
// sorted by (country, date).
func New(records []model.MergedRecord, report pipeline.Report, builtAt time.Time) *Snapshot {
	s := &Snapshot{
		ID:        uuid.NewString(),
		BuiltAt:   builtAt,
		Report:    report,
		records:   slices.Clone(records),
		byDate:    make(map[string][]model.MergedRecord),
		byCountry: make(map[string][]model.MergedRecord),
	}
	slices.SortStableFunc(s.records, func(a, b model.MergedRecord) int {
		return pipeline.CompareKeys(model.Key{Country: a.Country, Date: a.Date}, model.Key{Country: b.Country, Date: b.Date})
	})

	for _, r := range s.records {
		d := r.Date.Format(DateFormat)
		if _, ok := s.byDate[d]; !ok {
			s.dates = append(s.dates, r.Date)
		}
		s.byDate[d] = append(s.byDate[d], r)
		if _, ok := s.byCountry[r.Country]; !ok {
			s.countries = append(s.countries, r.Country)
		}
		s.byCountry[r.Country] = append(s.byCountry[r.Country], r)
	}
	slices.SortFunc(s.dates, func(a, b time.Time) int { return a.Compare(b) })
	return s
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	return len(s.records)
}

// Records returns a copy of every record, sorted by (country, date).
func (s *Snapshot) Records() []model.MergedRecord {
	return slices.Clone(s.records)
}

// Dates returns the distinct dates in ascending order.
func (s *Snapshot) Dates() []time.Time {
	return slices.Clone(s.dates)
}

// LatestDate returns the most recent date. ok is false for an empty snapshot.
func (s *Snapshot) LatestDate() (d time.Time, ok bool) {
	if len(s.dates) == 0 {
		return time.Time{}, false
	}
	return s.dates[len(s.dates)-1], true
}

// ForDate returns the records of day d sorted by country. A day without data
// yields an empty, non-nil slice.
func (s *Snapshot) ForDate(d time.Time) []model.MergedRecord {
	recs := s.byDate[d.Format(DateFormat)]
	if recs == nil {
		return []model.MergedRecord{}
	}
	return slices.Clone(recs)
}

// ForCountry returns the time series of country in date order; country must match exactly.
func (s *Snapshot) ForCountry(country string) []model.MergedRecord {
	recs := s.byCountry[country]
	if recs == nil {
		return []model.MergedRecord{}
	}
	return slices.Clone(recs)
}

// Countries returns the distinct countries in ascending order.
func (s *Snapshot) Countries() []string {
	return slices.Clone(s.countries)
}
