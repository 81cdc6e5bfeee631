package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/internal/pipeline"
	"github.com/tigerroll/covidash/internal/snapshot"
	"github.com/tigerroll/covidash/pkg/support/exception"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

type recordView struct {
	Country           string `json:"country"`
	Date              string `json:"date"`
	Confirmed         int64  `json:"confirmed"`
	Recovered         int64  `json:"recovered"`
	Death             int64  `json:"death"`
	Active            int64  `json:"active"`
	CaseFatalityRatio int64  `json:"case_fatality_ratio"`
	Complete          bool   `json:"complete"`
}

func newRecordViews(records []model.MergedRecord) []recordView {
	out := make([]recordView, len(records))
	for i, r := range records {
		out[i] = recordView{
			Country:           r.Country,
			Date:              r.Date.Format(snapshot.DateFormat),
			Confirmed:         r.Confirmed,
			Recovered:         r.Recovered,
			Death:             r.Death,
			Active:            r.Active,
			CaseFatalityRatio: r.CaseFatalityRatio,
			Complete:          r.Complete,
		}
	}
	return out
}

type snapshotMeta struct {
	ID        string          `json:"id"`
	BuiltAt   time.Time       `json:"built_at"`
	Records   int             `json:"records"`
	Dates     int             `json:"dates"`
	Countries int             `json:"countries"`
	Latest    string          `json:"latest,omitempty"`
	Report    pipeline.Report `json:"report"`
}

func newSnapshotMeta(snap *snapshot.Snapshot) snapshotMeta {
	meta := snapshotMeta{
		ID:        snap.ID,
		BuiltAt:   snap.BuiltAt,
		Records:   snap.Len(),
		Dates:     len(snap.Dates()),
		Countries: len(snap.Countries()),
		Report:    snap.Report,
	}
	if latest, ok := snap.LatestDate(); ok {
		meta.Latest = latest.Format(snapshot.DateFormat)
	}
	return meta
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// current returns the published snapshot or answers 503.
func (s *Server) current(w http.ResponseWriter) (*snapshot.Snapshot, bool) {
	snap := s.store.Current()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no data has been loaded yet")
		return nil, false
	}
	return snap, true
}

// selectedDate reads the "date" query parameter, defaulting to the latest date.
// ok is false when no date was given and the snapshot holds no dates.
func selectedDate(r *http.Request, snap *snapshot.Snapshot) (d time.Time, ok bool, err error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		d, ok = snap.LatestDate()
		return d, ok, nil
	}
	d, err = time.Parse(snapshot.DateFormat, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return d, true, nil
}

// withDate sets resp["date"] when a date was selected.
func withDate(resp map[string]interface{}, d time.Time, ok bool) map[string]interface{} {
	if ok {
		resp["date"] = d.Format(snapshot.DateFormat)
	}
	return resp
}

// chartParams reads the date and interest variable shared by the chart endpoints.
func chartParams(w http.ResponseWriter, r *http.Request, snap *snapshot.Snapshot) (d time.Time, hasDate bool, v snapshot.Variable, ok bool) {
	d, hasDate, err := selectedDate(r, snap)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, false, "", false
	}
	v, err = snapshot.ParseVariable(r.URL.Query().Get("variable"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, false, "", false
	}
	return d, hasDate, v, true
}

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.current(w)
	if !ok {
		return
	}
	dates := snap.Dates()
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(snapshot.DateFormat)
	}
	resp := map[string]interface{}{"dates": out}
	if latest, ok := snap.LatestDate(); ok {
		resp["latest"] = latest.Format(snapshot.DateFormat)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVariables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"options": snapshot.InterestOptions(),
		"default": snapshot.DefaultVariable,
	})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.current(w)
	if !ok {
		return
	}
	d, hasDate, err := selectedDate(r, snap)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, withDate(map[string]interface{}{
		"records": newRecordViews(snap.ForDate(d)),
	}, d, hasDate))
}

type scatterPoint struct {
	Country string `json:"country"`
	X       int64  `json:"x"`
	Y       int64  `json:"y"`
	Size    int64  `json:"size"`
}

// handleScatter plots confirmed against the interest variable, one point per country.
func (s *Server) handleScatter(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.current(w)
	if !ok {
		return
	}
	d, hasDate, v, ok := chartParams(w, r, snap)
	if !ok {
		return
	}
	records := snap.ForDate(d)
	points := make([]scatterPoint, len(records))
	for i, rec := range records {
		points[i] = scatterPoint{Country: rec.Country, X: rec.Confirmed, Y: snapshot.Value(rec, v), Size: rec.Confirmed}
	}
	writeJSON(w, http.StatusOK, withDate(map[string]interface{}{
		"variable": v,
		"title":    "confirmed Vs " + string(v),
		"points":   points,
	}, d, hasDate))
}

type bar struct {
	Country string `json:"country"`
	Value   int64  `json:"value"`
	Color   int64  `json:"color"`
}

// handleBar returns the interest variable per country, colored by case fatality ratio.
func (s *Server) handleBar(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.current(w)
	if !ok {
		return
	}
	d, hasDate, v, ok := chartParams(w, r, snap)
	if !ok {
		return
	}
	records := snap.ForDate(d)
	bars := make([]bar, len(records))
	for i, rec := range records {
		bars[i] = bar{Country: rec.Country, Value: snapshot.Value(rec, v), Color: rec.CaseFatalityRatio}
	}
	writeJSON(w, http.StatusOK, withDate(map[string]interface{}{
		"variable": v,
		"label":    v.Label(),
		"title":    "Total Cases per Country",
		"bars":     bars,
	}, d, hasDate))
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"countries": snap.Countries()})
}

func (s *Server) handleCountry(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.current(w)
	if !ok {
		return
	}
	country := mux.Vars(r)["country"]
	records := snap.ForCountry(country)
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown country %q", country))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"country": country,
		"records": newRecordViews(records),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotMeta(snap))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.refresher.Refresh(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case exception.IsDataError(err):
			status = http.StatusUnprocessableEntity
		case exception.IsSourceError(err):
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotMeta(snap))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "snapshot_id": snap.ID, "records": snap.Len()})
}
