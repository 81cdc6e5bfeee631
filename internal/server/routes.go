package server

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/tigerroll/covidash/pkg/support/logger"
)

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware, loggingMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/dates", s.handleDates).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/variables", s.handleVariables).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/records", s.handleRecords).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/chart/scatter", s.handleScatter).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/chart/bar", s.handleBar).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/countries", s.handleCountries).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/countries/{country}", s.handleCountry).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet, http.MethodOptions)
	if s.refresher != nil {
		api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost, http.MethodOptions)
	}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

// corsMiddleware allows the configured origins; "*" allows any.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	if slices.Contains(s.cfg.AllowedOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.ContainsFunc(s.cfg.AllowedOrigins, func(o string) bool { return strings.EqualFold(o, origin) }) {
		return origin
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debugf("%s %s -> %d (%s)", r.Method, r.URL.RequestURI(), rec.status, time.Since(started))
	})
}
