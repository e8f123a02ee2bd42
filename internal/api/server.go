package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"fleet-asset-report/internal/metrics"
	"fleet-asset-report/internal/models"
	"fleet-asset-report/internal/report"
)

const (
	msgMissingWindow = "Start time and end time must be provided in epoch format."
	msgNoData        = "No data available for the specified time period."
)

// ReportGenerator builds the asset report for a time window
type ReportGenerator interface {
	Build(ctx context.Context, window models.TimeWindow) (*report.Report, error)
}

// Server represents the API server
type Server struct {
	reports ReportGenerator
	sink    report.Sink
	router  *mux.Router

	// serializes build+write so concurrent requests do not interleave
	// writes to the single output file
	mu sync.Mutex
}

// NewServer creates a new API server
func NewServer(reports ReportGenerator, sink report.Sink) *Server {
	s := &Server{
		reports: reports,
		sink:    sink,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/generate_asset_report", s.handleGenerateReport).Methods("POST")

	// Prometheus sets its own content type
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	s.router.Use(loggingMiddleware)
	s.router.Use(jsonMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Middleware
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Response helpers
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *meta       `json:"meta,omitempty"`
}

type meta struct {
	Total   int    `json:"total"`
	Skipped int    `json:"skipped,omitempty"`
	QueryMs int64  `json:"query_ms"`
	RunID   string `json:"run_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	respond(w, status, apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, apiResponse{Success: false, Error: message})
}

// respond encodes resp before touching the status line so an encoding
// failure can still be reported as a 500.
func respond(w http.ResponseWriter, status int, resp apiResponse) {
	body, err := encode(resp)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		status = http.StatusInternalServerError
		body, _ = encode(apiResponse{Success: false, Error: "failed to encode response"})
	}
	writeBody(w, status, body)
}

func encode(resp apiResponse) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(resp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.WriteHeader(status)
	w.Write(body)
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// reportRequest holds epoch seconds. Pointers tell a missing field apart
// from an explicit zero.
type reportRequest struct {
	StartTime *float64 `json:"start_time"`
	EndTime   *float64 `json:"end_time"`
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StartTime == nil || req.EndTime == nil {
		respondError(w, http.StatusBadRequest, msgMissingWindow)
		return
	}

	window := models.WindowFromEpoch(*req.StartTime, *req.EndTime)

	s.mu.Lock()
	defer s.mu.Unlock()

	rep, err := s.reports.Build(r.Context(), window)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if rep.Empty() {
		respondError(w, http.StatusNotFound, msgNoData)
		return
	}

	// encoded first: a report that cannot be serialized is never stored
	body, err := encode(apiResponse{
		Success: true,
		Data:    rep.Rows,
		Meta: &meta{
			Total:   len(rep.Rows),
			Skipped: len(rep.Skipped),
			QueryMs: rep.Duration.Milliseconds(),
			RunID:   rep.RunID,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("run_id", rep.RunID).Msg("Failed to encode report")
		respondError(w, http.StatusInternalServerError, "failed to encode report: "+err.Error())
		return
	}

	if err := s.sink.Write(rep.Rows); err != nil {
		log.Error().Err(err).Str("run_id", rep.RunID).Msg("Failed to write report")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeBody(w, http.StatusOK, body)
}
