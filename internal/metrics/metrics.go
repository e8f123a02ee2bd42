// Package metrics holds the Prometheus collectors for report generation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Build outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
)

// Skip and degrade reasons.
const (
	ReasonNoTelemetry     = "no_telemetry"
	ReasonMalformedTable  = "malformed_table"
	ReasonUnreadableEntry = "unreadable_entry"
)

var (
	Builds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_report_builds_total",
		Help: "Report builds by outcome.",
	}, []string{"outcome"})

	Rows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_report_rows_total",
		Help: "Report rows emitted.",
	})

	VehiclesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_report_vehicles_skipped_total",
		Help: "Vehicles skipped or reported with a zero summary, by reason.",
	}, []string{"reason"})

	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleet_report_build_duration_seconds",
		Help:    "Wall time of a report build.",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
