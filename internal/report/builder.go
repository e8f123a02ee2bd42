// Package report joins trip metadata with per-vehicle telemetry summaries to
// produce the asset utilization report.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/iter"

	"fleet-asset-report/internal/archive"
	"fleet-asset-report/internal/metrics"
	"fleet-asset-report/internal/models"
	"fleet-asset-report/internal/parser"
	"fleet-asset-report/internal/trips"
)

var (
	// ErrTripMetadata wraps failures to load the trip metadata table.
	ErrTripMetadata = errors.New("trip metadata unavailable")
	// ErrArchive wraps failures to open the telemetry archive.
	ErrArchive = errors.New("telemetry archive unavailable")
)

// Config names the inputs of a report run.
type Config struct {
	TripsPath   string
	ArchivePath string
	// Workers bounds concurrent per-vehicle processing. Values below 2 run
	// the vehicles sequentially.
	Workers int
}

// Report is the outcome of one Build.
type Report struct {
	RunID    string             `json:"run_id"`
	Window   models.TimeWindow  `json:"window"`
	Rows     []models.ReportRow `json:"rows"`
	Skipped  []string           `json:"skipped,omitempty"`
	Duration time.Duration      `json:"duration"`
}

// Empty reports whether no vehicle produced a row.
func (r *Report) Empty() bool {
	return len(r.Rows) == 0
}

// Builder runs the report pipeline over fixed input files.
type Builder struct {
	cfg Config
}

// NewBuilder creates a builder reading the inputs named by cfg.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

type vehicleResult struct {
	row     models.ReportRow
	skipped bool
}

// Build produces one row per vehicle with trips in window and a telemetry
// table in the archive. Rows follow the order vehicles first appear in the
// trip table.
//
// Vehicles without telemetry are skipped. A telemetry table that cannot be
// read yields a row built from the zero summary. Failing to load the trip
// table or to open the archive aborts the run without a partial report.
func (b *Builder) Build(ctx context.Context, window models.TimeWindow) (*Report, error) {
	start := time.Now()
	rep := &Report{RunID: uuid.NewString(), Window: window}
	logger := log.With().Str("run_id", rep.RunID).Logger()

	rows, skipped, err := b.build(ctx, window, logger)
	rep.Duration = time.Since(start)
	metrics.BuildDuration.Observe(rep.Duration.Seconds())

	if err != nil {
		metrics.Builds.WithLabelValues(metrics.OutcomeFailed).Inc()
		logger.Error().Err(err).Msg("Report build failed")
		return nil, err
	}

	rep.Rows = rows
	rep.Skipped = skipped
	metrics.Rows.Add(float64(len(rows)))
	if rep.Empty() {
		metrics.Builds.WithLabelValues(metrics.OutcomeEmpty).Inc()
	} else {
		metrics.Builds.WithLabelValues(metrics.OutcomeSuccess).Inc()
	}

	logger.Info().
		Int("rows", len(rows)).
		Int("skipped", len(skipped)).
		Dur("duration", rep.Duration).
		Msg("Report built")
	return rep, nil
}

func (b *Builder) build(ctx context.Context, window models.TimeWindow, logger zerolog.Logger) ([]models.ReportRow, []string, error) {
	records, err := trips.Load(b.cfg.TripsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTripMetadata, err)
	}

	groups := trips.FilterAndGroup(records, window)
	logger.Debug().
		Int("trips", len(records)).
		Int("vehicles", len(groups)).
		Msg("Trip metadata loaded")
	if len(groups) == 0 {
		return []models.ReportRow{}, nil, nil
	}

	arc, err := archive.Open(b.cfg.ArchivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	defer arc.Close()

	process := func(g *models.TripGroup) vehicleResult {
		return processGroup(arc, *g, window, logger)
	}

	var results []vehicleResult
	if b.cfg.Workers < 2 {
		results = make([]vehicleResult, 0, len(groups))
		for i := range groups {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			results = append(results, process(&groups[i]))
		}
	} else {
		mapper := iter.Mapper[models.TripGroup, vehicleResult]{MaxGoroutines: b.cfg.Workers}
		results = mapper.Map(groups, process)
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}

	rows := make([]models.ReportRow, 0, len(results))
	var skipped []string
	for i, res := range results {
		if res.skipped {
			skipped = append(skipped, groups[i].VehicleNumber)
			continue
		}
		rows = append(rows, res.row)
	}
	return rows, skipped, nil
}

// processGroup builds the row of a single vehicle.
func processGroup(arc *archive.Archive, group models.TripGroup, window models.TimeWindow, logger zerolog.Logger) vehicleResult {
	vlog := logger.With().Str("vehicle", group.VehicleNumber).Logger()

	data, found, err := arc.Locate(group.VehicleNumber)
	if !found || (err == nil && len(data) == 0) {
		metrics.VehiclesSkipped.WithLabelValues(metrics.ReasonNoTelemetry).Inc()
		vlog.Debug().Msg("No telemetry file for vehicle, skipping")
		return vehicleResult{skipped: true}
	}

	var summary models.TelemetrySummary
	if err != nil {
		metrics.VehiclesSkipped.WithLabelValues(metrics.ReasonUnreadableEntry).Inc()
		vlog.Warn().Err(err).Msg("Failed to read telemetry file, using empty summary")
	} else if summary, err = parser.Summarize(bytes.NewReader(data), window); err != nil {
		metrics.VehiclesSkipped.WithLabelValues(metrics.ReasonMalformedTable).Inc()
		vlog.Warn().Err(err).Msg("Failed to process telemetry file, using empty summary")
	}

	return vehicleResult{row: models.NewReportRow(group, summary)}
}
