package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"fleet-asset-report/internal/geo"
	"fleet-asset-report/internal/models"
)

// ErrMalformedTable marks a telemetry table that could not be read as a
// whole. Summaries returned alongside it are always the zero summary.
var ErrMalformedTable = errors.New("malformed telemetry table")

// Telemetry table column names.
const (
	ColumnTimestamp = "tis"
	ColumnLatitude  = "lat"
	ColumnLongitude = "lon"
	ColumnSpeed     = "spd"
	ColumnOverSpeed = "osf"
	ColumnPlate     = "lic_plate_no"
)

var requiredColumns = []string{
	ColumnTimestamp,
	ColumnLatitude,
	ColumnLongitude,
	ColumnSpeed,
	ColumnOverSpeed,
	ColumnPlate,
}

// Parser reduces vehicle telemetry tables to summaries for one window
type Parser struct {
	window models.TimeWindow
}

// NewParser creates a parser that keeps samples inside window
func NewParser(window models.TimeWindow) *Parser {
	return &Parser{window: window}
}

// Summarize is shorthand for NewParser(window).Summarize(r).
func Summarize(r io.Reader, window models.TimeWindow) (models.TelemetrySummary, error) {
	return NewParser(window).Summarize(r)
}

// ParseFile summarizes a telemetry table stored on disk
func (p *Parser) ParseFile(filename string) (models.TelemetrySummary, error) {
	file, err := os.Open(filename)
	if err != nil {
		return models.TelemetrySummary{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.Summarize(file)
}

// Summarize reads a telemetry table and reduces the samples inside the
// parser's window.
//
// The plate comes from the first in-window row in input order. Speed and
// over-speed flags are summed over every in-window row. Distance is
// accumulated over the rows sorted by timestamp, skipping rows without a
// usable position. A table that cannot be read yields the zero summary and
// an error wrapping ErrMalformedTable.
func (p *Parser) Summarize(r io.Reader) (models.TelemetrySummary, error) {
	points, err := ReadPoints(r)
	if err != nil {
		return models.TelemetrySummary{}, err
	}

	var inWindow []models.TelemetryPoint
	for _, pt := range points {
		if p.window.Contains(pt.Timestamp) {
			inWindow = append(inWindow, pt)
		}
	}

	if len(inWindow) == 0 {
		return models.TelemetrySummary{}, nil
	}

	summary := models.TelemetrySummary{Plate: inWindow[0].Plate}
	for _, pt := range inWindow {
		summary.TotalSpeed += pt.Speed
		summary.ViolationCount += pt.OverSpeed
	}
	if math.IsInf(summary.TotalSpeed, 0) || math.IsInf(summary.ViolationCount, 0) {
		return models.TelemetrySummary{}, fmt.Errorf("%w: %s or %s sum overflows", ErrMalformedTable, ColumnSpeed, ColumnOverSpeed)
	}

	sort.SliceStable(inWindow, func(i, j int) bool {
		return inWindow[i].Timestamp.Before(inWindow[j].Timestamp)
	})

	summary.TotalDistanceKM = TrackDistance(inWindow)
	return summary, nil
}

// TrackDistance sums the great-circle legs between consecutive valid
// positions of an already ordered track.
func TrackDistance(points []models.TelemetryPoint) float64 {
	var total float64
	var prev models.Coordinate
	havePrev := false

	for _, pt := range points {
		if !pt.Position.Valid() {
			continue
		}
		if havePrev {
			total += geo.Distance(prev, pt.Position)
		}
		prev = pt.Position
		havePrev = true
	}

	return total
}

// ReadPoints parses every row of a telemetry table in input order. Rows
// whose timestamp cannot be parsed are dropped with a warning.
func ReadPoints(r io.Reader) ([]models.TelemetryPoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow short rows

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrMalformedTable, err)
	}

	// Map header indices
	indices := make(map[string]int)
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		indices[strings.ToLower(strings.TrimSpace(h))] = i
	}

	for _, col := range requiredColumns {
		if _, ok := indices[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedTable, col)
		}
	}

	var results []models.TelemetryPoint
	lineNum := 1
	dropped := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNum++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTable, lineNum, err)
		}
		if len(record) > len(header) {
			return nil, fmt.Errorf("%w: line %d: expected %d fields, saw %d",
				ErrMalformedTable, lineNum, len(header), len(record))
		}

		ts, err := parseEpoch(field(record, indices, ColumnTimestamp))
		if err != nil {
			dropped++
			continue
		}

		pt, err := recordToPoint(record, indices)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTable, lineNum, err)
		}
		pt.Timestamp = ts
		results = append(results, pt)
	}

	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Msg("Dropped telemetry rows with unparsable timestamps")
	}

	return results, nil
}

// recordToPoint converts the non-timestamp fields of a CSV record
func recordToPoint(record []string, indices map[string]int) (models.TelemetryPoint, error) {
	var pt models.TelemetryPoint
	var err error

	if pt.Position.Lat, err = parseOptionalFloat(field(record, indices, ColumnLatitude)); err != nil {
		return pt, fmt.Errorf("invalid %s: %w", ColumnLatitude, err)
	}
	if pt.Position.Lon, err = parseOptionalFloat(field(record, indices, ColumnLongitude)); err != nil {
		return pt, fmt.Errorf("invalid %s: %w", ColumnLongitude, err)
	}
	if err := checkRange(ColumnLatitude, pt.Position.Lat, 90); err != nil {
		return pt, err
	}
	if err := checkRange(ColumnLongitude, pt.Position.Lon, 180); err != nil {
		return pt, err
	}
	if pt.Speed, err = parseSummand(field(record, indices, ColumnSpeed)); err != nil {
		return pt, fmt.Errorf("invalid %s: %w", ColumnSpeed, err)
	}
	if pt.OverSpeed, err = parseSummand(field(record, indices, ColumnOverSpeed)); err != nil {
		return pt, fmt.Errorf("invalid %s: %w", ColumnOverSpeed, err)
	}
	pt.Plate = field(record, indices, ColumnPlate)

	return pt, nil
}

func field(record []string, indices map[string]int, key string) string {
	if idx, ok := indices[key]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}

// parseEpoch parses integer or fractional epoch seconds.
func parseEpoch(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
	}
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return time.Time{}, fmt.Errorf("non-finite timestamp: %s", s)
	}
	return models.EpochToTime(sec), nil
}

// checkRange rejects a present coordinate component outside [-limit, limit].
// NaN marks a missing component and passes.
func checkRange(column string, v, limit float64) error {
	if math.IsNaN(v) || (v >= -limit && v <= limit) {
		return nil
	}
	return fmt.Errorf("invalid %s: %v outside [-%v, %v]", column, v, limit, limit)
}

// parseOptionalFloat returns NaN for an empty cell.
func parseOptionalFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// parseSummand returns 0 for empty and NaN cells so they do not affect sums.
// Boolean flags count as 0 or 1. Infinite values are rejected.
func parseSummand(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) {
			return 0, nil
		}
		if math.IsInf(v, 0) {
			return 0, fmt.Errorf("not finite: %q", s)
		}
		return v, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if b {
		return 1, nil
	}
	return 0, nil
}
