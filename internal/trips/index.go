// Package trips loads the trip metadata table and groups in-window trips by
// vehicle.
package trips

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"fleet-asset-report/internal/models"
)

// ErrInvalidTripTable is wrapped by every load failure. Trip metadata is
// expected to be well formed, so callers treat it as fatal.
var ErrInvalidTripTable = errors.New("invalid trip metadata")

// DateTimeLayout is the fixed-width YYYYMMDDHHMMSS trip timestamp layout.
const DateTimeLayout = "20060102150405"

const (
	columnVehicle     = "vehicle_number"
	columnDateTime    = "date_time"
	columnTransporter = "transporter_name"
)

// DateTime is a trip timestamp in DateTimeLayout, interpreted as UTC.
type DateTime struct {
	t time.Time
}

// NewDateTime wraps t for marshalling.
func NewDateTime(t time.Time) DateTime {
	return DateTime{t: t.UTC()}
}

// Time returns the parsed timestamp.
func (d DateTime) Time() time.Time {
	return d.t
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (d *DateTime) UnmarshalCSV(s string) error {
	t, err := time.ParseInLocation(DateTimeLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("date_time %q: %w", s, err)
	}
	d.t = t
	return nil
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (d DateTime) MarshalCSV() (string, error) {
	return d.t.UTC().Format(DateTimeLayout), nil
}

// Row is the csv shape of a trip record.
type Row struct {
	VehicleNumber   string   `csv:"vehicle_number"`
	DateTime        DateTime `csv:"date_time"`
	TransporterName string   `csv:"transporter_name"`
}

// Load reads the trip metadata table at filename.
func Load(filename string) ([]models.TripRecord, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTripTable, err)
	}
	return parse(data)
}

// Parse reads a trip metadata table from r.
func Parse(r io.Reader) ([]models.TripRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTripTable, err)
	}
	return parse(data)
}

func parse(data []byte) ([]models.TripRecord, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrInvalidTripTable, err)
	}
	if err := checkColumns(header); err != nil {
		return nil, err
	}

	var rows []Row
	if err := gocsv.UnmarshalCSV(csv.NewReader(bytes.NewReader(data)), &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTripTable, err)
	}

	// gocsv drops columns without a struct field; keep them as passthrough
	extras, err := gocsv.CSVToMaps(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTripTable, err)
	}
	if len(extras) != len(rows) {
		return nil, fmt.Errorf("%w: row count mismatch (%d vs %d)", ErrInvalidTripTable, len(rows), len(extras))
	}

	records := make([]models.TripRecord, 0, len(rows))
	for i, row := range rows {
		records = append(records, models.TripRecord{
			VehicleNumber:   row.VehicleNumber,
			DateTime:        row.DateTime.Time(),
			TransporterName: row.TransporterName,
			Extra:           passthrough(extras[i]),
		})
	}
	return records, nil
}

func checkColumns(header []string) error {
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		seen[h] = true
	}
	for _, col := range []string{columnVehicle, columnDateTime, columnTransporter} {
		if !seen[col] {
			return fmt.Errorf("%w: missing column %q", ErrInvalidTripTable, col)
		}
	}
	return nil
}

func passthrough(m map[string]string) map[string]string {
	delete(m, columnVehicle)
	delete(m, columnDateTime)
	delete(m, columnTransporter)
	if len(m) == 0 {
		return nil
	}
	return m
}

// FilterAndGroup keeps records whose DateTime lies in window and groups them
// by vehicle number. Groups appear in the order their vehicle is first seen;
// trips inside a group keep input order. Records without a vehicle number
// cannot be joined to telemetry and are left out.
func FilterAndGroup(records []models.TripRecord, window models.TimeWindow) []models.TripGroup {
	var groups []models.TripGroup
	position := make(map[string]int)

	for _, rec := range records {
		if rec.VehicleNumber == "" || !window.Contains(rec.DateTime) {
			continue
		}
		idx, ok := position[rec.VehicleNumber]
		if !ok {
			idx = len(groups)
			position[rec.VehicleNumber] = idx
			groups = append(groups, models.TripGroup{VehicleNumber: rec.VehicleNumber})
		}
		groups[idx].Trips = append(groups[idx].Trips, rec)
	}

	return groups
}
