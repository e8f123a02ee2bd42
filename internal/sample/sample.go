// Package sample writes synthetic trip metadata and telemetry archives in the
// layout the report pipeline reads.
package sample

import (
	"archive/zip"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"fleet-asset-report/internal/archive"
	"fleet-asset-report/internal/models"
	"fleet-asset-report/internal/trips"
)

// TelemetryRow is the csv shape of one telemetry sample. Fields are strings
// so that blank cells can be written.
type TelemetryRow struct {
	Tis   string `csv:"tis"`
	Lat   string `csv:"lat"`
	Lon   string `csv:"lon"`
	Spd   string `csv:"spd"`
	Osf   string `csv:"osf"`
	Plate string `csv:"lic_plate_no"`
}

// RowFromPoint formats p as a telemetry row. Missing coordinate components
// are written as blank cells.
func RowFromPoint(p models.TelemetryPoint) TelemetryRow {
	return TelemetryRow{
		Tis:   strconv.FormatInt(p.Timestamp.Unix(), 10),
		Lat:   formatOptional(p.Position.Lat),
		Lon:   formatOptional(p.Position.Lon),
		Spd:   strconv.FormatFloat(p.Speed, 'f', -1, 64),
		Osf:   strconv.FormatFloat(p.OverSpeed, 'f', -1, 64),
		Plate: p.Plate,
	}
}

func formatOptional(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Table is one telemetry file inside the archive. Dir is the folder the file
// is nested under and may be empty.
type Table struct {
	Dir       string
	VehicleID string
	Rows      []TelemetryRow
	// Raw, when set, is written verbatim instead of Rows.
	Raw []byte
}

// Name returns the entry path of the table inside the archive.
func (t Table) Name() string {
	return path.Join(t.Dir, archive.FileName(t.VehicleID))
}

// Dataset is a trip table with its telemetry archive.
type Dataset struct {
	Trips  []trips.Row
	Tables []Table
}

// WriteTrips writes the trip metadata table.
func WriteTrips(w io.Writer, rows []trips.Row) error {
	return gocsv.Marshal(rows, w)
}

// WriteArchive writes tables into a zip, in order.
func WriteArchive(w io.Writer, tables []Table) error {
	zw := zip.NewWriter(w)
	for _, t := range tables {
		entry, err := zw.Create(t.Name())
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", t.Name(), err)
		}
		if t.Raw != nil {
			_, err = entry.Write(t.Raw)
		} else {
			err = gocsv.Marshal(t.Rows, entry)
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", t.Name(), err)
		}
	}
	return zw.Close()
}

// WriteFiles writes the dataset to tripsPath and archivePath, replacing
// existing files.
func (d *Dataset) WriteFiles(tripsPath, archivePath string) error {
	if err := writeFile(tripsPath, func(w io.Writer) error { return WriteTrips(w, d.Trips) }); err != nil {
		return err
	}
	return writeFile(archivePath, func(w io.Writer) error { return WriteArchive(w, d.Tables) })
}

func writeFile(filename string, write func(io.Writer) error) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", filename, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Options control Generate.
type Options struct {
	Vehicles        int
	TripsPerVehicle int
	PointsPerTrip   int
	Start           time.Time
	Interval        time.Duration
}

// Generate builds a random dataset around Bengaluru. Vehicle ids look like
// KA01AB0001 and each vehicle sits under a per-transporter folder.
func Generate(opts Options, rng *rand.Rand) *Dataset {
	transporters := []string{"Acme Logistics", "Blue Dart", "Rivigo", "Delhivery"}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}

	ds := &Dataset{}
	for v := 1; v <= opts.Vehicles; v++ {
		id := fmt.Sprintf("KA%02dAB%04d", 1+rng.Intn(50), v)
		transporter := transporters[rng.Intn(len(transporters))]
		table := Table{Dir: path.Join("dump", transporter), VehicleID: id}

		lat := 12.9716 + (rng.Float64()-0.5)*0.2
		lon := 77.5946 + (rng.Float64()-0.5)*0.2
		ts := opts.Start

		for trip := 0; trip < opts.TripsPerVehicle; trip++ {
			ds.Trips = append(ds.Trips, trips.Row{
				VehicleNumber:   id,
				DateTime:        trips.NewDateTime(ts),
				TransporterName: transporter,
			})

			for p := 0; p < opts.PointsPerTrip; p++ {
				lat += (rng.Float64() - 0.5) * 0.01
				lon += (rng.Float64() - 0.5) * 0.01
				speed := rng.Float64() * 90
				osf := 0.0
				if speed > 80 {
					osf = 1
				}
				table.Rows = append(table.Rows, RowFromPoint(models.TelemetryPoint{
					Timestamp: ts,
					Position:  models.Coordinate{Lat: lat, Lon: lon},
					Speed:     math.Round(speed*10) / 10,
					OverSpeed: osf,
					Plate:     id,
				}))
				ts = ts.Add(opts.Interval)
			}
			ts = ts.Add(time.Hour)
		}
		ds.Tables = append(ds.Tables, table)
	}
	return ds
}
