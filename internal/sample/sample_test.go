package sample

import (
	"bytes"
	"math"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-asset-report/internal/archive"
	"fleet-asset-report/internal/models"
	"fleet-asset-report/internal/parser"
	"fleet-asset-report/internal/trips"
)

var start = time.Date(2024, time.March, 5, 8, 0, 0, 0, time.UTC)

func TestRowFromPoint_BlankMissingCoordinates(t *testing.T) {
	row := RowFromPoint(models.TelemetryPoint{
		Timestamp: start,
		Position:  models.Coordinate{Lat: math.NaN(), Lon: 77.5},
		Speed:     12.5,
		OverSpeed: 1,
		Plate:     "KA01",
	})

	assert.Equal(t, TelemetryRow{
		Tis:   "1709625600",
		Lat:   "",
		Lon:   "77.5",
		Spd:   "12.5",
		Osf:   "1",
		Plate: "KA01",
	}, row)
}

func TestWriteTrips_ReadableByTripLoader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTrips(&buf, []trips.Row{
		{VehicleNumber: "V1", DateTime: trips.NewDateTime(start), TransporterName: "Acme"},
		{VehicleNumber: "V2", DateTime: trips.NewDateTime(start.Add(time.Hour)), TransporterName: "Beta"},
	}))

	records, err := trips.Parse(&buf)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "V1", records[0].VehicleNumber)
	assert.True(t, start.Equal(records[0].DateTime))
	assert.Equal(t, "Beta", records[1].TransporterName)
}

func TestWriteArchive_LayoutAndContents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, []Table{
		{Dir: "dump/Acme", VehicleID: "V1", Rows: []TelemetryRow{
			RowFromPoint(models.TelemetryPoint{Timestamp: start, Position: models.Coordinate{Lat: 1, Lon: 2}, Speed: 30, Plate: "P1"}),
		}},
		{VehicleID: "V2", Raw: []byte{}},
	}))

	arc, err := archive.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, 2, arc.Len())

	data, found, err := arc.Locate("V1")
	require.NoError(t, err)
	require.True(t, found)

	summary, err := parser.Summarize(bytes.NewReader(data), models.TimeWindow{Start: start, End: start})
	require.NoError(t, err)
	assert.Equal(t, "P1", summary.Plate)
	assert.Equal(t, 30.0, summary.TotalSpeed)

	data, found, err = arc.Locate("V2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, data)
}

func TestTable_Name(t *testing.T) {
	assert.Equal(t, "V1.csv", Table{VehicleID: "V1"}.Name())
	assert.Equal(t, "dump/Acme/V1.csv", Table{Dir: "dump/Acme", VehicleID: "V1"}.Name())
}

func TestGenerate(t *testing.T) {
	ds := Generate(Options{Vehicles: 4, TripsPerVehicle: 2, PointsPerTrip: 5, Start: start}, rand.New(rand.NewSource(1)))

	require.Len(t, ds.Tables, 4)
	assert.Len(t, ds.Trips, 8)

	seen := make(map[string]bool)
	for i, table := range ds.Tables {
		assert.False(t, seen[table.VehicleID], "duplicate vehicle %s", table.VehicleID)
		seen[table.VehicleID] = true
		assert.Len(t, table.Rows, 10)
		assert.Equal(t, table.VehicleID, ds.Trips[2*i].VehicleNumber)
		assert.Equal(t, table.VehicleID, table.Rows[0].Plate)
	}

	again := Generate(Options{Vehicles: 4, TripsPerVehicle: 2, PointsPerTrip: 5, Start: start}, rand.New(rand.NewSource(1)))
	assert.Equal(t, ds, again)
}

func TestDataset_WriteFiles(t *testing.T) {
	dir := t.TempDir()
	tripsPath := filepath.Join(dir, "trips.csv")
	archivePath := filepath.Join(dir, "dump.zip")

	ds := Generate(Options{Vehicles: 2, TripsPerVehicle: 1, PointsPerTrip: 3, Start: start}, rand.New(rand.NewSource(7)))
	require.NoError(t, ds.WriteFiles(tripsPath, archivePath))

	records, err := trips.Load(tripsPath)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	arc, err := archive.Open(archivePath)
	require.NoError(t, err)
	defer arc.Close()
	assert.Equal(t, 2, arc.Len())
}
