package trips

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-asset-report/internal/models"
)

const tripTable = `trip_id,vehicle_number,date_time,transporter_name,quantity
T1,V2,20230101100000,Beta,12
T2,V1,20230101110000,Acme,3
T3,V2,20230101120000,Beta,7
T4,V3,20230105120000,Gamma,1
T5,V1,20230101130000,Acme,9
`

func utc(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func TestParse(t *testing.T) {
	records, err := Parse(strings.NewReader(tripTable))
	require.NoError(t, err)
	require.Len(t, records, 5)

	first := records[0]
	assert.Equal(t, "V2", first.VehicleNumber)
	assert.Equal(t, "Beta", first.TransporterName)
	assert.Equal(t, utc(2023, time.January, 1, 10), first.DateTime)
	assert.Equal(t, map[string]string{"trip_id": "T1", "quantity": "12"}, first.Extra)
}

func TestParse_ByteOrderMark(t *testing.T) {
	records, err := Parse(strings.NewReader("\xef\xbb\xbf" + tripTable))
	require.NoError(t, err)
	assert.Equal(t, "V2", records[0].VehicleNumber)
}

func TestParse_InvalidTables(t *testing.T) {
	tests := []struct {
		name  string
		table string
	}{
		{"empty", ""},
		{"missing date_time column", "vehicle_number,transporter_name\nV1,Acme\n"},
		{"missing transporter column", "vehicle_number,date_time\nV1,20230101100000\n"},
		{"iso timestamp", "vehicle_number,date_time,transporter_name\nV1,2023-01-01T10:00:00Z,Acme\n"},
		{"short timestamp", "vehicle_number,date_time,transporter_name\nV1,202301011000,Acme\n"},
		{"impossible date", "vehicle_number,date_time,transporter_name\nV1,20231301100000,Acme\n"},
		{"empty timestamp", "vehicle_number,date_time,transporter_name\nV1,,Acme\n"},
		{"ragged row", "vehicle_number,date_time,transporter_name\nV1,20230101100000\n"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(test.table))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTripTable), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Trip-Info.csv")
	require.NoError(t, os.WriteFile(path, []byte(tripTable), 0o644))

	records, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, records, 5)

	_, err = Load(filepath.Join(dir, "absent.csv"))
	assert.True(t, errors.Is(err, ErrInvalidTripTable))
}

func TestFilterAndGroup(t *testing.T) {
	records, err := Parse(strings.NewReader(tripTable))
	require.NoError(t, err)

	window := models.TimeWindow{Start: utc(2023, time.January, 1, 0), End: utc(2023, time.January, 2, 0)}
	groups := FilterAndGroup(records, window)

	require.Len(t, groups, 2)
	assert.Equal(t, "V2", groups[0].VehicleNumber)
	assert.Equal(t, 2, groups[0].TripCount())
	assert.Equal(t, "Beta", groups[0].TransporterName())
	assert.Equal(t, "V1", groups[1].VehicleNumber)
	assert.Equal(t, 2, groups[1].TripCount())
	assert.Equal(t, utc(2023, time.January, 1, 11), groups[1].Trips[0].DateTime)
	assert.Equal(t, utc(2023, time.January, 1, 13), groups[1].Trips[1].DateTime)
}

func TestFilterAndGroup_InclusiveBounds(t *testing.T) {
	records := []models.TripRecord{
		{VehicleNumber: "V1", DateTime: utc(2023, time.January, 1, 9), TransporterName: "Acme"},
		{VehicleNumber: "V1", DateTime: utc(2023, time.January, 1, 10), TransporterName: "Acme"},
		{VehicleNumber: "V1", DateTime: utc(2023, time.January, 1, 12), TransporterName: "Acme"},
		{VehicleNumber: "V1", DateTime: utc(2023, time.January, 1, 13), TransporterName: "Acme"},
	}

	window := models.TimeWindow{Start: utc(2023, time.January, 1, 10), End: utc(2023, time.January, 1, 12)}
	groups := FilterAndGroup(records, window)

	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].TripCount())
}

func TestFilterAndGroup_EmptyResults(t *testing.T) {
	records, err := Parse(strings.NewReader(tripTable))
	require.NoError(t, err)

	assert.Empty(t, FilterAndGroup(records, models.WindowFromEpoch(0, 1)))
	assert.Empty(t, FilterAndGroup(records, models.TimeWindow{Start: utc(2024, 1, 1, 0), End: utc(2020, 1, 1, 0)}))
	assert.Empty(t, FilterAndGroup(nil, models.WindowFromEpoch(0, 2_000_000_000)))
}

func TestFilterAndGroup_FirstTransporterWins(t *testing.T) {
	records := []models.TripRecord{
		{VehicleNumber: "V1", DateTime: utc(2023, time.January, 1, 10), TransporterName: "First"},
		{VehicleNumber: "V1", DateTime: utc(2023, time.January, 1, 8), TransporterName: "Second"},
		{VehicleNumber: "", DateTime: utc(2023, time.January, 1, 9), TransporterName: "Nobody"},
	}

	groups := FilterAndGroup(records, models.WindowFromEpoch(0, 2_000_000_000))
	require.Len(t, groups, 1)
	assert.Equal(t, "First", groups[0].TransporterName())
}

func TestDateTime_RoundTrip(t *testing.T) {
	ts := utc(2023, time.March, 4, 5).Add(6*time.Minute + 7*time.Second)

	s, err := NewDateTime(ts).MarshalCSV()
	require.NoError(t, err)
	assert.Equal(t, "20230304050607", s)

	var d DateTime
	require.NoError(t, d.UnmarshalCSV(s))
	assert.Equal(t, ts, d.Time())
}
