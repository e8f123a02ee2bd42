package models

import "time"

// TripRecord is one row of the trip metadata table.
type TripRecord struct {
	VehicleNumber   string            `json:"vehicle_number"`
	DateTime        time.Time         `json:"date_time"`
	TransporterName string            `json:"transporter_name"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// TripGroup holds every in-window trip of a single vehicle, in input order.
// Groups are created by their first member and are never empty.
type TripGroup struct {
	VehicleNumber string
	Trips         []TripRecord
}

// TripCount returns the number of trips in the group.
func (g TripGroup) TripCount() int {
	return len(g.Trips)
}

// TransporterName returns the transporter of the first trip in input order.
// Members are assumed to share one transporter.
func (g TripGroup) TransporterName() string {
	return g.Trips[0].TransporterName
}

// ReportRow is one vehicle line of the asset utilization report.
type ReportRow struct {
	Plate           string  `json:"License plate number" csv:"License plate number"`
	DistanceKM      float64 `json:"Distance" csv:"Distance"`
	TripCount       int     `json:"Number of Trips Completed" csv:"Number of Trips Completed"`
	AvgSpeed        float64 `json:"Average Speed" csv:"Average Speed"`
	TransporterName string  `json:"Transporter Name" csv:"Transporter Name"`
	Violations      int64   `json:"Number of Speed Violations" csv:"Number of Speed Violations"`
}

// SpeedNormalization divides the summed speed when computing AvgSpeed.
const SpeedNormalization = 1000

// NewReportRow joins a vehicle's telemetry summary with its trip group.
// Speed and violation sums are truncated to integers before use.
func NewReportRow(group TripGroup, summary TelemetrySummary) ReportRow {
	totalSpeed := int64(summary.TotalSpeed)
	trips := group.TripCount()

	return ReportRow{
		Plate:           summary.Plate,
		DistanceKM:      summary.TotalDistanceKM,
		TripCount:       trips,
		AvgSpeed:        float64(totalSpeed) / float64(trips*SpeedNormalization),
		TransporterName: group.TransporterName(),
		Violations:      int64(summary.ViolationCount),
	}
}
