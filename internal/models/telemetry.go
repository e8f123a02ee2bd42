package models

import (
	"math"
	"time"
)

// TimeWindow is an inclusive [Start, End] interval. An inverted window is
// not rejected; it simply contains nothing.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WindowFromEpoch builds a TimeWindow from epoch seconds. Fractional seconds
// are kept.
func WindowFromEpoch(start, end float64) TimeWindow {
	return TimeWindow{Start: EpochToTime(start), End: EpochToTime(end)}
}

// Contains reports whether t lies inside the window, bounds included.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// EpochToTime converts epoch seconds to a UTC time.
func EpochToTime(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// Coordinate is a latitude/longitude pair in decimal degrees. A component
// that is NaN or infinite is treated as missing.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both components are present.
func (c Coordinate) Valid() bool {
	return isFinite(c.Lat) && isFinite(c.Lon)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// TelemetryPoint represents a single raw GPS sample from a vehicle log
type TelemetryPoint struct {
	Timestamp time.Time  `json:"timestamp"`
	Position  Coordinate `json:"position"`
	Speed     float64    `json:"speed"`
	OverSpeed float64    `json:"over_speed"`
	Plate     string     `json:"plate"`
}

// TelemetrySummary is the per-vehicle reduction of the points inside a
// window. The zero value is the summary of an empty window.
type TelemetrySummary struct {
	TotalDistanceKM float64 `json:"total_distance_km"`
	TotalSpeed      float64 `json:"total_speed"`
	ViolationCount  float64 `json:"violation_count"`
	Plate           string  `json:"plate"`
}

// IsZero reports whether s is the empty-window summary.
func (s TelemetrySummary) IsZero() bool {
	return s == TelemetrySummary{}
}
