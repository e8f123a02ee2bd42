package report

import "fleet-asset-report/internal/models"

// Sink persists a finished report. Each Write replaces whatever the previous
// one stored.
type Sink interface {
	Write(rows []models.ReportRow) error
}

// Header is the column header of serialized reports, in ReportRow field order.
var Header = []string{
	"License plate number",
	"Distance",
	"Number of Trips Completed",
	"Average Speed",
	"Transporter Name",
	"Number of Speed Violations",
}
