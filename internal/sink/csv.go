// Package sink writes finished reports to a single output file.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"fleet-asset-report/internal/db"
	"fleet-asset-report/internal/models"
	"fleet-asset-report/internal/report"
)

// CSV writes reports as a header plus one line per row, truncating Path on
// every write.
type CSV struct {
	Path string
}

// Write implements report.Sink.
func (c CSV) Write(rows []models.ReportRow) error {
	f, err := os.Create(c.Path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", c.Path, err)
	}
	if rows == nil {
		rows = []models.ReportRow{}
	}
	if err := gocsv.Marshal(rows, f); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", c.Path, err)
	}
	return f.Close()
}

// SQLite opens the database at Path for each write, so the file is only held
// while a report is being stored.
type SQLite struct {
	Path string
}

// Write implements report.Sink.
func (s SQLite) Write(rows []models.ReportRow) error {
	database, err := db.New(s.Path)
	if err != nil {
		return err
	}
	if err := database.Write(rows); err != nil {
		database.Close()
		return err
	}
	return database.Close()
}

// ForPath picks the sink for an output file by extension: SQLite for .db,
// .sqlite and .sqlite3, CSV for anything else.
func ForPath(path string) report.Sink {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return SQLite{Path: path}
	default:
		return CSV{Path: path}
	}
}
