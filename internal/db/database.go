package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"fleet-asset-report/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the SQLite file a report is written to
type Database struct {
	conn *sql.DB
}

// New opens (or creates) the SQLite report file at dbPath
func New(dbPath string) (*Database, error) {
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", escapePath(dbPath))

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // single writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{conn: conn}, nil
}

// escapePath percent-encodes each path segment so '?', '#' and '%' in a
// file name survive the URI form of the DSN. SQLite decodes them on open.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.conn.Close()
}

const schema = `
	DROP TABLE IF EXISTS asset_report;

	CREATE TABLE asset_report (
		position INTEGER PRIMARY KEY,
		license_plate TEXT NOT NULL,
		distance_km REAL NOT NULL,
		trips_completed INTEGER NOT NULL,
		average_speed REAL NOT NULL,
		transporter_name TEXT NOT NULL,
		speed_violations INTEGER NOT NULL
	);
`

// Write replaces the stored report with rows. The table is recreated and
// filled inside one transaction, so readers see either the old report or
// the new one.
func (db *Database) Write(rows []models.ReportRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("failed to recreate report table: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO asset_report
		(position, license_plate, distance_km, trips_completed, average_speed,
		 transporter_name, speed_violations)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range rows {
		_, err := stmt.Exec(i, r.Plate, r.DistanceKM, r.TripCount, r.AvgSpeed, r.TransporterName, r.Violations)
		if err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ReadReport returns the stored report in row order
func (db *Database) ReadReport() ([]models.ReportRow, error) {
	query := `
		SELECT license_plate, distance_km, trips_completed, average_speed,
		       transporter_name, speed_violations
		FROM asset_report
		ORDER BY position
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.ReportRow
	for rows.Next() {
		var r models.ReportRow
		err := rows.Scan(&r.Plate, &r.DistanceKM, &r.TripCount, &r.AvgSpeed, &r.TransporterName, &r.Violations)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// RowCount returns the number of rows in the stored report
func (db *Database) RowCount() (int64, error) {
	var count int64
	err := db.conn.QueryRow("SELECT COUNT(*) FROM asset_report").Scan(&count)
	return count, err
}
