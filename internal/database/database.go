package database

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"carscout/internal/models"
)

//go:embed schema.sql
var schema string

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

type Database struct {
	db *sql.DB
}

// Run is one crawl operation as recorded by the service.
type Run struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Subject     string     `json:"subject"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	RecordCount int        `json:"recordCount"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// Stats summarises stored runs and listings.
type Stats struct {
	Runs      int        `json:"runs"`
	Completed int        `json:"completed"`
	Failed    int        `json:"failed"`
	Listings  int        `json:"listings"`
	Models    int        `json:"models"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
}

// NewDatabase creates a new database connection
func NewDatabase(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_cache_size=10000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	database := &Database{db: db}
	if err := database.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks the connection
func (d *Database) Ping() error {
	return d.db.Ping()
}

func (d *Database) initializeSchema() error {
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// SchemaVersion reads the schema version marker
func (d *Database) SchemaVersion() (string, error) {
	var v string
	err := d.db.QueryRow("SELECT value FROM database_metadata WHERE key = 'schema_version'").Scan(&v)
	return v, err
}

// StartRun records a run in the running state
func (d *Database) StartRun(id, kind, subject string, startedAt time.Time) error {
	_, err := d.db.Exec(`
		INSERT INTO crawl_runs (id, kind, subject, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, kind, subject, StatusRunning, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// FinishRun stores the outcome of a run
func (d *Database) FinishRun(id, status, reason string, count int, finishedAt time.Time) error {
	res, err := d.db.Exec(`
		UPDATE crawl_runs SET status = ?, reason = ?, record_count = ?, finished_at = ?
		WHERE id = ?
	`, status, reason, count, finishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SaveRun inserts or replaces a complete run record
func (d *Database) SaveRun(run Run) error {
	var finished interface{}
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	_, err := d.db.Exec(`
		INSERT INTO crawl_runs (id, kind, subject, status, reason, record_count, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason,
			record_count = excluded.record_count,
			finished_at = excluded.finished_at
	`, run.ID, run.Kind, run.Subject, run.Status, run.Reason, run.RecordCount, run.StartedAt.UTC(), finished)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun loads a run by id
func (d *Database) GetRun(id string) (*Run, error) {
	var run Run
	var finished sql.NullTime
	err := d.db.QueryRow(`
		SELECT id, kind, subject, status, reason, record_count, started_at, finished_at
		FROM crawl_runs WHERE id = ?
	`, id).Scan(&run.ID, &run.Kind, &run.Subject, &run.Status, &run.Reason, &run.RecordCount, &run.StartedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

// SaveListings upserts listings seen by a run. Existing rows keep their
// first_seen time.
func (d *Database) SaveListings(runID string, listings []models.ListingRecord, seenAt time.Time) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO listings (id, run_id, title, price, year, mileage, location, link, image_url, platform, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id,
			title = excluded.title,
			price = excluded.price,
			year = excluded.year,
			mileage = excluded.mileage,
			location = excluded.location,
			link = excluded.link,
			image_url = excluded.image_url,
			last_seen = excluded.last_seen
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	var run interface{}
	if runID != "" {
		run = runID
	}
	seen := seenAt.UTC()
	saved := 0
	for _, l := range listings {
		if !l.Valid() {
			continue
		}
		var year interface{}
		if l.Year != nil {
			year = *l.Year
		}
		if _, err := stmt.Exec(l.ID, run, l.Title, l.Price, year, l.Mileage, l.Location, l.Link, l.ImageURL, l.Platform, seen, seen); err != nil {
			return 0, fmt.Errorf("failed to save listing %s: %w", l.ID, err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return saved, nil
}

// RecentListings returns the most recently seen listings, optionally for
// one run only
func (d *Database) RecentListings(runID string, limit int) ([]models.ListingRecord, error) {
	query := `
		SELECT id, title, price, year, mileage, location, link, image_url, platform
		FROM listings
		WHERE 1=1
	`
	args := []interface{}{}
	if runID != "" {
		query += " AND run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY last_seen DESC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var out []models.ListingRecord
	for rows.Next() {
		var l models.ListingRecord
		var year sql.NullInt64
		if err := rows.Scan(&l.ID, &l.Title, &l.Price, &year, &l.Mileage, &l.Location, &l.Link, &l.ImageURL, &l.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if year.Valid {
			y := int(year.Int64)
			l.Year = &y
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SaveModels upserts the model catalog for a brand
func (d *Database) SaveModels(brand string, records []models.ModelRecord, collectedAt time.Time) (int, error) {
	brand = strings.ToLower(strings.TrimSpace(brand))
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO model_catalog (brand, code, name, listings, url, collected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(brand, code) DO UPDATE SET
			name = excluded.name,
			listings = excluded.listings,
			url = excluded.url,
			collected_at = excluded.collected_at
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	saved := 0
	for _, m := range records {
		if !m.Valid() {
			continue
		}
		if _, err := stmt.Exec(brand, m.Code, m.Name, m.Count, m.URL, collectedAt.UTC()); err != nil {
			return 0, fmt.Errorf("failed to save model %s: %w", m.Code, err)
		}
		saved++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return saved, nil
}

// Models returns the stored catalog for a brand, by name
func (d *Database) Models(brand string) ([]models.ModelRecord, error) {
	rows, err := d.db.Query(`
		SELECT brand, name, code, listings, url FROM model_catalog
		WHERE brand = ? ORDER BY name ASC
	`, strings.ToLower(strings.TrimSpace(brand)))
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}
	defer rows.Close()

	var out []models.ModelRecord
	for rows.Next() {
		var m models.ModelRecord
		if err := rows.Scan(&m.Brand, &m.Name, &m.Code, &m.Count, &m.URL); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RunStats summarises the stored data
func (d *Database) RunStats() (Stats, error) {
	var s Stats
	var last sql.NullString
	err := d.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		       MAX(started_at)
		FROM crawl_runs
	`).Scan(&s.Runs, &s.Completed, &s.Failed, &last)
	if err != nil {
		return s, fmt.Errorf("failed to query runs: %w", err)
	}
	if last.Valid {
		if t, ok := parseSQLiteTime(last.String); ok {
			s.LastRun = &t
		}
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM listings").Scan(&s.Listings); err != nil {
		return s, fmt.Errorf("failed to count listings: %w", err)
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM model_catalog").Scan(&s.Models); err != nil {
		return s, fmt.Errorf("failed to count models: %w", err)
	}
	return s, nil
}

// PruneListings deletes listings not seen since cutoff
func (d *Database) PruneListings(cutoff time.Time) (int64, error) {
	res, err := d.db.Exec("DELETE FROM listings WHERE last_seen < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune listings: %w", err)
	}
	return res.RowsAffected()
}

// parseSQLiteTime handles the text forms go-sqlite3 writes for DATETIME
// values that come back through aggregates.
func parseSQLiteTime(s string) (time.Time, bool) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
