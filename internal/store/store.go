// Package store persists scan history to SQLite so users can track dead-code
// cleanup across runs.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for scan history.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS scans (
  id               INTEGER PRIMARY KEY,
  root             TEXT NOT NULL,
  started_at       TIMESTAMP NOT NULL,
  duration_ms      INTEGER NOT NULL,
  files_scanned    INTEGER NOT NULL,
  total_functions  INTEGER NOT NULL,
  unused_count     INTEGER NOT NULL,
  failed_functions INTEGER NOT NULL DEFAULT 0,
  partial          BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS unused_functions (
  id        INTEGER PRIMARY KEY,
  scan_id   INTEGER NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
  path      TEXT NOT NULL,
  name      TEXT NOT NULL,
  kind      TEXT NOT NULL,
  line      INTEGER NOT NULL,
  character INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_unused_scan ON unused_functions(scan_id);
CREATE INDEX IF NOT EXISTS idx_scans_root ON scans(root, started_at);
`

// Scan is one recorded run.
type Scan struct {
	ID             int64
	Root           string
	StartedAt      time.Time
	Duration       time.Duration
	FilesScanned   int
	TotalFunctions int
	UnusedCount    int
	FailedCount    int
	Partial        bool
}

// UnusedFunction is one finding belonging to a recorded scan. Line and
// Character are 0-based, as the engine reports them.
type UnusedFunction struct {
	Path      string
	Name      string
	Kind      string
	Line      int
	Character int
}

// SaveScan records a run and its findings in one transaction, returning the
// new scan id.
func (s *Store) SaveScan(scan Scan, findings []UnusedFunction) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO scans (root, started_at, duration_ms, files_scanned, total_functions, unused_count, failed_functions, partial)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		scan.Root, scan.StartedAt, scan.Duration.Milliseconds(),
		scan.FilesScanned, scan.TotalFunctions, scan.UnusedCount, scan.FailedCount, scan.Partial,
	)
	if err != nil {
		return 0, fmt.Errorf("insert scan: %w", err)
	}
	scanID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("scan id: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO unused_functions (scan_id, path, name, kind, line, character)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare findings: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		if _, err := stmt.Exec(scanID, f.Path, f.Name, f.Kind, f.Line, f.Character); err != nil {
			return 0, fmt.Errorf("insert finding %s: %w", f.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return scanID, nil
}

// RecentScans returns up to limit scans for a root, newest first.
func (s *Store) RecentScans(root string, limit int) ([]Scan, error) {
	rows, err := s.db.Query(
		`SELECT id, root, started_at, duration_ms, files_scanned, total_functions, unused_count, failed_functions, partial
		 FROM scans WHERE root = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		root, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var sc Scan
		var ms int64
		if err := rows.Scan(&sc.ID, &sc.Root, &sc.StartedAt, &ms,
			&sc.FilesScanned, &sc.TotalFunctions, &sc.UnusedCount, &sc.FailedCount, &sc.Partial); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sc.Duration = time.Duration(ms) * time.Millisecond
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// FindingsByScan returns a scan's findings ordered by (path, line, character).
func (s *Store) FindingsByScan(scanID int64) ([]UnusedFunction, error) {
	rows, err := s.db.Query(
		`SELECT path, name, kind, line, character FROM unused_functions
		 WHERE scan_id = ? ORDER BY path, line, character`,
		scanID,
	)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	var findings []UnusedFunction
	for rows.Next() {
		var f UnusedFunction
		if err := rows.Scan(&f.Path, &f.Name, &f.Kind, &f.Line, &f.Character); err != nil {
			return nil, fmt.Errorf("finding row: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}
