package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    command TEXT NOT NULL,
    input TEXT,
    params TEXT,
    started_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS stations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    number TEXT NOT NULL,
    name TEXT NOT NULL,
    height TEXT NOT NULL,
    easting TEXT NOT NULL,
    northing TEXT NOT NULL,
    latitude TEXT NOT NULL,
    longitude TEXT NOT NULL,
    UNIQUE(number, name, height, easting, northing, latitude, longitude)
);

CREATE INDEX IF NOT EXISTS idx_runs_command ON runs(command, started_at);
`,
	},
	{
		Version:     2,
		Description: "Add monthly and annual summary tables",
		SQL: `
CREATE TABLE IF NOT EXISTS monthly_summaries (
    run_id TEXT NOT NULL REFERENCES runs(run_id),
    station_id INTEGER NOT NULL REFERENCES stations(id),
    year_month TEXT NOT NULL,
    rainfall REAL NOT NULL,
    days_count INTEGER NOT NULL,
    missing_count INTEGER NOT NULL,
    pct_missing REAL NOT NULL,
    incomplete BOOLEAN NOT NULL,
    PRIMARY KEY (run_id, station_id, year_month)
);

CREATE TABLE IF NOT EXISTS annual_summaries (
    run_id TEXT NOT NULL REFERENCES runs(run_id),
    station_id INTEGER NOT NULL REFERENCES stations(id),
    year INTEGER NOT NULL,
    rainfall REAL NOT NULL,
    days_count INTEGER NOT NULL,
    missing_count INTEGER NOT NULL,
    pct_missing REAL NOT NULL,
    months_observed INTEGER NOT NULL,
    incomplete_year BOOLEAN NOT NULL,
    insufficient_months BOOLEAN NOT NULL,
    flagged BOOLEAN NOT NULL,
    PRIMARY KEY (run_id, station_id, year)
);

CREATE INDEX IF NOT EXISTS idx_monthly_flagged ON monthly_summaries(run_id, incomplete);
CREATE INDEX IF NOT EXISTS idx_annual_flagged ON annual_summaries(run_id, flagged);
`,
	},
	{
		Version:     3,
		Description: "Add lag_correlations table",
		SQL: `
CREATE TABLE IF NOT EXISTS lag_correlations (
    run_id TEXT NOT NULL REFERENCES runs(run_id),
    season TEXT NOT NULL,
    lag_years INTEGER NOT NULL,
    n INTEGER NOT NULL,
    pearson_r REAL,
    pearson_p REAL,
    spearman_r REAL,
    spearman_p REAL,
    kendall_tau REAL,
    kendall_p REAL,
    PRIMARY KEY (run_id, season, lag_years)
);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Printf("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// SchemaVersion is the highest applied migration, or 0 on an empty database.
func (s *Store) SchemaVersion() (int, error) {
	var version sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
