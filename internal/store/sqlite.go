package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lox/bogwatch/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the SQLite database at path and applies
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := New(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	version, err := s.SchemaVersion()
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("store: opened %s at schema version %d", path, version)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun records the start of a command and returns its generated ID.
func (s *Store) CreateRun(command, input string, params any) (*models.Run, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	run := &models.Run{
		ID:        uuid.NewString(),
		Command:   command,
		Input:     input,
		Params:    string(encoded),
		StartedAt: time.Now().UTC(),
	}
	_, err = s.db.Exec(`
		INSERT INTO runs (run_id, command, input, params, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Command, run.Input, run.Params, run.StartedAt)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetLatestRun returns the most recent run of command, or nil if none exist.
func (s *Store) GetLatestRun(command string) (*models.Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, command, input, params, started_at
		FROM runs
		WHERE command = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`, command)

	var run models.Run
	err := row.Scan(&run.ID, &run.Command, &run.Input, &run.Params, &run.StartedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// stationIDs upserts stations inside a transaction, caching their row IDs.
type stationIDs struct {
	tx  *sql.Tx
	ids map[models.StationMeta]int64
}

func (c *stationIDs) get(st models.StationMeta) (int64, error) {
	if id, ok := c.ids[st]; ok {
		return id, nil
	}
	if _, err := c.tx.Exec(`
		INSERT INTO stations (number, name, height, easting, northing, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(number, name, height, easting, northing, latitude, longitude) DO NOTHING
	`, st.Number, st.Name, st.Height, st.Easting, st.Northing, st.Latitude, st.Longitude); err != nil {
		return 0, fmt.Errorf("upsert station %s: %w", st.Number, err)
	}

	var id int64
	err := c.tx.QueryRow(`
		SELECT id FROM stations
		WHERE number = ? AND name = ? AND height = ? AND easting = ? AND northing = ? AND latitude = ? AND longitude = ?
	`, st.Number, st.Name, st.Height, st.Easting, st.Northing, st.Latitude, st.Longitude).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup station %s: %w", st.Number, err)
	}
	c.ids[st] = id
	return id, nil
}

func (s *Store) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) InsertMonthlySummaries(runID string, rows []models.MonthlySummary) error {
	return s.inTx(func(tx *sql.Tx) error {
		stations := &stationIDs{tx: tx, ids: map[models.StationMeta]int64{}}
		for _, r := range rows {
			id, err := stations.get(r.Station)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`
				INSERT INTO monthly_summaries (run_id, station_id, year_month, rainfall, days_count, missing_count, pct_missing, incomplete)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, runID, id, r.YearMonth, r.MonthlyRainfall, r.DaysCount, r.MissingCount, r.PctMissing, r.IncompleteMonth); err != nil {
				return fmt.Errorf("insert monthly %s %s: %w", r.Station.Number, r.YearMonth, err)
			}
		}
		return nil
	})
}

func (s *Store) InsertAnnualSummaries(runID string, rows []models.AnnualSummary) error {
	return s.inTx(func(tx *sql.Tx) error {
		stations := &stationIDs{tx: tx, ids: map[models.StationMeta]int64{}}
		for _, r := range rows {
			id, err := stations.get(r.Station)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`
				INSERT INTO annual_summaries (run_id, station_id, year, rainfall, days_count, missing_count, pct_missing, months_observed, incomplete_year, insufficient_months, flagged)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, runID, id, r.Year, r.AnnualRainfall, r.DaysCount, r.MissingCount, r.PctMissing, r.MonthsObserved, r.IncompleteYear, r.InsufficientMonths, r.Flagged); err != nil {
				return fmt.Errorf("insert annual %s %d: %w", r.Station.Number, r.Year, err)
			}
		}
		return nil
	})
}

func (s *Store) InsertLagCorrelations(runID string, rows []models.LagCorrelation) error {
	return s.inTx(func(tx *sql.Tx) error {
		for _, r := range rows {
			if _, err := tx.Exec(`
				INSERT INTO lag_correlations (run_id, season, lag_years, n, pearson_r, pearson_p, spearman_r, spearman_p, kendall_tau, kendall_p)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, runID, r.Season, r.LagYears, r.N,
				nullFloat(r.PearsonR), nullFloat(r.PearsonP),
				nullFloat(r.SpearmanR), nullFloat(r.SpearmanP),
				nullFloat(r.KendallTau), nullFloat(r.KendallP)); err != nil {
				return fmt.Errorf("insert correlation %s lag %d: %w", r.Season, r.LagYears, err)
			}
		}
		return nil
	})
}

const stationColumns = `st.number, st.name, st.height, st.easting, st.northing, st.latitude, st.longitude`

func scanStation(st *models.StationMeta) []any {
	return []any{&st.Number, &st.Name, &st.Height, &st.Easting, &st.Northing, &st.Latitude, &st.Longitude}
}

func (s *Store) GetMonthlySummaries(runID string) ([]models.MonthlySummary, error) {
	rows, err := s.db.Query(`
		SELECT `+stationColumns+`, m.year_month, m.rainfall, m.days_count, m.missing_count, m.pct_missing, m.incomplete
		FROM monthly_summaries m
		JOIN stations st ON st.id = m.station_id
		WHERE m.run_id = ?
		ORDER BY m.rowid
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MonthlySummary
	for rows.Next() {
		var m models.MonthlySummary
		dest := append(scanStation(&m.Station), &m.YearMonth, &m.MonthlyRainfall, &m.DaysCount, &m.MissingCount, &m.PctMissing, &m.IncompleteMonth)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetAnnualSummaries(runID string) ([]models.AnnualSummary, error) {
	rows, err := s.db.Query(`
		SELECT `+stationColumns+`, a.year, a.rainfall, a.days_count, a.missing_count, a.pct_missing, a.months_observed, a.incomplete_year, a.insufficient_months, a.flagged
		FROM annual_summaries a
		JOIN stations st ON st.id = a.station_id
		WHERE a.run_id = ?
		ORDER BY a.rowid
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AnnualSummary
	for rows.Next() {
		var a models.AnnualSummary
		dest := append(scanStation(&a.Station), &a.Year, &a.AnnualRainfall, &a.DaysCount, &a.MissingCount, &a.PctMissing, &a.MonthsObserved, &a.IncompleteYear, &a.InsufficientMonths, &a.Flagged)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		a.MissingMonths = 12 - a.MonthsObserved
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetLagCorrelations(runID string) ([]models.LagCorrelation, error) {
	rows, err := s.db.Query(`
		SELECT season, lag_years, n, pearson_r, pearson_p, spearman_r, spearman_p, kendall_tau, kendall_p
		FROM lag_correlations
		WHERE run_id = ?
		ORDER BY season, lag_years
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LagCorrelation
	for rows.Next() {
		var c models.LagCorrelation
		var pr, pp, sr, sp, kt, kp sql.NullFloat64
		if err := rows.Scan(&c.Season, &c.LagYears, &c.N, &pr, &pp, &sr, &sp, &kt, &kp); err != nil {
			return nil, err
		}
		c.PearsonR, c.PearsonP = floatOrNaN(pr), floatOrNaN(pp)
		c.SpearmanR, c.SpearmanP = floatOrNaN(sr), floatOrNaN(sp)
		c.KendallTau, c.KendallP = floatOrNaN(kt), floatOrNaN(kp)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SQLite cannot store NaN, so undefined statistics are kept as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
