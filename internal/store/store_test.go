package store

import (
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/bogwatch/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

var testStation = models.StationMeta{
	Number:    "3723",
	Name:      "Clara Bog",
	Height:    "70",
	Easting:   "222000",
	Northing:  "230000",
	Latitude:  "53.32",
	Longitude: "-7.62",
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	version, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}
}

func TestOpen_MigratesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogwatch.db")

	for i := 0; i < 2; i++ {
		s, err := Open(path)
		require.NoError(t, err)
		version, err := s.SchemaVersion()
		require.NoError(t, err)
		assert.Equal(t, len(migrations), version)
		require.NoError(t, s.Close())
	}
}

func TestSchemaVersion_Empty(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := New(db)
	require.NoError(t, s.ensureMigrationsTable())
	version, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func TestCreateAndGetLatestRun(t *testing.T) {
	store := setupTestStore(t)

	latest, err := store.GetLatestRun("consolidate")
	require.NoError(t, err)
	assert.Nil(t, latest)

	first, err := store.CreateRun("consolidate", "data/a", map[string]any{"min_months": 10})
	require.NoError(t, err)
	second, err := store.CreateRun("consolidate", "data/b", nil)
	require.NoError(t, err)
	_, err = store.CreateRun("correlate", "ndvi.csv", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.JSONEq(t, `{"min_months": 10}`, first.Params)

	latest, err = store.GetLatestRun("consolidate")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, "data/b", latest.Input)
}

func TestInsertAndGetMonthlySummaries(t *testing.T) {
	store := setupTestStore(t)
	run, err := store.CreateRun("consolidate", "data", nil)
	require.NoError(t, err)

	other := testStation
	other.Number = "875"
	rows := []models.MonthlySummary{
		{Station: other, YearMonth: "2020-01", MonthlyRainfall: 81.2, DaysCount: 31, MissingCount: 0},
		{Station: testStation, YearMonth: "2020-01", MonthlyRainfall: 70.5, DaysCount: 31, MissingCount: 8, PctMissing: 0.258, IncompleteMonth: true},
		{Station: testStation, YearMonth: "2020-02", MonthlyRainfall: 55, DaysCount: 29},
	}
	require.NoError(t, store.InsertMonthlySummaries(run.ID, rows))

	got, err := store.GetMonthlySummaries(run.ID)
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	var stations int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM stations`).Scan(&stations))
	assert.Equal(t, 2, stations)
}

func TestInsertAndGetAnnualSummaries(t *testing.T) {
	store := setupTestStore(t)
	run, err := store.CreateRun("consolidate", "data", nil)
	require.NoError(t, err)

	rows := []models.AnnualSummary{
		{
			Station: testStation, Year: 2020, AnnualRainfall: 812.4, DaysCount: 366, MissingCount: 3,
			PctMissing: 0.008, MonthsObserved: 12, MissingMonths: 0,
		},
		{
			Station: testStation, Year: 2021, AnnualRainfall: 301, DaysCount: 120, MissingCount: 40,
			PctMissing: 0.333, MonthsObserved: 4, MissingMonths: 8,
			IncompleteYear: true, InsufficientMonths: true, Flagged: true,
		},
	}
	require.NoError(t, store.InsertAnnualSummaries(run.ID, rows))

	// A second run reuses the station row.
	run2, err := store.CreateRun("consolidate", "data", nil)
	require.NoError(t, err)
	require.NoError(t, store.InsertAnnualSummaries(run2.ID, rows[:1]))

	got, err := store.GetAnnualSummaries(run.ID)
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	got2, err := store.GetAnnualSummaries(run2.ID)
	require.NoError(t, err)
	assert.Len(t, got2, 1)
}

func TestLagCorrelations_NaNStoredAsNull(t *testing.T) {
	store := setupTestStore(t)
	run, err := store.CreateRun("correlate", "ndvi.csv", nil)
	require.NoError(t, err)

	rows := []models.LagCorrelation{
		{Season: "WINTER", LagYears: 0, N: 5, PearsonR: 0.5, PearsonP: 0.39, SpearmanR: 0.4, SpearmanP: 0.5, KendallTau: 0.2, KendallP: 0.81},
		{Season: "SUMMER", LagYears: -1, N: 4, PearsonR: math.NaN(), PearsonP: math.NaN(), SpearmanR: math.NaN(), SpearmanP: math.NaN(), KendallTau: math.NaN(), KendallP: math.NaN()},
	}
	require.NoError(t, store.InsertLagCorrelations(run.ID, rows))

	var nulls int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM lag_correlations WHERE pearson_r IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)

	got, err := store.GetLagCorrelations(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "SUMMER", got[0].Season)
	assert.True(t, math.IsNaN(got[0].PearsonR))
	assert.True(t, math.IsNaN(got[0].KendallP))
	assert.Equal(t, rows[0], got[1])
}
