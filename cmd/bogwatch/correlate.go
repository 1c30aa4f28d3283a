package main

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/lox/bogwatch/internal/analysis"
	"github.com/lox/bogwatch/internal/charts"
	"github.com/lox/bogwatch/internal/config"
	"github.com/lox/bogwatch/internal/export"
	"github.com/lox/bogwatch/internal/ingest"
	"github.com/lox/bogwatch/internal/models"
	"github.com/lox/bogwatch/internal/store"
)

type correlateReport struct {
	Rows    []models.LagCorrelation
	Skipped []analysis.SkippedLag
	Charts  []charts.Result
	Saved   export.SaveResult
	RunID   string
}

func correlate(cfg config.Correlate, saver *export.Saver, stdout io.Writer) (*correlateReport, error) {
	cfg.Seasons = upperAll(cfg.Seasons)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	obs, err := ingest.LoadVegetation(cfg.Vegetation)
	if err != nil {
		return nil, fmt.Errorf("load vegetation: %w", err)
	}
	rain, err := ingest.LoadRainfall(cfg.Rainfall)
	if err != nil {
		return nil, fmt.Errorf("load rainfall: %w", err)
	}
	log.Printf("correlate: %d vegetation observations, %d rainfall years", len(obs), len(rain))

	report := &correlateReport{}
	for _, season := range cfg.Seasons {
		series := ingest.BuildSeries(obs, cfg.SeriesOptions(season))
		log.Printf("correlate: %s: %d years after filtering", season, len(series))

		lags := analysis.LaggedCorrelations(series, rain, season, cfg.Lags)
		report.Rows = append(report.Rows, lags.Rows...)
		report.Skipped = append(report.Skipped, lags.Skipped...)

		if cfg.PlotDir != "" {
			results, err := plotSeason(cfg, saver, season, series, rain)
			if err != nil {
				return report, err
			}
			report.Charts = append(report.Charts, results...)
		}
	}
	analysis.SortCorrelations(report.Rows)

	table := export.CorrelationTable(report.Rows)
	if cfg.Output != "" {
		res, err := saver.SaveCSV(cfg.Output, table)
		if err != nil {
			return report, err
		}
		report.Saved = res
	}

	if cfg.Database != "" {
		runID, err := recordCorrelation(cfg, report.Rows)
		if err != nil {
			return report, err
		}
		report.RunID = runID
	}

	printPreview(stdout, "Lag correlations", table, len(table.Rows))
	return report, nil
}

func plotSeason(cfg config.Correlate, saver *export.Saver, season string, series []models.YearValue, rain []models.RainfallYear) ([]charts.Result, error) {
	opts := charts.DefaultOptions(cfg.Site, season)
	opts.RainLabel = cfg.RainLabel
	opts.RainStyle = cfg.RainStyle
	if len(cfg.RainRange) == 2 {
		opts.RainRange = [2]float64{cfg.RainRange[0], cfg.RainRange[1]}
	}

	name := strings.ToLower(season)
	trend, err := charts.VegetationRain(saver, filepath.Join(cfg.PlotDir, name+"_ndvi_rain.png"), series, rain, opts)
	if err != nil {
		return nil, fmt.Errorf("plot %s trend: %w", season, err)
	}
	scatterPath := filepath.Join(cfg.PlotDir, fmt.Sprintf("%s_scatter_lag%d.png", name, cfg.ScatterLag))
	scatter, err := charts.Scatter(saver, scatterPath, series, rain, cfg.ScatterLag, opts)
	if err != nil {
		return nil, fmt.Errorf("plot %s scatter: %w", season, err)
	}

	for _, r := range []charts.Result{trend, scatter} {
		if r.Skipped != "" {
			log.Printf("correlate: chart skipped: %s", r.Skipped)
		}
	}
	return []charts.Result{trend, scatter}, nil
}

func recordCorrelation(cfg config.Correlate, rows []models.LagCorrelation) (string, error) {
	st, err := store.Open(cfg.Database)
	if err != nil {
		return "", err
	}
	defer st.Close()

	run, err := st.CreateRun("correlate", cfg.Vegetation, cfg)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	if err := st.InsertLagCorrelations(run.ID, rows); err != nil {
		return "", fmt.Errorf("store correlations: %w", err)
	}
	log.Printf("correlate: recorded run %s in %s", run.ID, cfg.Database)
	return run.ID, nil
}
