package main

import (
	"fmt"
	"io"
	"log"

	"github.com/lox/bogwatch/internal/config"
	"github.com/lox/bogwatch/internal/export"
	"github.com/lox/bogwatch/internal/ingest"
	"github.com/lox/bogwatch/internal/metrics"
	"github.com/lox/bogwatch/internal/models"
	"github.com/lox/bogwatch/internal/store"
	"github.com/lox/bogwatch/internal/summary"
)

type consolidateReport struct {
	Files   []ingest.FileReport
	Monthly []models.MonthlySummary
	Annual  []models.AnnualSummary
	Saved   []export.SaveResult
	RunID   string
}

type output struct {
	path  string
	sheet string
	table export.Table
}

func consolidate(cfg config.Consolidate, saver *export.Saver, stdout io.Writer) (*consolidateReport, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	loaded, err := ingest.LoadFolder(cfg.InputDir, cfg.DateFormat)
	if err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}

	opts := cfg.SummaryOptions()
	report := &consolidateReport{
		Files:   loaded.Files,
		Monthly: summary.Monthly(loaded.Records, opts),
		Annual:  summary.Annual(loaded.Records, opts),
	}
	log.Printf("consolidate: %d records from %d files (%d skipped), %d monthly rows, %d annual rows",
		len(loaded.Records), len(loaded.Files), len(loaded.Skipped()), len(report.Monthly), len(report.Annual))

	monthly := export.MonthlyTable(report.Monthly)
	annual := export.AnnualTable(report.Annual)
	outputs := []output{
		{cfg.Outputs.Monthly, "monthly", monthly},
		{cfg.Outputs.MonthlyWide, "monthly_wide", export.WideTable(summary.PivotMonthly(report.Monthly))},
		{cfg.Outputs.Annual, "annual", annual},
		{cfg.Outputs.AnnualWide, "annual_wide", export.WideTable(summary.PivotAnnual(report.Annual))},
	}

	var sheets []export.Sheet
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		res, err := saver.SaveCSV(o.path, o.table)
		if err != nil {
			return report, err
		}
		report.Saved = append(report.Saved, res)
		sheets = append(sheets, export.Sheet{Name: o.sheet, Table: o.table})
	}

	if cfg.Outputs.Workbook != "" && len(sheets) > 0 {
		res, err := saver.SaveWorkbook(cfg.Outputs.Workbook, sheets)
		if err != nil {
			return report, err
		}
		report.Saved = append(report.Saved, res)
	}

	if cfg.Database != "" {
		runID, err := recordConsolidation(cfg, report)
		if err != nil {
			return report, err
		}
		report.RunID = runID
	}

	if cfg.Outputs.Monthly != "" {
		printPreview(stdout, "Monthly summary", monthly, cfg.PreviewRows)
	}
	if cfg.Outputs.Annual != "" {
		printPreview(stdout, "Annual summary", annual, cfg.PreviewRows)
	}
	return report, nil
}

func recordConsolidation(cfg config.Consolidate, report *consolidateReport) (string, error) {
	st, err := store.Open(cfg.Database)
	if err != nil {
		return "", err
	}
	defer st.Close()

	run, err := st.CreateRun("consolidate", cfg.InputDir, cfg)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	if err := st.InsertMonthlySummaries(run.ID, report.Monthly); err != nil {
		return "", fmt.Errorf("store monthly summaries: %w", err)
	}
	if err := st.InsertAnnualSummaries(run.ID, report.Annual); err != nil {
		return "", fmt.Errorf("store annual summaries: %w", err)
	}
	log.Printf("consolidate: recorded run %s in %s", run.ID, cfg.Database)
	return run.ID, nil
}

func writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := metrics.WriteTextfile(path); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
