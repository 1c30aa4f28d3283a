package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/lox/bogwatch/internal/config"
	"github.com/lox/bogwatch/internal/export"
)

type Globals struct {
	DB          string `name:"db" help:"SQLite database to record the run in." env:"BOGWATCH_DB" type:"path"`
	MetricsFile string `name:"metrics-file" help:"Write run counters in Prometheus textfile format." env:"BOGWATCH_METRICS_FILE" type:"path"`
}

type CLI struct {
	Globals

	Consolidate ConsolidateCmd `cmd:"" help:"Consolidate station rainfall CSVs into monthly and annual summaries."`
	Correlate   CorrelateCmd   `cmd:"" help:"Correlate seasonal vegetation index with lagged annual rainfall."`
	Run         RunCmd         `cmd:"" help:"Run a consolidation described by a YAML file."`
}

type ConsolidateCmd struct {
	InputDir         string  `arg:"" name:"input-folder" help:"Folder of station CSV files." type:"path"`
	Output           string  `short:"o" help:"Monthly long-format CSV." default:"monthly_rain_summary.csv" env:"BOGWATCH_OUTPUT"`
	WideOutput       string  `name:"wide-output" help:"Monthly wide-format CSV." type:"path"`
	DateFormat       string  `name:"date-format" help:"strftime format or Go layout of the Date column." default:"%Y-%m-%d" env:"BOGWATCH_DATE_FORMAT"`
	MissingThreshold float64 `name:"missing-threshold" help:"Flag periods missing more than this fraction of days." default:"0.2" env:"BOGWATCH_MISSING_THRESHOLD"`
	AnnualOutput     string  `name:"annual-output" help:"Annual long-format CSV." type:"path"`
	AnnualWideOutput string  `name:"annual-wide-output" help:"Annual wide-format CSV." type:"path"`
	MinMonths        int     `name:"min-months" help:"Flag years observed in fewer months." default:"10" env:"BOGWATCH_MIN_MONTHS"`
	Workbook         string  `help:"Also write every table to one XLSX workbook." type:"path"`
}

func (c *ConsolidateCmd) Run(g *Globals) error {
	cfg := config.DefaultConsolidate()
	cfg.InputDir = c.InputDir
	cfg.DateFormat = c.DateFormat
	cfg.MissingThreshold = c.MissingThreshold
	cfg.MinMonths = c.MinMonths
	cfg.Outputs = config.Outputs{
		Monthly:     c.Output,
		MonthlyWide: c.WideOutput,
		Annual:      c.AnnualOutput,
		AnnualWide:  c.AnnualWideOutput,
		Workbook:    c.Workbook,
	}
	cfg.Database = g.DB
	cfg.MetricsFile = g.MetricsFile

	if _, err := consolidate(cfg, export.NewSaver(), os.Stdout); err != nil {
		return err
	}
	return writeMetrics(cfg.MetricsFile)
}

type CorrelateCmd struct {
	Vegetation string    `required:"" help:"Vegetation index CSV (year, season, NDVI columns)." type:"path" env:"BOGWATCH_VEGETATION"`
	Rainfall   string    `required:"" help:"Annual rainfall CSV (year and value columns)." type:"path" env:"BOGWATCH_RAINFALL"`
	Season     []string  `help:"Seasons to analyse." default:"SUMMER,WINTER" sep:","`
	Lags       []int     `help:"Lags in years; positive pairs vegetation with later rainfall." default:"-2,-1,0,1,2" sep:","`
	StartYear  int       `name:"start-year" help:"Drop vegetation years before this." default:"1984"`
	MinIndex   float64   `name:"min-index" help:"Drop vegetation values below this." default:"0.25"`
	SiteLabel  string    `name:"site-label" help:"Site name used in chart titles." default:"Clara Bog"`
	RainLabel  string    `name:"rain-label" help:"Legend label of the rainfall series." default:"Annual Rainfall"`
	RainStyle  string    `name:"rain-style" help:"Draw rainfall as bars or a line." enum:"bars,line" default:"bars"`
	RainRange  []float64 `name:"rain-range" help:"Rainfall axis limits in mm." default:"500,1800" sep:","`
	PlotDir    string    `name:"plot-dir" help:"Write PNG charts into this folder." type:"path"`
	ScatterLag int       `name:"scatter-lag" help:"Lag used for the scatter chart." default:"0"`
	Output     string    `short:"o" help:"Correlation table CSV." default:"lag_correlations.csv"`
}

func (c *CorrelateCmd) Run(g *Globals) error {
	cfg := config.DefaultCorrelate()
	cfg.Vegetation = c.Vegetation
	cfg.Rainfall = c.Rainfall
	cfg.Seasons = c.Season
	cfg.Lags = c.Lags
	cfg.StartYear = c.StartYear
	cfg.MinIndex = c.MinIndex
	cfg.Site = c.SiteLabel
	cfg.RainLabel = c.RainLabel
	cfg.RainStyle = c.RainStyle
	cfg.RainRange = c.RainRange
	cfg.PlotDir = c.PlotDir
	cfg.ScatterLag = c.ScatterLag
	cfg.Output = c.Output
	cfg.Database = g.DB

	if _, err := correlate(cfg, export.NewSaver(), os.Stdout); err != nil {
		return err
	}
	return writeMetrics(g.MetricsFile)
}

type RunCmd struct {
	Config string `help:"Runner YAML file." default:"bogwatch.yaml" type:"path" env:"BOGWATCH_CONFIG"`
}

func (c *RunCmd) Run(g *Globals) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if g.DB != "" {
		cfg.Database = g.DB
	}
	if g.MetricsFile != "" {
		cfg.MetricsFile = g.MetricsFile
	}

	if _, err := consolidate(*cfg, export.NewSaver(), os.Stdout); err != nil {
		return err
	}
	return writeMetrics(cfg.MetricsFile)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("bogwatch"),
		kong.Description("Rainfall consolidation and vegetation/rainfall correlation for bog monitoring."),
		kong.UsageOnError(),
		kong.Bind(&cli.Globals),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// upperAll upper-cases and trims in, dropping blanks and repeats.
func upperAll(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func printPreview(w io.Writer, title string, t export.Table, n int) {
	if w == nil || n == 0 || len(t.Rows) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (first %d of %d rows)\n", title, min(n, len(t.Rows)), len(t.Rows))
	fmt.Fprintln(w, export.Preview(t, n))
}
