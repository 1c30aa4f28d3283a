// Package charts renders exploratory PNG plots of a vegetation index series
// against annual rainfall.
package charts

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/lox/bogwatch/internal/analysis"
	"github.com/lox/bogwatch/internal/export"
	"github.com/lox/bogwatch/internal/models"
)

const (
	RainBars = "bars"
	RainLine = "line"

	maxYearTicks = 14
)

var (
	indexColor = colornames.Steelblue
	rainColor  = colornames.Lightsteelblue
	lineColor  = colornames.Darkorange
	pointEdge  = colornames.Black
)

type Options struct {
	Site       string
	Season     string
	RainLabel  string
	RainStyle  string     // RainBars or RainLine
	IndexRange [2]float64 // zero value lets the axis fit the data
	RainRange  [2]float64
	Width      vg.Length
	Height     vg.Length
}

func DefaultOptions(site, season string) Options {
	return Options{
		Site:       site,
		Season:     season,
		RainLabel:  "Annual Rainfall",
		RainStyle:  RainBars,
		IndexRange: [2]float64{0, 0.9},
		RainRange:  [2]float64{500, 1800},
		Width:      12 * vg.Inch,
		Height:     7 * vg.Inch,
	}
}

// Result reports a chart that was written, or why it was not.
type Result struct {
	Path     string
	Fallback bool
	Skipped  string
}

// VegetationRain saves the season's index series above the rainfall over the
// same years. An empty series is skipped, not an error.
func VegetationRain(s *export.Saver, path string, series []models.YearValue, rain []models.RainfallYear, opts Options) (Result, error) {
	if len(series) == 0 {
		return Result{Skipped: fmt.Sprintf("no NDVI data for %s", opts.Season)}, nil
	}
	res, err := s.Save(path, func(w io.Writer) error {
		return RenderVegetationRain(w, series, rain, opts)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Path: res.Path, Fallback: res.Fallback}, nil
}

func RenderVegetationRain(w io.Writer, series []models.YearValue, rain []models.RainfallYear, opts Options) error {
	xmin, xmax := series[0].Year, series[0].Year
	for _, v := range series {
		xmin = min(xmin, v.Year)
		xmax = max(xmax, v.Year)
	}

	top := plot.New()
	top.Title.Text = fmt.Sprintf("%s — %s: NDVI with Annual Rainfall", titleCase(opts.Season), opts.Site)
	top.Y.Label.Text = "NDVI"
	setRange(&top.Y, opts.IndexRange)
	setYearAxis(top, xmin, xmax)
	top.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(series))
	for i, v := range series {
		pts[i] = plotter.XY{X: float64(v.Year), Y: v.Value}
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return fmt.Errorf("index line: %w", err)
	}
	line.Color = indexColor
	line.Width = vg.Points(2)
	points.GlyphStyle.Color = indexColor
	points.GlyphStyle.Shape = draw.CircleGlyph{}
	points.GlyphStyle.Radius = vg.Points(2)
	top.Add(line, points)
	top.Legend.Add("NDVI", line, points)
	top.Legend.Top = true
	top.Legend.Left = true

	var inRange []models.RainfallYear
	for _, r := range rain {
		if r.Year >= xmin && r.Year <= xmax {
			inRange = append(inRange, r)
		}
	}

	if len(inRange) == 0 {
		top.X.Label.Text = "Year"
		wt, err := top.WriterTo(opts.Width, opts.Height/2, "png")
		if err != nil {
			return fmt.Errorf("render chart: %w", err)
		}
		_, err = wt.WriteTo(w)
		return err
	}

	bottom := plot.New()
	bottom.X.Label.Text = "Year"
	bottom.Y.Label.Text = "Rainfall (mm)"
	setRange(&bottom.Y, opts.RainRange)
	setYearAxis(bottom, xmin, xmax)
	bottom.Add(plotter.NewGrid())
	if err := addRain(bottom, inRange, xmin, xmax, opts); err != nil {
		return err
	}
	bottom.Legend.Top = true
	bottom.Legend.Left = true

	img := vgimg.New(opts.Width, opts.Height)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Points(6)}
	canvases := plot.Align([][]*plot.Plot{{top}, {bottom}}, tiles, dc)
	top.Draw(canvases[0][0])
	bottom.Draw(canvases[1][0])

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("encode chart: %w", err)
	}
	return nil
}

func addRain(p *plot.Plot, rain []models.RainfallYear, xmin, xmax int, opts Options) error {
	if opts.RainStyle == RainLine {
		pts := make(plotter.XYs, len(rain))
		for i, r := range rain {
			pts[i] = plotter.XY{X: float64(r.Year), Y: r.Millimeters}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("rain line: %w", err)
		}
		l.Color = rainColor
		l.Width = vg.Points(2)
		p.Add(l)
		p.Legend.Add(opts.RainLabel, l)
		return nil
	}

	// One bar per year across the range so bar positions line up with years.
	values := make(plotter.Values, xmax-xmin+1)
	for _, r := range rain {
		values[r.Year-xmin] = r.Millimeters
	}
	width := 0.7 * opts.Width / vg.Length(len(values)+2)
	bars, err := plotter.NewBarChart(values, width)
	if err != nil {
		return fmt.Errorf("rain bars: %w", err)
	}
	bars.XMin = float64(xmin)
	bars.Color = rainColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.Legend.Add(opts.RainLabel, bars)
	return nil
}

// Scatter saves vegetation against lagged rainfall with the least squares
// line and its r and p values.
func Scatter(s *export.Saver, path string, series []models.YearValue, rain []models.RainfallYear, lag int, opts Options) (Result, error) {
	reg, pairs, err := analysis.Regress(series, rain, lag)
	if len(pairs) == 0 {
		return Result{Skipped: fmt.Sprintf("no overlapping years for %s lag %d", opts.Season, lag)}, nil
	}
	if err != nil {
		return Result{Skipped: err.Error()}, nil
	}

	res, err := s.Save(path, func(w io.Writer) error {
		return RenderScatter(w, pairs, reg, lag, opts)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Path: res.Path, Fallback: res.Fallback}, nil
}

func RenderScatter(w io.Writer, pairs []analysis.Pair, reg models.Regression, lag int, opts Options) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s NDVI vs Rainfall (lag %d) — %s", opts.Season, lag, opts.Site)
	p.X.Label.Text = "Annual Rainfall (mm)"
	p.Y.Label.Text = "NDVI"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(pairs))
	minX, maxX := math.Inf(1), math.Inf(-1)
	maxY := math.Inf(-1)
	for i, pr := range pairs {
		pts[i] = plotter.XY{X: pr.Rain, Y: pr.Index}
		minX = math.Min(minX, pr.Rain)
		maxX = math.Max(maxX, pr.Rain)
		maxY = math.Max(maxY, pr.Index)
	}

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	sc.GlyphStyle.Shape = draw.RingGlyph{}
	sc.GlyphStyle.Color = pointEdge
	sc.GlyphStyle.Radius = vg.Points(4)

	fit := plotter.NewFunction(func(x float64) float64 { return reg.Intercept + reg.Slope*x })
	fit.XMin, fit.XMax = minX, maxX
	fit.Color = lineColor
	fit.Width = vg.Points(2)

	label, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    []plotter.XY{{X: minX, Y: maxY}},
		Labels: []string{fmt.Sprintf("r = %.2f  p = %.3f", reg.R, reg.P)},
	})
	if err != nil {
		return fmt.Errorf("annotation: %w", err)
	}
	label.TextStyle[0].Color = color.Black

	p.Add(sc, fit, label)

	side := opts.Height
	if opts.Width < side {
		side = opts.Width
	}
	wt, err := p.WriterTo(side, side*5/6, "png")
	if err != nil {
		return fmt.Errorf("render scatter: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

func setRange(a *plot.Axis, r [2]float64) {
	if r[0] == 0 && r[1] == 0 {
		return
	}
	a.Min, a.Max = r[0], r[1]
}

func setYearAxis(p *plot.Plot, xmin, xmax int) {
	p.X.Min = float64(xmin) - 0.5
	p.X.Max = float64(xmax) + 0.5
	p.X.Tick.Marker = yearTicks{}
}

// yearTicks places labelled ticks on whole years only.
type yearTicks struct{}

func (yearTicks) Ticks(lo, hi float64) []plot.Tick {
	first, last := int(math.Ceil(lo)), int(math.Floor(hi))
	step := max(1, int(math.Ceil(float64(last-first)/float64(maxYearTicks-1))))
	var ticks []plot.Tick
	for y := first; y <= last; y++ {
		if (y-first)%step == 0 {
			ticks = append(ticks, plot.Tick{Value: float64(y), Label: strconv.Itoa(y)})
		} else {
			ticks = append(ticks, plot.Tick{Value: float64(y)})
		}
	}
	return ticks
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
