// Package plot renders a propagated trajectory as a fixed set of PNG charts.
package plot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	chart "github.com/wcharczuk/go-chart/v2"
	"gonum.org/v1/gonum/floats"

	"github.com/gmatflow/gmatflow/pkg/report"
)

// Chart file names, in render order.
const (
	FileTrajectory3D = "trayectoria_3D.png"
	FileOrbitXY      = "orbita_XY.png"
	FileVelocities   = "velocidades_vs_tiempo.png"
	FileSpeed        = "velocidad_modulo_vs_tiempo.png"
	FileRadius       = "radio_vs_tiempo.png"
)

// Files lists every chart RenderAll produces.
var Files = []string{FileTrajectory3D, FileOrbitXY, FileVelocities, FileSpeed, FileRadius}

// ErrTooFewRows is returned when a table cannot be drawn as a line.
var ErrTooFewRows = errors.New("at least two report rows are needed to plot")

const (
	labelTime     = "Tiempo [días]"
	labelVelocity = "Velocidad [km/s]"
)

// Config describes where and how charts are drawn.
type Config struct {
	Dir    string
	Theme  Theme
	Width  int
	Height int
}

// Renderer draws the trajectory charts.
type Renderer struct {
	cfg     Config
	palette palette
	logger  zerolog.Logger
}

// New creates a renderer. Zero sizes default to 1024x768.
func New(cfg Config, logger zerolog.Logger) (*Renderer, error) {
	theme, err := ParseTheme(string(cfg.Theme))
	if err != nil {
		return nil, err
	}
	cfg.Theme = theme
	if cfg.Width <= 0 {
		cfg.Width = 1024
	}
	if cfg.Height <= 0 {
		cfg.Height = 768
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("plot directory is required")
	}

	return &Renderer{
		cfg:     cfg,
		palette: palettes[theme],
		logger:  logger.With().Str("component", "plot").Logger(),
	}, nil
}

// RenderAll writes every chart for table into the output directory and
// returns the written paths in render order. burnTimes are drawn as dashed
// vertical markers on the time charts.
func (r *Renderer) RenderAll(ctx context.Context, table *report.Table, burnTimes []float64) ([]string, error) {
	if table.Len() < 2 {
		return nil, ErrTooFewRows
	}
	if err := os.MkdirAll(r.cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}

	t := table.Time()
	builders := []struct {
		file  string
		build func() chart.Chart
	}{
		{FileTrajectory3D, func() chart.Chart { return r.trajectory(table) }},
		{FileOrbitXY, func() chart.Chart { return r.orbitXY(table) }},
		{FileVelocities, func() chart.Chart {
			return r.timeChart("Componentes de velocidad vs tiempo", labelVelocity, t, burnTimes,
				named{"Vx", table.VX()}, named{"Vy", table.VY()}, named{"Vz", table.VZ()})
		}},
		{FileSpeed, func() chart.Chart {
			return r.timeChart("Módulo de la velocidad vs tiempo", "|V| [km/s]", t, burnTimes,
				named{"|V|", table.Speed()})
		}},
		{FileRadius, func() chart.Chart {
			return r.timeChart("Distancia al cuerpo central vs tiempo", "r [km]", t, burnTimes,
				named{"r", table.Radius()})
		}},
	}

	paths := make([]string, 0, len(builders))
	for _, b := range builders {
		if err := ctx.Err(); err != nil {
			return paths, err
		}

		path := filepath.Join(r.cfg.Dir, b.file)
		if err := writeChart(path, b.build()); err != nil {
			return paths, err
		}
		r.logger.Debug().Str("file", path).Msg("Chart rendered")
		paths = append(paths, path)
	}

	return paths, nil
}

type named struct {
	name   string
	values []float64
}

func (r *Renderer) timeChart(title, yName string, t, burnTimes []float64, series ...named) chart.Chart {
	var all []float64
	for _, s := range series {
		all = append(all, s.values...)
	}
	yRange := paddedRange(all)
	xRange := paddedRange(t)

	out := make([]chart.Series, 0, len(series)+len(burnTimes))
	for i, s := range series {
		out = append(out, chart.ContinuousSeries{
			Name:    s.name,
			XValues: t,
			YValues: s.values,
			Style:   r.palette.line(i),
		})
	}
	for i, tb := range burnTimes {
		// Markers outside the plotted span would stretch the axis.
		if math.IsNaN(tb) || tb < xRange.Min || tb > xRange.Max {
			continue
		}
		out = append(out, chart.ContinuousSeries{
			Name:    "Burn " + strconv.Itoa(i+1),
			XValues: []float64{tb, tb},
			YValues: []float64{yRange.Min, yRange.Max},
			Style:   r.palette.burnMarker(),
		})
	}

	return r.base(title, labelTime, yName, xRange, yRange, r.cfg.Width, r.cfg.Height, out)
}

func (r *Renderer) orbitXY(table *report.Table) chart.Chart {
	x, y := table.X(), table.Y()
	xRange, yRange := equalRanges(x, y)
	size := min(r.cfg.Width, r.cfg.Height)

	series := []chart.Series{chart.ContinuousSeries{
		Name:    "XY",
		XValues: x,
		YValues: y,
		Style:   r.palette.line(0),
	}}
	return r.base("Órbita en el plano XY", "X [km]", "Y [km]", xRange, yRange, size, size, series)
}

// trajectory draws the orbit in an isometric projection, with the three
// body-frame axes for orientation.
func (r *Renderer) trajectory(table *report.Table) chart.Chart {
	x, y, z := table.X(), table.Y(), table.Z()

	u := make([]float64, len(x))
	v := make([]float64, len(x))
	extent := 0.0
	for i := range x {
		u[i], v[i] = isometric(x[i], y[i], z[i])
		extent = math.Max(extent, math.Max(math.Abs(x[i]), math.Max(math.Abs(y[i]), math.Abs(z[i]))))
	}
	if extent == 0 {
		extent = 1
	}

	series := []chart.Series{chart.ContinuousSeries{
		Name:    "Trayectoria",
		XValues: u,
		YValues: v,
		Style:   r.palette.line(0),
	}}
	for i, axis := range [][3]float64{{extent, 0, 0}, {0, extent, 0}, {0, 0, extent}} {
		au, av := isometric(axis[0], axis[1], axis[2])
		style := r.palette.gridStyle()
		style.StrokeDashArray = []float64{2, 4}
		series = append(series, chart.ContinuousSeries{
			Name:    []string{"X", "Y", "Z"}[i],
			XValues: []float64{0, au},
			YValues: []float64{0, av},
			Style:   style,
		})
	}

	allU := append(append([]float64{}, u...), 0)
	allV := append(append([]float64{}, v...), 0)
	for _, axis := range [][3]float64{{extent, 0, 0}, {0, extent, 0}, {0, 0, extent}} {
		au, av := isometric(axis[0], axis[1], axis[2])
		allU = append(allU, au)
		allV = append(allV, av)
	}
	uRange, vRange := equalRanges(allU, allV)
	size := min(r.cfg.Width, r.cfg.Height)

	return r.base("Trayectoria 3D", "", "", uRange, vRange, size, size, series)
}

var (
	cos30 = math.Cos(math.Pi / 6)
	sin30 = math.Sin(math.Pi / 6)
)

func isometric(x, y, z float64) (float64, float64) {
	return (x - y) * cos30, z - (x+y)*sin30
}

func (r *Renderer) base(title, xName, yName string, xRange, yRange *chart.ContinuousRange, width, height int, series []chart.Series) chart.Chart {
	p := r.palette
	ch := chart.Chart{
		Title:      title,
		TitleStyle: chart.Style{FontColor: p.foreground},
		Width:      width,
		Height:     height,
		Background: chart.Style{
			FillColor: p.background,
			Padding:   chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: chart.Style{FillColor: p.background},
		XAxis: chart.XAxis{
			Name:           xName,
			NameStyle:      p.axisStyle(),
			Style:          p.axisStyle(),
			Range:          xRange,
			ValueFormatter: compactFormatter,
			GridMajorStyle: p.gridStyle(),
			GridMinorStyle: p.gridStyle(),
		},
		YAxis: chart.YAxis{
			Name:           yName,
			NameStyle:      p.axisStyle(),
			Style:          p.axisStyle(),
			Range:          yRange,
			ValueFormatter: compactFormatter,
			GridMajorStyle: p.gridStyle(),
			GridMinorStyle: p.gridStyle(),
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch, p.legendStyle())}
	return ch
}

func compactFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'g', 5, 64)
	}
	return fmt.Sprint(v)
}

// paddedRange returns [min, max] widened by 5%. A constant series gets a
// non-zero span around its value.
func paddedRange(values []float64) *chart.ContinuousRange {
	lo, hi := floats.Min(values), floats.Max(values)
	span := hi - lo
	if span == 0 {
		span = math.Max(math.Abs(hi), 1)
	}
	pad := span * 0.05
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

// equalRanges returns ranges with the same span centred on each series, so
// a square chart keeps a 1:1 aspect.
func equalRanges(a, b []float64) (*chart.ContinuousRange, *chart.ContinuousRange) {
	ra, rb := paddedRange(a), paddedRange(b)
	span := math.Max(ra.Max-ra.Min, rb.Max-rb.Min)
	centre := func(r *chart.ContinuousRange) *chart.ContinuousRange {
		mid := (r.Min + r.Max) / 2
		return &chart.ContinuousRange{Min: mid - span/2, Max: mid + span/2}
	}
	return centre(ra), centre(rb)
}

func writeChart(path string, ch chart.Chart) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}

	if err := ch.Render(chart.PNG, f); err != nil {
		f.Close()
		return fmt.Errorf("failed to render %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
