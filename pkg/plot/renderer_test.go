package plot

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/gmatflow/gmatflow/pkg/report"
)

func circularOrbit(n int) *report.Table {
	t := &report.Table{Header: []string{"t", "x", "y", "z", "vx", "vy", "vz"}}
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n-1)
		t.Rows = append(t.Rows, []float64{
			float64(i) / float64(n-1),
			7000 * math.Cos(theta),
			7000 * math.Sin(theta),
			500 * math.Sin(theta),
			-7.5 * math.Sin(theta),
			7.5 * math.Cos(theta),
			0,
		})
	}
	return t
}

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestRenderAll(t *testing.T) {
	for _, theme := range []Theme{ThemeDark, ThemeLight} {
		t.Run(string(theme), func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "plots")
			r, err := New(Config{Dir: dir, Theme: theme, Width: 640, Height: 480}, zerolog.Nop())
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			paths, err := r.RenderAll(context.Background(), circularOrbit(50), []float64{0.25, 0.6, 5})
			if err != nil {
				t.Fatalf("RenderAll failed: %v", err)
			}
			if len(paths) != len(Files) {
				t.Fatalf("expected %d charts, got %d", len(Files), len(paths))
			}

			for i, path := range paths {
				if filepath.Base(path) != Files[i] {
					t.Errorf("chart %d = %s, want %s", i, filepath.Base(path), Files[i])
				}
				data, err := os.ReadFile(path)
				if err != nil {
					t.Fatalf("failed to read chart: %v", err)
				}
				if !bytes.HasPrefix(data, pngMagic) {
					t.Errorf("%s is not a PNG", path)
				}
			}
		})
	}
}

func TestRenderAll_ConstantSeries(t *testing.T) {
	table := &report.Table{
		Header: []string{"t", "x", "y", "z", "vx", "vy", "vz"},
		Rows: [][]float64{
			{0, 7000, 0, 0, 0, 7.5, 0},
			{1, 7000, 0, 0, 0, 7.5, 0},
		},
	}

	r, err := New(Config{Dir: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := r.RenderAll(context.Background(), table, nil); err != nil {
		t.Fatalf("constant series should still render: %v", err)
	}
}

func TestRenderAll_TooFewRows(t *testing.T) {
	r, err := New(Config{Dir: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	table := circularOrbit(2)
	table.Rows = table.Rows[:1]

	_, err = r.RenderAll(context.Background(), table, nil)
	if !errors.Is(err, ErrTooFewRows) {
		t.Errorf("expected ErrTooFewRows, got %v", err)
	}
}

func TestRenderAll_Cancelled(t *testing.T) {
	r, err := New(Config{Dir: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	paths, err := r.RenderAll(ctx, circularOrbit(10), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("no chart should be written after cancellation, got %v", paths)
	}
}

func TestTimeChart_BurnMarkers(t *testing.T) {
	r, err := New(Config{Dir: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	times := []float64{0, 0.5, 1}
	burns := []float64{0.25, math.NaN(), 5, -1, 0.75}
	c := r.timeChart("Radius", "km", times, burns, named{name: "r", values: []float64{1, 2, 3}})

	// One data series plus the two in-range markers.
	if len(c.Series) != 3 {
		t.Fatalf("got %d series, want 3", len(c.Series))
	}
	for _, s := range c.Series[1:] {
		cs := s.(chart.ContinuousSeries)
		if math.IsNaN(cs.XValues[0]) {
			t.Error("NaN burn times should not produce a marker")
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Dir: t.TempDir(), Theme: "neon"}, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown theme")
	}
	if _, err := New(Config{}, zerolog.Nop()); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestPaddedRange(t *testing.T) {
	r := paddedRange([]float64{5, 5, 5})
	if !(r.Min < 5 && r.Max > 5) {
		t.Errorf("constant range should be widened, got [%v, %v]", r.Min, r.Max)
	}

	r = paddedRange([]float64{0, 0})
	if r.Max-r.Min <= 0 {
		t.Errorf("zero series should get a non-zero span, got [%v, %v]", r.Min, r.Max)
	}

	r = paddedRange([]float64{-10, 10})
	if math.Abs(r.Min+11) > 1e-9 || math.Abs(r.Max-11) > 1e-9 {
		t.Errorf("expected [-11, 11], got [%v, %v]", r.Min, r.Max)
	}
}

func TestEqualRanges(t *testing.T) {
	a, b := equalRanges([]float64{0, 100}, []float64{0, 10})
	if spanA, spanB := a.Max-a.Min, b.Max-b.Min; math.Abs(spanA-spanB) > 1e-9 {
		t.Errorf("spans differ: %v vs %v", spanA, spanB)
	}
	if mid := (b.Min + b.Max) / 2; math.Abs(mid-5) > 1e-9 {
		t.Errorf("range should stay centred on the data, mid = %v", mid)
	}
}
