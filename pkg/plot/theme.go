package plot

import (
	"fmt"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Theme selects the chart palette.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ParseTheme validates a theme name. An empty name selects the dark theme.
func ParseTheme(name string) (Theme, error) {
	switch Theme(name) {
	case "", ThemeDark:
		return ThemeDark, nil
	case ThemeLight:
		return ThemeLight, nil
	default:
		return "", fmt.Errorf("unknown plot theme %q (expected dark or light)", name)
	}
}

type palette struct {
	background drawing.Color
	foreground drawing.Color
	grid       drawing.Color
	marker     drawing.Color
	series     []drawing.Color
}

var palettes = map[Theme]palette{
	ThemeDark: {
		background: drawing.ColorFromHex("121212"),
		foreground: drawing.ColorFromHex("e0e0e0"),
		grid:       drawing.ColorFromHex("3a3a3a"),
		marker:     drawing.ColorWhite.WithAlpha(153),
		series: []drawing.Color{
			drawing.ColorFromHex("00ffff"),
			drawing.ColorFromHex("ffa500"),
			drawing.ColorFromHex("00ff00"),
		},
	},
	ThemeLight: {
		background: drawing.ColorWhite,
		foreground: drawing.ColorFromHex("202020"),
		grid:       drawing.ColorFromHex("d0d0d0"),
		marker:     drawing.ColorBlack.WithAlpha(178),
		series: []drawing.Color{
			drawing.ColorFromHex("1f77b4"),
			drawing.ColorFromHex("ff7f0e"),
			drawing.ColorFromHex("2ca02c"),
		},
	},
}

func (p palette) line(i int) chart.Style {
	return chart.Style{
		StrokeColor: p.series[i%len(p.series)],
		StrokeWidth: 2,
	}
}

func (p palette) burnMarker() chart.Style {
	return chart.Style{
		StrokeColor:     p.marker,
		StrokeWidth:     1,
		StrokeDashArray: []float64{5, 5},
	}
}

func (p palette) axisStyle() chart.Style {
	return chart.Style{
		FontColor:   p.foreground,
		StrokeColor: p.foreground,
	}
}

func (p palette) gridStyle() chart.Style {
	return chart.Style{
		StrokeColor: p.grid,
		StrokeWidth: 1,
	}
}

func (p palette) legendStyle() chart.Style {
	return chart.Style{
		FillColor:   p.background,
		FontColor:   p.foreground,
		StrokeColor: p.grid,
	}
}
