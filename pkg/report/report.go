// Package report loads the engine's whitespace-delimited report into a
// numeric table.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// MinColumns is the number of leading columns every report carries:
// elapsed days followed by the Cartesian position and velocity.
const MinColumns = 7

// Column indexes of the fixed report fields.
const (
	ColTime = iota
	ColX
	ColY
	ColZ
	ColVX
	ColVY
	ColVZ
)

var (
	// ErrEmpty is returned when a report has no header or no data rows.
	ErrEmpty = errors.New("report has no data")

	// ErrTooFewColumns is returned when the header has fewer than MinColumns fields.
	ErrTooFewColumns = errors.New("report has too few columns")
)

// Table is a parsed report. Every row has len(Header) values.
type Table struct {
	Header []string
	Rows   [][]float64

	// Dropped counts lines that were skipped because of a field count
	// mismatch or a non-numeric field.
	Dropped int
}

// Load reads the report at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse reads a report. The first non-blank line is the header; data lines
// must have the same number of fields, all numeric. Other lines, including
// repeated headers, are dropped.
func Parse(r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	t := &Table{}
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if t.Header == nil {
			t.Header = fields
			continue
		}

		if len(fields) != len(t.Header) {
			t.Dropped++
			continue
		}
		row, ok := parseRow(fields)
		if !ok {
			t.Dropped++
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	if t.Header == nil {
		return nil, ErrEmpty
	}
	if len(t.Header) < MinColumns {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrTooFewColumns, len(t.Header), MinColumns)
	}
	if len(t.Rows) == 0 {
		return nil, ErrEmpty
	}
	return t, nil
}

func parseRow(fields []string) ([]float64, bool) {
	row := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(v) {
			return nil, false
		}
		row[i] = v
	}
	return row, true
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Column returns a copy of column i.
func (t *Table) Column(i int) []float64 {
	out := make([]float64, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// Time returns the elapsed days column.
func (t *Table) Time() []float64 { return t.Column(ColTime) }

func (t *Table) X() []float64  { return t.Column(ColX) }
func (t *Table) Y() []float64  { return t.Column(ColY) }
func (t *Table) Z() []float64  { return t.Column(ColZ) }
func (t *Table) VX() []float64 { return t.Column(ColVX) }
func (t *Table) VY() []float64 { return t.Column(ColVY) }
func (t *Table) VZ() []float64 { return t.Column(ColVZ) }

// Radius returns |r| for each row.
func (t *Table) Radius() []float64 {
	return t.norms(ColX)
}

// Speed returns |v| for each row.
func (t *Table) Speed() []float64 {
	return t.norms(ColVX)
}

func (t *Table) norms(first int) []float64 {
	out := make([]float64, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = floats.Norm(row[first:first+3], 2)
	}
	return out
}

// Summary holds headline figures of a propagated trajectory.
type Summary struct {
	Rows        int     `json:"rows"`
	ElapsedDays float64 `json:"elapsed_days"`
	MinRadius   float64 `json:"min_radius_km"`
	MaxRadius   float64 `json:"max_radius_km"`
	MinSpeed    float64 `json:"min_speed_km_s"`
	MaxSpeed    float64 `json:"max_speed_km_s"`
}

// Summarize computes the trajectory summary.
func (t *Table) Summarize() Summary {
	if len(t.Rows) == 0 {
		return Summary{}
	}
	r := t.Radius()
	v := t.Speed()
	return Summary{
		Rows:        len(t.Rows),
		ElapsedDays: t.Rows[len(t.Rows)-1][ColTime],
		MinRadius:   floats.Min(r),
		MaxRadius:   floats.Max(r),
		MinSpeed:    floats.Min(v),
		MaxSpeed:    floats.Max(v),
	}
}
