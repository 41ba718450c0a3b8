package scenario

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

const maxLineSize = 1024 * 1024

// ParseFile reads and parses a scenario file.
func ParseFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
		}
		return nil, fmt.Errorf("failed to open scenario: %w", err)
	}
	defer f.Close()

	sc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	return sc, nil
}

// ParseString parses a scenario held in memory.
func ParseString(s string) (*Scenario, error) {
	return Parse(strings.NewReader(s))
}

// Parse reads "=== SECTION ===" banners followed by "key: value" lines.
// Lines outside a recognised section are ignored, and only the first colon
// separates key from value.
func Parse(r io.Reader) (*Scenario, error) {
	sc := New()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		current Section
		active  bool
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "=== ") && strings.HasSuffix(line, " ===") {
			current, active = sectionForHeader(line)
			continue
		}

		if !active {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		sc.Set(current, strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	return sc, nil
}

// ScanBurnTimes collects every "Tiempo burn: <days>" value in file order,
// regardless of section. Values that do not parse are skipped and nothing is
// clamped; the result is only used to mark maneuvers on charts.
func ScanBurnTimes(r io.Reader) []float64 {
	var times []float64

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(strings.ToLower(line), "tiempo burn") {
			continue
		}
		_, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
		t, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		times = append(times, t)
	}
	return times
}

// ScanBurnTimesFile is ScanBurnTimes over a file. A missing file yields no
// burn times.
func ScanBurnTimesFile(path string) []float64 {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	return ScanBurnTimes(f)
}
