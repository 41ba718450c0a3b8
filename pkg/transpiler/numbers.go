package transpiler

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ToFloat parses s, accepting a comma as decimal separator. Surrounding
// whitespace is ignored. Any parse failure returns def; out of range values
// saturate to ±Inf.
func ToFloat(s string, def float64) float64 {
	v, err := parseNumber(s)
	if err != nil {
		return def
	}
	return v
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, err
	}
	return v, nil
}

// PositiveOrDefault is ToFloat with non-positive results replaced by def.
func PositiveOrDefault(s string, def float64) float64 {
	v := ToFloat(s, def)
	if v <= 0 {
		return def
	}
	return v
}

const defaultStepAttempts = 50

// StepAttempts parses the max step attempts field. The value is truncated
// toward zero and kept as a whole float64, since the field is unbounded;
// zero, negatives and unparseable input give 50.
func StepAttempts(s string) float64 {
	v, err := parseNumber(s)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return defaultStepAttempts
	}
	v = math.Trunc(v)
	if v <= 0 {
		return defaultStepAttempts
	}
	return v
}

// FormatWhole renders a whole number in full decimal form, without an
// exponent or fraction.
func FormatWhole(v float64) string {
	return strconv.FormatFloat(math.Trunc(v), 'f', 0, 64)
}

// FormatFloat renders v the way the engine scripts have always been
// written: the shortest representation that round-trips, "7000.0" for
// integral values, and exponent form below 1e-4 or from 1e16 up.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	if v == 0 {
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}

	sci := strconv.FormatFloat(v, 'e', -1, 64)
	mant, expStr, _ := strings.Cut(sci, "e")
	exp, _ := strconv.Atoi(expStr)

	if exp < -4 || exp >= 16 {
		sign := "+"
		if exp < 0 {
			sign = "-"
			exp = -exp
		}
		e := strconv.Itoa(exp)
		if len(e) < 2 {
			e = "0" + e
		}
		return mant + "e" + sign + e
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
