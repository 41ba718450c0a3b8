package transpiler

import (
	"strconv"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// DefaultEpoch is used when the start date is missing or unreadable.
const DefaultEpoch = "01 Jan 2030 12:00:00.000"

// gmatModJulianOffset is the Julian date of the engine's ModJulian origin,
// 05 Jan 1941 12:00:00.
const gmatModJulianOffset = 2430000.0

var (
	dateTimeLayouts = []string{"2 Jan 2006 15:4:5", "2/1/2006 15:4:5"}
	dateLayouts     = []string{"2 Jan 2006", "2/1/2006"}
)

const (
	epochLayout = "02 Jan 2006 15:04:05"
	dateLayout  = "02 Jan 2006"
)

// NormalizeEpoch converts a start date typed into the form into the
// engine's Gregorian epoch string, e.g. "08 Dec 2024 10:30:00.000".
// Date-only input is placed at noon. A value containing a colon that does
// not parse is passed through with ".000" appended.
func NormalizeEpoch(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultEpoch
	}

	if strings.Contains(s, ":") {
		if t, ok := parseDateTime(s); ok {
			return t.Format(epochLayout) + ".000"
		}
		if strings.HasSuffix(s, ".000") {
			return s
		}
		return s + ".000"
	}

	if t, ok := ParseDateOnly(s); ok {
		return t.Format(dateLayout) + " 12:00:00.000"
	}
	return DefaultEpoch
}

// ParseDateOnly parses "08 Dec 2024" or "08/12/2024". Values carrying a
// time of day are rejected.
func ParseDateOnly(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	return parseWith(dateLayouts, s)
}

// DurationDays returns the propagation span between two date-only values.
// It falls back to one day unless both parse and end is after start.
func DurationDays(start, end string) (float64, bool) {
	s, okStart := ParseDateOnly(start)
	e, okEnd := ParseDateOnly(end)
	if !okStart || !okEnd || !e.After(s) {
		return 1.0, false
	}
	return float64(e.Unix()-s.Unix()) / 86400.0, true
}

// epochTime resolves the instant NormalizeEpoch would describe. It reports
// false when the value is passed through unparsed.
func epochTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		t, _ := time.Parse(epochLayout, strings.TrimSuffix(DefaultEpoch, ".000"))
		return t, true
	}
	if strings.Contains(s, ":") {
		return parseDateTime(s)
	}
	if t, ok := ParseDateOnly(s); ok {
		return t.Add(12 * time.Hour), true
	}
	t, _ := time.Parse(epochLayout, strings.TrimSuffix(DefaultEpoch, ".000"))
	return t, true
}

// ModJulian converts t to the engine's modified Julian date.
func ModJulian(t time.Time) float64 {
	return julian.TimeToJD(t) - gmatModJulianOffset
}

func formatModJulian(mjd float64) string {
	return strconv.FormatFloat(mjd, 'f', 9, 64)
}

// parseDateTime parses a date with a whole-second time of day. time.Parse
// would accept and drop a fractional part, so those values are rejected.
func parseDateTime(s string) (time.Time, bool) {
	if strings.Contains(s[strings.LastIndex(s, ":"):], ".") {
		return time.Time{}, false
	}
	return parseWith(dateTimeLayouts, s)
}

func parseWith(layouts []string, s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
