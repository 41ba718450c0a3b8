package transpiler

import (
	"math"
	"testing"
	"time"

	"github.com/gmatflow/gmatflow/pkg/scenario"
)

func TestMapBody(t *testing.T) {
	tests := map[string]string{
		"Tierra":   "Earth",
		"Luna":     "Luna",
		"Marte":    "Mars",
		"Júpiter":  "Jupiter",
		"Jupiter":  "Jupiter",
		"Saturno":  "Saturn",
		"Urano":    "Uranus",
		"Neptuno":  "Neptune",
		"Mercurio": "Mercury",
		"Sol":      "Sun",
		"Venus":    "Venus",
		"":         "Earth",
		"Pluton":   "Earth",
		"tierra":   "Earth",
	}

	for in, want := range tests {
		if got := MapBody(in); got != want {
			t.Errorf("MapBody(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapCoordSystem(t *testing.T) {
	tests := []struct {
		body, ref, want string
	}{
		{"Earth", "Ecuatorial", "EarthMJ2000Eq"},
		{"Earth", "Ecliptico", "EarthMJ2000Ec"},
		{"Mars", "ECLIPTICA", "MarsMJ2000Ec"},
		{"Mars", "", "MarsMJ2000Eq"},
	}

	for _, tt := range tests {
		if got := MapCoordSystem(tt.body, tt.ref); got != tt.want {
			t.Errorf("MapCoordSystem(%q, %q) = %q, want %q", tt.body, tt.ref, got, tt.want)
		}
	}
}

func TestMapTimeFormat(t *testing.T) {
	tests := map[string]string{
		"UTC": "UTCGregorian",
		"TAI": "TAIGregorian",
		"TT":  "TTGregorian",
		"GPS": "UTCGregorian",
		"":    "UTCGregorian",
	}
	for in, want := range tests {
		if got := MapTimeFormat(in); got != want {
			t.Errorf("MapTimeFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"Mi nave 1":   "Mi_nave_1",
		"  Sat  ":     "Sat",
		"":            "Sat",
		"   ":         "Sat",
		"ñáé":         "Sat",
		"Nave-Ñ 2":    "Nave_2",
		"Probe_#7!":   "Probe_7",
		"a  b":        "a__b",
		"Explorador1": "Explorador1",
	}
	for in, want := range tests {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapReportVariable(t *testing.T) {
	if got, ok := MapReportVariable(" Elapsed Seconds ", "Sat"); !ok || got != "Sat.ElapsedSecs" {
		t.Errorf("got %q, %v", got, ok)
	}
	if got, ok := MapReportVariable("Argumento del periapsis (AOP)", "X1"); !ok || got != "X1.AOP" {
		t.Errorf("got %q, %v", got, ok)
	}
	if _, ok := MapReportVariable("Altitud", "Sat"); ok {
		t.Error("unknown label should not map")
	}
}

func TestNormalizeEpoch(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultEpoch},
		{"   ", DefaultEpoch},
		{"08 Dec 2024", "08 Dec 2024 12:00:00.000"},
		{"8 dec 2024", "08 Dec 2024 12:00:00.000"},
		{"08/12/2024", "08 Dec 2024 12:00:00.000"},
		{"08  Dec   2024", "08 Dec 2024 12:00:00.000"},
		{"08 Dec 2024 10:30:00", "08 Dec 2024 10:30:00.000"},
		{"08/12/2024 7:5:3", "08 Dec 2024 07:05:03.000"},
		{"2024-12-08T10:30:00", "2024-12-08T10:30:00.000"},
		{"08 Dec 2024 10:30:00.000", "08 Dec 2024 10:30:00.000"},
		{"8 Dec 2024 10:30:00.000", "8 Dec 2024 10:30:00.000"},
		{"08 Dec 2024 10:30:00.123", "08 Dec 2024 10:30:00.123.000"},
		{"08/12/2024 10:30:00.5", "08/12/2024 10:30:00.5.000"},
		{"31/02/2024", DefaultEpoch},
		{"mañana", DefaultEpoch},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeEpoch(tt.in); got != tt.want {
				t.Errorf("NormalizeEpoch(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDurationDays(t *testing.T) {
	tests := []struct {
		start, end string
		want       float64
		dateOnly   bool
	}{
		{"01 Jan 2030", "02 Jan 2030", 1, true},
		{"08/12/2024", "11 Dec 2024", 3, true},
		{"01 Jan 2024", "01 Jan 2025", 366, true},
		{"02 Jan 2030", "01 Jan 2030", 1, false},
		{"01 Jan 2030", "01 Jan 2030", 1, false},
		{"08 Dec 2024 10:30:00", "10 Dec 2024", 1, false},
		{"", "10 Dec 2024", 1, false},
		{"01 Jan 1900", "01 Jan 2500", 219146, true},
	}

	for _, tt := range tests {
		got, ok := DurationDays(tt.start, tt.end)
		if got != tt.want || ok != tt.dateOnly {
			t.Errorf("DurationDays(%q, %q) = %v, %v; want %v, %v", tt.start, tt.end, got, ok, tt.want, tt.dateOnly)
		}
	}
}

func TestModJulian(t *testing.T) {
	epoch := time.Date(2030, time.January, 1, 12, 0, 0, 0, time.UTC)
	if got := ModJulian(epoch); math.Abs(got-32503) > 1e-6 {
		t.Errorf("ModJulian = %v, want 32503", got)
	}

	origin := time.Date(1941, time.January, 5, 12, 0, 0, 0, time.UTC)
	if got := ModJulian(origin); math.Abs(got) > 1e-6 {
		t.Errorf("ModJulian at origin = %v, want 0", got)
	}
}

func TestResolve_Burns(t *testing.T) {
	sc := scenario.Template()
	sc.Set(scenario.SectionBurn1, scenario.KeyDeltaV2, "-0.3")
	sc.Set(scenario.SectionBurn1, scenario.KeyBurnTime, "4")
	sc.Set(scenario.SectionBurn1, scenario.KeyBurnFrame, "EarthFixed")
	sc.Set(scenario.SectionBurn2, scenario.KeyBurnTime, "0.2")

	m := Resolve(sc, Options{})

	b1 := m.Burns[0]
	if !b1.Active || !b1.Scheduled {
		t.Fatalf("burn 1 should be active and scheduled: %+v", b1)
	}
	if b1.RequestedTime != 4 || b1.Time != 1 {
		t.Errorf("burn 1 time not clamped: requested %v, time %v", b1.RequestedTime, b1.Time)
	}
	if b1.CoordinateSystem != "EarthFixed" {
		t.Errorf("explicit frame should pass through, got %q", b1.CoordinateSystem)
	}

	b2 := m.Burns[1]
	if b2.Active || b2.Scheduled {
		t.Errorf("burn 2 has no delta-v: %+v", b2)
	}
	if b2.TimeInput != "0.2" {
		t.Errorf("raw time should be kept for linting, got %q", b2.TimeInput)
	}

	events := m.Events()
	if len(events) != 1 || events[0].Burn != "ImpBurn1" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestResolve_ForceModelFallback(t *testing.T) {
	sc := scenario.New()
	sc.Set(scenario.SectionGeneral, scenario.KeyCentralBody, "Venus")

	m := Resolve(sc, Options{})
	if m.ForceModel.CentralBody != "Venus" {
		t.Errorf("force model should fall back to the general body, got %q", m.ForceModel.CentralBody)
	}
	if m.Burns[0].Origin != "Venus" {
		t.Errorf("burn origin should default to the general body, got %q", m.Burns[0].Origin)
	}

	sc.Set(scenario.SectionPropagate, scenario.KeyCentralBody, "")
	m = Resolve(sc, Options{})
	if m.ForceModel.CentralBody != "Earth" {
		t.Errorf("present but empty body maps to Earth, got %q", m.ForceModel.CentralBody)
	}
}
