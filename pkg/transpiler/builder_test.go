package transpiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gmatflow/gmatflow/pkg/scenario"
)

func TestBuild_Golden(t *testing.T) {
	tests := []string{"basic", "mars_two_burns", "clamped"}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			sc, err := scenario.ParseFile(filepath.Join("testdata", name+".txt"))
			if err != nil {
				t.Fatalf("ParseFile failed: %v", err)
			}
			want, err := os.ReadFile(filepath.Join("testdata", name+".script"))
			if err != nil {
				t.Fatalf("failed to read golden file: %v", err)
			}

			got := Build(sc, Options{})
			if got != string(want) {
				t.Errorf("script mismatch\n%s", diffLines(string(want), got))
			}
		})
	}
}

func TestBuild_EmptyScenario(t *testing.T) {
	got := Build(scenario.New(), Options{})

	for _, want := range []string{
		"Create Spacecraft Sat;",
		"Sat.Epoch = '01 Jan 2030 12:00:00.000';",
		"Sat.CoordinateSystem = EarthMJ2000Eq;",
		"Sat.X  = 7000.0;",
		"Sat.VY = 7.5;",
		"Prop.Type            = RungeKutta89;",
		"Propagate Prop(Sat) {Sat.ElapsedDays = 1.0};",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q", want)
		}
	}
	if strings.Contains(got, "ImpulsiveBurn") {
		t.Error("no burn should be created without delta-v")
	}
	if strings.Contains(got, "Create CoordinateSystem") {
		t.Error("Earth scenarios use the built-in coordinate system")
	}
}

func TestBuild_HugeStepAttempts(t *testing.T) {
	sc := scenario.Template()
	sc.Set(scenario.SectionPropagate, scenario.KeyMaxStepAttempts, "1e20")

	got := Build(sc, Options{})
	if !strings.Contains(got, "Prop.MaxStepAttempts = 100000000000000000000;") {
		t.Errorf("huge attempt counts should be written in full:\n%s", got)
	}
}

func TestBuild_InactiveBurnTimeIgnored(t *testing.T) {
	sc := scenario.Template()
	sc.Set(scenario.SectionBurn1, scenario.KeyBurnTime, "0.5")

	got := Build(sc, Options{})
	if strings.Contains(got, "Maneuver") {
		t.Error("burn without delta-v must not be scheduled")
	}
}

func TestBuild_ActiveBurnWithoutTime(t *testing.T) {
	sc := scenario.Template()
	sc.Set(scenario.SectionBurn1, scenario.KeyDeltaV1, "0.1")

	got := Build(sc, Options{})
	if !strings.Contains(got, "Create ImpulsiveBurn ImpBurn1;") {
		t.Error("active burn should be created")
	}
	if strings.Contains(got, "Maneuver") {
		t.Error("burn without a time must not be scheduled")
	}
}

func TestBuild_EqualBurnTimesKeepOrder(t *testing.T) {
	sc := scenario.Template()
	sc.Set(scenario.SectionBurn1, scenario.KeyDeltaV1, "0.1")
	sc.Set(scenario.SectionBurn1, scenario.KeyBurnTime, "0.5")
	sc.Set(scenario.SectionBurn2, scenario.KeyDeltaV1, "0.2")
	sc.Set(scenario.SectionBurn2, scenario.KeyBurnTime, "0,5")

	got := Build(sc, Options{})
	first := strings.Index(got, "Maneuver ImpBurn1(Sat);")
	second := strings.Index(got, "Maneuver ImpBurn2(Sat);")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("expected ImpBurn1 before ImpBurn2:\n%s", got)
	}
	if n := strings.Count(got, "{Sat.ElapsedDays = 0.5}"); n != 1 {
		t.Errorf("expected a single propagate to 0.5, got %d", n)
	}
}

func TestBuild_NoRandomness(t *testing.T) {
	sc, err := scenario.ParseFile(filepath.Join("testdata", "mars_two_burns.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if Build(sc, Options{}) != Build(sc, Options{}) {
		t.Error("Build should be deterministic")
	}
}

func TestBuild_Extended(t *testing.T) {
	sc := scenario.Template()
	sc.Set(scenario.SectionSpacecraft, scenario.KeyEpochFormat, "Julian Dates")
	sc.Set(scenario.SectionSpacecraft, scenario.KeyFuelMass, "120,5")
	sc.Set(scenario.SectionPropagate, scenario.KeyGravityModel, "JGM-3")
	sc.Set(scenario.SectionPropagate, scenario.KeyGravityDegree, "8")
	sc.Set(scenario.SectionPropagate, scenario.KeyAtmosphere, "MSISE90")
	sc.Set(scenario.SectionReportFile, scenario.KeyReportVariables,
		"Posicion X, Semieje mayor (SMA), Desconocida, Anomalia verdadera (TA)")

	got := Build(sc, Options{Extended: true})

	for _, want := range []string{
		"Sat.DateFormat = UTCModJulian;",
		"Sat.Epoch = '32503.000000000';",
		"Create ChemicalTank FuelTank1;",
		"Sat.DryMass = 850.0;",
		"FuelTank1.FuelMass = 120.5;",
		"Sat.Tanks = {FuelTank1};",
		"FM.GravityField.Earth.Degree = 8;",
		"FM.GravityField.Earth.Order = 4;",
		"FM.GravityField.Earth.StmLimit = 100;",
		"FM.GravityField.Earth.PotentialFile = 'JGM3.cof';",
		"FM.Drag.AtmosphereModel = MSISE90;",
		"FM.Drag.DragModel = 'Spherical';",
		"DefaultReportFile.Add = {Sat.ElapsedDays, Sat.X, Sat.Y, Sat.Z, Sat.VX, Sat.VY, Sat.VZ, Sat.SMA, Sat.TA};",
		"Report DefaultReportFile Sat.ElapsedDays Sat.X Sat.Y Sat.Z Sat.VX Sat.VY Sat.VZ Sat.SMA Sat.TA;",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q", want)
		}
	}
	if strings.Contains(got, "FM.Drag = None;") {
		t.Error("drag should be replaced by the atmosphere model")
	}
}

func TestBuild_ExtendedSkipsGravityAwayFromEarth(t *testing.T) {
	sc := scenario.Template()
	sc.Set(scenario.SectionPropagate, scenario.KeyCentralBody, "Marte")
	sc.Set(scenario.SectionPropagate, scenario.KeyGravityModel, "EGM-96")
	sc.Set(scenario.SectionPropagate, scenario.KeyAtmosphere, "Jacchia Roberts")

	got := Build(sc, Options{Extended: true})
	if strings.Contains(got, "GravityField") {
		t.Error("gravity field only applies to Earth")
	}
	if !strings.Contains(got, "FM.Drag = None;") {
		t.Error("drag only applies to Earth")
	}
}

func TestBuild_ExtendedOffMatchesClassic(t *testing.T) {
	sc := scenario.Template()
	sc.Set(scenario.SectionSpacecraft, scenario.KeyEpochFormat, "Julian Dates")
	sc.Set(scenario.SectionPropagate, scenario.KeyGravityModel, "JGM-2")

	got := Build(sc, Options{})
	if strings.Contains(got, "ModJulian") || strings.Contains(got, "GravityField") || strings.Contains(got, "DryMass") {
		t.Errorf("extended statements leaked into classic output:\n%s", got)
	}
}

func TestWriteScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gmat", "demo.script")

	m, err := WriteScript(path, scenario.Template(), Options{})
	if err != nil {
		t.Fatalf("WriteScript failed: %v", err)
	}
	if m.Craft != "Sat" {
		t.Errorf("craft = %q", m.Craft)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("script not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "Create Spacecraft Sat;\n") {
		t.Errorf("unexpected script start: %q", string(data)[:40])
	}
}

func diffLines(want, got string) string {
	wl := strings.Split(want, "\n")
	gl := strings.Split(got, "\n")
	var b strings.Builder
	for i := 0; i < len(wl) || i < len(gl); i++ {
		var w, g string
		if i < len(wl) {
			w = wl[i]
		}
		if i < len(gl) {
			g = gl[i]
		}
		if w != g {
			fmt.Fprintf(&b, "line %d:\n  want: %q\n  got:  %q\n", i+1, w, g)
		}
	}
	return b.String()
}
