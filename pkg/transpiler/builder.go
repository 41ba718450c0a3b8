package transpiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gmatflow/gmatflow/pkg/scenario"
)

// ReportFileName is the report the generated script asks the engine to
// write.
const ReportFileName = "DefaultReportFile.txt"

// Build transpiles a scenario into engine script text.
func Build(sc *scenario.Scenario, opts Options) string {
	return Render(Resolve(sc, opts))
}

// WriteScript builds the script for sc and writes it to path, creating
// parent directories as needed.
func WriteScript(path string, sc *scenario.Scenario, opts Options) (*Mission, error) {
	m := Resolve(sc, opts)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create script directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Render(m)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write script: %w", err)
	}
	return m, nil
}

// Render writes the statements for a resolved mission.
func Render(m *Mission) string {
	w := &scriptWriter{}
	s := m.Craft
	f := FormatFloat

	if m.CentralBody != "Earth" {
		w.line("Create CoordinateSystem %s;", m.CoordinateSystem)
		w.line("%s.Origin = %s;", m.CoordinateSystem, m.CentralBody)
		w.line("%s.Axes   = %s;", m.CoordinateSystem, m.Axes)
		w.blank()
	}

	w.line("Create Spacecraft %s;", s)
	if m.FuelMass > 0 {
		w.line("Create ChemicalTank FuelTank1;")
	}
	w.line("Create ForceModel FM;")
	w.line("Create Propagator Prop;")
	for _, b := range m.Burns {
		if b.Active {
			w.line("Create ImpulsiveBurn %s;", b.Name)
		}
	}
	w.line("Create ReportFile DefaultReportFile;")
	w.blank()

	w.line("%s.DateFormat = %s;", s, m.DateFormat)
	w.line("%s.Epoch = '%s';", s, m.Epoch)
	w.line("%s.CoordinateSystem = %s;", s, m.CoordinateSystem)

	st := m.State
	if m.StateType == StateCartesian {
		w.line("%s.DisplayStateType = Cartesian;", s)
		w.line("%s.X  = %s;", s, f(st[0]))
		w.line("%s.Y  = %s;", s, f(st[1]))
		w.line("%s.Z  = %s;", s, f(st[2]))
		w.line("%s.VX = %s;", s, f(st[3]))
		w.line("%s.VY = %s;", s, f(st[4]))
		w.line("%s.VZ = %s;", s, f(st[5]))
	} else {
		w.line("%s.DisplayStateType = Keplerian;", s)
		w.line("%s.SMA  = %s;", s, f(st[0]))
		w.line("%s.ECC  = %s;", s, f(st[1]))
		w.line("%s.INC  = %s;", s, f(st[2]))
		w.line("%s.RAAN = %s;", s, f(st[3]))
		w.line("%s.AOP  = %s;", s, f(st[4]))
		w.line("%s.TA   = %s;", s, f(st[5]))
	}
	if m.DryMass > 0 {
		w.line("%s.DryMass = %s;", s, f(m.DryMass))
	}
	if m.FuelMass > 0 {
		w.line("FuelTank1.FuelMass = %s;", f(m.FuelMass))
		w.line("%s.Tanks = {FuelTank1};", s)
	}
	w.blank()

	fm := m.ForceModel
	w.line("FM.CentralBody   = %s;", fm.CentralBody)
	w.line("FM.PrimaryBodies = {%s};", fm.CentralBody)
	if g := fm.Gravity; g != nil {
		w.line("FM.GravityField.Earth.Degree = %d;", g.Degree)
		w.line("FM.GravityField.Earth.Order = %d;", g.Order)
		w.line("FM.GravityField.Earth.StmLimit = %d;", g.StmLimit)
		w.line("FM.GravityField.Earth.PotentialFile = '%s';", g.PotentialFile)
	}
	if fm.Atmosphere != "" {
		w.line("FM.Drag.AtmosphereModel = %s;", fm.Atmosphere)
		w.line("FM.Drag.DragModel = '%s';", fm.DragModel)
	} else {
		w.line("FM.Drag = None;")
	}
	w.line("FM.SRP  = Off;")
	w.blank()

	p := m.Propagator
	w.line("Prop.Type            = %s;", p.Type)
	w.line("Prop.FM              = FM;")
	w.line("Prop.InitialStepSize = %s;", f(p.InitialStep))
	w.line("Prop.Accuracy        = %s;", f(p.Accuracy))
	w.line("Prop.MinStep         = %s;", f(p.MinStep))
	w.line("Prop.MaxStep         = %s;", f(p.MaxStep))
	w.line("Prop.MaxStepAttempts = %s;", FormatWhole(p.MaxStepAttempts))
	w.blank()

	for _, b := range m.Burns {
		if !b.Active {
			continue
		}
		w.line("%s.CoordinateSystem = %s;", b.Name, b.CoordinateSystem)
		w.line("%s.Origin          = %s;", b.Name, b.Origin)
		w.line("%s.Axes            = %s;", b.Name, b.Axes)
		w.line("%s.Element1        = %s;", b.Name, f(b.DeltaV[0]))
		w.line("%s.Element2        = %s;", b.Name, f(b.DeltaV[1]))
		w.line("%s.Element3        = %s;", b.Name, f(b.DeltaV[2]))
		w.line("%s.DecrementMass   = false;", b.Name)
		w.blank()
	}

	w.line("DefaultReportFile.Filename = '%s';", ReportFileName)
	w.line("DefaultReportFile.WriteHeaders = true;")
	w.line("DefaultReportFile.Precision = 16;")
	w.line("DefaultReportFile.Add = {%s};", strings.Join(m.ReportFields, ", "))
	w.blank()

	w.line("BeginMissionSequence;")
	report := "Report DefaultReportFile " + strings.Join(m.ReportFields, " ") + ";"
	w.line("%s", report)

	current := 0.0
	for _, ev := range m.Events() {
		if m.DurationDays <= 0 {
			break
		}
		t := clamp(ev.Time, 0, m.DurationDays)
		if t > current {
			w.line("Propagate Prop(%s) {%s.ElapsedDays = %s};", s, s, f(t))
			w.line("%s", report)
		}
		w.line("Maneuver %s(%s);", ev.Burn, s)
		w.line("%s", report)
		current = t
	}

	if m.DurationDays > current {
		w.line("Propagate Prop(%s) {%s.ElapsedDays = %s};", s, s, f(m.DurationDays))
		w.line("%s", report)
	}
	w.blank()

	return strings.Join(w.lines, "\n")
}

type scriptWriter struct {
	lines []string
}

func (w *scriptWriter) line(format string, args ...any) {
	if len(args) == 0 {
		w.lines = append(w.lines, format)
		return
	}
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func (w *scriptWriter) blank() {
	w.lines = append(w.lines, "")
}

// Summary returns a one-line description of the mission for logs.
func (m *Mission) Summary() string {
	active := 0
	for _, b := range m.Burns {
		if b.Active {
			active++
		}
	}
	return m.Craft + " around " + m.CentralBody + ", " +
		strconv.FormatFloat(m.DurationDays, 'g', -1, 64) + " d, " +
		strconv.Itoa(active) + " burn(s)"
}
