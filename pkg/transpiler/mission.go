package transpiler

import (
	"math"
	"sort"
	"strings"

	"github.com/gmatflow/gmatflow/pkg/scenario"
)

// Options controls optional script features.
type Options struct {
	// Extended enables statements the form collects but the classic script
	// omits: Julian epochs, spacecraft hardware, the Earth gravity field,
	// atmospheric drag and extra report variables.
	Extended bool
}

// State types written to DisplayStateType.
const (
	StateCartesian = "Cartesian"
	StateKeplerian = "Keplerian"
)

// KnownIntegrators lists the propagator types offered by the form.
var KnownIntegrators = []string{
	"RungeKutta89", "PrinceDormand78", "PrinceDormand45", "RungeKutta68",
	"RungeKutta56", "AdamsBashforthMoulton", "SPK", "Code500", "STK",
	"CCSDS-OEM", "PrinceDormand853", "RungeKutta4", "SPICESGP4",
}

// Mission holds every parameter of the script after defaults, mappings and
// clamping have been applied.
type Mission struct {
	Craft            string `json:"craft"`
	CentralBody      string `json:"central_body"`
	CoordinateSystem string `json:"coordinate_system"`
	Axes             string `json:"axes"`

	DateFormat string `json:"date_format"`
	Epoch      string `json:"epoch"`

	StartInput   string  `json:"start_input"`
	EndInput     string  `json:"end_input"`
	DateOnly     bool    `json:"date_only"`
	DurationDays float64 `json:"duration_days"`

	StateType string     `json:"state_type"`
	State     [6]float64 `json:"state"`

	DryMass  float64 `json:"dry_mass,omitempty"`
	FuelMass float64 `json:"fuel_mass,omitempty"`

	Propagator Propagator `json:"propagator"`
	ForceModel ForceModel `json:"force_model"`
	Burns      []Burn     `json:"burns"`

	ReportFields []string `json:"report_fields"`

	Extended bool `json:"extended"`
}

// Propagator settings.
type Propagator struct {
	Type            string  `json:"type"`
	InitialStep     float64 `json:"initial_step"`
	Accuracy        float64 `json:"accuracy"`
	MinStep         float64 `json:"min_step"`
	MaxStep         float64 `json:"max_step"`
	MaxStepAttempts float64 `json:"max_step_attempts"`
}

// ForceModel settings. Gravity and Atmosphere are only populated in
// extended mode.
type ForceModel struct {
	CentralBody string   `json:"central_body"`
	Gravity     *Gravity `json:"gravity,omitempty"`
	Atmosphere  string   `json:"atmosphere,omitempty"`
	DragModel   string   `json:"drag_model,omitempty"`

	// GravityModel and AtmosphereInput are the raw form values.
	GravityModel    string `json:"gravity_model"`
	AtmosphereInput string `json:"atmosphere_input"`
}

// Gravity is a spherical-harmonics field for Earth.
type Gravity struct {
	PotentialFile string `json:"potential_file"`
	Degree        int    `json:"degree"`
	Order         int    `json:"order"`
	StmLimit      int    `json:"stm_limit"`
}

// Burn is one impulsive maneuver.
type Burn struct {
	Name             string     `json:"name"`
	CoordinateSystem string     `json:"coordinate_system"`
	Origin           string     `json:"origin"`
	Axes             string     `json:"axes"`
	DeltaV           [3]float64 `json:"delta_v"`
	Active           bool       `json:"active"`

	// TimeInput is the raw "Tiempo burn" value. RequestedTime is its
	// unclamped value; Time is the value used in the mission sequence.
	TimeInput     string  `json:"time_input"`
	RequestedTime float64 `json:"requested_time"`
	Time          float64 `json:"time"`
	Scheduled     bool    `json:"scheduled"`
}

// Event is a scheduled maneuver in the mission sequence.
type Event struct {
	Burn string
	Time float64
}

// Events returns the scheduled burns sorted by time. Burns at the same time
// keep their declaration order.
func (m *Mission) Events() []Event {
	var events []Event
	for _, b := range m.Burns {
		if b.Active && b.Scheduled {
			events = append(events, Event{Burn: b.Name, Time: b.Time})
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time < events[j].Time })
	return events
}

var fixedReportParams = []string{"ElapsedDays", "X", "Y", "Z", "VX", "VY", "VZ"}

// Resolve interprets a scenario. It never fails: missing or malformed
// values fall back to their defaults.
func Resolve(sc *scenario.Scenario, opts Options) *Mission {
	m := &Mission{Extended: opts.Extended}

	m.Craft = SanitizeName(sc.Get(scenario.SectionGeneral, scenario.KeyCraftName, ""))

	centralES := sc.Get(scenario.SectionGeneral, scenario.KeyCentralBody, "Tierra")
	m.CentralBody = MapBody(centralES)
	reference := sc.Get(scenario.SectionGeneral, scenario.KeyReferenceFrame, "Ecuatorial")
	m.CoordinateSystem = MapCoordSystem(m.CentralBody, reference)
	m.Axes = AxesFor(reference)

	timeScale := sc.Get(scenario.SectionGeneral, scenario.KeyTimeFormat, "UTC")
	m.DateFormat = MapTimeFormat(timeScale)

	m.StartInput = strings.TrimSpace(sc.Get(scenario.SectionTime, scenario.KeyStartDate, ""))
	m.EndInput = strings.TrimSpace(sc.Get(scenario.SectionTime, scenario.KeyEndDate, ""))
	m.Epoch = NormalizeEpoch(m.StartInput)
	m.DurationDays, m.DateOnly = DurationDays(m.StartInput, m.EndInput)

	if opts.Extended && sc.Get(scenario.SectionSpacecraft, scenario.KeyEpochFormat, "UTC") == "Julian Dates" {
		if t, ok := epochTime(m.StartInput); ok {
			m.DateFormat = mapModJulianFormat(timeScale)
			m.Epoch = formatModJulian(ModJulian(t))
		}
	}

	resolveState(m, sc)
	resolvePropagator(m, sc, centralES, opts)

	m.Burns = []Burn{
		resolveBurn("ImpBurn1", sc, scenario.SectionBurn1, centralES, m),
		resolveBurn("ImpBurn2", sc, scenario.SectionBurn2, centralES, m),
	}

	m.ReportFields = make([]string, 0, len(fixedReportParams))
	for _, p := range fixedReportParams {
		m.ReportFields = append(m.ReportFields, m.Craft+"."+p)
	}
	if opts.Extended {
		m.ReportFields = appendReportVariables(m.ReportFields, m.Craft,
			sc.Get(scenario.SectionReportFile, scenario.KeyReportVariables, ""))
	}

	return m
}

func resolveState(m *Mission, sc *scenario.Scenario) {
	get := func(key, def string, fallback float64) float64 {
		return ToFloat(sc.Get(scenario.SectionSpacecraft, key, def), fallback)
	}

	coordType := strings.TrimSpace(sc.Get(scenario.SectionSpacecraft, scenario.KeyCoordinateType, "Cartesianas"))
	if coordType == "Cartesianas" {
		m.StateType = StateCartesian
		m.State = [6]float64{
			get(scenario.KeyX, "7000", 7000),
			get(scenario.KeyY, "0", 0),
			get(scenario.KeyZ, "0", 0),
			get(scenario.KeyVX, "0", 0),
			get(scenario.KeyVY, "7.5", 7.5),
			get(scenario.KeyVZ, "0", 0),
		}
	} else {
		m.StateType = StateKeplerian
		m.State = [6]float64{
			get(scenario.KeySMA, "7000", 7000),
			get(scenario.KeyECC, "0.0", 0),
			get(scenario.KeyINC, "0.0", 0),
			get(scenario.KeyRAAN, "0.0", 0),
			get(scenario.KeyAOP, "0.0", 0),
			get(scenario.KeyTA, "0.0", 0),
		}
	}

	if m.Extended {
		m.DryMass = get(scenario.KeyDryMass, "0", 0)
		m.FuelMass = get(scenario.KeyFuelMass, "0", 0)
	}
}

func resolvePropagator(m *Mission, sc *scenario.Scenario, centralES string, opts Options) {
	get := func(key, def string) string {
		return sc.Get(scenario.SectionPropagate, key, def)
	}

	integrator := strings.TrimSpace(get(scenario.KeyIntegrator, "RungeKutta89"))
	if integrator == "" {
		integrator = "RungeKutta89"
	}

	m.Propagator = Propagator{
		Type:            integrator,
		InitialStep:     PositiveOrDefault(get(scenario.KeyInitialStep, "10"), 10),
		Accuracy:        PositiveOrDefault(get(scenario.KeyAccuracy, "1e-4"), 1e-4),
		MinStep:         PositiveOrDefault(get(scenario.KeyMinStep, "0.01"), 0.01),
		MaxStep:         PositiveOrDefault(get(scenario.KeyMaxStep, "300"), 300),
		MaxStepAttempts: StepAttempts(get(scenario.KeyMaxStepAttempts, "50")),
	}

	fm := ForceModel{
		CentralBody:     MapBody(get(scenario.KeyCentralBody, centralES)),
		GravityModel:    get(scenario.KeyGravityModel, "None"),
		AtmosphereInput: get(scenario.KeyAtmosphere, "None"),
	}

	if opts.Extended && fm.CentralBody == "Earth" {
		if file, ok := potentialFiles[fm.GravityModel]; ok {
			fm.Gravity = &Gravity{
				PotentialFile: file,
				Degree:        wholeNumber(get(scenario.KeyGravityDegree, "4"), 4),
				Order:         wholeNumber(get(scenario.KeyGravityOrder, "4"), 4),
				StmLimit:      wholeNumber(get(scenario.KeySTMLimit, "100"), 100),
			}
		}
		if model, ok := atmosphereModels[fm.AtmosphereInput]; ok {
			fm.Atmosphere = model
			fm.DragModel = get(scenario.KeyDragModel, "Spherical")
			if fm.DragModel == "" {
				fm.DragModel = "Spherical"
			}
		}
	}

	m.ForceModel = fm
}

var potentialFiles = map[string]string{
	"JGM-2":  "JGM2.cof",
	"JGM-3":  "JGM3.cof",
	"EGM-96": "EGM96.cof",
}

var atmosphereModels = map[string]string{
	"Jacchia Roberts": "JacchiaRoberts",
	"MSISE90":         "MSISE90",
}

// wholeNumber parses a non-negative integer field, truncating decimals.
func wholeNumber(s string, def int) int {
	v := ToFloat(s, float64(def))
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > math.MaxInt32 {
		return def
	}
	return int(v)
}

func resolveBurn(name string, sc *scenario.Scenario, section scenario.Section, centralES string, m *Mission) Burn {
	get := func(key, def string) string {
		return sc.Get(section, key, def)
	}

	b := Burn{
		Name:   name,
		Origin: MapBody(get(scenario.KeyBurnOrigin, centralES)),
		Axes:   strings.TrimSpace(get(scenario.KeyBurnAxes, "VNB")),
		DeltaV: [3]float64{
			ToFloat(get(scenario.KeyDeltaV1, "0"), 0),
			ToFloat(get(scenario.KeyDeltaV2, "0"), 0),
			ToFloat(get(scenario.KeyDeltaV3, "0"), 0),
		},
		TimeInput: strings.TrimSpace(get(scenario.KeyBurnTime, "")),
	}

	b.Active = math.Abs(b.DeltaV[0])+math.Abs(b.DeltaV[1])+math.Abs(b.DeltaV[2]) > 0

	frame := strings.TrimSpace(get(scenario.KeyBurnFrame, "Local"))
	if frame == "Local" {
		b.CoordinateSystem = m.CoordinateSystem
	} else {
		b.CoordinateSystem = frame
	}

	if b.TimeInput != "" {
		b.RequestedTime = ToFloat(b.TimeInput, 0)
	}
	if b.Active && b.TimeInput != "" {
		b.Scheduled = true
		b.Time = clamp(b.RequestedTime, 0, m.DurationDays)
		if math.IsNaN(b.Time) {
			b.Time = m.DurationDays
		}
	}

	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func appendReportVariables(fields []string, craft, list string) []string {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		seen[f] = true
	}
	for _, label := range strings.Split(list, ",") {
		field, ok := MapReportVariable(label, craft)
		if !ok || seen[field] {
			continue
		}
		seen[field] = true
		fields = append(fields, field)
	}
	return fields
}
