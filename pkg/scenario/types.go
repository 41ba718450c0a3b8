package scenario

import (
	"errors"
	"strings"
)

// Section identifies a group of keys in a scenario file.
type Section string

const (
	SectionGeneral    Section = "general"
	SectionSpacecraft Section = "spacecraft"
	SectionTime       Section = "time"
	SectionPropagate  Section = "propagate"
	SectionBurn1      Section = "impulsive_burn"
	SectionBurn2      Section = "impulsive_burn_2"
	SectionReportFile Section = "reportfile"
)

// Sections lists every section in the order they are written to disk.
var Sections = []Section{
	SectionGeneral,
	SectionSpacecraft,
	SectionTime,
	SectionPropagate,
	SectionBurn1,
	SectionBurn2,
	SectionReportFile,
}

// headers maps each section to the banner used when encoding.
var headers = map[Section]string{
	SectionGeneral:    "=== GENERAL ===",
	SectionSpacecraft: "=== SPACECRAFT ===",
	SectionTime:       "=== TIEMPO ===",
	SectionPropagate:  "=== PROPAGATE ===",
	SectionBurn1:      "=== IMPULSIVE BURN ===",
	SectionBurn2:      "=== IMPULSIVE BURN 2 ===",
	SectionReportFile: "=== REPORTFILE ===",
}

// Keys written by the scenario form. The labels are part of the file format
// and must not be translated.
const (
	KeyCraftName      = "Nombre nave"
	KeyCentralBody    = "Cuerpo central"
	KeyReferenceFrame = "Sistema de referencia"
	KeyTimeFormat     = "Formato de tiempo"

	KeyCoordinateType = "Sistema de coordenadas"
	KeyX              = "x"
	KeyY              = "y"
	KeyZ              = "z"
	KeyVX             = "vx"
	KeyVY             = "vy"
	KeyVZ             = "vz"
	KeySMA            = "SMA"
	KeyECC            = "ECC"
	KeyINC            = "INC"
	KeyRAAN           = "RAAN"
	KeyAOP            = "AOP"
	KeyTA             = "TA"
	KeyDryMass        = "Masa seca"
	KeyFuelMass       = "Masa combustible"
	KeyEpochFormat    = "Formato epoch"

	KeyStartDate = "Fecha inicio"
	KeyEndDate   = "Fecha final"

	KeyIntegrator      = "Tipo de integrador"
	KeyInitialStep     = "Tamano de paso inicial"
	KeyAccuracy        = "Precision (accuracy)"
	KeyMinStep         = "Paso minimo"
	KeyMaxStep         = "Paso maximo"
	KeyMaxStepAttempts = "Intentos max. paso"
	KeyPrimaryBody     = "Cuerpo primario"
	KeyGravityModel    = "Modelo gravitatorio"
	KeyGravityDegree   = "Grado"
	KeyGravityOrder    = "Orden"
	KeySTMLimit        = "STM Limit"
	KeyAtmosphere      = "Atmosfera"
	KeyDragModel       = "Modelo de arrastre"

	KeyBurnFrame  = "Sistema de coordenadas"
	KeyBurnOrigin = "Origen"
	KeyBurnAxes   = "Axes"
	KeyDeltaV1    = "Delta V Element 1"
	KeyDeltaV2    = "Delta V Element 2"
	KeyDeltaV3    = "Delta V Element 3"
	KeyBurnTime   = "Tiempo burn"

	KeyReportName      = "Nombre del archivo de reporte"
	KeyReportVariables = "Variables"
)

// ErrNotFound is returned when a scenario file does not exist.
var ErrNotFound = errors.New("scenario file not found")

// Scenario is a parsed scenario file: a fixed set of sections, each holding
// string values in insertion order.
type Scenario struct {
	sections map[Section]*group
}

type group struct {
	keys   []string
	values map[string]string
}

// New returns an empty scenario with every section present.
func New() *Scenario {
	sc := &Scenario{sections: make(map[Section]*group, len(Sections))}
	for _, s := range Sections {
		sc.sections[s] = &group{values: make(map[string]string)}
	}
	return sc
}

// Lookup returns the value stored for key in section.
func (sc *Scenario) Lookup(section Section, key string) (string, bool) {
	g, ok := sc.sections[section]
	if !ok {
		return "", false
	}
	v, ok := g.values[key]
	return v, ok
}

// Get returns the stored value, or def when the key is absent. A key that is
// present with an empty value returns the empty string.
func (sc *Scenario) Get(section Section, key, def string) string {
	if v, ok := sc.Lookup(section, key); ok {
		return v
	}
	return def
}

// Set stores a value, keeping the key's original position if it exists.
func (sc *Scenario) Set(section Section, key, value string) {
	g, ok := sc.sections[section]
	if !ok {
		return
	}
	if _, exists := g.values[key]; !exists {
		g.keys = append(g.keys, key)
	}
	g.values[key] = value
}

// Delete removes a key from a section.
func (sc *Scenario) Delete(section Section, key string) {
	g, ok := sc.sections[section]
	if !ok {
		return
	}
	if _, exists := g.values[key]; !exists {
		return
	}
	delete(g.values, key)
	for i, k := range g.keys {
		if k == key {
			g.keys = append(g.keys[:i], g.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys of a section in insertion order.
func (sc *Scenario) Keys(section Section) []string {
	g, ok := sc.sections[section]
	if !ok {
		return nil
	}
	out := make([]string, len(g.keys))
	copy(out, g.keys)
	return out
}

// Map returns a copy of the scenario as nested maps keyed by section name.
func (sc *Scenario) Map() map[string]map[string]string {
	out := make(map[string]map[string]string, len(Sections))
	for _, s := range Sections {
		m := make(map[string]string, len(sc.sections[s].keys))
		for _, k := range sc.sections[s].keys {
			m[k] = sc.sections[s].values[k]
		}
		out[string(s)] = m
	}
	return out
}

// Clone returns a deep copy.
func (sc *Scenario) Clone() *Scenario {
	cp := New()
	for _, s := range Sections {
		for _, k := range sc.sections[s].keys {
			cp.Set(s, k, sc.sections[s].values[k])
		}
	}
	return cp
}

// sectionForHeader resolves a banner line to a section. Order matters:
// "IMPULSIVE BURN 2" must be tested before "IMPULSIVE BURN".
func sectionForHeader(line string) (Section, bool) {
	switch {
	case strings.Contains(line, "GENERAL"):
		return SectionGeneral, true
	case strings.Contains(line, "SPACECRAFT"):
		return SectionSpacecraft, true
	case strings.Contains(line, "TIEMPO"):
		return SectionTime, true
	case strings.Contains(line, "PROPAGATE"):
		return SectionPropagate, true
	case strings.Contains(line, "IMPULSIVE BURN 2"):
		return SectionBurn2, true
	case strings.Contains(line, "IMPULSIVE BURN"):
		return SectionBurn1, true
	case strings.Contains(line, "REPORTFILE"):
		return SectionReportFile, true
	default:
		return "", false
	}
}
