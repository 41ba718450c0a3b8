package scenario

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// FieldError describes a scenario value rejected by the schema.
type FieldError struct {
	// Path is the dotted section.key path, e.g. "propagate.Paso minimo".
	Path string `json:"path"`

	// Message is the CUE diagnostic.
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Schema validates scenario values against the form's vocabulary: known
// bodies, frames and integrators, and numeric fields that parse with either
// decimal separator.
type Schema struct {
	mu         sync.Mutex
	ctx        *cue.Context
	definition cue.Value
}

// NewSchema compiles the built-in scenario schema.
func NewSchema() (*Schema, error) {
	return NewSchemaFromSource(builtinScenarioSchema)
}

// NewSchemaFromSource compiles a schema that defines #Scenario.
func NewSchemaFromSource(src string) (*Schema, error) {
	ctx := cuecontext.New()

	val := ctx.CompileString(src)
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile scenario schema: %w", err)
	}

	def := val.LookupPath(cue.ParsePath("#Scenario"))
	if !def.Exists() {
		return nil, fmt.Errorf("scenario schema does not define #Scenario")
	}
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("invalid #Scenario definition: %w", err)
	}

	return &Schema{ctx: ctx, definition: def}, nil
}

// Validate unifies the scenario with #Scenario and returns every rejected
// field, sorted by path. A nil slice means the scenario is valid.
func (s *Schema) Validate(sc *Scenario) []FieldError {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.ctx.Encode(sc.Map())
	if err := data.Err(); err != nil {
		return []FieldError{{Message: fmt.Sprintf("failed to encode scenario: %v", err)}}
	}

	unified := s.definition.Unify(data)
	err := unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var out []FieldError
	seen := make(map[string]bool)
	for _, e := range cueerrors.Errors(err) {
		fe := FieldError{
			Path:    strings.Join(e.Path(), "."),
			Message: strings.TrimSpace(e.Error()),
		}
		if seen[fe.String()] {
			continue
		}
		seen[fe.String()] = true
		out = append(out, fe)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

const builtinScenarioSchema = `
#Number:    =~"^[-+]?([0-9]+([.,][0-9]*)?|[.,][0-9]+)([eE][-+]?[0-9]+)?$"
#OptNumber: "" | #Number

#Body: "Tierra" | "Luna" | "Marte" | "Venus" | "Júpiter" | "Jupiter" |
	"Saturno" | "Urano" | "Neptuno" | "Mercurio" | "Sol"

#Integrator: "RungeKutta89" | "PrinceDormand78" | "PrinceDormand45" |
	"RungeKutta68" | "RungeKutta56" | "AdamsBashforthMoulton" |
	"SPK" | "Code500" | "STK" | "CCSDS-OEM" |
	"PrinceDormand853" | "RungeKutta4" | "SPICESGP4"

#Burn: {
	"Sistema de coordenadas"?: "Local" | "EarthMJ2000Eq" | "EarthMJ2000Ec" | "EarthFixed" | "EarthICRF"
	"Origen"?:                 #Body
	"Axes"?:                   "VNB" | "LVLH" | "MJ2000Eq" | "SpacecraftBody"
	"Delta V Element 1"?:      #OptNumber
	"Delta V Element 2"?:      #OptNumber
	"Delta V Element 3"?:      #OptNumber
	"Tiempo burn"?:            #OptNumber
	...
}

#Scenario: {
	general: {
		"Nombre nave"?:           string
		"Cuerpo central"?:        #Body
		"Sistema de referencia"?: "Ecliptico" | "Ecuatorial"
		"Formato de tiempo"?:     "UTC" | "TAI" | "TT"
		...
	}
	spacecraft: {
		"Sistema de coordenadas"?: "Cartesianas" | "Keplerianas"
		"x"?:                      #OptNumber
		"y"?:                      #OptNumber
		"z"?:                      #OptNumber
		"vx"?:                     #OptNumber
		"vy"?:                     #OptNumber
		"vz"?:                     #OptNumber
		"SMA"?:                    #OptNumber
		"ECC"?:                    #OptNumber
		"INC"?:                    #OptNumber
		"RAAN"?:                   #OptNumber
		"AOP"?:                    #OptNumber
		"TA"?:                     #OptNumber
		"Masa seca"?:              #OptNumber
		"Masa combustible"?:       #OptNumber
		"Formato epoch"?:          "UTC" | "Julian Dates"
		...
	}
	time: {
		"Fecha inicio"?: string
		"Fecha final"?:  string
		...
	}
	propagate: {
		"Tipo de integrador"?:     "" | #Integrator
		"Tamano de paso inicial"?: #OptNumber
		"Precision (accuracy)"?:   #OptNumber
		"Paso minimo"?:            #OptNumber
		"Paso maximo"?:            #OptNumber
		"Intentos max. paso"?:     #OptNumber
		"Cuerpo central"?:         #Body
		"Cuerpo primario"?:        #Body
		"Modelo gravitatorio"?:    "JGM-2" | "JGM-3" | "EGM-96" | "None"
		"Grado"?:                  #OptNumber
		"Orden"?:                  #OptNumber
		"STM Limit"?:              #OptNumber
		"Atmosfera"?:              "None" | "Jacchia Roberts" | "MSISE90"
		"Modelo de arrastre"?:     "Spherical" | "SPADFile"
		...
	}
	impulsive_burn:   #Burn
	impulsive_burn_2: #Burn
	reportfile: {...}
}
`
