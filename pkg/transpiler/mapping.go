package transpiler

import "strings"

var bodies = map[string]string{
	"Tierra":   "Earth",
	"Luna":     "Luna",
	"Marte":    "Mars",
	"Venus":    "Venus",
	"Júpiter":  "Jupiter",
	"Jupiter":  "Jupiter",
	"Saturno":  "Saturn",
	"Urano":    "Uranus",
	"Neptuno":  "Neptune",
	"Mercurio": "Mercury",
	"Sol":      "Sun",
}

// MapBody translates a body name from the scenario form into the engine's
// name. Unknown or empty names map to Earth.
func MapBody(name string) string {
	if en, ok := bodies[name]; ok {
		return en
	}
	return "Earth"
}

// MapCoordSystem returns the body-centred MJ2000 system for the reference
// plane: ecliptic when reference mentions "eclip", equatorial otherwise.
func MapCoordSystem(bodyEN, reference string) string {
	return bodyEN + AxesFor(reference)
}

// AxesFor returns the axes type matching MapCoordSystem.
func AxesFor(reference string) string {
	if strings.Contains(strings.ToLower(reference), "eclip") {
		return "MJ2000Ec"
	}
	return "MJ2000Eq"
}

// MapTimeFormat returns the Gregorian date format for a time scale.
func MapTimeFormat(scale string) string {
	switch scale {
	case "TAI":
		return "TAIGregorian"
	case "TT":
		return "TTGregorian"
	default:
		return "UTCGregorian"
	}
}

// mapModJulianFormat is the ModJulian counterpart of MapTimeFormat.
func mapModJulianFormat(scale string) string {
	switch scale {
	case "TAI":
		return "TAIModJulian"
	case "TT":
		return "TTModJulian"
	default:
		return "UTCModJulian"
	}
}

// SanitizeName turns a free-form craft name into an engine identifier:
// spaces become underscores and anything outside [A-Za-z0-9_] is dropped.
// An empty result yields "Sat".
func SanitizeName(name string) string {
	const fallback = "Sat"

	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}

	var b strings.Builder
	for _, r := range strings.ReplaceAll(name, " ", "_") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	return b.String()
}

var reportVariables = map[string]string{
	"Elapsed Days":                  "ElapsedDays",
	"Elapsed Seconds":               "ElapsedSecs",
	"Posicion X":                    "X",
	"Posicion Y":                    "Y",
	"Posicion Z":                    "Z",
	"Velocidad VX":                  "VX",
	"Velocidad VY":                  "VY",
	"Velocidad VZ":                  "VZ",
	"Semieje mayor (SMA)":           "SMA",
	"Excentricidad (ECC)":           "ECC",
	"Inclinacion (INC)":             "INC",
	"RAAN":                          "RAAN",
	"Argumento del periapsis (AOP)": "AOP",
	"Anomalia verdadera (TA)":       "TA",
}

// MapReportVariable converts a report column label from the form into a
// spacecraft parameter such as "Sat.SMA". It reports false for labels it
// does not know.
func MapReportVariable(label, craft string) (string, bool) {
	param, ok := reportVariables[strings.TrimSpace(label)]
	if !ok {
		return "", false
	}
	return craft + "." + param, true
}
