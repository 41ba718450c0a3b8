package scenario

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Encode writes the scenario in the same layout the form produced: one
// banner per section, a blank line between sections, keys in insertion order.
func Encode(w io.Writer, sc *Scenario) error {
	bw := bufio.NewWriter(w)
	for i, s := range Sections {
		if i > 0 {
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(bw, headers[s]); err != nil {
			return err
		}
		g := sc.sections[s]
		for _, k := range g.keys {
			if _, err := fmt.Fprintf(bw, "%s: %s\n", k, g.values[k]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// String renders the scenario as text.
func (sc *Scenario) String() string {
	var b strings.Builder
	_ = Encode(&b, sc)
	return b.String()
}

// WriteFile encodes the scenario to path, creating parent directories.
func WriteFile(path string, sc *Scenario) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create scenario directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create scenario file: %w", err)
	}
	if err := Encode(f, sc); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write scenario: %w", err)
	}
	return f.Close()
}

// Template returns a starter scenario: a circular low Earth orbit propagated
// for one day with both maneuvers disabled.
func Template() *Scenario {
	sc := New()

	sc.Set(SectionGeneral, KeyCraftName, "Sat")
	sc.Set(SectionGeneral, KeyCentralBody, "Tierra")
	sc.Set(SectionGeneral, KeyReferenceFrame, "Ecuatorial")
	sc.Set(SectionGeneral, KeyTimeFormat, "UTC")

	sc.Set(SectionSpacecraft, KeyCoordinateType, "Cartesianas")
	sc.Set(SectionSpacecraft, KeyX, "7000")
	sc.Set(SectionSpacecraft, KeyY, "0")
	sc.Set(SectionSpacecraft, KeyZ, "0")
	sc.Set(SectionSpacecraft, KeyVX, "0")
	sc.Set(SectionSpacecraft, KeyVY, "7.5")
	sc.Set(SectionSpacecraft, KeyVZ, "0")
	sc.Set(SectionSpacecraft, KeyDryMass, "850")
	sc.Set(SectionSpacecraft, KeyFuelMass, "0")
	sc.Set(SectionSpacecraft, KeyEpochFormat, "UTC")

	sc.Set(SectionTime, KeyStartDate, "01 Jan 2030")
	sc.Set(SectionTime, KeyEndDate, "02 Jan 2030")

	sc.Set(SectionPropagate, KeyIntegrator, "RungeKutta89")
	sc.Set(SectionPropagate, KeyInitialStep, "10")
	sc.Set(SectionPropagate, KeyAccuracy, "1e-4")
	sc.Set(SectionPropagate, KeyMinStep, "0.01")
	sc.Set(SectionPropagate, KeyMaxStep, "300")
	sc.Set(SectionPropagate, KeyMaxStepAttempts, "50")
	sc.Set(SectionPropagate, KeyCentralBody, "Tierra")
	sc.Set(SectionPropagate, KeyPrimaryBody, "Tierra")
	sc.Set(SectionPropagate, KeyGravityModel, "None")
	sc.Set(SectionPropagate, KeyGravityDegree, "4")
	sc.Set(SectionPropagate, KeyGravityOrder, "4")
	sc.Set(SectionPropagate, KeySTMLimit, "100")
	sc.Set(SectionPropagate, KeyAtmosphere, "None")
	sc.Set(SectionPropagate, KeyDragModel, "Spherical")

	for _, s := range []Section{SectionBurn1, SectionBurn2} {
		sc.Set(s, KeyBurnFrame, "Local")
		sc.Set(s, KeyBurnOrigin, "Tierra")
		sc.Set(s, KeyBurnAxes, "VNB")
		sc.Set(s, KeyDeltaV1, "0")
		sc.Set(s, KeyDeltaV2, "0")
		sc.Set(s, KeyDeltaV3, "0")
		sc.Set(s, KeyBurnTime, "")
	}

	sc.Set(SectionReportFile, KeyReportName, "ReportFile")

	return sc
}
