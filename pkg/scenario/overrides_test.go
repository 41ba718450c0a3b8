package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOverrides_Apply(t *testing.T) {
	o := NewOverrides(5 * time.Second)
	base := Template()

	script := `
sc = scenario["spacecraft"]
sc["x"] = str(6378 + 622)
scenario["impulsive_burn"]["Delta V Element 1"] = 0.25
scenario["general"]["Nota"] = "nuevo"
scenario["propagate"].pop("Cuerpo primario")
`
	out, err := o.Apply(context.Background(), "test.star", script, base)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if got := out.Get(SectionSpacecraft, KeyX, ""); got != "7000" {
		t.Errorf("x = %q, want 7000", got)
	}
	if got := out.Get(SectionBurn1, KeyDeltaV1, ""); got != "0.25" {
		t.Errorf("dv1 = %q, want 0.25", got)
	}
	if got := out.Get(SectionGeneral, "Nota", ""); got != "nuevo" {
		t.Errorf("new key = %q", got)
	}
	if _, ok := out.Lookup(SectionPropagate, KeyPrimaryBody); ok {
		t.Error("popped key should be removed")
	}

	keys := out.Keys(SectionGeneral)
	if keys[0] != KeyCraftName || keys[len(keys)-1] != "Nota" {
		t.Errorf("key order not preserved: %v", keys)
	}

	// The input is left untouched.
	if got := base.Get(SectionBurn1, KeyDeltaV1, ""); got != "0" {
		t.Errorf("base scenario mutated: %q", got)
	}
}

func TestOverrides_MathModule(t *testing.T) {
	o := NewOverrides(0)
	script := `scenario["spacecraft"]["vy"] = str(math.sqrt(398600.4418 / 7000.0))`

	out, err := o.Apply(context.Background(), "math.star", script, Template())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := out.Get(SectionSpacecraft, KeyVY, ""); !strings.HasPrefix(got, "7.54") {
		t.Errorf("vy = %q, want circular velocity near 7.546", got)
	}
}

func TestOverrides_Errors(t *testing.T) {
	o := NewOverrides(time.Second)

	tests := []struct {
		name   string
		script string
	}{
		{"syntax error", `scenario["general"][`},
		{"runtime error", `fail("boom")`},
		{"section replaced with non-dict", `scenario["general"] = 3`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := o.Apply(context.Background(), "bad.star", tt.script, Template()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// spinScript runs far longer than any test timeout.
const spinScript = `
def spin():
    n = 0
    for i in range(1000000000):
        n += i
    return n

spin()
`

func TestOverrides_Timeout(t *testing.T) {
	o := NewOverrides(50 * time.Millisecond)
	_, err := o.Apply(context.Background(), "spin.star", spinScript, Template())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("unexpected error: %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("timeout should wrap context.DeadlineExceeded: %v", err)
	}
}

func TestOverrides_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := NewOverrides(time.Minute).Apply(ctx, "spin.star", spinScript, Template())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected a cancellation error, got %v", err)
	}
}

func TestOverrides_ApplyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.star")
	if err := os.WriteFile(path, []byte(`scenario["general"]["Nombre nave"] = "Probe"`), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := NewOverrides(0).ApplyFile(context.Background(), path, Template())
	if err != nil {
		t.Fatalf("ApplyFile failed: %v", err)
	}
	if got := out.Get(SectionGeneral, KeyCraftName, ""); got != "Probe" {
		t.Errorf("got %q", got)
	}

	if _, err := NewOverrides(0).ApplyFile(context.Background(), path+".missing", Template()); err == nil {
		t.Error("expected error for missing overrides file")
	}
}
