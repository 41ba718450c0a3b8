package scenario

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.starlark.net/lib/math"
	"go.starlark.net/starlark"
)

// Overrides applies a Starlark script to a scenario before it is
// transpiled. The script sees the scenario as the global dict `scenario`
// (section name to a dict of key/value strings) and may mutate it in place:
//
//	scenario["spacecraft"]["SMA"] = str(6378.137 + 550)
//	scenario["impulsive_burn"]["Tiempo burn"] = "0.5"
//
// Non-string values are stored using their Starlark string form.
type Overrides struct {
	timeout time.Duration
}

// DefaultOverridesTimeout bounds a script when no timeout is given.
const DefaultOverridesTimeout = 10 * time.Second

// NewOverrides creates an evaluator with the given execution timeout. Zero
// or negative means DefaultOverridesTimeout.
func NewOverrides(timeout time.Duration) *Overrides {
	if timeout <= 0 {
		timeout = DefaultOverridesTimeout
	}
	return &Overrides{timeout: timeout}
}

// ApplyFile runs the script at path against sc.
func (o *Overrides) ApplyFile(ctx context.Context, path string, sc *Scenario) (*Scenario, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides: %w", err)
	}
	return o.Apply(ctx, path, string(src), sc)
}

// Apply runs src against a copy of sc and returns the modified copy.
func (o *Overrides) Apply(ctx context.Context, filename, src string, sc *Scenario) (*Scenario, error) {
	evalCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "scenario-overrides",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	root, err := toStarlarkScenario(sc)
	if err != nil {
		return nil, err
	}
	predeclared := starlark.StringDict{
		"scenario": root,
		"math":     math.Module,
	}

	type outcome struct {
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		_, err := starlark.ExecFile(thread, filename, src, predeclared)
		done <- outcome{err: err}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel("timeout")
		<-done
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("starlark overrides cancelled: %w", err)
		}
		return nil, fmt.Errorf("starlark overrides timed out after %v: %w", o.timeout, evalCtx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("starlark execution failed: %w", res.err)
		}
	}

	return fromStarlarkScenario(root, sc)
}

func toStarlarkScenario(sc *Scenario) (*starlark.Dict, error) {
	root := starlark.NewDict(len(Sections))
	for _, s := range Sections {
		d := starlark.NewDict(len(sc.sections[s].keys))
		for _, k := range sc.sections[s].keys {
			if err := d.SetKey(starlark.String(k), starlark.String(sc.sections[s].values[k])); err != nil {
				return nil, err
			}
		}
		if err := root.SetKey(starlark.String(s), d); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// fromStarlarkScenario reads the mutated dict back. Keys keep their
// original position; new keys are appended in dict iteration order.
func fromStarlarkScenario(root *starlark.Dict, base *Scenario) (*Scenario, error) {
	out := New()
	for _, s := range Sections {
		v, found, err := root.Get(starlark.String(s))
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		d, ok := v.(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("scenario[%q] must be a dict, got %s", s, v.Type())
		}

		for _, k := range base.sections[s].keys {
			if val, found, _ := d.Get(starlark.String(k)); found {
				out.Set(s, k, stringOf(val))
			}
		}
		for _, item := range d.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("scenario[%q] keys must be strings, got %s", s, item[0].Type())
			}
			if _, exists := out.Lookup(s, string(key)); exists {
				continue
			}
			out.Set(s, string(key), stringOf(item[1]))
		}
	}
	return out, nil
}

func stringOf(v starlark.Value) string {
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}
