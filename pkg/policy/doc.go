// Package policy lints resolved missions with Open Policy Agent (OPA).
//
// Every policy is a Rego module whose package defines a deny set. Entries
// are either message strings or objects with message, severity and field
// keys. The engine evaluates each enabled policy against an Input holding
// the resolved mission, the raw scenario values and the schema errors.
//
// # Built-in policies
//
//  1. scenario-schema - schema rejections as errors
//  2. mission-timing - propagation span fell back to one day
//  3. burn-plan - burns moved into the propagation span, never fired or oversized
//  4. propagator-steps - inconsistent step bounds and loose accuracy
//  5. orbit-state - non-finite state, sub-surface positions, open orbits
//  6. force-model - settings the script cannot honour
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies"}); err != nil {
//	    return err
//	}
//
//	mission := transpiler.Resolve(sc, transpiler.Options{})
//	result, err := eng.Evaluate(ctx, policy.NewInput(sc, mission, schema.Validate(sc)))
//	if err != nil {
//	    return err
//	}
//	if result.HasErrors() {
//	    // error or critical violations
//	}
//
// # Custom policies
//
// User policies live in .rego files named after the policy:
//
//	# Keeps missions short for quick-look runs.
//	# severity: error
//	package custom.quicklook
//
//	import rego.v1
//
//	deny contains msg if {
//	    input.mission.duration_days > 30
//	    msg := "quick-look missions must not exceed 30 days"
//	}
//
// Engine.Watch reloads them when the files change.
package policy
