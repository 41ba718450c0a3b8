package policy

// GetBuiltinPolicies returns all built-in mission lint policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		scenarioSchemaPolicy(),
		missionTimingPolicy(),
		burnPlanPolicy(),
		propagatorStepsPolicy(),
		orbitStatePolicy(),
		forceModelPolicy(),
	}
}

func builtin(name, description string, severity Severity, tags []string, src string) Policy {
	return Policy{
		Name:        name,
		Description: description,
		Severity:    severity,
		Enabled:     true,
		Builtin:     true,
		Tags:        tags,
		Rego:        src,
	}
}

// scenarioSchemaPolicy turns schema rejections into violations.
func scenarioSchemaPolicy() Policy {
	return builtin("scenario-schema",
		"Reports scenario values outside the form's vocabulary or not parseable as numbers",
		SeverityError, []string{"schema"},
		`package gmatflow.lint.schema

import rego.v1

deny contains violation if {
	some err in input.schema_errors
	violation := {
		"message": err.message,
		"severity": "error",
		"field": err.path,
	}
}
`)
}

// missionTimingPolicy flags propagation spans that fell back to one day.
func missionTimingPolicy() Policy {
	return builtin("mission-timing",
		"Warns when the propagation span could not be derived from the start and end dates",
		SeverityWarning, []string{"time"},
		`package gmatflow.lint.timing

import rego.v1

deny contains violation if {
	not input.mission.date_only
	violation := {
		"message": sprintf("propagation span defaulted to %v day(s): start '%s' and end '%s' are not two ordered dates", [input.mission.duration_days, input.mission.start_input, input.mission.end_input]),
		"severity": "warning",
		"field": "time",
	}
}
`)
}

// burnPlanPolicy checks burn timing and size.
func burnPlanPolicy() Policy {
	return builtin("burn-plan",
		"Checks that impulsive burns fire inside the propagation span with a plausible delta-v",
		SeverityWarning, []string{"burns"},
		`package gmatflow.lint.burns

import rego.v1

deny contains violation if {
	some burn in input.mission.burns
	burn.scheduled
	is_number(burn.requested_time)
	burn.requested_time > input.mission.duration_days
	violation := {
		"message": sprintf("burn at day %v is after the end of propagation and was moved to day %v", [burn.requested_time, burn.time]),
		"severity": "warning",
		"field": burn.name,
	}
}

deny contains violation if {
	some burn in input.mission.burns
	burn.scheduled
	is_number(burn.requested_time)
	burn.requested_time < 0
	violation := {
		"message": sprintf("burn at day %v is before the start of propagation and was moved to day 0", [burn.requested_time]),
		"severity": "warning",
		"field": burn.name,
	}
}

deny contains violation if {
	some burn in input.mission.burns
	burn.scheduled
	not is_number(burn.requested_time)
	violation := {
		"message": "burn time is not a finite number and was moved to the end of propagation",
		"severity": "warning",
		"field": burn.name,
	}
}

deny contains violation if {
	some burn in input.mission.burns
	burn.active
	not burn.scheduled
	violation := {
		"message": "burn has a delta-v but no burn time and never fires",
		"severity": "warning",
		"field": burn.name,
	}
}

deny contains violation if {
	some burn in input.mission.burns
	not burn.active
	burn.time_input != ""
	violation := {
		"message": "burn has a time but a zero delta-v and is ignored",
		"severity": "info",
		"field": burn.name,
	}
}

deny contains violation if {
	some burn in input.mission.burns
	burn.active
	[a, b, c] := burn.delta_v
	is_number(a)
	is_number(b)
	is_number(c)
	((a * a) + (b * b)) + (c * c) > 100
	violation := {
		"message": sprintf("delta-v (%v, %v, %v) exceeds 10 km/s", [a, b, c]),
		"severity": "warning",
		"field": burn.name,
	}
}
`)
}

// propagatorStepsPolicy checks the integrator step bounds.
func propagatorStepsPolicy() Policy {
	return builtin("propagator-steps",
		"Checks integrator step bounds and accuracy",
		SeverityError, []string{"propagator"},
		`package gmatflow.lint.propagator

import rego.v1

prop := input.mission.propagator

deny contains violation if {
	prop.min_step > prop.max_step
	violation := {
		"message": sprintf("minimum step %v s exceeds maximum step %v s", [prop.min_step, prop.max_step]),
		"severity": "error",
		"field": "propagate",
	}
}

deny contains violation if {
	prop.min_step <= prop.max_step
	not initial_step_in_range
	violation := {
		"message": sprintf("initial step %v s is outside [%v, %v]", [prop.initial_step, prop.min_step, prop.max_step]),
		"severity": "warning",
		"field": "propagate",
	}
}

deny contains violation if {
	prop.accuracy > 0.01
	violation := {
		"message": sprintf("accuracy %v is loose and may give an unreliable trajectory", [prop.accuracy]),
		"severity": "warning",
		"field": "propagate",
	}
}

initial_step_in_range if {
	prop.initial_step >= prop.min_step
	prop.initial_step <= prop.max_step
}
`)
}

// orbitStatePolicy checks that the initial state is a bound orbit above
// the central body's surface.
func orbitStatePolicy() Policy {
	return builtin("orbit-state",
		"Checks the initial state for non-finite values, sub-surface positions and open orbits",
		SeverityError, []string{"orbit"},
		`package gmatflow.lint.orbit

import rego.v1

# Mean equatorial radii in km.
radii := {
	"Earth": 6378.1363,
	"Luna": 1737.4,
	"Mars": 3396.19,
	"Venus": 6051.8,
	"Mercury": 2439.7,
	"Jupiter": 71492,
	"Saturn": 60268,
	"Uranus": 25559,
	"Neptune": 24764,
	"Sun": 695700,
}

deny contains violation if {
	some i, v in input.mission.state
	not is_number(v)
	violation := {
		"message": sprintf("state element %d is not a finite number", [i]),
		"severity": "error",
		"field": "spacecraft",
	}
}

deny contains violation if {
	input.mission.state_type == "Cartesian"
	[x, y, z, _, _, _] := input.mission.state
	is_number(x)
	is_number(y)
	is_number(z)
	radius := radii[input.mission.central_body]
	((x * x) + (y * y)) + (z * z) < radius * radius
	violation := {
		"message": sprintf("initial position is inside %s (radius %v km)", [input.mission.central_body, radius]),
		"severity": "error",
		"field": "spacecraft",
	}
}

deny contains violation if {
	input.mission.state_type == "Keplerian"
	[sma, ecc, _, _, _, _] := input.mission.state
	is_number(sma)
	ecc >= 0
	ecc < 1
	radius := radii[input.mission.central_body]
	sma * (1 - ecc) < radius
	violation := {
		"message": sprintf("periapsis %v km is below the surface of %s (radius %v km)", [sma * (1 - ecc), input.mission.central_body, radius]),
		"severity": "error",
		"field": "spacecraft",
	}
}

deny contains violation if {
	input.mission.state_type == "Keplerian"
	ecc := input.mission.state[1]
	is_number(ecc)
	ecc < 0
	violation := {
		"message": sprintf("eccentricity %v is negative", [ecc]),
		"severity": "error",
		"field": "spacecraft",
	}
}

deny contains violation if {
	input.mission.state_type == "Keplerian"
	ecc := input.mission.state[1]
	ecc >= 1
	violation := {
		"message": sprintf("eccentricity %v describes an open orbit", [ecc]),
		"severity": "warning",
		"field": "spacecraft",
	}
}
`)
}

// forceModelPolicy reports form settings the script cannot honour.
func forceModelPolicy() Policy {
	return builtin("force-model",
		"Reports force model settings that are dropped from the script",
		SeverityWarning, []string{"force-model"},
		`package gmatflow.lint.forces

import rego.v1

fm := input.mission.force_model

deny contains violation if {
	fm.central_body != input.mission.central_body
	violation := {
		"message": sprintf("force model is centred on %s but the spacecraft state is given around %s", [fm.central_body, input.mission.central_body]),
		"severity": "warning",
		"field": "propagate",
	}
}

deny contains violation if {
	input.mission.extended
	fm.central_body != "Earth"
	not fm.gravity_model in {"", "None"}
	violation := {
		"message": sprintf("gravity model %s only applies to Earth and is ignored", [fm.gravity_model]),
		"severity": "warning",
		"field": "propagate",
	}
}

deny contains violation if {
	input.mission.extended
	fm.central_body != "Earth"
	not fm.atmosphere_input in {"", "None"}
	violation := {
		"message": sprintf("atmosphere %s only applies to Earth and is ignored", [fm.atmosphere_input]),
		"severity": "warning",
		"field": "propagate",
	}
}

deny contains violation if {
	not input.mission.extended
	some key in ["Modelo gravitatorio", "Atmosfera"]
	value := input.scenario.propagate[key]
	not value in {"", "None"}
	violation := {
		"message": sprintf("%s '%s' is only written in extended mode", [key, value]),
		"severity": "info",
		"field": "propagate",
	}
}
`)
}
