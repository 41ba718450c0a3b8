package policy

import (
	"time"

	"github.com/gmatflow/gmatflow/pkg/scenario"
	"github.com/gmatflow/gmatflow/pkg/transpiler"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for values that were adjusted or look suspicious.
	SeverityWarning Severity = "warning"

	// SeverityError is for missions the engine will reject or mis-propagate.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// Rank orders severities from info (0) to critical (3). Unknown values
// rank as warnings.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return severityRank[SeverityWarning]
}

// Blocking reports whether the severity fails a strict run.
func (s Severity) Blocking() bool {
	return s.Rank() >= severityRank[SeverityError]
}

// Policy represents a lint rule set with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name" yaml:"name"`

	// Description provides a human-readable description.
	Description string `json:"description" yaml:"description"`

	// Rego contains the Rego policy code. Violations are read from the
	// package's deny set.
	Rego string `json:"rego" yaml:"-"`

	// Severity is the default severity for violations that do not set one.
	Severity Severity `json:"severity" yaml:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Builtin is set for policies shipped with gmatflow.
	Builtin bool `json:"builtin" yaml:"builtin"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Metadata contains additional policy metadata, such as the source file.
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// UpdatedAt is when the policy was last loaded.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Violation is a single lint finding.
type Violation struct {
	// Policy is the name of the policy that produced the violation.
	Policy string `json:"policy" yaml:"policy"`

	// Message is a human-readable description.
	Message string `json:"message" yaml:"message"`

	// Severity is the violation severity.
	Severity Severity `json:"severity" yaml:"severity"`

	// Field names the scenario field or mission element concerned.
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
}

func (v Violation) String() string {
	s := "[" + string(v.Severity) + "] " + v.Policy + ": "
	if v.Field != "" {
		s += v.Field + ": "
	}
	return s + v.Message
}

// Result is the outcome of evaluating every enabled policy.
type Result struct {
	// Violations are sorted by descending severity.
	Violations []Violation `json:"violations" yaml:"violations"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	// Evaluated lists the policies that ran.
	Evaluated []string `json:"evaluated" yaml:"evaluated"`

	// EvaluatedAt is when evaluation finished.
	EvaluatedAt time.Time `json:"evaluated_at" yaml:"evaluated_at"`
}

// HasErrors reports whether any violation blocks a strict run.
func (r *Result) HasErrors() bool {
	for _, v := range r.Violations {
		if v.Severity.Blocking() {
			return true
		}
	}
	return false
}

// Count returns the number of violations with the given severity.
func (r *Result) Count(s Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == s {
			n++
		}
	}
	return n
}

// Input is the document policies see as input.
type Input struct {
	// Mission is the resolved mission. Non-finite numbers appear as null.
	Mission map[string]interface{} `json:"mission"`

	// Scenario holds the raw scenario values keyed by section and key.
	Scenario map[string]map[string]string `json:"scenario"`

	// SchemaErrors are the values rejected by the scenario schema.
	SchemaErrors []scenario.FieldError `json:"schema_errors"`
}

// NewInput builds the policy input for a scenario and its resolved mission.
func NewInput(sc *scenario.Scenario, m *transpiler.Mission, schemaErrors []scenario.FieldError) *Input {
	if schemaErrors == nil {
		schemaErrors = []scenario.FieldError{}
	}
	return &Input{
		Mission:      m.Document(),
		Scenario:     sc.Map(),
		SchemaErrors: schemaErrors,
	}
}
