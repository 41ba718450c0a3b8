package stores

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// RunStatus represents the status of a pipeline run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// StageStatus represents the status of a stage within a run
type StageStatus string

const (
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run is one execution of the pipeline against a scenario.
type Run struct {
	ID           string     `json:"id" yaml:"id"`
	ScenarioPath string     `json:"scenario_path" yaml:"scenario_path"`
	Status       RunStatus  `json:"status" yaml:"status"`
	StartedAt    time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Error        *string    `json:"error,omitempty" yaml:"error,omitempty"`
	Metadata     string     `json:"metadata" yaml:"metadata"` // JSON blob
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" yaml:"updated_at"`
}

// Stage is one pipeline step executed inside a run.
type Stage struct {
	ID          string      `json:"id" yaml:"id"`
	RunID       string      `json:"run_id" yaml:"run_id"`
	Name        string      `json:"name" yaml:"name"`
	Seq         int         `json:"seq" yaml:"seq"`
	Status      StageStatus `json:"status" yaml:"status"`
	StartedAt   time.Time   `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	DurationMs  int64       `json:"duration_ms" yaml:"duration_ms"`
	Error       *string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// Event represents an append-only log event
type Event struct {
	ID        int64      `json:"id" yaml:"id"`
	RunID     *string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Stage     *string    `json:"stage,omitempty" yaml:"stage,omitempty"`
	Level     EventLevel `json:"level" yaml:"level"`
	Message   string     `json:"message" yaml:"message"`
	Details   *string    `json:"details,omitempty" yaml:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp" yaml:"timestamp"`
}

// Artifact is a file a stage produced, fingerprinted for later comparison.
type Artifact struct {
	ID        string    `json:"id" yaml:"id"`
	RunID     string    `json:"run_id" yaml:"run_id"`
	Stage     string    `json:"stage" yaml:"stage"`
	Kind      string    `json:"kind" yaml:"kind"` // script, report, plot
	Path      string    `json:"path" yaml:"path"`
	SHA256    string    `json:"sha256" yaml:"sha256"`
	Size      int64     `json:"size" yaml:"size"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, err *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Stage operations
	CreateStage(ctx context.Context, stage *Stage) error
	FinishStage(ctx context.Context, id string, status StageStatus, duration time.Duration, err *string) error
	ListStagesByRun(ctx context.Context, runID string) ([]*Stage, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Artifact operations
	RecordArtifact(ctx context.Context, artifact *Artifact) error
	ListArtifactsByRun(ctx context.Context, runID string) ([]*Artifact, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
