package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates a migrated SQLite store in a temporary file
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "gmatflow.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { store.Close() })
	return store
}

func createTestRun(t *testing.T, store *SQLiteStore, id string, startedAt time.Time) *Run {
	t.Helper()

	run := &Run{
		ID:           id,
		ScenarioPath: "data/input/datos_guardados.txt",
		Status:       RunStatusRunning,
		StartedAt:    startedAt,
		Metadata:     `{"extended":false}`,
	}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	return run
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "life.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("health check should fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"runs", "stages", "events", "artifacts"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Migrating twice is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migration failed: %v", err)
	}
}

func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := createTestRun(t, store, "run-001", time.Now().UTC())

	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.ScenarioPath != run.ScenarioPath {
		t.Errorf("expected ScenarioPath %s, got %s", run.ScenarioPath, retrieved.ScenarioPath)
	}
	if retrieved.Status != RunStatusRunning {
		t.Errorf("expected Status %s, got %s", RunStatusRunning, retrieved.Status)
	}
	if retrieved.Metadata != run.Metadata {
		t.Errorf("expected Metadata %s, got %s", run.Metadata, retrieved.Metadata)
	}
	if retrieved.CompletedAt != nil {
		t.Error("a running run should not be completed")
	}

	errMsg := "engine exit code 1"
	if err := store.UpdateRunStatus(ctx, run.ID, RunStatusFailed, &errMsg); err != nil {
		t.Fatalf("failed to update run status: %v", err)
	}

	updated, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get updated run: %v", err)
	}
	if updated.Status != RunStatusFailed {
		t.Errorf("expected Status %s, got %s", RunStatusFailed, updated.Status)
	}
	if updated.Error == nil || *updated.Error != errMsg {
		t.Errorf("expected Error %s, got %v", errMsg, updated.Error)
	}
	if updated.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	if _, err := store.GetRun(ctx, run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.UpdateRunStatus(ctx, "missing", RunStatusCompleted, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateRunStatus: expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteRun: expected ErrNotFound, got %v", err)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		createTestRun(t, store, id, base.Add(time.Duration(i)*time.Hour))
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Errorf("unexpected order: %s, %s", runs[0].ID, runs[1].ID)
	}

	rest, err := store.ListRuns(ctx, 10, 2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != "run-a" {
		t.Errorf("offset page = %v", rest)
	}
}

func TestStageOperations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	run := createTestRun(t, store, "run-stages", time.Now().UTC())

	names := []string{"parse", "lint", "transpile"}
	for i, name := range names {
		stage := &Stage{
			ID:        run.ID + "-" + name,
			RunID:     run.ID,
			Name:      name,
			Seq:       i,
			Status:    StageStatusRunning,
			StartedAt: time.Now().UTC(),
		}
		if err := store.CreateStage(ctx, stage); err != nil {
			t.Fatalf("failed to create stage %s: %v", name, err)
		}
	}

	if err := store.FinishStage(ctx, "run-stages-parse", StageStatusCompleted, 1500*time.Millisecond, nil); err != nil {
		t.Fatalf("failed to finish stage: %v", err)
	}
	errMsg := "violations"
	if err := store.FinishStage(ctx, "run-stages-lint", StageStatusFailed, 0, &errMsg); err != nil {
		t.Fatalf("failed to finish stage: %v", err)
	}
	if err := store.FinishStage(ctx, "missing", StageStatusCompleted, 0, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	stages, err := store.ListStagesByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list stages: %v", err)
	}
	if len(stages) != len(names) {
		t.Fatalf("expected %d stages, got %d", len(names), len(stages))
	}
	for i, s := range stages {
		if s.Name != names[i] {
			t.Errorf("stage %d = %s, want %s", i, s.Name, names[i])
		}
	}

	if stages[0].Status != StageStatusCompleted || stages[0].DurationMs != 1500 || stages[0].CompletedAt == nil {
		t.Errorf("parse stage not finished: %+v", stages[0])
	}
	if stages[1].Error == nil || *stages[1].Error != errMsg {
		t.Errorf("lint stage error = %v", stages[1].Error)
	}
	if stages[2].Status != StageStatusRunning {
		t.Errorf("transpile stage should still be running, got %s", stages[2].Status)
	}

	dup := &Stage{ID: "other", RunID: run.ID, Name: "parse", Status: StageStatusRunning, StartedAt: time.Now().UTC()}
	if err := store.CreateStage(ctx, dup); err == nil {
		t.Error("a stage name should be unique within a run")
	}
}

func TestEventOperations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	run := createTestRun(t, store, "run-events", time.Now().UTC())

	stage := "engine"
	details := `{"exit_code":0}`
	events := []*Event{
		{RunID: &run.ID, Level: EventLevelInfo, Message: "run started"},
		{RunID: &run.ID, Stage: &stage, Level: EventLevelWarning, Message: "duration defaulted"},
		{RunID: &run.ID, Stage: &stage, Level: EventLevelInfo, Message: "engine finished", Details: &details},
		{Level: EventLevelDebug, Message: "unscoped"},
	}
	for _, e := range events {
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
		if e.ID == 0 {
			t.Error("expected event ID to be assigned")
		}
	}

	all, err := store.GetEvents(ctx, &run.ID, nil, 100, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 run events, got %d", len(all))
	}
	if all[0].Message != "run started" || all[2].Message != "engine finished" {
		t.Errorf("events should be in insertion order: %s ... %s", all[0].Message, all[2].Message)
	}
	if all[2].Details == nil || *all[2].Details != details {
		t.Errorf("details lost: %v", all[2].Details)
	}

	warn := EventLevelWarning
	warnings, err := store.GetEvents(ctx, &run.ID, &warn, 100, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Stage == nil || *warnings[0].Stage != stage {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	everything, err := store.GetEvents(ctx, nil, nil, 100, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(everything) != 4 {
		t.Errorf("expected 4 events overall, got %d", len(everything))
	}
}

func TestArtifactOperations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	run := createTestRun(t, store, "run-artifacts", time.Now().UTC())

	artifacts := []*Artifact{
		{ID: "a1", RunID: run.ID, Stage: "transpile", Kind: "script", Path: "data/gmat/demo.script", SHA256: "aa", Size: 1200},
		{ID: "a2", RunID: run.ID, Stage: "engine", Kind: "report", Path: "data/output/DefaultReportFile.txt", SHA256: "bb", Size: 48000},
		{ID: "a3", RunID: run.ID, Stage: "plot", Kind: "plot", Path: "data/plots/orbita_XY.png", SHA256: "cc", Size: 30000},
	}
	for _, a := range artifacts {
		if err := store.RecordArtifact(ctx, a); err != nil {
			t.Fatalf("failed to record artifact: %v", err)
		}
	}

	got, err := store.ListArtifactsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list artifacts: %v", err)
	}
	if len(got) != len(artifacts) {
		t.Fatalf("expected %d artifacts, got %d", len(artifacts), len(got))
	}
	for i, a := range got {
		if a.ID != artifacts[i].ID || a.SHA256 != artifacts[i].SHA256 || a.Size != artifacts[i].Size {
			t.Errorf("artifact %d = %+v", i, a)
		}
	}

	orphan := &Artifact{ID: "a4", RunID: "missing", Stage: "plot", Kind: "plot", Path: "x", SHA256: "dd"}
	if err := store.RecordArtifact(ctx, orphan); err == nil {
		t.Error("an artifact must belong to an existing run")
	}
}

func TestCascadeDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	run := createTestRun(t, store, "run-cascade", time.Now().UTC())

	if err := store.CreateStage(ctx, &Stage{ID: "s1", RunID: run.ID, Name: "parse", Status: StageStatusRunning, StartedAt: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendEvent(ctx, &Event{RunID: &run.ID, Level: EventLevelInfo, Message: "hello"}); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordArtifact(ctx, &Artifact{ID: "a1", RunID: run.ID, Stage: "parse", Kind: "script", Path: "p", SHA256: "h"}); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}

	stages, err := store.ListStagesByRun(ctx, run.ID)
	if err != nil || len(stages) != 0 {
		t.Errorf("stages should be deleted: %v, %v", stages, err)
	}
	events, err := store.GetEvents(ctx, &run.ID, nil, 10, 0)
	if err != nil || len(events) != 0 {
		t.Errorf("events should be deleted: %v, %v", events, err)
	}
	artifacts, err := store.ListArtifactsByRun(ctx, run.ID)
	if err != nil || len(artifacts) != 0 {
		t.Errorf("artifacts should be deleted: %v, %v", artifacts, err)
	}
}
