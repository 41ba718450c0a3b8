package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "short-missions.rego")
	regoContent := `# Flags long missions.
# Keeps plots readable.
package custom.short

import rego.v1

deny contains "too long" if input.mission.duration_days > 365
`
	if err := os.WriteFile(policyFile, []byte(regoContent), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policy, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "short-missions" {
		t.Errorf("Expected name 'short-missions', got '%s'", policy.Name)
	}
	if policy.Description != "Flags long missions. Keeps plots readable." {
		t.Errorf("description = %q", policy.Description)
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("default severity should be warning, got %s", policy.Severity)
	}
	if policy.Rego != regoContent || !policy.Enabled {
		t.Error("policy should carry the source and be enabled")
	}
	if policy.Metadata["source"] != policyFile {
		t.Errorf("source metadata = %v", policy.Metadata["source"])
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "policy.json")
	data, err := json.Marshal(Policy{
		Name:    "json-policy",
		Rego:    "package custom.json\n\nimport rego.v1\n\ndeny contains \"x\" if false\n",
		Enabled: true,
		Tags:    []string{"test"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(policyFile, data, 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if loaded.Name != "json-policy" || loaded.Severity != SeverityWarning {
		t.Errorf("unexpected policy: %+v", loaded)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should default to now")
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "invalid json", file: "bad.json", content: "{not json"},
		{name: "json without name", file: "anon.json", content: `{"rego": "package x"}`},
		{name: "unsupported type", file: "policy.txt", content: "package x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := loader.loadFromFile(context.Background(), path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadFromDirectory_Recursive(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	files := map[string]string{
		filepath.Join(dir, "a.rego"):      "package a\n",
		filepath.Join(nested, "b.rego"):   "package b\n",
		filepath.Join(nested, "bad.json"): "{",
		filepath.Join(dir, "README.md"):   "ignored",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(policies))
	}
}

func TestLoadFromPaths_NonExistent(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	_, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Error("expected an error for a missing path")
	}
}

func TestClearCache(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	path := filepath.Join(t.TempDir(), "cached.rego")
	if err := os.WriteFile(path, []byte("package one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loader.loadFromFile(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("package two\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cached, _ := loader.loadFromFile(context.Background(), path)
	if cached.Rego != "package one\n" {
		t.Error("second load should come from the cache")
	}

	loader.ClearCache()
	fresh, _ := loader.loadFromFile(context.Background(), path)
	if fresh.Rego != "package two\n" {
		t.Error("load after ClearCache should read the file")
	}
}

func TestExtractHeader(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		description string
		severity    Severity
	}{
		{
			name:        "description and severity",
			content:     "# Checks burns.\n# severity: Critical\npackage x\n",
			description: "Checks burns.",
			severity:    SeverityCritical,
		},
		{
			name:        "no header",
			content:     "package x\n# trailing comment\n",
			description: "",
		},
		{
			name:        "stops at first statement",
			content:     "\n# First.\n\npackage x\n# Not part of it.\n",
			description: "First.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			description, severity := extractHeader(tt.content)
			if description != tt.description {
				t.Errorf("description = %q, want %q", description, tt.description)
			}
			if severity != tt.severity {
				t.Errorf("severity = %q, want %q", severity, tt.severity)
			}
		})
	}
}
