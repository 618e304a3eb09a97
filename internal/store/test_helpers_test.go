package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a passing run with one step.
func createTestRun(id, scenario string) Run {
	logs := "checking"
	return Run{
		ID:        id,
		Scenario:  scenario,
		Path:      "scenarios/" + scenario + ".yaml",
		Pass:      true,
		Errors:    []string{},
		Duration:  15 * time.Millisecond,
		StartedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Steps: []Step{
			{Name: "step 1", Pass: true, HumaneErrs: []string{}, Response: []byte(`{"n":1}`)},
			{Name: "step 2", Pass: true, HumaneErrs: []string{"Equality Assertion failed. Left: 1, Right: 2"}, Logs: &logs},
		},
	}
}
