package suite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the stable part of a report, compared against golden files.
// Timing and console output outside steps are left out.
type Snapshot struct {
	Scenario string         `json:"scenario"`
	Pass     bool           `json:"pass"`
	Steps    []StepSnapshot `json:"steps"`
}

// StepSnapshot is the stable part of a step result.
type StepSnapshot struct {
	Name       string          `json:"name"`
	HumaneErrs []string        `json:"humane_errs"`
	Response   json.RawMessage `json:"response,omitempty"`
	Logs       *string         `json:"logs,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// NewSnapshot extracts the snapshot of a report.
func NewSnapshot(r *Report) Snapshot {
	s := Snapshot{Scenario: r.Scenario, Pass: r.Pass, Steps: make([]StepSnapshot, len(r.Steps))}
	for i, step := range r.Steps {
		s.Steps[i] = StepSnapshot{
			Name:       step.Name,
			HumaneErrs: step.HumaneErrs,
			Response:   step.Response,
			Logs:       step.Logs,
			Error:      step.Error,
		}
	}
	return s
}

// MarshalSnapshot renders a report's snapshot as indented JSON with a
// trailing newline. Identical runs produce identical bytes.
func MarshalSnapshot(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewSnapshot(r)); err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// GoldenPath returns the golden file for a scenario file:
// golden/{name}.golden next to it.
func GoldenPath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// UpdateGolden writes the report's snapshot as the golden file.
func UpdateGolden(scenarioFile string, r *Report) error {
	data, err := MarshalSnapshot(r)
	if err != nil {
		return err
	}
	goldenPath := GoldenPath(scenarioFile)
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(goldenPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// CompareGolden reports whether the golden file matches the report. found is
// false when there is no golden file.
func CompareGolden(scenarioFile string, r *Report) (match, found bool, err error) {
	golden, err := os.ReadFile(GoldenPath(scenarioFile))
	if os.IsNotExist(err) {
		return false, false, nil
	}
	if err != nil {
		return false, true, fmt.Errorf("failed to read golden file: %w", err)
	}
	current, err := MarshalSnapshot(r)
	if err != nil {
		return false, true, err
	}
	return bytes.Equal(golden, current), true, nil
}

// RunWithGolden runs a scenario file and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/suite -update
func RunWithGolden(t *testing.T, path string, opts ...Option) (*Report, error) {
	t.Helper()

	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, err
	}
	report, err := Run(t.Context(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, report); err != nil {
		return nil, err
	}
	return report, nil
}

// AssertGolden compares an existing report against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, r *Report) error {
	t.Helper()

	data, err := MarshalSnapshot(r)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
