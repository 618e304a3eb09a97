package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/humane/internal/capture"
	"github.com/roach88/humane/internal/store"
	"github.com/roach88/humane/internal/suite"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update   bool   // regenerate golden files
	Filter   string // scenario filter (glob pattern)
	Database string // optional run history database
	Parallel int    // scenarios run at once

	// IDGenerator allows overriding run IDs (for testing).
	// If nil, the store uses UUIDv7Generator.
	IDGenerator store.IDGenerator
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
	RunID  string   `json:"run_id,omitempty"`

	// Report is the full scenario report, absent when it failed to load.
	Report *suite.Report `json:"report,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files",
		Long: `Run every scenario file (.yaml, .yml or .cue) under a directory.

Each scenario loads a page, applies its timed mutations and evaluates its
steps in order, checking each step against its expectations. When a golden
file exists next to the scenario (golden/<name>.golden) the step results
must also match it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, database errors, etc.)

Examples:
  humane test ./scenarios
  humane test ./scenarios --filter "login-*"
  humane test ./scenarios --update
  humane test ./scenarios --db ./runs.db --parallel 4 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record runs in this SQLite database")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 1, "number of scenarios to run at once")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	w := cmd.OutOrStdout()

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	scenarioFiles, err := suite.FindScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(scenarioFiles) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(f, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	var st *store.Store
	if opts.Database != "" {
		var storeOpts []store.Option
		if opts.IDGenerator != nil {
			storeOpts = append(storeOpts, store.WithIDGenerator(opts.IDGenerator))
		}
		st, err = store.Open(opts.Database, storeOpts...)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	logger := f.Logger()
	f.VerboseLog("running %d scenario(s) from %s", len(scenarioFiles), scenariosDir)
	startedAt := time.Now()
	outcomes, err := suite.RunAll(ctx, scenarioFiles, opts.Parallel,
		suite.WithLogger(logger),
		suite.WithNativeConsole(capture.NewSlogConsole(logger)),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "test run interrupted", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(outcomes)),
		Total:     len(outcomes),
	}
	for _, outcome := range outcomes {
		sr := judgeOutcome(outcome, opts.Update)

		if st != nil && outcome.Report != nil {
			run := runFromReport(outcome.Path, outcome.Report, startedAt)
			id, err := st.RecordRun(ctx, run)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to record run", err)
			}
			sr.RunID = id
		}

		if opts.Format != "json" {
			printScenario(w, sr, opts.Update)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(f, result)
	}
	return outputTestText(w, result)
}

// judgeOutcome turns an outcome into a pass/fail result, comparing against
// or updating the golden file.
func judgeOutcome(outcome suite.Outcome, update bool) ScenarioResult {
	sr := ScenarioResult{Name: outcome.Name, File: outcome.Path}
	if outcome.Err != nil {
		sr.Errors = []string{outcome.Err.Error()}
		return sr
	}
	report := outcome.Report
	sr.Report = report
	sr.Pass = report.Pass
	sr.Errors = append(sr.Errors, report.Errors...)

	if update {
		if err := suite.UpdateGolden(outcome.Path, report); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
		}
		return sr
	}

	match, found, err := suite.CompareGolden(outcome.Path, report)
	switch {
	case err != nil:
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("golden comparison failed: %v", err))
	case found && !match:
		sr.Pass = false
		sr.Errors = append(sr.Errors, "step results do not match golden file (run with --update to regenerate)")
	}
	return sr
}

// runFromReport converts a scenario report into a history record.
func runFromReport(path string, r *suite.Report, startedAt time.Time) store.Run {
	run := store.Run{
		Scenario:  r.Scenario,
		Path:      path,
		Pass:      r.Pass,
		Errors:    r.Errors,
		Duration:  r.Duration,
		StartedAt: startedAt,
		Steps:     make([]store.Step, len(r.Steps)),
	}
	for i, step := range r.Steps {
		run.Steps[i] = store.Step{
			Name:       step.Name,
			Pass:       step.Pass,
			HumaneErrs: step.HumaneErrs,
			Response:   step.Response,
			Logs:       step.Logs,
			Error:      step.Error,
		}
	}
	return run
}

func printScenario(w io.Writer, sr ScenarioResult, update bool) {
	mark := "✓"
	if !sr.Pass {
		mark = "✗"
	}
	suffix := ""
	if update && sr.Report != nil {
		suffix = " (golden updated)"
	}
	fmt.Fprintf(w, "%s %s%s\n", mark, sr.Name, suffix)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(f *OutputFormatter, result TestResult) error {
	if result.Failed == 0 {
		return f.Success(result)
	}

	message := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := f.Failure(CodeTestFailed, message, result); err != nil {
		return err
	}
	// Test failures = exit code 1
	return NewExitError(ExitFailure, message)
}

// outputTestText outputs the test summary as text.
func outputTestText(w io.Writer, result TestResult) error {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
