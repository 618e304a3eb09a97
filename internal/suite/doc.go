// Package suite runs scenario files against harnessed pages.
//
// A scenario names a page, an optional timeline of mutations applied to it on
// wall-clock delays, and a list of snippets evaluated in order. Each step's
// harness result is checked against its expectations; mismatches are
// collected rather than stopping the run.
//
// Scenario files are YAML (strict, unknown fields rejected) or CUE. Reports
// can be snapshotted and compared against golden files.
package suite
