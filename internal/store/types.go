package store

import (
	"encoding/json"
	"time"
)

// Run is one recorded scenario run.
type Run struct {
	// ID is assigned by RecordRun when empty.
	ID string `json:"id"`

	// Seq is the insertion order. Set by reads, ignored by writes.
	Seq int64 `json:"seq"`

	Scenario  string        `json:"scenario"`
	Path      string        `json:"path,omitempty"`
	Pass      bool          `json:"pass"`
	Errors    []string      `json:"errors"`
	Duration  time.Duration `json:"duration_ns"`
	StartedAt time.Time     `json:"started_at"`

	// StepCount is the number of recorded steps. ListRuns fills it without
	// loading Steps.
	StepCount int `json:"step_count"`

	Steps []Step `json:"steps,omitempty"`
}

// Step is one recorded step of a run.
type Step struct {
	Name       string          `json:"name"`
	Pass       bool            `json:"pass"`
	HumaneErrs []string        `json:"humane_errs"`
	Response   json.RawMessage `json:"response,omitempty"`
	Logs       *string         `json:"logs,omitempty"`
	Error      string          `json:"error,omitempty"`
}
