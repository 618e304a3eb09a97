package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Result is the payload returned to the driver after one invocation.
type Result struct {
	// HumaneErrs lists failure messages in the order they occurred.
	// Empty (never nil) on full success.
	HumaneErrs []string `json:"humane_errs"`

	// InnerResponse is the value returned by the script. Unset when the
	// script failed or returned nothing.
	InnerResponse any `json:"inner_response,omitempty"`

	// Logs is the ALL buffer joined with newlines, captured when the run
	// finished. Present only when HumaneErrs is non-empty.
	Logs *string `json:"logs,omitempty"`
}

// Passed reports whether no failure was recorded.
func (r *Result) Passed() bool {
	return len(r.HumaneErrs) == 0
}

// LogText returns the captured logs, or "" when none were attached.
func (r *Result) LogText() string {
	if r.Logs == nil {
		return ""
	}
	return *r.Logs
}

// Err returns a *TestFailure when the run failed, nil otherwise.
func (r *Result) Err() error {
	if r.Passed() {
		return nil
	}
	return &TestFailure{Messages: append([]string(nil), r.HumaneErrs...), Logs: r.LogText()}
}

// TestFailure is how a driver reports a failed invocation: every message,
// plus the console output captured up to the failure.
type TestFailure struct {
	Messages []string
	Logs     string
}

// Error implements the error interface.
func (e *TestFailure) Error() string {
	return strings.Join(e.Messages, "\n")
}

// Errors returned by ParseResult for payloads that are not harness results.
var (
	ErrNotObject       = errors.New("JavaScript failed to parse and run")
	ErrUnexpectedValue = errors.New("JavaScript returned an unexpected value")
)

// ParseResult decodes a payload produced by Run, as a driver reading it back
// from the page would. Anything other than an object carrying a humane_errs
// array is rejected.
func ParseResult(data []byte) (*Result, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, ErrNotObject
	}

	errsRaw, ok := raw["humane_errs"]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedValue, string(data))
	}
	var errs []string
	if err := json.Unmarshal(errsRaw, &errs); err != nil || errs == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedValue, string(data))
	}

	result := &Result{HumaneErrs: errs}
	if resp, ok := raw["inner_response"]; ok {
		result.InnerResponse = resp
	}
	if logsRaw, ok := raw["logs"]; ok {
		var logs string
		if err := json.Unmarshal(logsRaw, &logs); err != nil {
			return nil, fmt.Errorf("%w: logs is not a string", ErrUnexpectedValue)
		}
		result.Logs = &logs
	}
	return result, nil
}

// Response returns the script's value for a passing result, or the
// *TestFailure for a failing one. A missing value reads as JSON null.
func (r *Result) Response() (json.RawMessage, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	if r.InnerResponse == nil {
		return json.RawMessage("null"), nil
	}
	if raw, ok := r.InnerResponse.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(r.InnerResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inner response: %w", err)
	}
	return data, nil
}
