package suite

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/humane/internal/harness"
)

// Expectation fields, used to categorize failures.
const (
	ExpectPass          = "pass"
	ExpectErrors        = "errors"
	ExpectErrorsContain = "errors_contain"
	ExpectResponse      = "response"
	ExpectLogsContain   = "logs_contain"
)

// ExpectationError is returned when a step result does not match its
// expectations.
type ExpectationError struct {
	Field    string // Expectation field for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	return fmt.Sprintf("expectation failed: %s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// CheckExpectations compares result with want and returns every mismatch.
// Checks are soft: one failing field does not hide the others.
func CheckExpectations(want *Expect, result *harness.Result) []error {
	if want == nil {
		return nil
	}
	var errs []error

	if want.Pass != nil && *want.Pass != result.Passed() {
		expected, actual := "no humane errors", fmt.Sprintf("%q", result.HumaneErrs)
		if !*want.Pass {
			expected, actual = "at least one humane error", "none"
		}
		errs = append(errs, &ExpectationError{Field: ExpectPass, Expected: expected, Actual: actual})
	}

	if len(want.Errors) > 0 && !reflect.DeepEqual(want.Errors, result.HumaneErrs) {
		errs = append(errs, &ExpectationError{
			Field:    ExpectErrors,
			Expected: fmt.Sprintf("%q", want.Errors),
			Actual:   fmt.Sprintf("%q", result.HumaneErrs),
		})
	}

	for _, sub := range want.ErrorsContain {
		if !anyContains(result.HumaneErrs, sub) {
			errs = append(errs, &ExpectationError{
				Field:    ExpectErrorsContain,
				Expected: fmt.Sprintf("an error containing %q", sub),
				Actual:   fmt.Sprintf("%q", result.HumaneErrs),
			})
		}
	}

	if want.Response != nil {
		if err := checkResponse(want.Response, result); err != nil {
			errs = append(errs, err)
		}
	}

	logs := result.LogText()
	for _, sub := range want.LogsContain {
		if !strings.Contains(logs, sub) {
			errs = append(errs, &ExpectationError{
				Field:    ExpectLogsContain,
				Expected: fmt.Sprintf("logs containing %q", sub),
				Actual:   fmt.Sprintf("%q", logs),
			})
		}
	}

	return errs
}

// checkResponse compares both sides after a JSON round trip, so numbers
// decoded from a scenario file match numbers produced by the script.
func checkResponse(want any, result *harness.Result) error {
	expected, err := normalizeJSON(want)
	if err != nil {
		return fmt.Errorf("expected response is not JSON-compatible: %w", err)
	}

	var actual any
	raw := json.RawMessage("null")
	if result.InnerResponse != nil {
		if r, ok := result.InnerResponse.(json.RawMessage); ok {
			raw = r
		} else if raw, err = json.Marshal(result.InnerResponse); err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
	}
	if err := json.Unmarshal(raw, &actual); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !reflect.DeepEqual(expected, actual) {
		return &ExpectationError{
			Field:    ExpectResponse,
			Expected: harness.Render(expected),
			Actual:   harness.Render(actual),
		}
	}
	return nil
}

func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func anyContains(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
