package harness

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

// Failure kinds.
const (
	KindAssertion Kind = "assertion"
	KindTimeout   Kind = "timeout"
	KindScript    Kind = "script"
)

// ScriptErrorPrefix marks failures raised by the script itself rather than by
// a harness primitive.
const ScriptErrorPrefix = "JavaScript error: "

// Failure is a classified test failure.
type Failure struct {
	// Kind tells harness-detected failures apart from script crashes.
	Kind Kind

	// Op names the primitive that failed ("assert_eq", "waitFor",
	// "querySelector", "querySelectorAll") or "script".
	Op string

	// Message is the human-readable text reported to the driver.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return f.Message
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error {
	return f.Cause
}

// IsTimeout reports whether err is, or wraps, a polling timeout.
func IsTimeout(err error) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind == KindTimeout
	}
	return false
}

// IsHarnessFailure reports whether err came from a harness primitive.
func IsHarnessFailure(err error) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind == KindAssertion || f.Kind == KindTimeout
	}
	return false
}

// Classify turns any error raised by a script into a Failure.
// Failures keep their message verbatim; everything else is reported as a
// script error.
func Classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{
		Kind:    KindScript,
		Op:      "script",
		Message: ScriptErrorPrefix + err.Error(),
		Cause:   err,
	}
}

// timeoutFailure builds the relabeled timeout for a primitive.
func timeoutFailure(op, message string, cause error) *Failure {
	return &Failure{Kind: KindTimeout, Op: op, Message: message, Cause: cause}
}

// panicError converts a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
