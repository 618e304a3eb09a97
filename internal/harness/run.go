package harness

import (
	"context"

	"github.com/roach88/humane/internal/capture"
)

// Inner is the script body executed by Run. It may use h's primitives and
// return any value.
type Inner func(ctx context.Context, h *Harness) (any, error)

// Run invokes inner once, classifies any failure and assembles the Result.
//
// A returned error or a panic becomes one entry in HumaneErrs: harness
// failures verbatim, anything else prefixed with ScriptErrorPrefix. When at
// least one failure was recorded, Logs carries the ALL buffer of sink as it
// stands when Run finishes. Run always returns a result.
func Run(ctx context.Context, sink *capture.Buffers, h *Harness, inner Inner) *Result {
	resp, err := invoke(ctx, h, inner)
	if err != nil {
		h.Record(Classify(err))
	}

	result := &Result{HumaneErrs: h.Errors()}
	if err == nil {
		result.InnerResponse = resp
	}
	if len(result.HumaneErrs) > 0 {
		logs := ""
		if sink != nil {
			logs = sink.Joined(capture.ALL)
		}
		result.Logs = &logs
	}

	h.logger.Debug("harness run finished",
		"errors", len(result.HumaneErrs),
		"threw", err != nil,
	)
	return result
}

// invoke calls inner, converting a panic into a script error.
func invoke(ctx context.Context, h *Harness, inner Inner) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = panicError(r)
		}
	}()
	return inner(ctx, h)
}
