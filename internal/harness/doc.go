// Package harness runs a test script against a live document and reports a
// structured result to the driver that invoked it.
//
// A Harness is created per invocation. It exposes the primitives a script
// uses:
//
//   - AssertEq: soft strict-equality assertion; mismatches are collected, the
//     script keeps running
//   - WaitFor: bounded polling of a query until it yields a truthy value
//   - QuerySelector / QuerySelectorAll: WaitFor over live DOM queries, with
//     timeouts relabeled to name the selector
//
// Run is the execution wrapper. It invokes the script, classifies any failure
// and assembles the Result payload:
//
//	{"humane_errs": [...], "inner_response": <value>, "logs": "..."}
//
// # Failure Classification
//
// Failures travel as *Failure values with a Kind:
//
//   - assertion: recorded directly by AssertEq, never returned
//   - timeout: returned by the polling primitives; each wrapping primitive
//     replaces the message with its own, so the report names the most
//     specific operation that timed out
//   - script: anything else the script returns or panics with; reported as
//     "JavaScript error: <text>"
//
// Classification uses errors.As, so a Failure wrapped by the script with
// fmt.Errorf("...: %w", err) keeps its kind.
//
// # Polling
//
// WaitFor runs the query immediately, then sleeps PollInterval between
// attempts. The deadline is checked after each re-run, never before, so a
// query always runs once more after the deadline has technically passed:
// timeout latency is bounded by timeout + PollInterval + one query, not by
// timeout alone. Existing scripts depend on that latency; keep it.
//
// # Concurrency
//
// A Harness serves one invocation at a time. The sleep inside WaitFor is the
// only suspension point; while it sleeps, other goroutines are free to mutate
// the document the query reads.
package harness
