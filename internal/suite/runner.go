package suite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/humane/internal/capture"
	"github.com/roach88/humane/internal/dom"
	"github.com/roach88/humane/internal/harness"
	"github.com/roach88/humane/internal/jsenv"
)

// Report is the outcome of running one scenario.
type Report struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Pass is true when every step met its expectations, no step failed to
	// produce a result and every mutation applied.
	Pass bool `json:"pass"`

	// Steps holds one entry per executed step.
	Steps []StepResult `json:"steps"`

	// Errors lists expectation and execution failures.
	Errors []string `json:"errors,omitempty"`

	// Console is every line the page captured.
	Console []string `json:"console"`

	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration_ns"`
}

// StepResult is one step's harness result plus its own failures.
type StepResult struct {
	Name       string          `json:"name"`
	Pass       bool            `json:"pass"`
	HumaneErrs []string        `json:"humane_errs"`
	Response   json.RawMessage `json:"response,omitempty"`
	Logs       *string         `json:"logs,omitempty"`

	// Error is set when the snippet produced no result at all.
	Error string `json:"error,omitempty"`

	// Failures are the expectation mismatches for this step.
	Failures []string `json:"failures,omitempty"`
}

// NewReport creates a new passing report.
func NewReport(name string) *Report {
	return &Report{
		Scenario: name,
		Pass:     true,
		Steps:    []StepResult{},
		Errors:   []string{},
		Console:  []string{},
	}
}

// AddError adds a failure and marks the report as failed.
func (r *Report) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
	clock  harness.Clock
	native capture.Console
}

// WithLogger sets the logger for run diagnostics and the page's console.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// WithClock replaces the polling clock. Mutations still fire on wall time.
func WithClock(clock harness.Clock) Option {
	return func(c *runConfig) { c.clock = clock }
}

// WithNativeConsole replaces the console the page forwards to.
func WithNativeConsole(console capture.Console) Option {
	return func(c *runConfig) { c.native = console }
}

// Run executes a scenario against a fresh page.
//
// Execution flow:
//  1. Parse the page and create the script context
//  2. Start the mutation timeline
//  3. Evaluate steps in order, checking each against its expectations
//  4. Stop the timeline and report mutations that failed to apply
//
// A step that produces no result is recorded and the remaining steps still
// run. An error is returned only when the page cannot be built or ctx ends.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Report, error) {
	cfg := runConfig{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger.With("scenario", scenario.Name)
	start := time.Now()

	doc, err := dom.ParseString(scenario.Page)
	if err != nil {
		return nil, fmt.Errorf("failed to build page: %w", err)
	}

	var harnessOpts []harness.Option
	if scenario.TimeoutMS > 0 {
		harnessOpts = append(harnessOpts, harness.WithDefaultTimeout(time.Duration(scenario.TimeoutMS)*time.Millisecond))
	}
	if scenario.PollMS > 0 {
		harnessOpts = append(harnessOpts, harness.WithPollInterval(time.Duration(scenario.PollMS)*time.Millisecond))
	}
	if cfg.clock != nil {
		harnessOpts = append(harnessOpts, harness.WithClock(cfg.clock))
	}
	pageOpts := []jsenv.Option{jsenv.WithLogger(logger), jsenv.WithHarnessOptions(harnessOpts...)}
	if cfg.native != nil {
		pageOpts = append(pageOpts, jsenv.WithNativeConsole(cfg.native))
	}
	page := jsenv.New(doc, pageOpts...)

	tl := startTimeline(doc, scenario.Mutations, logger)
	defer tl.stop()

	report := NewReport(scenario.Name)
	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sr := runStep(ctx, page, i, step)
		if !sr.Pass {
			report.Pass = false
		}
		for _, f := range sr.Failures {
			report.AddError(fmt.Sprintf("%s: %s", sr.Name, f))
		}
		if sr.Error != "" {
			report.AddError(fmt.Sprintf("%s: %s", sr.Name, sr.Error))
		}
		report.Steps = append(report.Steps, sr)
		logger.Debug("step finished", "step", sr.Name, "pass", sr.Pass, "errors", len(sr.HumaneErrs))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tl.stop()
	for _, err := range tl.errors() {
		report.AddError(err.Error())
	}

	report.Console = page.Console()
	report.Duration = time.Since(start)
	return report, nil
}

func runStep(ctx context.Context, page *jsenv.Page, index int, step Step) StepResult {
	name := step.Name
	if name == "" {
		name = "step " + strconv.Itoa(index+1)
	}
	sr := StepResult{Name: name, Pass: true, HumaneErrs: []string{}}

	result, err := page.Evaluate(ctx, step.Script)
	if err != nil {
		sr.Pass = false
		sr.Error = err.Error()
		return sr
	}

	sr.HumaneErrs = result.HumaneErrs
	sr.Logs = result.Logs
	if raw, ok := result.InnerResponse.(json.RawMessage); ok {
		sr.Response = raw
	}

	if step.Expect != nil {
		for _, err := range CheckExpectations(step.Expect, result) {
			sr.Failures = append(sr.Failures, err.Error())
		}
	} else if !result.Passed() {
		// Without expectations a step must pass.
		sr.Failures = append(sr.Failures, (&ExpectationError{
			Field:    ExpectPass,
			Expected: "no humane errors",
			Actual:   fmt.Sprintf("%q", result.HumaneErrs),
		}).Error())
	}
	sr.Pass = len(sr.Failures) == 0
	return sr
}

// timeline applies scheduled mutations on their own goroutines.
type timeline struct {
	mu     sync.Mutex
	timers []*time.Timer
	errs   []error
	once   sync.Once
	wg     sync.WaitGroup
}

func startTimeline(doc *dom.Document, mutations []Mutation, logger *slog.Logger) *timeline {
	tl := &timeline{}
	for i, m := range mutations {
		tl.wg.Add(1)
		t := time.AfterFunc(time.Duration(m.AfterMS)*time.Millisecond, func() {
			defer tl.wg.Done()
			n, err := applyMutation(doc, m)
			if err != nil {
				tl.mu.Lock()
				tl.errs = append(tl.errs, fmt.Errorf("mutations[%d]: %w", i, err))
				tl.mu.Unlock()
				return
			}
			logger.Debug("mutation applied", "op", m.Op, "selector", m.Selector, "matched", n)
		})
		tl.timers = append(tl.timers, t)
	}
	return tl
}

// stop cancels pending mutations and waits for running ones.
func (tl *timeline) stop() {
	tl.once.Do(func() {
		for _, t := range tl.timers {
			if t.Stop() {
				tl.wg.Done()
			}
		}
		tl.wg.Wait()
	})
}

func (tl *timeline) errors() []error {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	out := make([]error, len(tl.errs))
	copy(out, tl.errs)
	return out
}

// applyMutation performs one change and returns how many elements matched.
func applyMutation(doc *dom.Document, m Mutation) (int, error) {
	switch m.Op {
	case OpAppend:
		return doc.Append(m.Selector, m.HTML)
	case OpSetHTML:
		return doc.SetHTML(m.Selector, m.HTML)
	case OpRemove:
		return doc.Remove(m.Selector)
	case OpSetAttr:
		return doc.SetAttr(m.Selector, m.Attr, m.Value)
	case OpSetText:
		return doc.SetText(m.Selector, m.Text)
	case OpReplace:
		return 1, doc.Replace(m.HTML)
	default:
		return 0, fmt.Errorf("unknown op %q", m.Op)
	}
}
