package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"time"

	"github.com/roach88/humane/internal/dom"
)

// Defaults for polling primitives.
const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultTimeout      = 4000 * time.Millisecond
)

// ErrNoDocument is returned by the selector primitives when the harness was
// created without a document.
var ErrNoDocument = errors.New("no document is available to query")

// Document is the DOM surface the selector primitives poll.
type Document interface {
	QuerySelector(sel string) (*dom.Element, error)
	QuerySelectorAll(sel string) ([]*dom.Element, error)
}

// Query is a zero-argument, re-invocable operation producing an optional
// value. WaitFor calls it once per poll tick and never memoizes the result.
type Query interface {
	Poll(ctx context.Context) (any, error)
}

// QueryFunc adapts a function to Query.
type QueryFunc func(ctx context.Context) (any, error)

// Poll calls f.
func (f QueryFunc) Poll(ctx context.Context) (any, error) {
	return f(ctx)
}

// String names the function, for timeout diagnostics.
func (f QueryFunc) String() string {
	if fn := runtime.FuncForPC(reflect.ValueOf(f).Pointer()); fn != nil {
		return fn.Name()
	}
	return "func"
}

type describedQuery struct {
	fn   QueryFunc
	desc string
}

func (q describedQuery) Poll(ctx context.Context) (any, error) { return q.fn(ctx) }
func (q describedQuery) String() string                        { return q.desc }

// Describe attaches a textual rendering to fn. The rendering appears in the
// timeout message when WaitFor gives up.
func Describe(desc string, fn QueryFunc) Query {
	return describedQuery{fn: fn, desc: desc}
}

func describe(q Query) string {
	if s, ok := q.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", q)
}

// Option configures a Harness.
type Option func(*Harness)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(h *Harness) { h.clock = c }
}

// WithPollInterval sets the delay between polls.
func WithPollInterval(d time.Duration) Option {
	return func(h *Harness) { h.pollInterval = d }
}

// WithDefaultTimeout sets the budget callers use when they have none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(h *Harness) { h.defaultTimeout = d }
}

// WithLogger sets the logger for harness diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Harness holds the primitives and the failure list of one invocation.
//
// A Harness is not safe for concurrent invocations; create one per run.
type Harness struct {
	doc            Document
	clock          Clock
	pollInterval   time.Duration
	defaultTimeout time.Duration
	logger         *slog.Logger
	failures       []*Failure
}

// New creates a harness over doc. doc may be nil for scripts that never query
// the DOM.
func New(doc Document, opts ...Option) *Harness {
	h := &Harness{
		doc:            doc,
		clock:          RealClock{},
		pollInterval:   DefaultPollInterval,
		defaultTimeout: DefaultTimeout,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// DefaultTimeout returns the budget used when a caller supplies none.
func (h *Harness) DefaultTimeout() time.Duration {
	return h.defaultTimeout
}

// Clock returns the clock polls measure and sleep on.
func (h *Harness) Clock() Clock {
	return h.clock
}

// PollInterval returns the delay between polls.
func (h *Harness) PollInterval() time.Duration {
	return h.pollInterval
}

// Errors returns the failure messages recorded so far, in order.
func (h *Harness) Errors() []string {
	out := make([]string, len(h.failures))
	for i, f := range h.failures {
		out[i] = f.Message
	}
	return out
}

// Failures returns the recorded failures, in order.
func (h *Harness) Failures() []*Failure {
	out := make([]*Failure, len(h.failures))
	copy(out, h.failures)
	return out
}

// Record appends a failure to the list reported by Run.
func (h *Harness) Record(f *Failure) {
	h.failures = append(h.failures, f)
	h.logger.Debug("failure recorded", "kind", f.Kind, "op", f.Op, "message", f.Message)
}

// AssertEq compares left and right by strict equality. A mismatch is recorded
// and execution continues; a match has no effect.
func (h *Harness) AssertEq(left, right any) {
	if StrictEqual(left, right) {
		return
	}
	h.Record(&Failure{
		Kind: KindAssertion,
		Op:   "assert_eq",
		Message: fmt.Sprintf("Equality Assertion failed. Left: %s, Right: %s",
			Render(left), Render(right)),
	})
}

// WaitFor polls q until it returns a truthy value or the timeout passes.
//
// The first call happens immediately. While the result is falsy the harness
// sleeps one poll interval, calls q again, and only then checks whether more
// than timeout has elapsed since the start. Errors from q and from ctx are
// returned unchanged. Running out of time returns a timeout Failure.
func (h *Harness) WaitFor(ctx context.Context, q Query, timeout time.Duration) (any, error) {
	return h.drive(ctx, h.Poll(q, timeout))
}

// QuerySelector polls for the first element matching sel. A timeout is
// reported as a querySelector failure naming the selector; other errors,
// such as an invalid selector, pass through unchanged.
func (h *Harness) QuerySelector(ctx context.Context, sel string, timeout time.Duration) (*dom.Element, error) {
	r, err := h.drive(ctx, h.PollSelector(sel, timeout))
	if err != nil {
		return nil, err
	}
	return r.(*dom.Element), nil
}

// QuerySelectorAll polls for a non-empty list of elements matching sel. An
// empty match list counts as no result. Timeouts are relabeled the same way
// as QuerySelector.
func (h *Harness) QuerySelectorAll(ctx context.Context, sel string, timeout time.Duration) ([]*dom.Element, error) {
	r, err := h.drive(ctx, h.PollSelectorAll(sel, timeout))
	if err != nil {
		return nil, err
	}
	return r.([]*dom.Element), nil
}

// drive runs p to completion, sleeping on the harness clock between polls.
func (h *Harness) drive(ctx context.Context, p *Poller) (any, error) {
	for {
		r, err := p.Query().Poll(ctx)
		if err != nil {
			return nil, err
		}
		v, done, err := p.Observe(r)
		if done {
			return v, err
		}
		if err := h.clock.Sleep(ctx, h.pollInterval); err != nil {
			return nil, err
		}
	}
}
