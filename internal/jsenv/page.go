package jsenv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"golang.org/x/net/html"

	"github.com/roach88/humane/internal/capture"
	"github.com/roach88/humane/internal/dom"
	"github.com/roach88/humane/internal/harness"
)

// Placeholder marks where Harnessed splices a snippet into InnerTemplate.
const Placeholder = "// insert_humane_inner_js"

// InnerTemplate is the async function every snippet runs in.
const InnerTemplate = "(async () => {\n" + Placeholder + "\n})"

// Driver-level errors returned by Evaluate. They mean no Result was produced.
var (
	ErrParse     = errors.New("snippet failed to parse")
	ErrUnsettled = errors.New("snippet did not settle")
)

// flushProgram is run after a job to drain the microtask queue.
var flushProgram = goja.MustCompile("humane-flush.js", "", false)

// Harnessed returns the program source for snippet: the inner template with
// the placeholder replaced. The snippet is inserted literally.
func Harnessed(snippet string) string {
	return strings.Replace(InnerTemplate, Placeholder, snippet, 1)
}

// Option configures a Page.
type Option func(*Page)

// WithLogger sets the logger used for diagnostics and, unless WithNativeConsole
// is given, as the native console.
func WithLogger(l *slog.Logger) Option {
	return func(p *Page) { p.logger = l }
}

// WithNativeConsole replaces the console that intercepted calls forward to.
func WithNativeConsole(c capture.Console) Option {
	return func(p *Page) { p.native = c }
}

// WithHarnessOptions passes options to the Harness created for every
// invocation, such as a clock or a default timeout.
func WithHarnessOptions(opts ...harness.Option) Option {
	return func(p *Page) { p.harnessOpts = append(p.harnessOpts, opts...) }
}

// Page is a script context bound to one document.
type Page struct {
	mu sync.Mutex

	loop        *eventloop.EventLoop
	vm          *goja.Runtime
	doc         *dom.Document
	sink        *capture.Buffers
	native      capture.Console
	console     capture.Console
	logger      *slog.Logger
	harnessOpts []harness.Option
	stringify   goja.Callable

	// Loop-owned state.
	elements    map[*html.Node]*goja.Object
	elementsGen uint64
	timers      int
	current     *invocation
}

// New creates a page over doc and installs the log interceptor. doc may be
// nil, in which case no document global is bound.
func New(doc *dom.Document, opts ...Option) *Page {
	p := &Page{
		loop:     eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		doc:      doc,
		sink:     capture.NewBuffers(),
		logger:   slog.New(slog.DiscardHandler),
		elements: make(map[*html.Node]*goja.Object),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.native == nil {
		p.native = capture.NewSlogConsole(p.logger)
	}
	p.console = capture.Install(p.native, p.sink)

	// No timers exist yet, so Run returns as soon as the globals are bound.
	p.loop.Run(func(vm *goja.Runtime) {
		p.vm = vm
		if fn, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify")); ok {
			p.stringify = fn
		}
		p.installConsole()
		p.installLogEvents()
		p.installTimers()
		if doc != nil {
			p.installDocument()
		}
	})
	return p
}

// Console returns every line captured so far, in order.
func (p *Page) Console() []string {
	return p.sink.Lines(capture.ALL)
}

// Buffers returns the capture sink.
func (p *Page) Buffers() *capture.Buffers {
	return p.sink
}

// Document returns the bound document, or nil.
func (p *Page) Document() *dom.Document {
	return p.doc
}

// Evaluate runs snippet as the body of the inner async function and returns
// the harness result.
//
// The page's event loop runs while Evaluate waits for the inner promise, so
// timers and polls started by the snippet make progress. Timers still pending
// when it returns resume on the next call.
//
// An error is returned only when no result could be produced: the snippet
// does not compile (ErrParse), its promise is pending with no timer or poll
// left to settle it (ErrUnsettled), or ctx ended and the runtime was
// interrupted.
func (p *Page) Evaluate(ctx context.Context, snippet string) (*harness.Result, error) {
	prog, err := goja.Compile("humane-inner.js", Harnessed(snippet), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("script interrupted: %w", err)
	}

	opts := append([]harness.Option{harness.WithLogger(p.logger)}, p.harnessOpts...)
	h := harness.New(p.harnessDocument(), opts...)
	inv := newInvocation(ctx, p, h)
	p.current = inv

	p.loop.Start()
	p.loop.RunOnLoop(func(vm *goja.Runtime) {
		p.set(vm.GlobalObject(), "humane", inv.bind())
		inv.start(prog)
		p.afterJob()
	})

	var out outcome
	select {
	case out = <-inv.done:
	case <-ctx.Done():
		p.vm.Interrupt(ctx.Err())
	}
	p.loop.Stop()
	inv.closed = true
	p.current = nil
	p.vm.ClearInterrupt()

	var driverErr error
	switch {
	case ctx.Err() != nil:
		driverErr = fmt.Errorf("script interrupted: %w", ctx.Err())
	case errors.Is(out.err, ErrUnsettled):
		driverErr = out.err
	}
	if driverErr != nil {
		p.logger.Debug("evaluation aborted", "error", driverErr)
		return nil, driverErr
	}

	return harness.Run(ctx, p.sink, h, func(context.Context, *harness.Harness) (any, error) {
		return out.resp, out.err
	}), nil
}

// afterJob ends every job the page queues: it drains pending microtasks
// and then lets the current invocation look at its promise.
func (p *Page) afterJob() {
	if _, err := p.vm.RunProgram(flushProgram); err != nil {
		p.logger.Debug("microtask flush failed", "error", err)
	}
	if p.current != nil {
		p.current.check()
	}
}

// harnessDocument avoids handing the harness a typed nil.
func (p *Page) harnessDocument() harness.Document {
	if p.doc == nil {
		return nil
	}
	return p.doc
}

// response converts the settled value into the inner response. undefined,
// and values JSON cannot represent, leave the response unset.
func (p *Page) response(v goja.Value) (any, error) {
	if v == nil || goja.IsUndefined(v) {
		return nil, nil
	}
	s, err := p.stringify(goja.Undefined(), v)
	if err != nil {
		return nil, fmt.Errorf("inner response could not be serialized: %w", err)
	}
	if goja.IsUndefined(s) {
		return nil, nil
	}
	return json.RawMessage(s.String()), nil
}

// set assigns a property, logging the rare failure instead of returning it.
func (p *Page) set(obj *goja.Object, name string, v any) {
	if err := obj.Set(name, v); err != nil {
		p.logger.Error("failed to bind property", "name", name, "error", err)
	}
}

// accessor defines a non-enumerable getter, and a setter when set is non-nil.
func (p *Page) accessor(obj *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	getter := p.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	setter := goja.Undefined()
	if set != nil {
		setter = p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	if err := obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		p.logger.Error("failed to define accessor", "name", name, "error", err)
	}
}

// method defines a non-enumerable function property.
func (p *Page) method(obj *goja.Object, name string, fn func(goja.FunctionCall) goja.Value) {
	if err := obj.DefineDataProperty(name, p.vm.ToValue(fn), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		p.logger.Error("failed to define method", "name", name, "error", err)
	}
}

// newError constructs a JS error of the named built-in type.
func (p *Page) newError(ctor, message string) *goja.Object {
	obj, err := p.vm.New(p.vm.Get(ctor), p.vm.ToValue(message))
	if err != nil {
		return p.vm.NewTypeError(message)
	}
	return obj
}
