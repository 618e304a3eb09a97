package jsenv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/roach88/humane/internal/capture"
	"github.com/roach88/humane/internal/dom"
	"github.com/roach88/humane/internal/harness"
)

// invocation is the state of one Evaluate call: the harness behind the humane
// global, the inner promise and the JS errors that stand for harness failures.
//
// Everything except done is touched only from the event loop, or after the
// loop has stopped.
type invocation struct {
	ctx      context.Context
	page     *Page
	h        *harness.Harness
	failures map[*goja.Object]*harness.Failure
	promise  *goja.Promise
	finished bool
	closed   bool
	done     chan outcome
}

// outcome is how the inner function ended.
type outcome struct {
	resp any
	err  error
}

func newInvocation(ctx context.Context, p *Page, h *harness.Harness) *invocation {
	return &invocation{
		ctx:      ctx,
		page:     p,
		h:        h,
		failures: make(map[*goja.Object]*harness.Failure),
		done:     make(chan outcome, 1),
	}
}

// bind builds the humane global for this invocation.
func (inv *invocation) bind() *goja.Object {
	p := inv.page
	obj := p.vm.NewObject()
	p.set(obj, "assert_eq", inv.assertEq)
	p.set(obj, "waitFor", inv.waitFor)
	p.set(obj, "querySelector", inv.querySelector)
	p.set(obj, "querySelectorAll", inv.querySelectorAll)
	p.accessor(obj, "errors", func() goja.Value {
		return p.vm.NewArray(stringsToAny(inv.h.Errors())...)
	}, nil)
	return obj
}

// start runs the compiled inner function. It is the first job of the
// invocation on the event loop.
func (inv *invocation) start(prog *goja.Program) {
	vm := inv.page.vm

	fnVal, err := vm.RunProgram(prog)
	if err != nil {
		inv.finish(nil, inv.thrown(err))
		return
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		inv.finish(nil, fmt.Errorf("inner template did not produce a function"))
		return
	}
	ret, err := fn(goja.Undefined())
	if err != nil {
		inv.finish(nil, inv.thrown(err))
		return
	}

	promise, ok := ret.Export().(*goja.Promise)
	if !ok {
		inv.finish(inv.page.response(ret))
		return
	}
	inv.promise = promise
}

// check reads the inner promise once a loop job is over. A promise still
// pending when no timer or poll is left can never settle.
func (inv *invocation) check() {
	if inv.finished || inv.promise == nil {
		return
	}
	switch inv.promise.State() {
	case goja.PromiseStateFulfilled:
		inv.finish(inv.page.response(inv.promise.Result()))
	case goja.PromiseStateRejected:
		inv.finish(nil, inv.rejection(inv.promise.Result()))
	default:
		if inv.page.timers == 0 {
			inv.finish(nil, ErrUnsettled)
		}
	}
}

func (inv *invocation) finish(resp any, err error) {
	if inv.finished {
		return
	}
	inv.finished = true
	inv.done <- outcome{resp: resp, err: err}
}

// rejection classifies a rejection reason. Errors created for harness
// failures map back to their Failure, even after a catch and rethrow.
func (inv *invocation) rejection(reason goja.Value) error {
	if obj, ok := reason.(*goja.Object); ok {
		if f, ok := inv.failures[obj]; ok {
			return f
		}
	}
	return &scriptError{text: capture.Stringify(jsArg{reason})}
}

// thrown converts an error returned by the runtime.
func (inv *invocation) thrown(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return inv.rejection(ex.Value())
	}
	return err
}

func (inv *invocation) assertEq(call goja.FunctionCall) goja.Value {
	inv.h.AssertEq(operand{inv.page, call.Argument(0)}, operand{inv.page, call.Argument(1)})
	return goja.Undefined()
}

// waitFor returns a promise for the first truthy result of the query. The
// query may return a promise, which is awaited before the result is judged.
func (inv *invocation) waitFor(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	fn, ok := goja.AssertFunction(arg)
	if !ok {
		return inv.rejected(inv.page.vm.NewTypeError("waitFor expects a function"))
	}

	desc := capture.Stringify(jsArg{arg})
	poller := inv.h.Poll(harness.Describe(desc, nil), inv.timeout(call.Argument(1)))
	query := func(k func(any, error)) {
		v, err := fn(goja.Undefined())
		if err != nil {
			k(nil, inv.queryErr(err))
			return
		}
		inv.page.await(v, func(r goja.Value, err error) {
			if err != nil {
				k(nil, err)
				return
			}
			k(operand{inv.page, r}, nil)
		})
	}
	return inv.drive(poller, query, func(v any) goja.Value { return v.(operand).v })
}

func (inv *invocation) querySelector(call goja.FunctionCall) goja.Value {
	poller := inv.h.PollSelector(call.Argument(0).String(), inv.timeout(call.Argument(1)))
	return inv.drive(poller, inv.goQuery(poller), func(v any) goja.Value {
		return inv.page.wrap(v.(*dom.Element))
	})
}

func (inv *invocation) querySelectorAll(call goja.FunctionCall) goja.Value {
	poller := inv.h.PollSelectorAll(call.Argument(0).String(), inv.timeout(call.Argument(1)))
	return inv.drive(poller, inv.goQuery(poller), func(v any) goja.Value {
		return inv.page.wrapAll(v.([]*dom.Element))
	})
}

// goQuery calls the poller's own query synchronously.
func (inv *invocation) goQuery(poller *harness.Poller) func(func(any, error)) {
	return func(k func(any, error)) {
		k(poller.Query().Poll(inv.ctx))
	}
}

// drive runs a poller on the event loop and returns a promise for its
// outcome. query calls k exactly once per poll, possibly from a later job.
// Between polls the loop is free: the sleep happens off the loop and the
// next poll is queued as a new job.
func (inv *invocation) drive(poller *harness.Poller, query func(k func(any, error)), deliver func(any) goja.Value) goja.Value {
	promise, resolve, reject := inv.page.vm.NewPromise()

	var step func()
	step = func() {
		query(func(r any, err error) {
			if inv.closed {
				return
			}
			if err != nil {
				reject(inv.reason(err))
				return
			}
			v, done, err := poller.Observe(r)
			switch {
			case err != nil:
				reject(inv.reason(err))
			case done:
				resolve(deliver(v))
			default:
				inv.sleep(step)
			}
		})
	}
	step()
	return inv.page.vm.ToValue(promise)
}

// sleep waits one poll interval on the harness clock and queues next.
func (inv *invocation) sleep(next func()) {
	p := inv.page
	p.timers++
	d := inv.h.PollInterval()
	go func() {
		err := inv.h.Clock().Sleep(inv.ctx, d)
		p.loop.RunOnLoop(func(*goja.Runtime) {
			p.timers--
			if err == nil && !inv.closed {
				next()
			}
			p.afterJob()
		})
	}()
}

// rejected returns a promise already rejected with reason.
func (inv *invocation) rejected(reason goja.Value) goja.Value {
	promise, _, reject := inv.page.vm.NewPromise()
	reject(reason)
	return inv.page.vm.ToValue(promise)
}

// timeout reads an optional millisecond argument, keeping fractions.
func (inv *invocation) timeout(v goja.Value) time.Duration {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return inv.h.DefaultTimeout()
	}
	return harness.Millis(v.ToFloat())
}

// reason converts err into the value a primitive's promise rejects with.
// Harness failures get a fresh Error that maps back to the Failure.
func (inv *invocation) reason(err error) goja.Value {
	p := inv.page

	var f *harness.Failure
	if errors.As(err, &f) && f.Kind != harness.KindScript {
		obj := p.newError("Error", f.Message)
		inv.failures[obj] = f
		return obj
	}

	var thrown *thrownError
	if errors.As(err, &thrown) {
		return thrown.value
	}

	var selErr *dom.SelectorError
	if errors.As(err, &selErr) {
		return p.newError("SyntaxError", selErr.Error())
	}
	return p.newError("Error", err.Error())
}

// queryErr keeps the value a query threw so it can be rethrown unchanged.
func (inv *invocation) queryErr(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &thrownError{value: ex.Value()}
	}
	return err
}

// await calls k with the value v resolves to. A promise still pending is
// followed with then, so k runs in a later microtask.
func (p *Page) await(v goja.Value, k func(goja.Value, error)) {
	promise, ok := v.Export().(*goja.Promise)
	if !ok {
		k(v, nil)
		return
	}
	switch promise.State() {
	case goja.PromiseStateFulfilled:
		k(promise.Result(), nil)
		return
	case goja.PromiseStateRejected:
		k(nil, &thrownError{value: promise.Result()})
		return
	}

	obj := v.ToObject(p.vm)
	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		k(nil, errors.New("promise has no then method"))
		return
	}
	onFulfilled := func(call goja.FunctionCall) goja.Value {
		k(call.Argument(0), nil)
		return goja.Undefined()
	}
	onRejected := func(call goja.FunctionCall) goja.Value {
		k(nil, &thrownError{value: call.Argument(0)})
		return goja.Undefined()
	}
	if _, err := then(obj, p.vm.ToValue(onFulfilled), p.vm.ToValue(onRejected)); err != nil {
		k(nil, err)
	}
}

// scriptError is a failure the script raised itself.
type scriptError struct {
	text string
}

func (e *scriptError) Error() string { return e.text }

// thrownError carries a JS value thrown by a query function.
type thrownError struct {
	value goja.Value
}

func (e *thrownError) Error() string { return capture.Stringify(jsArg{e.value}) }

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
