package jsenv

import (
	"math"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/roach88/humane/internal/harness"
)

// minInterval keeps setInterval(fn, 0) from spinning.
const minInterval = time.Millisecond

// installTimers binds setTimeout, setInterval and their clear functions on
// top of the event loop. Every pending timer is counted so the page knows
// when nothing is left that could settle a promise.
func (p *Page) installTimers() {
	var next int64
	timeouts := make(map[int64]*eventloop.Timer)
	intervals := make(map[int64]*eventloop.Interval)
	global := p.vm.GlobalObject()

	p.set(global, "setTimeout", func(call goja.FunctionCall) goja.Value {
		fn, args := p.timerCallback("setTimeout", call)
		next++
		id := next
		p.timers++
		timeouts[id] = p.loop.SetTimeout(func(*goja.Runtime) {
			if _, ok := timeouts[id]; !ok {
				return
			}
			delete(timeouts, id)
			p.timers--
			p.callTimer(fn, args)
			p.afterJob()
		}, delay(call.Argument(1)))
		return p.vm.ToValue(id)
	})
	p.set(global, "clearTimeout", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).ToInteger()
		if t, ok := timeouts[id]; ok {
			p.loop.ClearTimeout(t)
			delete(timeouts, id)
			p.timers--
		}
		return goja.Undefined()
	})

	p.set(global, "setInterval", func(call goja.FunctionCall) goja.Value {
		fn, args := p.timerCallback("setInterval", call)
		next++
		id := next
		p.timers++
		intervals[id] = p.loop.SetInterval(func(*goja.Runtime) {
			if _, ok := intervals[id]; !ok {
				return
			}
			p.callTimer(fn, args)
			p.afterJob()
		}, max(delay(call.Argument(1)), minInterval))
		return p.vm.ToValue(id)
	})
	p.set(global, "clearInterval", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).ToInteger()
		if i, ok := intervals[id]; ok {
			p.loop.ClearInterval(i)
			delete(intervals, id)
			p.timers--
		}
		return goja.Undefined()
	})
}

func (p *Page) timerCallback(name string, call goja.FunctionCall) (goja.Callable, []goja.Value) {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(p.vm.NewTypeError(name + " expects a function"))
	}
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}
	return fn, args
}

// callTimer runs a timer callback. An exception is logged, as a browser
// reports it, and does not fail the snippet.
func (p *Page) callTimer(fn goja.Callable, args []goja.Value) {
	if _, err := fn(goja.Undefined(), args...); err != nil {
		p.logger.Warn("timer callback threw", "error", err)
	}
}

// delay reads a timer delay. Missing, NaN and negative delays mean zero.
func delay(v goja.Value) time.Duration {
	if v == nil || goja.IsUndefined(v) {
		return 0
	}
	ms := v.ToFloat()
	if math.IsNaN(ms) || ms < 0 {
		return 0
	}
	return harness.Millis(ms)
}
