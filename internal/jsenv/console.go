package jsenv

import (
	"github.com/dop251/goja"

	"github.com/roach88/humane/internal/capture"
)

// installConsole binds the intercepted console. Only log, warn, error and
// debug are captured.
func (p *Page) installConsole() {
	console := p.vm.NewObject()
	for name, fn := range map[string]func(...any){
		"log":   p.console.Log,
		"warn":  p.console.Warn,
		"error": p.console.Error,
		"debug": p.console.Debug,
	} {
		p.set(console, name, func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = jsArg{a}
			}
			fn(args...)
			return goja.Undefined()
		})
	}
	p.set(p.vm.GlobalObject(), "console", console)
}

// installLogEvents binds humane_log_events, a read-only live view of the
// capture buffers keyed by category.
func (p *Page) installLogEvents() {
	events := p.vm.NewObject()
	for _, cat := range capture.Categories {
		p.accessor(events, string(cat), func() goja.Value {
			return p.vm.NewArray(stringsToAny(p.sink.Lines(cat))...)
		}, nil)
	}
	p.set(p.vm.GlobalObject(), "humane_log_events", events)
}
