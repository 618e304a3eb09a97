package jsenv

import (
	"github.com/dop251/goja"
)

// operand lets the harness compare and render JS values with JS semantics.
type operand struct {
	page *Page
	v    goja.Value
}

// StrictEqual implements harness.Operand using ===.
func (o operand) StrictEqual(other any) bool {
	r, ok := other.(operand)
	if !ok {
		return false
	}
	return o.value().StrictEquals(r.value())
}

// Render implements harness.Operand using JSON.stringify. Values it cannot
// represent, or that throw while serializing, render as undefined.
func (o operand) Render() string {
	s, err := o.page.stringify(goja.Undefined(), o.value())
	if err != nil || s == nil || goja.IsUndefined(s) {
		return "undefined"
	}
	return s.String()
}

// Truthy implements harness.Truther with JS truthiness.
func (o operand) Truthy() bool {
	return o.value().ToBoolean()
}

func (o operand) value() goja.Value {
	if o.v == nil {
		return goja.Undefined()
	}
	return o.v
}

// jsArg formats a JS value the way String(value) does.
type jsArg struct {
	v goja.Value
}

func (a jsArg) String() string {
	if a.v == nil {
		return "undefined"
	}
	return a.v.String()
}
