package jsenv

import (
	"errors"

	"github.com/dop251/goja"

	"github.com/roach88/humane/internal/dom"
)

// installDocument binds a minimal document global.
func (p *Page) installDocument() {
	doc := p.vm.NewObject()

	p.method(doc, "querySelector", func(call goja.FunctionCall) goja.Value {
		el, err := p.doc.QuerySelector(call.Argument(0).String())
		if err != nil {
			panic(p.selectorError(err))
		}
		return p.wrap(el)
	})
	p.method(doc, "querySelectorAll", func(call goja.FunctionCall) goja.Value {
		els, err := p.doc.QuerySelectorAll(call.Argument(0).String())
		if err != nil {
			panic(p.selectorError(err))
		}
		return p.wrapAll(els)
	})
	p.accessor(doc, "documentElement", func() goja.Value {
		el, err := p.doc.QuerySelector("html")
		if err != nil {
			return goja.Null()
		}
		return p.wrap(el)
	}, nil)
	p.accessor(doc, "body", func() goja.Value {
		el, err := p.doc.QuerySelector("body")
		if err != nil {
			return goja.Null()
		}
		return p.wrap(el)
	}, nil)

	p.set(p.vm.GlobalObject(), "document", doc)
}

func (p *Page) selectorError(err error) *goja.Object {
	var selErr *dom.SelectorError
	if errors.As(err, &selErr) {
		return p.newError("SyntaxError", selErr.Error())
	}
	return p.newError("Error", err.Error())
}

// wrap returns the JS object for el, reusing the one handed out before for
// the same node so === holds across queries. The cache is dropped whenever
// the document's tree is replaced.
func (p *Page) wrap(el *dom.Element) goja.Value {
	if el == nil {
		return goja.Null()
	}
	if gen := p.doc.Generation(); gen != p.elementsGen {
		clear(p.elements)
		p.elementsGen = gen
	}
	if obj, ok := p.elements[el.Node()]; ok {
		return obj
	}

	obj := p.vm.NewObject()
	str := func(s string) goja.Value { return p.vm.ToValue(s) }

	p.accessor(obj, "tagName", func() goja.Value { return str(el.Tag()) }, nil)
	p.accessor(obj, "id",
		func() goja.Value { return str(el.ID()) },
		func(v goja.Value) { el.SetAttr("id", v.String()) })
	p.accessor(obj, "className",
		func() goja.Value { return str(el.AttrOr("class", "")) },
		func(v goja.Value) { el.SetAttr("class", v.String()) })
	p.accessor(obj, "textContent",
		func() goja.Value { return str(el.Text()) },
		func(v goja.Value) { el.SetText(v.String()) })
	p.accessor(obj, "innerHTML",
		func() goja.Value { return str(el.InnerHTML()) },
		func(v goja.Value) { el.SetInnerHTML(v.String()) })
	p.accessor(obj, "outerHTML", func() goja.Value { return str(el.OuterHTML()) }, nil)

	p.method(obj, "getAttribute", func(call goja.FunctionCall) goja.Value {
		v, ok := el.Attr(call.Argument(0).String())
		if !ok {
			return goja.Null()
		}
		return str(v)
	})
	p.method(obj, "hasAttribute", func(call goja.FunctionCall) goja.Value {
		_, ok := el.Attr(call.Argument(0).String())
		return p.vm.ToValue(ok)
	})
	p.method(obj, "setAttribute", func(call goja.FunctionCall) goja.Value {
		el.SetAttr(call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	p.method(obj, "remove", func(goja.FunctionCall) goja.Value {
		el.Remove()
		return goja.Undefined()
	})
	p.method(obj, "toString", func(goja.FunctionCall) goja.Value {
		return str(el.String())
	})

	p.elements[el.Node()] = obj
	return obj
}

func (p *Page) wrapAll(els []*dom.Element) goja.Value {
	items := make([]any, len(els))
	for i, el := range els {
		items[i] = p.wrap(el)
	}
	return p.vm.NewArray(items...)
}
