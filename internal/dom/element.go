package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Element is a single node of a Document. Reads take the document's read lock,
// so an Element stays safe to use while the document is being mutated.
type Element struct {
	doc *Document
	sel *goquery.Selection
}

// Node returns the underlying node. It identifies the element across queries.
func (e *Element) Node() *html.Node {
	return e.sel.Get(0)
}

// Tag returns the upper-case tag name, as a browser's tagName does.
func (e *Element) Tag() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return strings.ToUpper(goquery.NodeName(e.sel))
}

// ID returns the id attribute, or "".
func (e *Element) ID() string {
	return e.AttrOr("id", "")
}

// Attr returns an attribute value and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.sel.Attr(name)
}

// AttrOr returns an attribute value, or def when absent.
func (e *Element) AttrOr(name, def string) string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.sel.AttrOr(name, def)
}

// Text returns the combined text of the element and its descendants.
func (e *Element) Text() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.sel.Text()
}

// InnerHTML renders the element's children.
func (e *Element) InnerHTML() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	s, err := e.sel.Html()
	if err != nil {
		return ""
	}
	return s
}

// OuterHTML renders the element itself.
func (e *Element) OuterHTML() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	s, err := goquery.OuterHtml(e.sel)
	if err != nil {
		return ""
	}
	return s
}

// SetAttr sets an attribute on this element.
func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.SetAttr(name, value)
}

// SetText replaces the element's children with text.
func (e *Element) SetText(text string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.SetText(text)
}

// SetInnerHTML replaces the element's children with parsed html.
func (e *Element) SetInnerHTML(markup string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.SetHtml(markup)
}

// Remove detaches the element from the tree.
func (e *Element) Remove() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.Remove()
}

// String renders the element the way a console shows it.
func (e *Element) String() string {
	return "[object HTMLElement]"
}
