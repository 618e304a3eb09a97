// Package dom provides a live HTML document that test scripts query while
// other goroutines mutate it.
//
// Queries take a read lock and mutations take a write lock, so a poll that
// re-runs a selector between sleeps always sees the latest tree.
package dom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// SelectorError reports a selector that does not parse.
type SelectorError struct {
	Selector string
	Err      error
}

// Error implements the error interface.
func (e *SelectorError) Error() string {
	return fmt.Sprintf("'%s' is not a valid selector: %v", e.Selector, e.Err)
}

// Unwrap returns the parser error.
func (e *SelectorError) Unwrap() error {
	return e.Err
}

// Document is a mutable HTML document.
//
// Thread-safety: all methods are safe for concurrent use.
type Document struct {
	mu  sync.RWMutex
	doc *goquery.Document
	gen uint64
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString parses an HTML document held in a string.
func ParseString(html string) (*Document, error) {
	return Parse(strings.NewReader(html))
}

// compile parses sel into a matcher.
func compile(sel string) (goquery.Matcher, error) {
	m, err := cascadia.Compile(sel)
	if err != nil {
		return nil, &SelectorError{Selector: sel, Err: err}
	}
	return m, nil
}

// QuerySelector returns the first element matching sel, or nil when nothing matches.
func (d *Document) QuerySelector(sel string) (*Element, error) {
	m, err := compile(sel)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	found := d.doc.FindMatcher(goquery.SingleMatcher(m))
	if found.Length() == 0 {
		return nil, nil
	}
	return &Element{doc: d, sel: found.First()}, nil
}

// QuerySelectorAll returns every element matching sel in document order.
// The result is empty, not nil, when nothing matches.
func (d *Document) QuerySelectorAll(sel string) ([]*Element, error) {
	m, err := compile(sel)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	found := d.doc.FindMatcher(m)
	out := make([]*Element, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{doc: d, sel: s})
	})
	return out, nil
}

// HTML renders the whole document.
func (d *Document) HTML() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return goquery.OuterHtml(d.doc.Selection)
}

// Replace swaps the whole tree for a freshly parsed one.
// Elements obtained before the swap keep pointing at the old tree.
func (d *Document) Replace(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc = doc
	d.gen++
	return nil
}

// Generation counts calls to Replace. Elements from different generations
// belong to different trees.
func (d *Document) Generation() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.gen
}

// mutate applies fn to every element matching sel under the write lock and
// returns how many elements matched.
func (d *Document) mutate(sel string, fn func(*goquery.Selection)) (int, error) {
	m, err := compile(sel)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	found := d.doc.FindMatcher(m)
	if found.Length() > 0 {
		fn(found)
	}
	return found.Length(), nil
}

// Append parses html and appends it as the last children of every match.
func (d *Document) Append(sel, html string) (int, error) {
	return d.mutate(sel, func(s *goquery.Selection) { s.AppendHtml(html) })
}

// SetHTML replaces the children of every match with html.
func (d *Document) SetHTML(sel, html string) (int, error) {
	return d.mutate(sel, func(s *goquery.Selection) { s.SetHtml(html) })
}

// SetText replaces the children of every match with a text node.
func (d *Document) SetText(sel, text string) (int, error) {
	return d.mutate(sel, func(s *goquery.Selection) { s.SetText(text) })
}

// SetAttr sets an attribute on every match.
func (d *Document) SetAttr(sel, name, value string) (int, error) {
	return d.mutate(sel, func(s *goquery.Selection) { s.SetAttr(name, value) })
}

// Remove detaches every match from the tree.
func (d *Document) Remove(sel string) (int, error) {
	return d.mutate(sel, func(s *goquery.Selection) { s.Remove() })
}
