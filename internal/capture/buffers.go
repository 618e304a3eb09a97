package capture

import (
	"strings"
	"sync"
)

// Category names a log buffer.
type Category string

// Log categories. ALL receives every entry.
const (
	ALL Category = "ALL"
	LOG Category = "LOG"
	WRN Category = "WRN"
	ERR Category = "ERR"
	DBG Category = "DBG"
)

// Categories lists every buffer in a stable order.
var Categories = []Category{ALL, LOG, WRN, ERR, DBG}

// Buffers is the capture sink: one ordered, append-only buffer per category.
//
// Thread-safety: all methods are safe for concurrent use. Concurrent writers
// interleave into the same buffers with no provenance tag.
type Buffers struct {
	mu    sync.RWMutex
	lines map[Category][]string
}

// NewBuffers creates an empty sink with every category present.
func NewBuffers() *Buffers {
	b := &Buffers{lines: make(map[Category][]string, len(Categories))}
	for _, c := range Categories {
		b.lines[c] = []string{}
	}
	return b
}

// Append records line under cat and under ALL.
// Appending directly to ALL records the line once.
func (b *Buffers) Append(cat Category, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[ALL] = append(b.lines[ALL], line)
	if cat != ALL {
		b.lines[cat] = append(b.lines[cat], line)
	}
}

// Lines returns a copy of the buffer for cat.
func (b *Buffers) Lines(cat Category) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	src := b.lines[cat]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Joined returns the buffer for cat joined with newlines.
func (b *Buffers) Joined(cat Category) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return strings.Join(b.lines[cat], "\n")
}

// Len returns the number of lines in the buffer for cat.
func (b *Buffers) Len(cat Category) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines[cat])
}

// Snapshot copies every buffer.
func (b *Buffers) Snapshot() map[Category][]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[Category][]string, len(b.lines))
	for c, src := range b.lines {
		dst := make([]string, len(src))
		copy(dst, src)
		out[c] = dst
	}
	return out
}
