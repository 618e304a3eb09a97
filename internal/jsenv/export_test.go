package jsenv

// CachedElements reports how many element wrappers the page holds.
func (p *Page) CachedElements() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.elements)
}
