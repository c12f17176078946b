package orchestrator

import "strings"

// Chunker splits streamed text into sentence-like pieces that can be sent to
// synthesis as soon as they are complete.
type Chunker struct {
	buf strings.Builder
}

func isBoundary(r rune) bool {
	switch r {
	case '.', '!', '؟', '\n', '،':
		return true
	}
	return false
}

// Feed appends delta and returns every chunk it completed. A chunk includes
// its terminating rune. Chunks that are only whitespace are dropped.
func (c *Chunker) Feed(delta string) []string {
	var out []string
	for _, r := range delta {
		c.buf.WriteRune(r)
		if !isBoundary(r) {
			continue
		}
		if s := strings.TrimSpace(c.buf.String()); s != "" {
			out = append(out, s)
		}
		c.buf.Reset()
	}
	return out
}

// Flush returns whatever text is left without a terminator.
func (c *Chunker) Flush() string {
	s := strings.TrimSpace(c.buf.String())
	c.buf.Reset()
	return s
}
