// Package chunker splits plain document text into overlapping word windows.
package chunker

import "strings"

const (
	DefaultWindowSize = 500
	DefaultOverlap    = 50
)

// Chunker emits word windows of WindowSize words, stepping WindowSize-Overlap words at a time.
type Chunker struct {
	windowSize int
	overlap    int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithWindowSize sets the number of words per chunk.
func WithWindowSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.windowSize = n
		}
	}
}

// WithOverlap sets how many words consecutive chunks share.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// New builds a Chunker. An overlap that is not smaller than the window is clamped so every step advances.
func New(opts ...Option) *Chunker {
	c := &Chunker{windowSize: DefaultWindowSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.windowSize {
		c.overlap = c.windowSize - 1
	}
	return c
}

func (c *Chunker) WindowSize() int { return c.windowSize }
func (c *Chunker) Overlap() int    { return c.overlap }

// Chunk splits text on whitespace and returns the windows in order.
// The last window always reaches the final word. Blank input yields nil.
func (c *Chunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.windowSize - c.overlap
	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + c.windowSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if i+c.windowSize >= len(words) {
			break
		}
	}
	return chunks
}

// Chunk is a convenience wrapper using the default window and overlap.
func Chunk(text string) []string {
	return New().Chunk(text)
}
