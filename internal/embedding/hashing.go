package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

const DefaultDimensions = 384

// HashingEmbedder is a deterministic bag-of-words embedder using signed feature hashing.
// It needs no model download and gives identical vectors for identical text.
type HashingEmbedder struct {
	dims int
}

func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashingEmbedder{dims: dims}
}

func (h *HashingEmbedder) Dimensions() int { return h.dims }
func (h *HashingEmbedder) Model() string   { return "hashing-bow" }

func (h *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, &EmbeddingError{Model: h.Model(), Err: err}
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashingEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum32()
		idx := int(sum % uint32(h.dims))
		if sum&0x80000000 != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	return Normalize(v)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
