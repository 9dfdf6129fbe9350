package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/humbrol2/humbbot-memory/internal/textutil"
)

// HashEmbedder is an offline provider that feature-hashes keywords into a
// fixed number of buckets. Texts sharing words get positive similarity, so
// it stands in for a model when none is reachable.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hash embedder. dims defaults to 512.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 512
	}
	return &HashEmbedder{dims: dims}
}

// Embed returns the unit-length term-count vector of text. Text without
// keywords yields ErrNoTerms.
func (h *HashEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	terms := textutil.Terms(text)
	if len(terms) == 0 {
		return nil, ErrNoTerms
	}
	vec := make(Vector, h.dims)
	for _, term := range terms {
		f := fnv.New64a()
		f.Write([]byte(term))
		vec[f.Sum64()%uint64(h.dims)]++
	}
	norm := float32(math.Sqrt(float64(dot(vec, vec))))
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (h *HashEmbedder) Dims() int { return h.dims }

func dot(a, b Vector) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
