// Package vectorindex stores one embedding per event and answers cosine
// nearest-neighbour queries.
package vectorindex

import (
	"context"
	"errors"
	"math"
)

var (
	ErrEmptyVector       = errors.New("vector is empty")
	ErrZeroVector        = errors.New("query vector has zero length")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrCorrupt           = errors.New("vector store corrupt")
)

// Hit is one search result.
type Hit struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// Index is the vector index contract. Search orders hits by descending
// similarity with ties in insertion order.
type Index interface {
	Upsert(ctx context.Context, id string, vec []float32) error
	Search(ctx context.Context, query []float32, k int, minSimilarity float64) ([]Hit, error)
	Remove(ctx context.Context, id string) error
	Len() int
	// Flush writes any state that failed to persist earlier.
	Flush(ctx context.Context) error
	Close() error
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}
