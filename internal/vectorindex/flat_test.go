package vectorindex

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	mu   sync.Mutex
	recs map[string]Record
	fail bool
}

func newMemPersister() *memPersister { return &memPersister{recs: make(map[string]Record)} }

func (m *memPersister) SaveVector(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.recs[r.ID] = r
	return nil
}

func (m *memPersister) DeleteVector(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	delete(m.recs, id)
	return nil
}

func (m *memPersister) LoadVectors(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	return out, nil
}

func TestFlat_SearchOrdering(t *testing.T) {
	ctx := context.Background()
	f := NewFlat(nil, nil)
	require.NoError(t, f.Upsert(ctx, "a", []float32{1, 0}))
	require.NoError(t, f.Upsert(ctx, "b", []float32{0, 1}))
	require.NoError(t, f.Upsert(ctx, "c", []float32{1, 1}))
	require.NoError(t, f.Upsert(ctx, "d", []float32{2, 0}))

	hits, err := f.Search(ctx, []float32{1, 0}, 0, 0)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	// a and d tie at 1.0; insertion order breaks the tie.
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "d", hits[1].ID)
	assert.Equal(t, "c", hits[2].ID)
	assert.InDelta(t, 0.7071, hits[2].Similarity, 0.001)
	assert.Equal(t, "b", hits[3].ID)

	hits, err = f.Search(ctx, []float32{1, 0}, 2, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = f.Search(ctx, []float32{1, 0}, 0, 0.5)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestFlat_Errors(t *testing.T) {
	ctx := context.Background()
	f := NewFlat(nil, nil)

	assert.ErrorIs(t, f.Upsert(ctx, "x", nil), ErrEmptyVector)
	_, err := f.Search(ctx, []float32{0, 0}, 1, 0)
	assert.ErrorIs(t, err, ErrZeroVector)
	_, err = f.Search(ctx, nil, 1, 0)
	assert.ErrorIs(t, err, ErrZeroVector)

	require.NoError(t, f.Upsert(ctx, "x", []float32{1, 2, 3}))
	assert.ErrorIs(t, f.Upsert(ctx, "y", []float32{1, 2}), ErrDimensionMismatch)
	_, err = f.Search(ctx, []float32{1, 2}, 1, 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFlat_UpsertReplacesAndKeepsPosition(t *testing.T) {
	ctx := context.Background()
	f := NewFlat(nil, nil)
	require.NoError(t, f.Upsert(ctx, "a", []float32{1, 0}))
	require.NoError(t, f.Upsert(ctx, "b", []float32{1, 0}))
	require.NoError(t, f.Upsert(ctx, "a", []float32{1, 0}))
	assert.Equal(t, 2, f.Len())

	hits, err := f.Search(ctx, []float32{1, 0}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", hits[0].ID)
}

func TestFlat_Remove(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	f := NewFlat(p, nil)
	require.NoError(t, f.Upsert(ctx, "a", []float32{1, 0}))
	require.NoError(t, f.Upsert(ctx, "b", []float32{0, 1}))

	require.NoError(t, f.Remove(ctx, "a"))
	require.NoError(t, f.Remove(ctx, "missing"))
	assert.Equal(t, 1, f.Len())
	assert.NotContains(t, p.recs, "a")

	hits, err := f.Search(ctx, []float32{1, 0}, 0, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func TestFlat_PersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	f := NewFlat(p, nil)
	vecs := map[string][]float32{
		"e1": {0.9, 0.1, 0},
		"e2": {0.1, 0.9, 0},
		"e3": {0.5, 0.5, 0.1},
		"e4": {0.9, 0.1, 0},
	}
	for _, id := range []string{"e1", "e2", "e3", "e4"} {
		require.NoError(t, f.Upsert(ctx, id, vecs[id]))
	}
	query := []float32{1, 0.2, 0}
	before, err := f.Search(ctx, query, 3, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	g, err := LoadFlat(ctx, p, nil)
	require.NoError(t, err)
	after, err := g.Search(ctx, query, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 4, g.Len())

	// New vectors continue after the loaded sequence.
	require.NoError(t, g.Upsert(ctx, "e5", []float32{0.9, 0.1, 0}))
	hits, err := g.Search(ctx, []float32{0.9, 0.1, 0}, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e4", "e5"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
}

func TestFlat_FailedWritesRetriedByFlush(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	f := NewFlat(p, nil)
	require.NoError(t, f.Upsert(ctx, "keep", []float32{1, 0}))

	p.fail = true
	require.NoError(t, f.Upsert(ctx, "a", []float32{1, 0}))
	require.NoError(t, f.Remove(ctx, "keep"))
	assert.Equal(t, 2, f.Pending())
	assert.Equal(t, 1, f.Len(), "in-memory state survives persist failures")
	assert.Error(t, f.Flush(ctx))

	p.fail = false
	require.NoError(t, f.Flush(ctx))
	assert.Equal(t, 0, f.Pending())
	assert.Contains(t, p.recs, "a")
	assert.NotContains(t, p.recs, "keep")
}

func TestLoadFlat_Corrupt(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		recs []Record
	}{
		{"empty vector", []Record{{ID: "a", Seq: 1}}},
		{"mixed dims", []Record{{ID: "a", Seq: 1, Vector: []float32{1, 0}}, {ID: "b", Seq: 2, Vector: []float32{1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newMemPersister()
			for _, r := range tt.recs {
				p.recs[r.ID] = r
			}
			_, err := LoadFlat(ctx, p, nil)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}
