package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Record is one persisted vector.
type Record struct {
	ID     string
	Seq    int64
	Vector []float32
}

// Persister is the durable side of a Flat index. The SQLite store
// implements it with the vectors table.
type Persister interface {
	SaveVector(ctx context.Context, r Record) error
	DeleteVector(ctx context.Context, id string) error
	LoadVectors(ctx context.Context) ([]Record, error)
}

type entry struct {
	id   string
	seq  int64
	vec  []float32
	norm float64
}

// Flat is an exact, linear-scan index. Every mutation is written through
// to the Persister; writes that fail stay pending until Flush.
type Flat struct {
	mu      sync.RWMutex
	entries []*entry // ascending seq
	byID    map[string]*entry
	dims    int
	nextSeq int64

	persist Persister
	log     *slog.Logger
	dirty   map[string]bool // failed saves
	removed map[string]bool // failed deletes
}

// NewFlat returns an empty in-memory index. p may be nil.
func NewFlat(p Persister, log *slog.Logger) *Flat {
	if log == nil {
		log = slog.Default()
	}
	return &Flat{
		byID:    make(map[string]*entry),
		nextSeq: 1,
		persist: p,
		log:     log.With("component", "vectorindex"),
		dirty:   make(map[string]bool),
		removed: make(map[string]bool),
	}
}

// LoadFlat rebuilds an index from its Persister.
func LoadFlat(ctx context.Context, p Persister, log *slog.Logger) (*Flat, error) {
	f := NewFlat(p, log)
	if p == nil {
		return f, nil
	}
	recs, err := p.LoadVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })
	for _, r := range recs {
		if len(r.Vector) == 0 {
			return nil, fmt.Errorf("%w: vector %s is empty", ErrCorrupt, r.ID)
		}
		if f.dims != 0 && len(r.Vector) != f.dims {
			return nil, fmt.Errorf("%w: vector %s has %d dims, want %d", ErrCorrupt, r.ID, len(r.Vector), f.dims)
		}
		if _, dup := f.byID[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate vector %s", ErrCorrupt, r.ID)
		}
		f.dims = len(r.Vector)
		e := &entry{id: r.ID, seq: r.Seq, vec: r.Vector, norm: norm(r.Vector)}
		f.entries = append(f.entries, e)
		f.byID[r.ID] = e
		if r.Seq >= f.nextSeq {
			f.nextSeq = r.Seq + 1
		}
	}
	return f, nil
}

// Upsert stores vec under id, replacing any previous vector but keeping
// its insertion position.
func (f *Flat) Upsert(ctx context.Context, id string, vec []float32) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dims != 0 && len(vec) != f.dims {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), f.dims)
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)

	e, ok := f.byID[id]
	if ok {
		e.vec, e.norm = cp, norm(cp)
	} else {
		e = &entry{id: id, seq: f.nextSeq, vec: cp, norm: norm(cp)}
		f.nextSeq++
		f.entries = append(f.entries, e)
		f.byID[id] = e
	}
	f.dims = len(cp)
	delete(f.removed, id)
	f.save(ctx, e)
	return nil
}

func (f *Flat) save(ctx context.Context, e *entry) {
	if f.persist == nil {
		return
	}
	if err := f.persist.SaveVector(ctx, Record{ID: e.id, Seq: e.seq, Vector: e.vec}); err != nil {
		f.log.Error("persist vector failed", "id", e.id, "error", err)
		f.dirty[e.id] = true
		return
	}
	delete(f.dirty, e.id)
}

// Search returns up to k hits with similarity >= minSimilarity. k <= 0
// means no limit.
func (f *Flat) Search(_ context.Context, query []float32, k int, minSimilarity float64) ([]Hit, error) {
	qn := norm(query)
	if len(query) == 0 || qn == 0 {
		return nil, ErrZeroVector
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.entries) == 0 {
		return nil, nil
	}
	if len(query) != f.dims {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), f.dims)
	}

	hits := make([]Hit, 0, len(f.entries))
	for _, e := range f.entries {
		sim := cosine(query, qn, e.vec, e.norm)
		if sim < minSimilarity {
			continue
		}
		hits = append(hits, Hit{ID: e.id, Similarity: sim})
	}
	// entries are in insertion order, so a stable sort keeps ties that way.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Remove deletes id. Unknown ids are ignored.
func (f *Flat) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.byID[id]; !ok {
		return nil
	}
	delete(f.byID, id)
	delete(f.dirty, id)
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.id != id {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(f.entries); i++ {
		f.entries[i] = nil
	}
	f.entries = kept

	if f.persist != nil {
		if err := f.persist.DeleteVector(ctx, id); err != nil {
			f.log.Error("delete vector failed", "id", id, "error", err)
			f.removed[id] = true
		}
	}
	return nil
}

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Pending returns how many mutations still need to reach the Persister.
func (f *Flat) Pending() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.dirty) + len(f.removed)
}

// Flush retries every mutation that failed to persist.
func (f *Flat) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persist == nil {
		return nil
	}

	var errs []error
	for id := range f.dirty {
		e, ok := f.byID[id]
		if !ok {
			delete(f.dirty, id)
			continue
		}
		if err := f.persist.SaveVector(ctx, Record{ID: e.id, Seq: e.seq, Vector: e.vec}); err != nil {
			errs = append(errs, fmt.Errorf("save vector %s: %w", id, err))
			continue
		}
		delete(f.dirty, id)
	}
	for id := range f.removed {
		if err := f.persist.DeleteVector(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("delete vector %s: %w", id, err))
			continue
		}
		delete(f.removed, id)
	}
	return errors.Join(errs...)
}

// Close flushes pending writes.
func (f *Flat) Close() error {
	return f.Flush(context.Background())
}
