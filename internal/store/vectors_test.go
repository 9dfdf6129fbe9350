package store

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/humbrol2/humbbot-memory/internal/vectorindex"
)

func TestVectorsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	in := []vectorindex.Record{
		{ID: "a", Seq: 1, Vector: []float32{0.25, -1.5, float32(math.Pi)}},
		{ID: "b", Seq: 2, Vector: []float32{1e-7, 3.4e38, 0}},
	}
	for _, r := range in {
		if err := s.SaveVector(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	// Upsert replaces the vector, keeps seq.
	if err := s.SaveVector(ctx, vectorindex.Record{ID: "a", Seq: 9, Vector: []float32{1, 2, 3}}); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := s.LoadVectors(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(got))
	}
	if got[0].ID != "a" || got[0].Seq != 1 || got[0].Vector[2] != 3 {
		t.Errorf("a: %+v", got[0])
	}
	for i, x := range in[1].Vector {
		if got[1].Vector[i] != x {
			t.Errorf("b[%d]: got %v want %v", i, got[1].Vector[i], x)
		}
	}

	if err := s.DeleteVector(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ = s.LoadVectors(ctx)
	if len(got) != 1 {
		t.Errorf("expected 1 vector after delete, got %d", len(got))
	}
}

func TestLoadVectors_Corrupt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.db.Exec(`INSERT INTO vectors (id, seq, dims, vector) VALUES ('x', 1, 4, X'0102')`); err != nil {
		t.Fatal(err)
	}
	_, err := s.LoadVectors(ctx)
	if !errors.Is(err, vectorindex.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestFlatIndexOverStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	idx := vectorindex.NewFlat(s, nil)
	idx.Upsert(ctx, "e1", []float32{1, 0, 0})
	idx.Upsert(ctx, "e2", []float32{0.6, 0.8, 0})
	idx.Upsert(ctx, "e3", []float32{0, 0, 1})
	query := []float32{1, 0.5, 0}
	before, err := idx.Search(ctx, query, 2, 0)
	if err != nil {
		t.Fatal(err)
	}

	reloaded, err := vectorindex.LoadFlat(ctx, s, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	after, err := reloaded.Search(ctx, query, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != len(after) {
		t.Fatalf("hit count changed: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("hit %d: %+v vs %+v", i, before[i], after[i])
		}
	}
}
