package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/humbrol2/humbbot-memory/internal/vectorindex"
)

// SaveVector upserts one vector as a little-endian float32 blob.
func (s *SQLiteStore) SaveVector(ctx context.Context, r vectorindex.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vectors (id, seq, dims, vector) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET dims = excluded.dims, vector = excluded.vector`,
		r.ID, r.Seq, len(r.Vector), encodeVector(r.Vector))
	if err != nil {
		return fmt.Errorf("save vector: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteVector(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	return nil
}

// LoadVectors returns every stored vector in insertion order. A blob whose
// length disagrees with its dims column is reported as corrupt.
func (s *SQLiteStore) LoadVectors(ctx context.Context) ([]vectorindex.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, seq, dims, vector FROM vectors ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	defer rows.Close()

	var recs []vectorindex.Record
	for rows.Next() {
		var r vectorindex.Record
		var dims int
		var blob []byte
		if err := rows.Scan(&r.ID, &r.Seq, &dims, &blob); err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob, dims)
		if err != nil {
			return nil, fmt.Errorf("vector %s: %w", r.ID, err)
		}
		r.Vector = vec
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte, dims int) ([]float32, error) {
	if dims <= 0 || len(b) != 4*dims {
		return nil, fmt.Errorf("%w: blob of %d bytes for %d dims", vectorindex.ErrCorrupt, len(b), dims)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

// ClearVectors drops every stored vector.
func (s *SQLiteStore) ClearVectors(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors`); err != nil {
		return fmt.Errorf("clear vectors: %w", err)
	}
	return nil
}
