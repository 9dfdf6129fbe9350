package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/humbrol2/humbbot-memory/internal/model"
)

// Dump is the portable form of a session's memory.
type Dump struct {
	Events    []model.Event          `json:"events"`
	Summaries []model.ArchiveSummary `json:"summaries,omitempty"`
}

// ExportAll returns every event and archive summary.
func (s *SQLiteStore) ExportAll(ctx context.Context) (*Dump, error) {
	events, err := s.ListEvents(ctx, ListParams{})
	if err != nil {
		return nil, err
	}
	sums, err := s.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.Event{}
	}
	return &Dump{Events: events, Summaries: sums}, nil
}

// Import stores events and summaries from an export. Skips IDs that already
// exist and returns the number of events inserted.
func (s *SQLiteStore) Import(ctx context.Context, d *Dump) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	imported := 0
	for _, e := range d.Events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return 0, fmt.Errorf("marshal payload %s: %w", e.ID, err)
		}
		tier := e.Tier
		if tier == "" {
			tier = model.TierHot
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO events (id, seq, event_type, payload, significance, access_count, last_accessed_at, created_at, tier, text)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Seq, string(e.Type), string(payload), e.Significance, e.AccessCount,
			formatTimePtr(e.LastAccessed), e.Timestamp.UTC().Format(timeFormat), string(tier), model.Describe(e.Payload))
		if err != nil {
			return 0, fmt.Errorf("import event %s: %w", e.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}
	for _, sum := range d.Summaries {
		if err := insertSummary(ctx, tx, sum, true); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return imported, nil
}
