package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/humbrol2/humbbot-memory/internal/model"
)

func (s *SQLiteStore) Archive(ctx context.Context, summaries []model.ArchiveSummary, removeIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, sum := range summaries {
		if err := insertSummary(ctx, tx, sum, false); err != nil {
			return err
		}
	}
	for _, id := range removeIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete event %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete vector %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

func insertSummary(ctx context.Context, tx *sql.Tx, sum model.ArchiveSummary, ignoreDup bool) error {
	participants, _ := json.Marshal(sum.Participants)
	locations, _ := json.Marshal(sum.Locations)
	verb := "INSERT"
	if ignoreDup {
		verb = "INSERT OR IGNORE"
	}
	_, err := tx.ExecContext(ctx,
		verb+` INTO archive_summaries (id, compacted_at, event_type, count, participants, locations, first_at, last_at, mean_significance)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.CompactedAt.UTC().Format(timeFormat), string(sum.EventType), sum.Count,
		string(participants), string(locations),
		sum.FirstAt.UTC().Format(timeFormat), sum.LastAt.UTC().Format(timeFormat), sum.MeanSignificance)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Summaries(ctx context.Context) ([]model.ArchiveSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, compacted_at, event_type, count, participants, locations, first_at, last_at, mean_significance
		 FROM archive_summaries ORDER BY compacted_at, event_type`)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var out []model.ArchiveSummary
	for rows.Next() {
		var sum model.ArchiveSummary
		var eventType, compactedAt, firstAt, lastAt string
		var participants, locations sql.NullString
		if err := rows.Scan(&sum.ID, &compactedAt, &eventType, &sum.Count, &participants, &locations,
			&firstAt, &lastAt, &sum.MeanSignificance); err != nil {
			return nil, err
		}
		sum.EventType = model.EventType(eventType)
		sum.CompactedAt, _ = time.Parse(timeFormat, compactedAt)
		sum.FirstAt, _ = time.Parse(timeFormat, firstAt)
		sum.LastAt, _ = time.Parse(timeFormat, lastAt)
		if participants.Valid {
			json.Unmarshal([]byte(participants.String), &sum.Participants)
		}
		if locations.Valid {
			json.Unmarshal([]byte(locations.String), &sum.Locations)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
