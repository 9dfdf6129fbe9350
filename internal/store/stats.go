package store

import (
	"context"
	"os"

	"github.com/humbrol2/humbbot-memory/internal/model"
)

// Stats holds database statistics.
type Stats struct {
	DBPath      string             `json:"db_path"`
	DBSizeBytes int64              `json:"db_size_bytes"`
	Events      int                `json:"events"`
	Vectors     int                `json:"vectors"`
	Summaries   int                `json:"summaries"`
	Archived    int                `json:"archived_events"`
	ByTier      map[model.Tier]int `json:"by_tier"`
	ByType      []TypeStats        `json:"by_type"`
}

// TypeStats holds per-type counts.
type TypeStats struct {
	Type  model.EventType `json:"type"`
	Count int             `json:"count"`
}

// Stats returns database statistics. Tier counts come from the cached
// tier column.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path, ByTier: map[model.Tier]int{}}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&st.Events)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&st.Vectors)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(count), 0) FROM archive_summaries`).Scan(&st.Summaries, &st.Archived)

	rows, err := s.db.QueryContext(ctx, `SELECT tier, COUNT(*) FROM events GROUP BY tier`)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var tier string
		var n int
		rows.Scan(&tier, &n)
		st.ByTier[model.Tier(tier)] = n
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*) AS cnt
		FROM events GROUP BY event_type ORDER BY cnt DESC, event_type`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ts TypeStats
		var t string
		rows.Scan(&t, &ts.Count)
		ts.Type = model.EventType(t)
		st.ByType = append(st.ByType, ts)
	}

	return st, nil
}
