package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/humbrol2/humbbot-memory/internal/model"
	"github.com/humbrol2/humbbot-memory/internal/textutil"
)

// SearchEvents finds events whose description contains any of the terms as
// a word, using the FTS5 index over event text.
func (s *SQLiteStore) SearchEvents(ctx context.Context, p SearchParams) ([]model.Event, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	match := ftsQuery(p.Terms)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE rowid IN (SELECT rowid FROM events_fts WHERE events_fts MATCH ?)
		 ORDER BY seq DESC LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ftsQuery ORs the word tokens of terms as quoted FTS5 strings, so query
// syntax characters in the input are never interpreted.
func ftsQuery(terms []string) string {
	seen := map[string]bool{}
	var parts []string
	for _, term := range terms {
		for _, tok := range textutil.Tokens(term) {
			tok = strings.Trim(tok, "'")
			if tok == "" || seen[tok] {
				continue
			}
			seen[tok] = true
			parts = append(parts, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"`)
		}
	}
	return strings.Join(parts, " OR ")
}
