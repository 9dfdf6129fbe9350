package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/humbrol2/humbbot-memory/internal/model"
	"github.com/humbrol2/humbbot-memory/internal/store"
	"github.com/humbrol2/humbbot-memory/internal/textutil"
)

// Hit sources.
const (
	SourceVector  = "vector"
	SourceLexical = "lexical"
)

// SearchHit is one search result.
type SearchHit struct {
	Event  *model.Event `json:"event"`
	Score  float64      `json:"score"`
	Source string       `json:"source"`
}

// lexicalScan bounds how many stored events a lexical search reads.
const lexicalScan = 200

// Search finds the k events closest to text. It uses vector similarity when
// an embedder is available and falls back to keyword overlap when embedding
// fails or finds nothing. Search does not count as an access.
func (e *Engine) Search(ctx context.Context, text string, k int) ([]SearchHit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if k <= 0 {
		k = e.cfg.VectorIndex.K
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var out []SearchHit
	for _, h := range e.vectorHits(ctx, text, k) {
		ev, err := e.eventByID(ctx, h.ID)
		if err != nil {
			e.log.Debug("vector hit without event", "id", h.ID, "error", err)
			continue
		}
		out = append(out, SearchHit{Event: ev, Score: h.Similarity, Source: SourceVector})
	}
	if len(out) > 0 {
		return out, nil
	}
	return e.lexicalSearch(ctx, text, k), nil
}

// lexicalSearch scores events by the share of query keywords their
// description contains.
func (e *Engine) lexicalSearch(ctx context.Context, text string, k int) []SearchHit {
	terms := textutil.Keywords(text)
	if len(terms) == 0 {
		return nil
	}

	seen := map[string]bool{}
	var pool []*model.Event
	add := func(ev *model.Event) {
		if seen[ev.ID] || e.tombstones[ev.ID] {
			return
		}
		seen[ev.ID] = true
		pool = append(pool, ev)
	}
	for _, ev := range e.hot {
		add(ev)
	}
	for _, ev := range e.unsaved {
		add(ev)
	}
	stored, err := e.store.SearchEvents(ctx, store.SearchParams{Terms: terms, Limit: lexicalScan})
	if err != nil {
		e.log.Error("lexical search read failed, using working set only", "error", err)
	}
	for i := range stored {
		add(&stored[i])
	}

	var out []SearchHit
	for _, ev := range pool {
		n := textutil.Overlap(terms, textutil.Keywords(ev.Text()))
		if n == 0 {
			continue
		}
		out = append(out, SearchHit{Event: ev, Score: float64(n) / float64(len(terms)), Source: SourceLexical})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Event.Seq > out[j].Event.Seq
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
