package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/humbrol2/humbbot-memory/internal/assemble"
	"github.com/humbrol2/humbbot-memory/internal/model"
	"github.com/humbrol2/humbbot-memory/internal/relevance"
	"github.com/humbrol2/humbbot-memory/internal/store"
	"github.com/humbrol2/humbbot-memory/internal/vectorindex"
)

// Assemble builds the context block for the current situation within budget
// tokens; budget <= 0 uses the configured default. It never fails the turn:
// storage or embedding problems shrink the candidate set, and with nothing
// to show the block is the placeholder.
func (e *Engine) Assemble(ctx context.Context, qc model.QueryContext, budget int) (*assemble.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	now := e.now()
	if budget <= 0 {
		budget = e.cfg.Assembly.Budget
	}

	events, sims := e.similar(ctx, relevance.QueryText(qc), e.gather(ctx))

	if e.turn == nil {
		e.turn = make(map[string]int, len(events))
	}
	cands := make([]assemble.Candidate, 0, len(events))
	for _, ev := range events {
		frozen, ok := e.turn[ev.ID]
		if !ok {
			frozen = ev.AccessCount
			e.turn[ev.ID] = frozen
		}
		c := assemble.Candidate{Event: ev, Accesses: frozen}
		if s, ok := sims[ev.ID]; ok {
			s := s
			c.Similarity = &s
		}
		cands = append(cands, c)
	}

	res := assemble.Assemble(cands, relevance.Prepare(qc), e.scorer, e.cfg.Tiers, e.asmOpts, budget, now)

	for _, sel := range res.Events {
		ev := sel.Event
		ev.AccessCount++
		at := now
		ev.LastAccessed = &at
		if _, ok := e.unsaved[ev.ID]; ok {
			continue
		}
		if err := e.store.RecordAccess(ctx, ev.ID, ev.AccessCount, at); err != nil && !errors.Is(err, store.ErrNotFound) {
			e.persistError("record_access", err, "id", ev.ID)
		}
	}

	e.metrics.AssembleDuration.Observe(time.Since(start).Seconds())
	e.metrics.ContextTokens.Observe(float64(res.Used))
	e.log.Debug("context assembled", "considered", res.Considered, "selected", len(res.Events), "used", res.Used, "budget", budget)
	return res, nil
}

// gather returns the working set, events that are not yet persisted, and
// the most recent persisted events outside both, oldest first.
func (e *Engine) gather(ctx context.Context) []*model.Event {
	seen := make(map[string]bool, len(e.hot))
	out := make([]*model.Event, 0, len(e.hot)+len(e.unsaved)+e.cfg.Assembly.LookBack)
	for _, ev := range e.hot {
		seen[ev.ID] = true
		out = append(out, ev)
	}
	var unsaved []*model.Event
	for _, ev := range e.unsaved {
		if !seen[ev.ID] {
			seen[ev.ID] = true
			unsaved = append(unsaved, ev)
		}
	}
	sortBySeq(unsaved)

	lookBack := e.cfg.Assembly.LookBack
	if lookBack <= 0 {
		return append(unsaved, out...)
	}
	persisted, err := e.store.ListEvents(ctx, store.ListParams{Limit: lookBack + len(e.hot)})
	if err != nil {
		e.log.Error("look-back read failed, using working set only", "error", err)
	}
	var older []*model.Event
	for i := range persisted {
		ev := &persisted[i]
		if !seen[ev.ID] && !e.tombstones[ev.ID] {
			older = append(older, ev)
		}
	}
	sortBySeq(older)
	if len(older) > lookBack {
		older = older[len(older)-lookBack:]
	}
	older = append(older, unsaved...)
	sortBySeq(older)
	return append(older, out...)
}

// similar embeds the query text and returns vector similarities by event ID.
// Hits outside events are loaded and appended to it.
func (e *Engine) similar(ctx context.Context, text string, events []*model.Event) ([]*model.Event, map[string]float64) {
	sims := map[string]float64{}
	hits := e.vectorHits(ctx, text, e.cfg.VectorIndex.K)
	if len(hits) == 0 {
		return events, sims
	}
	have := make(map[string]bool, len(events))
	for _, ev := range events {
		have[ev.ID] = true
	}
	for _, h := range hits {
		if !have[h.ID] {
			ev, err := e.eventByID(ctx, h.ID)
			if err != nil {
				e.log.Debug("vector hit without event", "id", h.ID, "error", err)
				continue
			}
			events = append(events, ev)
			have[h.ID] = true
		}
		sims[h.ID] = h.Similarity
	}
	return events, sims
}

// vectorHits runs a similarity search for text. Any failure yields no hits.
func (e *Engine) vectorHits(ctx context.Context, text string, k int) []vectorindex.Hit {
	if e.embedder == nil || e.index.Len() == 0 || strings.TrimSpace(text) == "" {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.metrics.EmbeddingFailures.Inc()
		e.log.Warn("query embedding failed, lexical scoring only", "error", err)
		return nil
	}
	hits, err := e.index.Search(ctx, vec, k, e.cfg.VectorIndex.MinSimilarity)
	if err != nil {
		e.log.Warn("vector search failed", "error", err)
		return nil
	}
	return hits
}
