package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/humbrol2/humbbot-memory/internal/model"
	"github.com/humbrol2/humbbot-memory/internal/store"
)

// Stats describes a session's memory.
type Stats struct {
	Session string       `json:"session"`
	Store   *store.Stats `json:"store"`
	// Tiers classifies every live event as of now.
	Tiers            map[model.Tier]int `json:"tiers"`
	Hot              int                `json:"hot"`
	Vectors          int                `json:"vectors"`
	VectorBackend    string             `json:"vector_backend"`
	Embedding        string             `json:"embedding"`
	Unsaved          int                `json:"unsaved,omitempty"`
	Tombstoned       int                `json:"tombstoned,omitempty"`
	PendingSummaries int                `json:"pending_summaries,omitempty"`
}

// Stats reports counts for the session.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}
	out := &Stats{
		Session:          e.session,
		Store:            st,
		Tiers:            map[model.Tier]int{},
		Hot:              len(e.hot),
		Vectors:          e.index.Len(),
		VectorBackend:    e.cfg.VectorIndex.Backend,
		Embedding:        "disabled",
		Unsaved:          len(e.unsaved),
		Tombstoned:       len(e.tombstones),
		PendingSummaries: len(e.pending),
	}
	if e.guard != nil {
		out.Embedding = e.cfg.Embedding.Provider + " (circuit " + e.guard.State() + ")"
	}
	now := e.now()
	for _, ev := range e.allEvents(ctx) {
		out.Tiers[e.cfg.Tiers.ClassifyEvent(ev, now)]++
	}
	return out, nil
}

// Summaries lists the archive, including summaries not yet persisted.
func (e *Engine) Summaries(ctx context.Context) ([]model.ArchiveSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sums, err := e.store.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	return append(sums, e.pending...), nil
}

// Export returns every live event and summary of the session.
func (e *Engine) Export(ctx context.Context) (*store.Dump, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sums, err := e.store.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	d := &store.Dump{Events: []model.Event{}, Summaries: append(sums, e.pending...)}
	for _, ev := range e.allEvents(ctx) {
		d.Events = append(d.Events, *ev)
	}
	return d, nil
}

// Import adds the events and summaries of a dump that the session does not
// already hold. Imported events are sequenced after existing ones in
// timestamp order and embedded. It returns the number of new events.
func (e *Engine) Import(ctx context.Context, d *store.Dump) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fresh := make([]model.Event, 0, len(d.Events))
	for _, ev := range d.Events {
		if ev.ID == "" {
			continue
		}
		_, err := e.store.GetEvent(ctx, ev.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return 0, err
		}
		fresh = append(fresh, ev)
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		if !fresh[i].Timestamp.Equal(fresh[j].Timestamp) {
			return fresh[i].Timestamp.Before(fresh[j].Timestamp)
		}
		return fresh[i].Seq < fresh[j].Seq
	})
	for i := range fresh {
		fresh[i].Seq = e.nextSeq
		e.nextSeq++
		if fresh[i].Payload == nil {
			fresh[i].Payload = model.Generic{}
			fresh[i].Type = model.EventGeneric
		}
	}

	n, err := e.store.Import(ctx, &store.Dump{Events: fresh, Summaries: d.Summaries})
	if err != nil {
		return 0, err
	}
	for i := range fresh {
		e.embed(ctx, &fresh[i])
	}
	e.turn = nil
	e.reloadHot(ctx)
	e.log.Info("import finished", "events", n, "summaries", len(d.Summaries))
	return n, nil
}
