package engine

import (
	"context"
	"strings"

	"github.com/humbrol2/humbbot-memory/internal/model"
	"github.com/humbrol2/humbbot-memory/internal/recorder"
)

// Record stores a new event and returns its ID. A nil hint lets the
// significance policy decide. Storage and embedding failures are logged and
// never lose the event: it stays in memory until a later flush and, without
// a vector, is still found by lexical scoring. Only events that classify as
// hot join the working set; the rest are reached through look-back.
func (e *Engine) Record(ctx context.Context, p model.Payload, hint *float64) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev := e.rec.Build(p, hint)
	ev.Seq = e.nextSeq
	e.nextSeq++

	if err := e.store.PutEvent(ctx, ev); err != nil {
		e.persistError("put_event", err, "id", ev.ID)
		e.unsaved[ev.ID] = ev
	}
	e.embed(ctx, ev)

	if e.cfg.Tiers.ClassifyEvent(ev, e.now()) == model.TierHot {
		e.hot = append(e.hot, ev)
	}
	e.turn = nil
	e.metrics.EventsRecorded.WithLabelValues(string(ev.Type)).Inc()

	if len(e.hot) >= e.cfg.Compaction.HotThreshold {
		if _, err := e.compactLocked(ctx, "threshold"); err != nil {
			e.log.Error("threshold compaction", "error", err)
		}
		e.demote()
	}
	e.metrics.HotEvents.WithLabelValues(e.session).Set(float64(len(e.hot)))

	e.log.Debug("event recorded", "id", ev.ID, "type", ev.Type, "significance", ev.Significance)
	return ev.ID, nil
}

// RecordRaw decodes an untyped payload and records it. Unknown tags and
// malformed bodies are recorded as generic or neutral events; the decode
// problem is only logged.
func (e *Engine) RecordRaw(ctx context.Context, tag string, raw []byte, hint *float64) (string, error) {
	p, err := recorder.Normalize(tag, raw)
	if err != nil {
		e.log.Warn("event input normalized", "tag", tag, "error", err)
	}
	return e.Record(ctx, p, hint)
}

// embed indexes the event's description. Failures degrade to an event
// without a vector.
func (e *Engine) embed(ctx context.Context, ev *model.Event) {
	if e.embedder == nil {
		return
	}
	text := strings.TrimSpace(ev.Text())
	if text == "" {
		return
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.metrics.EmbeddingFailures.Inc()
		e.log.Warn("embedding failed, event stored without vector", "id", ev.ID, "error", err)
		return
	}
	if err := e.index.Upsert(ctx, ev.ID, vec); err != nil {
		e.metrics.EmbeddingFailures.Inc()
		e.log.Warn("index vector", "id", ev.ID, "error", err)
	}
}

// demote drops the oldest events from the working set when compaction left
// it full. Demoted events stay reachable through look-back and search.
func (e *Engine) demote() {
	limit := e.cfg.Compaction.HotThreshold
	if len(e.hot) < limit {
		return
	}
	keep := limit / 2
	n := len(e.hot) - keep
	e.log.Info("hot set full, demoting oldest events", "demoted", n, "kept", keep)
	e.hot = append(e.hot[:0:0], e.hot[n:]...)
}
