package engine

import (
	"context"
	"sort"
	"time"

	"github.com/humbrol2/humbbot-memory/internal/compact"
	"github.com/humbrol2/humbbot-memory/internal/model"
	"github.com/humbrol2/humbbot-memory/internal/store"
)

// Compact folds archived, low-significance events into per-type summaries,
// refreshes the cached tiers of the survivors and rebuilds the working set.
func (e *Engine) Compact(ctx context.Context) (*compact.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compactLocked(ctx, "manual")
}

// CompactScheduled is Compact labeled as a scheduled run.
func (e *Engine) CompactScheduled(ctx context.Context) (*compact.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compactLocked(ctx, "schedule")
}

func (e *Engine) compactLocked(ctx context.Context, trigger string) (*compact.Result, error) {
	start := time.Now()
	now := e.now()
	if err := e.flushLocked(ctx); err != nil {
		e.log.Warn("flush before compaction", "error", err)
	}

	events := e.allEvents(ctx)
	plan := compact.Build(events, now, e.compPol)
	res := &compact.Result{
		Examined:  len(events),
		Removed:   len(plan.Remove),
		Retained:  len(plan.Retained),
		HotBefore: len(e.hot),
		Summaries: plan.Summaries,
		Persisted: true,
	}

	removeIDs := plan.RemoveIDs()
	if len(removeIDs) > 0 || len(e.pending) > 0 {
		summaries := append(append([]model.ArchiveSummary(nil), e.pending...), plan.Summaries...)
		ids := append(append([]string(nil), removeIDs...), sortedKeys(e.tombstones)...)
		if err := e.store.Archive(ctx, summaries, ids); err != nil {
			e.persistError("archive", err, "summaries", len(summaries), "events", len(ids))
			e.pending = summaries
			for _, id := range removeIDs {
				e.tombstones[id] = true
			}
			res.Persisted = false
		} else {
			e.pending = nil
			e.tombstones = map[string]bool{}
		}
	}
	for _, id := range removeIDs {
		delete(e.unsaved, id)
		if err := e.index.Remove(ctx, id); err != nil {
			e.log.Warn("remove vector", "id", id, "error", err)
		}
	}

	if len(plan.Tiers) > 0 {
		if err := e.store.SetTiers(ctx, plan.Tiers); err != nil {
			e.persistError("set_tiers", err)
		}
	}
	for _, ev := range events {
		if t, ok := plan.Tiers[ev.ID]; ok {
			ev.Tier = t
		}
	}
	e.hot = plan.Hot

	res.HotAfter = len(e.hot)
	res.Duration = time.Since(start)
	e.metrics.Compactions.WithLabelValues(trigger).Inc()
	e.metrics.EventsArchived.Add(float64(res.Removed))
	e.metrics.HotEvents.WithLabelValues(e.session).Set(float64(len(e.hot)))
	e.log.Info("compaction finished",
		"trigger", trigger,
		"examined", res.Examined,
		"removed", res.Removed,
		"retained", res.Retained,
		"summaries", len(res.Summaries),
		"hot", res.HotAfter,
		"persisted", res.Persisted,
		"duration", res.Duration)
	return res, nil
}

// allEvents returns every live event of the session in Seq order. In-memory
// copies win over stored ones; tombstoned events are left out.
func (e *Engine) allEvents(ctx context.Context) []*model.Event {
	mem := make(map[string]*model.Event, len(e.hot)+len(e.unsaved))
	for _, ev := range e.hot {
		mem[ev.ID] = ev
	}
	for id, ev := range e.unsaved {
		mem[id] = ev
	}

	stored, err := e.store.ListEvents(ctx, store.ListParams{})
	if err != nil {
		e.persistError("list_events", err)
	}
	out := make([]*model.Event, 0, len(stored)+len(mem))
	for i := range stored {
		ev := &stored[i]
		if m, ok := mem[ev.ID]; ok {
			ev = m
			delete(mem, ev.ID)
		}
		if !e.tombstones[ev.ID] {
			out = append(out, ev)
		}
	}
	for _, ev := range mem {
		if !e.tombstones[ev.ID] {
			out = append(out, ev)
		}
	}
	sortBySeq(out)
	return out
}

func sortBySeq(events []*model.Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Scheduler returns a cron scheduler that compacts this session on the
// configured schedule. The caller starts and stops it.
func (e *Engine) Scheduler() (*compact.Scheduler, error) {
	job := func(ctx context.Context) error {
		_, err := e.CompactScheduled(ctx)
		return err
	}
	return compact.NewScheduler(e.cfg.Compaction.Schedule, e.cfg.Compaction.Timeout, job, e.log)
}
