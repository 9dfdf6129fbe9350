// Package compact decides which aged memory events are folded into archive
// summaries and runs that decision on a schedule.
package compact

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/humbrol2/humbbot-memory/internal/model"
	"github.com/humbrol2/humbbot-memory/internal/tier"
)

// Policy controls compaction.
type Policy struct {
	Tiers tier.Policy
	// RetainSignificance keeps archived events at or above this significance.
	RetainSignificance float64
	// NewID names summaries; nil uses random UUIDs.
	NewID func() string
}

// DefaultPolicy returns the built-in compaction policy.
func DefaultPolicy() Policy {
	return Policy{Tiers: tier.DefaultPolicy(), RetainSignificance: 0.8}
}

// Plan is the outcome of examining a set of events.
type Plan struct {
	// Remove are the events folded into Summaries.
	Remove []*model.Event
	// Retained are archived events kept for their significance.
	Retained []*model.Event
	// Hot are the surviving events still in the hot tier, in input order.
	Hot []*model.Event
	// Tiers is the fresh classification of every surviving event.
	Tiers     map[string]model.Tier
	Summaries []model.ArchiveSummary
}

// RemoveIDs lists the IDs in Remove.
func (p *Plan) RemoveIDs() []string {
	ids := make([]string, len(p.Remove))
	for i, e := range p.Remove {
		ids[i] = e.ID
	}
	return ids
}

// Build classifies events at now and plans the compaction. It does not
// modify the events.
func Build(events []*model.Event, now time.Time, pol Policy) *Plan {
	p := &Plan{Tiers: make(map[string]model.Tier, len(events))}
	byType := map[model.EventType][]*model.Event{}

	for _, e := range events {
		t := pol.Tiers.ClassifyEvent(e, now)
		if t == model.TierArchived && e.Significance < pol.RetainSignificance {
			p.Remove = append(p.Remove, e)
			byType[e.Type] = append(byType[e.Type], e)
			continue
		}
		if t == model.TierArchived {
			p.Retained = append(p.Retained, e)
		}
		if t == model.TierHot {
			p.Hot = append(p.Hot, e)
		}
		p.Tiers[e.ID] = t
	}

	newID := pol.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	for _, t := range model.EventTypes {
		if group := byType[t]; len(group) > 0 {
			p.Summaries = append(p.Summaries, summarize(newID(), t, group, now))
		}
	}
	return p
}

func summarize(id string, t model.EventType, events []*model.Event, now time.Time) model.ArchiveSummary {
	s := model.ArchiveSummary{
		ID:          id,
		CompactedAt: now.UTC(),
		EventType:   t,
		Count:       len(events),
		FirstAt:     events[0].Timestamp,
		LastAt:      events[0].Timestamp,
	}
	people := map[string]bool{}
	places := map[string]bool{}
	var total float64
	for _, e := range events {
		total += e.Significance
		if e.Timestamp.Before(s.FirstAt) {
			s.FirstAt = e.Timestamp
		}
		if e.Timestamp.After(s.LastAt) {
			s.LastAt = e.Timestamp
		}
		for _, name := range model.Participants(e.Payload) {
			if name = strings.TrimSpace(name); name != "" {
				people[name] = true
			}
		}
		if loc := strings.TrimSpace(model.Location(e.Payload)); loc != "" {
			places[loc] = true
		}
	}
	s.MeanSignificance = total / float64(len(events))
	s.Participants = sortedKeys(people)
	s.Locations = sortedKeys(places)
	return s
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Result reports one compaction run.
type Result struct {
	Examined  int                    `json:"examined"`
	Removed   int                    `json:"removed"`
	Retained  int                    `json:"retained"`
	HotBefore int                    `json:"hot_before"`
	HotAfter  int                    `json:"hot_after"`
	Summaries []model.ArchiveSummary `json:"summaries,omitempty"`
	// Persisted is false when the archive write failed and the summaries
	// live only in memory.
	Persisted bool          `json:"persisted"`
	Duration  time.Duration `json:"duration_ns"`
}
