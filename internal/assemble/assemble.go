// Package assemble ranks memory events against a query and renders the
// ones that fit a token budget as a sectioned text block.
package assemble

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/humbrol2/humbbot-memory/internal/model"
	"github.com/humbrol2/humbbot-memory/internal/relevance"
	"github.com/humbrol2/humbbot-memory/internal/tier"
)

// Placeholder is the text returned when nothing was selected.
const Placeholder = "No significant history yet."

// Section is a heading in the rendered block.
type Section string

const (
	SectionSemantic Section = "Semantically related:"
	SectionRecent   Section = "Recent events:"
	SectionEarlier  Section = "Earlier history:"
)

var sectionOrder = []Section{SectionSemantic, SectionRecent, SectionEarlier}

// Options tunes ranking and rendering.
type Options struct {
	// SemanticThreshold is the similarity above which an event is listed as
	// semantically related.
	SemanticThreshold float64 `yaml:"semantic_threshold"`
	// ImmediateWindow is the age below which an event counts as recent.
	ImmediateWindow time.Duration `yaml:"immediate_window"`
	// RecencyHalfLife is the age at which the recency factor halves.
	RecencyHalfLife time.Duration `yaml:"-"`
}

// DefaultOptions returns the built-in options.
func DefaultOptions() Options {
	return Options{
		SemanticThreshold: 0.7,
		ImmediateWindow:   time.Hour,
		RecencyHalfLife:   168 * time.Hour,
	}
}

// Candidate is an event eligible for this turn.
type Candidate struct {
	Event *model.Event
	// Similarity is the vector similarity to the query, nil without a hit.
	Similarity *float64
	// Accesses is the access count frozen at the start of the turn.
	Accesses int
}

// Ranked is a scored candidate.
type Ranked struct {
	Candidate
	Relevance float64
	Rank      float64
}

// Selected is an event chosen for the context block.
type Selected struct {
	Event      *model.Event `json:"event"`
	Rank       float64      `json:"rank"`
	Relevance  float64      `json:"relevance"`
	Similarity *float64     `json:"similarity,omitempty"`
	Section    Section      `json:"section"`
	Line       string       `json:"line"`
	Tokens     int          `json:"tokens"`
}

// Result is an assembled context block. Used never exceeds Budget: when
// nothing was selected and even the placeholder does not fit, Text is empty.
type Result struct {
	Text       string     `json:"text"`
	Events     []Selected `json:"events"`
	Budget     int        `json:"budget"`
	Used       int        `json:"used"`
	Considered int        `json:"considered"`
	Skipped    int        `json:"skipped,omitempty"`
}

// Rank scores every candidate as relevance x effective significance x
// recency and sorts them best first. Ties go to the newer event.
func Rank(cands []Candidate, q *relevance.Query, scorer relevance.Scorer, pol tier.Policy, opts Options, now time.Time) []Ranked {
	out := make([]Ranked, 0, len(cands))
	for _, c := range cands {
		rel := scorer.Score(c.Event, q, c.Similarity)
		eff := pol.EffectiveSignificance(c.Event.Significance, c.Accesses)
		rec := relevance.Recency(c.Event.Age(now), opts.RecencyHalfLife)
		out = append(out, Ranked{Candidate: c, Relevance: rel, Rank: rel * eff * rec})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Event, out[j].Event
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if a.Seq != b.Seq {
			return a.Seq > b.Seq
		}
		return a.ID > b.ID
	})
	return out
}

// Select walks ranked greedily and keeps what fits the budget, counting each
// section header and the blank line between sections. An event too large
// for the whole budget on its own is skipped; otherwise the first event that
// does not fit ends selection.
func Select(ranked []Ranked, budget int, opts Options, now time.Time) ([]Selected, int) {
	var selected []Selected
	opened := map[Section]bool{}
	used, skipped := 0, 0

	for _, r := range ranked {
		sec := sectionFor(r.Candidate, opts, now)
		line := Line(r.Event, now)
		cost := EstimateTokens(line)
		overhead := 0
		if !opened[sec] {
			overhead = EstimateTokens(string(sec))
			if len(opened) > 0 {
				overhead += EstimateTokens("")
			}
		}

		// Too large even as the only entry.
		if cost+EstimateTokens(string(sec)) > budget {
			skipped++
			continue
		}
		if used+cost+overhead > budget {
			break
		}
		used += cost + overhead
		opened[sec] = true
		selected = append(selected, Selected{
			Event:      r.Event,
			Rank:       r.Rank,
			Relevance:  r.Relevance,
			Similarity: r.Similarity,
			Section:    sec,
			Line:       line,
			Tokens:     cost,
		})
	}
	return selected, skipped
}

func sectionFor(c Candidate, opts Options, now time.Time) Section {
	if c.Similarity != nil && *c.Similarity > opts.SemanticThreshold {
		return SectionSemantic
	}
	if c.Event.Age(now) < opts.ImmediateWindow {
		return SectionRecent
	}
	return SectionEarlier
}

// Render lays selected out by section, keeping rank order within each.
func Render(selected []Selected) string {
	if len(selected) == 0 {
		return Placeholder
	}
	var b strings.Builder
	for _, sec := range sectionOrder {
		first := true
		for _, s := range selected {
			if s.Section != sec {
				continue
			}
			if first {
				if b.Len() > 0 {
					b.WriteString("\n\n")
				}
				b.WriteString(string(sec))
				first = false
			}
			b.WriteString("\n")
			b.WriteString(s.Line)
		}
	}
	return b.String()
}

// Assemble ranks, selects and renders in one step. It does not touch
// access counts; the caller records them for the returned events.
func Assemble(cands []Candidate, q *relevance.Query, scorer relevance.Scorer, pol tier.Policy, opts Options, budget int, now time.Time) *Result {
	ranked := Rank(cands, q, scorer, pol, opts, now)
	selected, skipped := Select(ranked, budget, opts, now)
	text := Render(selected)
	if EstimateText(text) > budget {
		text = ""
	}
	if selected == nil {
		selected = []Selected{}
	}
	return &Result{
		Text:       text,
		Events:     selected,
		Budget:     budget,
		Used:       EstimateText(text),
		Considered: len(cands),
		Skipped:    skipped,
	}
}

// Line renders one event as "- [type] description (elapsed)".
func Line(e *model.Event, now time.Time) string {
	desc := strings.TrimSpace(e.Text())
	if desc == "" {
		desc = "(no details)"
	}
	return fmt.Sprintf("- [%s] %s (%s)", e.Type, desc, Elapsed(e.Age(now)))
}

// Elapsed renders an age as "just now", "5m ago", "3h ago" or "2d ago".
func Elapsed(age time.Duration) string {
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age/time.Minute))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age/time.Hour))
	}
	return fmt.Sprintf("%dd ago", int(age/(24*time.Hour)))
}

// EstimateTokens approximates the tokens of one line, newline included, at
// four characters per token.
func EstimateTokens(line string) int {
	return (len(line) + 1 + 3) / 4
}

// EstimateText sums EstimateTokens over the lines of text.
func EstimateText(text string) int {
	if text == "" {
		return 0
	}
	n := 0
	for _, line := range strings.Split(text, "\n") {
		n += EstimateTokens(line)
	}
	return n
}
