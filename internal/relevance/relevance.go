// Package relevance scores how relevant a memory event is to the current
// situation, blending lexical overlap with vector similarity.
package relevance

import (
	"math"
	"strings"
	"time"

	"github.com/humbrol2/humbbot-memory/internal/model"
	"github.com/humbrol2/humbbot-memory/internal/textutil"
)

// Weights are the scoring constants.
type Weights struct {
	Base           float64 `yaml:"base"`
	Location       float64 `yaml:"location"`
	Participant    float64 `yaml:"participant"`
	ParticipantCap float64 `yaml:"participant_cap"`
	ActionGroup    float64 `yaml:"action_group"`
	Keyword        float64 `yaml:"keyword"`
	KeywordCap     float64 `yaml:"keyword_cap"`

	// VectorWeight is the share of the blended score taken by similarity.
	VectorWeight float64 `yaml:"vector_weight"`

	// RecencyHalfLife is the age at which the recency factor halves.
	RecencyHalfLife time.Duration `yaml:"recency_half_life"`
}

// DefaultWeights returns the built-in constants.
func DefaultWeights() Weights {
	return Weights{
		Base:            0.1,
		Location:        0.3,
		Participant:     0.2,
		ParticipantCap:  0.4,
		ActionGroup:     0.25,
		Keyword:         0.05,
		KeywordCap:      0.2,
		VectorWeight:    0.7,
		RecencyHalfLife: 168 * time.Hour,
	}
}

// Query is a QueryContext prepared for repeated scoring.
type Query struct {
	model.QueryContext
	groups   map[Group]bool
	keywords []string
	people   []string
}

// Prepare precomputes the parts of qc used by every score.
func Prepare(qc model.QueryContext) *Query {
	q := &Query{QueryContext: qc, groups: map[Group]bool{}}
	for _, a := range qc.RecentActions {
		for _, g := range ActionGroups(a) {
			q.groups[g] = true
		}
	}
	q.keywords = textutil.Keywords(qc.Text + " " + strings.Join(qc.RecentActions, " "))
	for _, p := range qc.Participants {
		if p = strings.TrimSpace(p); p != "" {
			q.people = append(q.people, p)
		}
	}
	return q
}

// Keywords returns the query's distinct keywords.
func (q *Query) Keywords() []string { return q.keywords }

// Scorer rates an event against a query. sim is the event's vector
// similarity to the query, or nil when the event had no vector hit.
type Scorer interface {
	Score(e *model.Event, q *Query, sim *float64) float64
}

// Lexical scores on location, participant, action-group and keyword overlap.
// It ignores sim.
type Lexical struct {
	W Weights
}

func (l Lexical) Score(e *model.Event, q *Query, _ *float64) float64 {
	w := l.W
	score := w.Base

	if textutil.EqualFold(model.Location(e.Payload), q.Location) {
		score += w.Location
	}

	matched := 0
	for _, p := range model.Participants(e.Payload) {
		for _, qp := range q.people {
			if textutil.EqualFold(p, qp) {
				matched++
				break
			}
		}
	}
	score += math.Min(float64(matched)*w.Participant, w.ParticipantCap)

	for _, g := range TypeGroups(e.Type) {
		if q.groups[g] {
			score += w.ActionGroup
			break
		}
	}

	if len(q.keywords) > 0 {
		n := textutil.Overlap(q.keywords, textutil.Keywords(e.Text()))
		score += math.Min(float64(n)*w.Keyword, w.KeywordCap)
	}

	return math.Min(score, 1.0)
}

// Blended combines Lexical with vector similarity. An event with a vector
// hit scores the better of its lexical score and the weighted blend, so
// matching both ways never counts twice.
type Blended struct {
	Lexical Lexical
}

// NewBlended returns the standard scorer for w.
func NewBlended(w Weights) Blended {
	return Blended{Lexical: Lexical{W: w}}
}

func (b Blended) Score(e *model.Event, q *Query, sim *float64) float64 {
	lex := b.Lexical.Score(e, q, nil)
	if sim == nil {
		return lex
	}
	v := math.Max(*sim, 0)
	w := b.Lexical.W.VectorWeight
	return math.Min(math.Max(lex, w*v+(1-w)*lex), 1.0)
}

// Recency is 2^(-age/halfLife): 1 for a new event, 0.5 at one half-life.
func Recency(age, halfLife time.Duration) float64 {
	if halfLife <= 0 || age <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(halfLife))
}

// QueryText renders qc as the text embedded for vector search.
func QueryText(qc model.QueryContext) string {
	var parts []string
	if loc := strings.TrimSpace(qc.Location); loc != "" {
		parts = append(parts, "Location: "+loc+".")
	}
	if len(qc.Participants) > 0 {
		parts = append(parts, "Participants: "+strings.Join(qc.Participants, ", ")+".")
	}
	if len(qc.RecentActions) > 0 {
		parts = append(parts, "Recent actions: "+strings.Join(qc.RecentActions, ", ")+".")
	}
	if t := strings.TrimSpace(qc.Text); t != "" {
		parts = append(parts, t)
	}
	return strings.Join(parts, " ")
}
