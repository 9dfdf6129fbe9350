package assemble

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humbrol2/humbbot-memory/internal/model"
	"github.com/humbrol2/humbbot-memory/internal/relevance"
	"github.com/humbrol2/humbbot-memory/internal/tier"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func ev(id string, seq int64, age time.Duration, sig float64, p model.Payload) *model.Event {
	return &model.Event{ID: id, Seq: seq, Type: p.EventType(), Timestamp: now.Add(-age), Payload: p, Significance: sig}
}

func run(cands []Candidate, qc model.QueryContext, budget int) *Result {
	return Assemble(cands, relevance.Prepare(qc), relevance.NewBlended(relevance.DefaultWeights()),
		tier.DefaultPolicy(), DefaultOptions(), budget, now)
}

func TestAssemble_Empty(t *testing.T) {
	res := run(nil, model.QueryContext{}, 500)
	assert.Equal(t, Placeholder, res.Text)
	assert.Empty(t, res.Events)
}

func TestAssemble_TinyBudgetDropsPlaceholder(t *testing.T) {
	for _, budget := range []int{0, 1, EstimateText(Placeholder) - 1} {
		res := run(nil, model.QueryContext{}, budget)
		assert.Empty(t, res.Text, "budget %d", budget)
		assert.Zero(t, res.Used)
	}
	res := run(nil, model.QueryContext{}, EstimateText(Placeholder))
	assert.Equal(t, Placeholder, res.Text)
	assert.Equal(t, res.Budget, res.Used)
}

func TestAssemble_CombatScenario(t *testing.T) {
	combat := ev("c", 1, 5*time.Minute, 0.75, model.Combat{
		Participants: []string{"Hero", "Dragon"},
		Location:     "Dragon Lair",
		Outcome:      "victory",
		Casualties:   []string{"Dragon"},
	})
	noise := ev("n", 2, 2*time.Minute, 0.25, model.Generic{Text: "The wind howls"})

	res := run([]Candidate{{Event: noise}, {Event: combat}}, model.QueryContext{
		Location:     "Dragon Lair",
		Participants: []string{"Hero"},
	}, 500)

	require.Len(t, res.Events, 2)
	assert.Equal(t, "c", res.Events[0].Event.ID, "combat outranks noise")
	assert.Contains(t, res.Text, "Recent events:")
	assert.Contains(t, res.Text, "- [combat] Combat at Dragon Lair between Hero, Dragon. Outcome: victory. Casualties: Dragon. (5m ago)")
	assert.LessOrEqual(t, res.Used, res.Budget)
}

func TestAssemble_Sections(t *testing.T) {
	sim := 0.9
	low := 0.5
	related := ev("r", 1, 72*time.Hour, 0.6, model.Travel{From: "Keep", To: "Marsh"})
	recent := ev("n", 2, 10*time.Minute, 0.5, model.Generic{Text: "Camp set up"})
	earlier := ev("e", 3, 5*time.Hour, 0.5, model.Generic{Text: "Crossed the river"})

	res := run([]Candidate{
		{Event: related, Similarity: &sim},
		{Event: recent},
		{Event: earlier, Similarity: &low},
	}, model.QueryContext{}, 500)

	require.Len(t, res.Events, 3)
	lines := strings.Split(res.Text, "\n")
	assert.Equal(t, []string{
		"Semantically related:",
		"- [travel] Party traveled from Keep to Marsh. (3d ago)",
		"",
		"Recent events:",
		"- [generic] Camp set up (10m ago)",
		"",
		"Earlier history:",
		"- [generic] Crossed the river (5h ago)",
	}, lines)
	assert.Equal(t, EstimateText(res.Text), res.Used)
}

func TestAssemble_RespectsBudget(t *testing.T) {
	var cands []Candidate
	for i := 0; i < 40; i++ {
		cands = append(cands, Candidate{Event: ev(fmt.Sprintf("e%02d", i), int64(i), time.Duration(i)*time.Hour, 0.5,
			model.Generic{Text: strings.Repeat("lorem ipsum ", 1+i%5)})})
	}
	for _, budget := range []int{10, 25, 60, 150, 400} {
		res := run(cands, model.QueryContext{}, budget)
		if len(res.Events) == 0 {
			continue
		}
		assert.LessOrEqual(t, res.Used, budget, "budget %d", budget)
		assert.Equal(t, EstimateText(res.Text), res.Used)
	}
}

func TestAssemble_SkipsOversizeEvent(t *testing.T) {
	huge := ev("huge", 1, time.Minute, 1.0, model.Generic{Text: strings.Repeat("x", 400)})
	small := ev("small", 2, 2*time.Minute, 0.3, model.Generic{Text: "short"})

	res := run([]Candidate{{Event: huge}, {Event: small}}, model.QueryContext{}, 30)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "small", res.Events[0].Event.ID)
	assert.Equal(t, 1, res.Skipped)
}

func TestAssemble_StopsAtFirstMisfit(t *testing.T) {
	a := ev("a", 1, time.Minute, 0.9, model.Generic{Text: "alpha"})
	b := ev("b", 2, time.Minute, 0.6, model.Generic{Text: strings.Repeat("beta ", 4)})
	c := ev("c", 3, time.Minute, 0.4, model.Generic{Text: "gamma"})

	header := EstimateTokens(string(SectionRecent))
	budget := header + EstimateTokens(Line(a, now)) + EstimateTokens(Line(c, now))
	res := run([]Candidate{{Event: a}, {Event: b}, {Event: c}}, model.QueryContext{}, budget)

	require.Len(t, res.Events, 1)
	assert.Equal(t, "a", res.Events[0].Event.ID)
}

func TestAssemble_Idempotent(t *testing.T) {
	var cands []Candidate
	for i := 0; i < 10; i++ {
		cands = append(cands, Candidate{
			Event:    ev(fmt.Sprintf("e%d", i), int64(i), time.Duration(i)*30*time.Minute, 0.3+float64(i%3)*0.2, model.Generic{Text: "walk"}),
			Accesses: i % 2,
		})
	}
	first := run(cands, model.QueryContext{RecentActions: []string{"walk"}}, 80)
	second := run(cands, model.QueryContext{RecentActions: []string{"walk"}}, 80)
	assert.Equal(t, first.Text, second.Text)
}

func TestRank_TieBreaks(t *testing.T) {
	older := ev("a", 1, time.Hour, 0.5, model.Generic{Text: "same"})
	newer := ev("b", 2, 30*time.Minute, 0.5, model.Generic{Text: "same"})
	sameTimeHigherSeq := ev("c", 3, time.Hour, 0.5, model.Generic{Text: "same"})

	flat := constScorer(0.5)
	pol := tier.DefaultPolicy()
	opts := DefaultOptions()
	opts.RecencyHalfLife = 0 // recency factor 1 for all

	ranked := Rank([]Candidate{{Event: older}, {Event: sameTimeHigherSeq}, {Event: newer}},
		relevance.Prepare(model.QueryContext{}), flat, pol, opts, now)
	ids := []string{ranked[0].Event.ID, ranked[1].Event.ID, ranked[2].Event.ID}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}

func TestRank_UsesFrozenAccessCount(t *testing.T) {
	e := ev("a", 1, time.Hour, 0.3, model.Generic{Text: "x"})
	pol := tier.DefaultPolicy()
	q := relevance.Prepare(model.QueryContext{})
	scorer := constScorer(1)

	cold := Rank([]Candidate{{Event: e, Accesses: 0}}, q, scorer, pol, DefaultOptions(), now)
	e.AccessCount = 5
	stillCold := Rank([]Candidate{{Event: e, Accesses: 0}}, q, scorer, pol, DefaultOptions(), now)
	warm := Rank([]Candidate{{Event: e, Accesses: 2}}, q, scorer, pol, DefaultOptions(), now)

	assert.Equal(t, cold[0].Rank, stillCold[0].Rank)
	assert.Greater(t, warm[0].Rank, cold[0].Rank)
}

type constScorer float64

func (c constScorer) Score(*model.Event, *relevance.Query, *float64) float64 { return float64(c) }

func TestElapsed(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{0, "just now"},
		{59 * time.Second, "just now"},
		{time.Minute, "1m ago"},
		{59 * time.Minute, "59m ago"},
		{90 * time.Minute, "1h ago"},
		{23 * time.Hour, "23h ago"},
		{49 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Elapsed(tt.age), tt.age.String())
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcd"))
	assert.Equal(t, 3, EstimateText("abc\nabcd"))
	assert.Equal(t, 0, EstimateText(""))
}
