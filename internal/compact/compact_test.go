package compact

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humbrol2/humbbot-memory/internal/model"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func ev(id string, age time.Duration, sig float64, p model.Payload) *model.Event {
	return &model.Event{ID: id, Type: p.EventType(), Timestamp: now.Add(-age), Payload: p, Significance: sig}
}

func TestBuild_FoldsOldGenericEvents(t *testing.T) {
	var events []*model.Event
	for i := 0; i < 60; i++ {
		events = append(events, ev(fmt.Sprintf("old%02d", i), 40*24*time.Hour+time.Duration(i)*time.Minute, 0.25,
			model.Generic{Text: "idle chatter", Participants: []string{"Villager"}, Location: "Square"}))
	}
	events = append(events, ev("fresh", time.Minute, 0.5, model.Generic{Text: "now"}))

	p := Build(events, now, DefaultPolicy())

	assert.Len(t, p.Remove, 60)
	require.Len(t, p.Summaries, 1)
	sum := p.Summaries[0]
	assert.Equal(t, model.EventGeneric, sum.EventType)
	assert.Equal(t, 60, sum.Count)
	assert.Equal(t, []string{"Villager"}, sum.Participants)
	assert.Equal(t, []string{"Square"}, sum.Locations)
	assert.InDelta(t, 0.25, sum.MeanSignificance, 1e-9)
	assert.True(t, sum.FirstAt.Before(sum.LastAt))
	assert.NotEmpty(t, sum.ID)

	assert.Len(t, p.Tiers, 1)
	assert.Equal(t, model.TierHot, p.Tiers["fresh"])
	require.Len(t, p.Hot, 1)
	assert.Equal(t, "fresh", p.Hot[0].ID)
	assert.Len(t, p.RemoveIDs(), 60)
}

func TestBuild_RetainsSignificantEvents(t *testing.T) {
	death := ev("death", 90*24*time.Hour, 1.0, model.CharacterDevelopment{Character: "Aria", Change: model.ChangeDeath})
	edge := ev("edge", 90*24*time.Hour, 0.8, model.Quest{Title: "Relic", Status: model.QuestCompleted})
	below := ev("below", 90*24*time.Hour, 0.79, model.Quest{Title: "Errand"})

	p := Build([]*model.Event{death, edge, below}, now, DefaultPolicy())

	require.Len(t, p.Remove, 1)
	assert.Equal(t, "below", p.Remove[0].ID)
	assert.Len(t, p.Retained, 2)
	assert.Equal(t, model.TierArchived, p.Tiers["death"])
	assert.Empty(t, p.Hot)
}

func TestBuild_RefreshesTiers(t *testing.T) {
	events := []*model.Event{
		ev("hot", 30*time.Minute, 0.5, model.Generic{Text: "a"}),
		ev("warm", 5*time.Hour, 0.5, model.Generic{Text: "b"}),
		ev("cool", 3*24*time.Hour, 0.5, model.Generic{Text: "c"}),
		ev("cold", 10*24*time.Hour, 0.5, model.Generic{Text: "d"}),
	}
	p := Build(events, now, DefaultPolicy())

	assert.Empty(t, p.Remove)
	assert.Equal(t, map[string]model.Tier{
		"hot":  model.TierHot,
		"warm": model.TierWarm,
		"cool": model.TierCool,
		"cold": model.TierCold,
	}, p.Tiers)
	assert.Empty(t, events[1].Tier, "events are not modified")
}

func TestBuild_SummaryPerType(t *testing.T) {
	old := 60 * 24 * time.Hour
	events := []*model.Event{
		ev("t1", old, 0.4, model.Travel{From: "A", To: "Bay", Participants: []string{"Zed", "Amy"}}),
		ev("g1", old, 0.2, model.Generic{Text: "x"}),
		ev("t2", old+time.Hour, 0.2, model.Travel{From: "Bay", To: "Cove", Participants: []string{"Amy"}}),
	}
	n := 0
	pol := DefaultPolicy()
	pol.NewID = func() string { n++; return fmt.Sprintf("s%d", n) }

	p := Build(events, now, pol)
	require.Len(t, p.Summaries, 2)
	assert.Equal(t, model.EventTravel, p.Summaries[0].EventType)
	assert.Equal(t, "s1", p.Summaries[0].ID)
	assert.Equal(t, 2, p.Summaries[0].Count)
	assert.Equal(t, []string{"Amy", "Zed"}, p.Summaries[0].Participants)
	assert.Equal(t, []string{"Bay", "Cove"}, p.Summaries[0].Locations)
	assert.InDelta(t, 0.3, p.Summaries[0].MeanSignificance, 1e-9)
	assert.Equal(t, model.EventGeneric, p.Summaries[1].EventType)
}

func TestScheduler(t *testing.T) {
	var runs atomic.Int32
	s, err := NewScheduler("@every 1s", time.Second, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("logged, not fatal")
	}, nil)
	require.NoError(t, err)

	s.Start()
	assert.False(t, s.Next().IsZero())
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("@every 1h"))
	assert.NoError(t, ValidateSchedule("0 */6 * * *"))
	assert.Error(t, ValidateSchedule("every hour"))

	_, err := NewScheduler("nonsense", 0, func(context.Context) error { return nil }, nil)
	assert.Error(t, err)
}
