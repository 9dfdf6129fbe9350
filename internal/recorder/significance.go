package recorder

import (
	"math"
	"strings"

	"github.com/humbrol2/humbbot-memory/internal/model"
)

// Policy holds the significance heuristics applied when no hint is given.
type Policy struct {
	Combat            float64  `yaml:"combat"`
	CombatCasualties  float64  `yaml:"combat_casualties"`
	CombatPerCasualty float64  `yaml:"combat_per_casualty"`
	CombatCap         float64  `yaml:"combat_cap"`
	Dialogue          float64  `yaml:"dialogue"`
	DialoguePerReact  float64  `yaml:"dialogue_per_reaction"`
	DialogueCap       float64  `yaml:"dialogue_cap"`
	Travel            float64  `yaml:"travel"`
	QuestStarted      float64  `yaml:"quest_started"`
	QuestProgress     float64  `yaml:"quest_progress"`
	QuestCompleted    float64  `yaml:"quest_completed"`
	QuestFailed       float64  `yaml:"quest_failed"`
	Death             float64  `yaml:"death"`
	LevelUp           float64  `yaml:"level_up"`
	Development       float64  `yaml:"development"`
	Item              float64  `yaml:"item"`
	RareItemBonus     float64  `yaml:"rare_item_bonus"`
	RareRarities      []string `yaml:"rare_rarities"`
	LocationDiscovery float64  `yaml:"location_discovery"`
	Generic           float64  `yaml:"generic"`
}

// DefaultPolicy returns the built-in heuristics.
func DefaultPolicy() Policy {
	return Policy{
		Combat:            0.5,
		CombatCasualties:  0.7,
		CombatPerCasualty: 0.05,
		CombatCap:         0.95,
		Dialogue:          0.3,
		DialoguePerReact:  0.1,
		DialogueCap:       0.6,
		Travel:            0.4,
		QuestStarted:      0.6,
		QuestProgress:     0.5,
		QuestCompleted:    0.9,
		QuestFailed:       0.7,
		Death:             1.0,
		LevelUp:           0.6,
		Development:       0.5,
		Item:              0.35,
		RareItemBonus:     0.3,
		RareRarities:      []string{"rare", "epic", "legendary"},
		LocationDiscovery: 0.6,
		Generic:           0.25,
	}
}

// Significance scores p. A non-nil hint wins over the heuristics. The result
// is always within [0, 1].
func (pol Policy) Significance(p model.Payload, hint *float64) float64 {
	if hint != nil {
		return clamp01(*hint)
	}
	return clamp01(pol.heuristic(p))
}

func (pol Policy) heuristic(p model.Payload) float64 {
	switch v := p.(type) {
	case model.Combat:
		if n := len(v.Casualties); n > 0 {
			return min(pol.CombatCasualties+pol.CombatPerCasualty*float64(n), pol.CombatCap)
		}
		return pol.Combat
	case model.Dialogue:
		return min(pol.Dialogue+pol.DialoguePerReact*float64(len(v.Reactions)), pol.DialogueCap)
	case model.Travel:
		return pol.Travel
	case model.Quest:
		switch strings.ToLower(v.Status) {
		case model.QuestStarted:
			return pol.QuestStarted
		case model.QuestCompleted:
			return pol.QuestCompleted
		case model.QuestFailed:
			return pol.QuestFailed
		}
		return pol.QuestProgress
	case model.CharacterDevelopment:
		switch strings.ToLower(v.Change) {
		case model.ChangeDeath:
			return pol.Death
		case model.ChangeLevelUp:
			return pol.LevelUp
		}
		return pol.Development
	case model.ItemChange:
		for _, r := range pol.RareRarities {
			if strings.EqualFold(strings.TrimSpace(v.Rarity), r) {
				return pol.Item + pol.RareItemBonus
			}
		}
		return pol.Item
	case model.LocationDiscovery:
		return pol.LocationDiscovery
	case model.Generic:
		return pol.Generic
	}
	return pol.Generic
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
