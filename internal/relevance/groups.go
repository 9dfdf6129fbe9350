package relevance

import (
	"strings"

	"github.com/humbrol2/humbbot-memory/internal/model"
	"github.com/humbrol2/humbbot-memory/internal/textutil"
)

// Group is a coarse family of actions.
type Group string

const (
	GroupCombat      Group = "combat"
	GroupSocial      Group = "social"
	GroupExploration Group = "exploration"
	GroupMagic       Group = "magic"
)

var verbGroups = map[string]Group{
	"attack": GroupCombat, "fight": GroupCombat, "strike": GroupCombat,
	"slash": GroupCombat, "stab": GroupCombat, "shoot": GroupCombat,
	"defend": GroupCombat, "battle": GroupCombat, "kill": GroupCombat,
	"parry": GroupCombat, "charge": GroupCombat, "ambush": GroupCombat,
	"duel": GroupCombat, "block": GroupCombat, "flee": GroupCombat,

	"talk": GroupSocial, "speak": GroupSocial, "ask": GroupSocial,
	"persuade": GroupSocial, "trade": GroupSocial, "greet": GroupSocial,
	"negotiate": GroupSocial, "bribe": GroupSocial, "threaten": GroupSocial,
	"say": GroupSocial, "tell": GroupSocial, "barter": GroupSocial,
	"convince": GroupSocial, "intimidate": GroupSocial, "buy": GroupSocial,
	"sell": GroupSocial,

	"explore": GroupExploration, "search": GroupExploration,
	"travel": GroupExploration, "walk": GroupExploration,
	"move": GroupExploration, "go": GroupExploration,
	"look": GroupExploration, "investigate": GroupExploration,
	"climb": GroupExploration, "enter": GroupExploration,
	"open": GroupExploration, "discover": GroupExploration,
	"scout": GroupExploration, "sneak": GroupExploration,
	"loot": GroupExploration, "take": GroupExploration,

	"cast": GroupMagic, "enchant": GroupMagic, "summon": GroupMagic,
	"heal": GroupMagic, "curse": GroupMagic, "dispel": GroupMagic,
	"channel": GroupMagic, "conjure": GroupMagic, "brew": GroupMagic,
	"ward": GroupMagic, "meditate": GroupMagic, "train": GroupMagic,
}

var typeGroups = map[model.EventType][]Group{
	model.EventCombat:               {GroupCombat},
	model.EventDialogue:             {GroupSocial},
	model.EventTravel:               {GroupExploration},
	model.EventQuest:                {GroupSocial, GroupExploration},
	model.EventCharacterDevelopment: {GroupMagic},
	model.EventItemChange:           {GroupExploration},
	model.EventLocationDiscovery:    {GroupExploration},
}

// ActionGroups returns the groups named by the verbs in a free-text action
// such as "attacked the goblin".
func ActionGroups(action string) []Group {
	var out []Group
	seen := map[Group]bool{}
	for _, tok := range textutil.Tokens(action) {
		g, ok := lookupVerb(tok)
		if ok && !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	return out
}

// TypeGroups returns the groups an event type belongs to.
func TypeGroups(t model.EventType) []Group {
	return typeGroups[t]
}

func lookupVerb(tok string) (Group, bool) {
	if g, ok := verbGroups[tok]; ok {
		return g, true
	}
	for _, suf := range []string{"ing", "ed", "es", "s", "d"} {
		stem, ok := strings.CutSuffix(tok, suf)
		if !ok || len(stem) < 2 {
			continue
		}
		if g, ok := verbGroups[stem]; ok {
			return g, true
		}
		// "stabbed" -> "stab"
		if n := len(stem); n > 2 && stem[n-1] == stem[n-2] {
			if g, ok := verbGroups[stem[:n-1]]; ok {
				return g, true
			}
		}
	}
	return "", false
}
