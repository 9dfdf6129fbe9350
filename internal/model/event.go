// Package model defines the core memory data types.
package model

import (
	"strings"
	"time"
)

// EventType tags a memory event. It drives formatting and default significance.
type EventType string

const (
	EventCombat               EventType = "combat"
	EventDialogue             EventType = "dialogue"
	EventTravel               EventType = "travel"
	EventQuest                EventType = "quest"
	EventCharacterDevelopment EventType = "character-development"
	EventItemChange           EventType = "item-change"
	EventLocationDiscovery    EventType = "location-discovery"
	EventGeneric              EventType = "generic"
)

// EventTypes lists the recognized event types in display order.
var EventTypes = []EventType{
	EventCombat,
	EventDialogue,
	EventTravel,
	EventQuest,
	EventCharacterDevelopment,
	EventItemChange,
	EventLocationDiscovery,
	EventGeneric,
}

// ParseEventType resolves a tag to a known event type. Unrecognized tags
// resolve to EventGeneric with ok=false.
func ParseEventType(s string) (EventType, bool) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case "character_development", "development":
		return EventCharacterDevelopment, true
	case "item_change", "item":
		return EventItemChange, true
	case "location_discovery", "discovery":
		return EventLocationDiscovery, true
	}
	for _, known := range EventTypes {
		if t == known {
			return t, true
		}
	}
	return EventGeneric, false
}

// Tier is the derived age/significance bucket of an event.
type Tier string

const (
	TierHot      Tier = "hot"
	TierWarm     Tier = "warm"
	TierCool     Tier = "cool"
	TierCold     Tier = "cold"
	TierArchived Tier = "archived"
)

// Tiers lists every tier from youngest to oldest.
var Tiers = []Tier{TierHot, TierWarm, TierCool, TierCold, TierArchived}

// Event is the atomic unit of memory.
type Event struct {
	ID           string     `json:"id"`
	Seq          int64      `json:"seq"`
	Type         EventType  `json:"type"`
	Timestamp    time.Time  `json:"timestamp"`
	Payload      Payload    `json:"-"`
	Significance float64    `json:"significance"`
	AccessCount  int        `json:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`

	// Tier is the last classification written by the store. It is a cache;
	// callers classify from age, significance and access count instead.
	Tier Tier `json:"tier,omitempty"`
}

// Age returns how old the event is at now. Never negative.
func (e *Event) Age(now time.Time) time.Duration {
	d := now.Sub(e.Timestamp)
	if d < 0 {
		return 0
	}
	return d
}

// Text is the type-specific rendering used for embedding and display.
func (e *Event) Text() string {
	return Describe(e.Payload)
}

// QueryContext is the situation a context block is assembled for.
type QueryContext struct {
	Location      string   `json:"location,omitempty"`
	Participants  []string `json:"participants,omitempty"`
	RecentActions []string `json:"recent_actions,omitempty"`
	// Text is an optional free-text query.
	Text string `json:"text,omitempty"`
}

// ArchiveSummary aggregates events of one type folded away by compaction.
type ArchiveSummary struct {
	ID               string    `json:"id"`
	CompactedAt      time.Time `json:"compacted_at"`
	EventType        EventType `json:"event_type"`
	Count            int       `json:"count"`
	Participants     []string  `json:"participants,omitempty"`
	Locations        []string  `json:"locations,omitempty"`
	FirstAt          time.Time `json:"first_at"`
	LastAt           time.Time `json:"last_at"`
	MeanSignificance float64   `json:"mean_significance"`
}
