package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is the type-specific body of an event. The set of implementations
// is closed: one struct per EventType.
type Payload interface {
	EventType() EventType
}

// Combat records a fight.
type Combat struct {
	Participants []string `json:"participants,omitempty"`
	Location     string   `json:"location,omitempty"`
	Outcome      string   `json:"outcome,omitempty"`
	Casualties   []string `json:"casualties,omitempty"`
}

// Dialogue records something said.
type Dialogue struct {
	Speaker   string   `json:"speaker,omitempty"`
	Listeners []string `json:"listeners,omitempty"`
	Location  string   `json:"location,omitempty"`
	Content   string   `json:"content,omitempty"`
	Reactions []string `json:"reactions,omitempty"`
}

// Travel records movement between places.
type Travel struct {
	From         string   `json:"from,omitempty"`
	To           string   `json:"to,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

// Quest status values.
const (
	QuestStarted   = "started"
	QuestProgress  = "progress"
	QuestCompleted = "completed"
	QuestFailed    = "failed"
)

// Quest records a change in a quest.
type Quest struct {
	Title        string   `json:"title,omitempty"`
	Status       string   `json:"status,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Location     string   `json:"location,omitempty"`
}

// Character development changes with special significance.
const (
	ChangeDeath   = "death"
	ChangeLevelUp = "level_up"
)

// CharacterDevelopment records a change to a character.
type CharacterDevelopment struct {
	Character string `json:"character,omitempty"`
	Change    string `json:"change,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Location  string `json:"location,omitempty"`
}

// ItemChange records an inventory change.
type ItemChange struct {
	Item     string `json:"item,omitempty"`
	Owner    string `json:"owner,omitempty"`
	Change   string `json:"change,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
	Rarity   string `json:"rarity,omitempty"`
}

// LocationDiscovery records a newly found place.
type LocationDiscovery struct {
	Location     string   `json:"location,omitempty"`
	Description  string   `json:"description,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

// Generic is the catch-all event body.
type Generic struct {
	Text         string   `json:"text,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Location     string   `json:"location,omitempty"`
	// Tag keeps an unrecognized type tag the event was submitted with.
	Tag string `json:"tag,omitempty"`
}

func (Combat) EventType() EventType               { return EventCombat }
func (Dialogue) EventType() EventType             { return EventDialogue }
func (Travel) EventType() EventType               { return EventTravel }
func (Quest) EventType() EventType                { return EventQuest }
func (CharacterDevelopment) EventType() EventType { return EventCharacterDevelopment }
func (ItemChange) EventType() EventType           { return EventItemChange }
func (LocationDiscovery) EventType() EventType    { return EventLocationDiscovery }
func (Generic) EventType() EventType              { return EventGeneric }

// DecodePayload builds the payload variant for t from raw JSON. Empty input
// and missing fields produce zero values. Malformed JSON is reported so the
// caller can fall back to a neutral payload.
func DecodePayload(t EventType, raw []byte) (Payload, error) {
	switch t {
	case EventCombat:
		var v Combat
		if err := json.Unmarshal(orEmpty(raw), &v); err != nil {
			return Combat{}, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return v, nil
	case EventDialogue:
		var v Dialogue
		if err := json.Unmarshal(orEmpty(raw), &v); err != nil {
			return Dialogue{}, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return v, nil
	case EventTravel:
		var v Travel
		if err := json.Unmarshal(orEmpty(raw), &v); err != nil {
			return Travel{}, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return v, nil
	case EventQuest:
		var v Quest
		if err := json.Unmarshal(orEmpty(raw), &v); err != nil {
			return Quest{}, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return v, nil
	case EventCharacterDevelopment:
		var v CharacterDevelopment
		if err := json.Unmarshal(orEmpty(raw), &v); err != nil {
			return CharacterDevelopment{}, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return v, nil
	case EventItemChange:
		var v ItemChange
		if err := json.Unmarshal(orEmpty(raw), &v); err != nil {
			return ItemChange{}, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return v, nil
	case EventLocationDiscovery:
		var v LocationDiscovery
		if err := json.Unmarshal(orEmpty(raw), &v); err != nil {
			return LocationDiscovery{}, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return v, nil
	}
	var v Generic
	if err := json.Unmarshal(orEmpty(raw), &v); err != nil {
		// A bare JSON string is accepted as generic text.
		var text string
		if json.Unmarshal(raw, &text) == nil {
			return Generic{Text: text}, nil
		}
		return Generic{}, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return v, nil
}

func orEmpty(raw []byte) []byte {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []byte("{}")
	}
	return raw
}

// Participants returns the names involved in an event.
func Participants(p Payload) []string {
	switch v := p.(type) {
	case Combat:
		return v.Participants
	case Dialogue:
		return appendNonEmpty(nil, append([]string{v.Speaker}, v.Listeners...)...)
	case Travel:
		return v.Participants
	case Quest:
		return v.Participants
	case CharacterDevelopment:
		return appendNonEmpty(nil, v.Character)
	case ItemChange:
		return appendNonEmpty(nil, v.Owner)
	case LocationDiscovery:
		return v.Participants
	case Generic:
		return v.Participants
	}
	return nil
}

// Location returns where an event happened. Travel reports its destination.
func Location(p Payload) string {
	switch v := p.(type) {
	case Combat:
		return v.Location
	case Dialogue:
		return v.Location
	case Travel:
		return v.To
	case Quest:
		return v.Location
	case CharacterDevelopment:
		return v.Location
	case ItemChange:
		return ""
	case LocationDiscovery:
		return v.Location
	case Generic:
		return v.Location
	}
	return ""
}

// Describe renders a one-line, type-specific description of a payload.
func Describe(p Payload) string {
	switch v := p.(type) {
	case Combat:
		var b strings.Builder
		b.WriteString("Combat")
		if v.Location != "" {
			b.WriteString(" at " + v.Location)
		}
		if len(v.Participants) > 0 {
			b.WriteString(" between " + strings.Join(v.Participants, ", "))
		}
		b.WriteString(".")
		if v.Outcome != "" {
			b.WriteString(" Outcome: " + v.Outcome + ".")
		}
		if len(v.Casualties) > 0 {
			b.WriteString(" Casualties: " + strings.Join(v.Casualties, ", ") + ".")
		}
		return b.String()
	case Dialogue:
		speaker := orDefault(v.Speaker, "Someone")
		var b strings.Builder
		b.WriteString(speaker)
		if len(v.Listeners) > 0 {
			b.WriteString(" to " + strings.Join(v.Listeners, ", "))
		}
		if v.Location != "" {
			b.WriteString(" at " + v.Location)
		}
		b.WriteString(": \"" + v.Content + "\"")
		if len(v.Reactions) > 0 {
			b.WriteString(" Reactions: " + strings.Join(v.Reactions, ", ") + ".")
		}
		return b.String()
	case Travel:
		who := "Party"
		if len(v.Participants) > 0 {
			who = strings.Join(v.Participants, ", ")
		}
		if v.From != "" {
			return fmt.Sprintf("%s traveled from %s to %s.", who, v.From, orDefault(v.To, "somewhere"))
		}
		return fmt.Sprintf("%s traveled to %s.", who, orDefault(v.To, "somewhere"))
	case Quest:
		s := fmt.Sprintf("Quest %q %s", orDefault(v.Title, "unnamed"), orDefault(v.Status, QuestProgress))
		if len(v.Participants) > 0 {
			s += " by " + strings.Join(v.Participants, ", ")
		}
		if v.Location != "" {
			s += " at " + v.Location
		}
		return s + "."
	case CharacterDevelopment:
		who := orDefault(v.Character, "A character")
		var s string
		switch v.Change {
		case ChangeDeath:
			s = who + " died"
		case ChangeLevelUp:
			s = who + " leveled up"
		case "":
			s = who + " changed"
		default:
			s = who + ": " + strings.ReplaceAll(v.Change, "_", " ")
		}
		if v.Location != "" {
			s += " at " + v.Location
		}
		if v.Detail != "" {
			s += " (" + v.Detail + ")"
		}
		return s + "."
	case ItemChange:
		who := orDefault(v.Owner, "Party")
		item := orDefault(v.Item, "an item")
		if v.Quantity > 1 {
			item = fmt.Sprintf("%d x %s", v.Quantity, item)
		}
		if v.Rarity != "" {
			item += " (" + v.Rarity + ")"
		}
		return fmt.Sprintf("%s %s %s.", who, orDefault(v.Change, "changed"), item)
	case LocationDiscovery:
		s := "Discovered " + orDefault(v.Location, "a new place")
		if len(v.Participants) > 0 {
			s += " with " + strings.Join(v.Participants, ", ")
		}
		s += "."
		if v.Description != "" {
			s += " " + v.Description
		}
		return s
	case Generic:
		return v.Text
	}
	return ""
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func appendNonEmpty(dst []string, vals ...string) []string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			dst = append(dst, v)
		}
	}
	return dst
}

type eventJSON struct {
	eventAlias
	Payload json.RawMessage `json:"payload,omitempty"`
}

type eventAlias Event

// MarshalJSON includes the payload variant next to the event fields.
func (e Event) MarshalJSON() ([]byte, error) {
	var raw json.RawMessage
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(eventJSON{eventAlias: eventAlias(e), Payload: raw})
}

// UnmarshalJSON decodes the payload according to the event type.
func (e *Event) UnmarshalJSON(b []byte) error {
	var v eventJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*e = Event(v.eventAlias)
	t, _ := ParseEventType(string(e.Type))
	if e.Type == "" {
		t = EventGeneric
	}
	p, err := DecodePayload(t, v.Payload)
	if err != nil {
		return err
	}
	e.Type = t
	e.Payload = p
	return nil
}
