package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/humbrol2/humbbot-memory/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testEvent(id string, seq int64, p model.Payload, sig float64) *model.Event {
	return &model.Event{
		ID:           id,
		Seq:          seq,
		Type:         p.EventType(),
		Timestamp:    base.Add(time.Duration(seq) * time.Minute),
		Payload:      p,
		Significance: sig,
	}
}

func TestPutAndGetEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	combat := model.Combat{
		Participants: []string{"Hero", "Dragon"},
		Location:     "Dragon Lair",
		Outcome:      "victory",
		Casualties:   []string{"Dragon"},
	}
	if err := s.PutEvent(ctx, testEvent("e1", 1, combat, 0.75)); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type != model.EventCombat {
		t.Errorf("expected combat, got %q", got.Type)
	}
	p, ok := got.Payload.(model.Combat)
	if !ok {
		t.Fatalf("expected Combat payload, got %T", got.Payload)
	}
	if p.Location != "Dragon Lair" || len(p.Participants) != 2 || p.Casualties[0] != "Dragon" {
		t.Errorf("payload did not round-trip: %+v", p)
	}
	if !got.Timestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("timestamp: got %v", got.Timestamp)
	}
	if got.Significance != 0.75 {
		t.Errorf("significance: got %v", got.Significance)
	}
	if got.Tier != model.TierHot {
		t.Errorf("default tier: got %q", got.Tier)
	}

	if err := s.PutEvent(ctx, testEvent("e1", 2, combat, 0.5)); err == nil {
		t.Error("expected duplicate id to fail")
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetEvent(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := int64(1); i <= 5; i++ {
		var p model.Payload = model.Generic{Text: "tick"}
		if i%2 == 0 {
			p = model.Travel{From: "A", To: "B"}
		}
		if err := s.PutEvent(ctx, testEvent(string(rune('a'+i)), i, p, 0.3)); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	all, err := s.ListEvents(ctx, ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Seq >= all[i].Seq {
			t.Errorf("not ascending at %d", i)
		}
	}

	recent, _ := s.ListEvents(ctx, ListParams{Limit: 2})
	if len(recent) != 2 || recent[0].Seq != 4 || recent[1].Seq != 5 {
		t.Errorf("expected seqs 4,5; got %+v", recent)
	}

	travel, _ := s.ListEvents(ctx, ListParams{Type: model.EventTravel})
	if len(travel) != 2 {
		t.Errorf("expected 2 travel events, got %d", len(travel))
	}

	seq, err := s.MaxSeq(ctx)
	if err != nil || seq != 5 {
		t.Errorf("max seq: got %d, %v", seq, err)
	}
}

func TestMaxSeq_Empty(t *testing.T) {
	s := newTestStore(t)
	seq, err := s.MaxSeq(context.Background())
	if err != nil || seq != 0 {
		t.Errorf("expected 0, got %d, %v", seq, err)
	}
}

func TestRecordAccessAndTiers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.PutEvent(ctx, testEvent("e1", 1, model.Generic{Text: "x"}, 0.3))

	at := base.Add(time.Hour)
	if err := s.RecordAccess(ctx, "e1", 3, at); err != nil {
		t.Fatalf("record access: %v", err)
	}
	if err := s.RecordAccess(ctx, "missing", 1, at); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetTiers(ctx, map[string]model.Tier{"e1": model.TierCool}); err != nil {
		t.Fatalf("set tiers: %v", err)
	}

	got, _ := s.GetEvent(ctx, "e1")
	if got.AccessCount != 3 {
		t.Errorf("access count: got %d", got.AccessCount)
	}
	if got.LastAccessed == nil || !got.LastAccessed.Equal(at) {
		t.Errorf("last accessed: got %v", got.LastAccessed)
	}
	if got.Tier != model.TierCool {
		t.Errorf("tier: got %q", got.Tier)
	}
}

func TestSearchEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.PutEvent(ctx, testEvent("e1", 1, model.Combat{Participants: []string{"Hero", "Dragon"}, Location: "Lair"}, 0.5))
	s.PutEvent(ctx, testEvent("e2", 2, model.Generic{Text: "Bought bread at the market"}, 0.25))
	s.PutEvent(ctx, testEvent("e3", 3, model.Generic{Text: "100% pure gold"}, 0.25))

	got, err := s.SearchEvents(ctx, SearchParams{Terms: []string{"dragon", "battle"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e1" {
		t.Errorf("expected e1, got %+v", got)
	}

	got, _ = s.SearchEvents(ctx, SearchParams{Terms: []string{"BREAD", "gold"}})
	if len(got) != 2 || got[0].ID != "e3" || got[1].ID != "e2" {
		t.Errorf("expected e3, e2 newest first, got %+v", got)
	}

	// JSON keys of the stored payload are not searchable.
	got, _ = s.SearchEvents(ctx, SearchParams{Terms: []string{"participants", "location"}})
	if len(got) != 0 {
		t.Errorf("expected no match on payload keys, got %d", len(got))
	}

	for _, terms := range [][]string{{" "}, {"%"}, {`"`, "*", "OR"}} {
		got, err = s.SearchEvents(ctx, SearchParams{Terms: terms})
		if err != nil {
			t.Errorf("terms %q: %v", terms, err)
		}
		if len(got) != 0 {
			t.Errorf("terms %q: expected no results, got %d", terms, len(got))
		}
	}
}

func TestSearchEvents_FollowsDeletes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.PutEvent(ctx, testEvent("e1", 1, model.Generic{Text: "The lighthouse keeper waved"}, 0.25))

	if err := s.Archive(ctx, nil, []string{"e1"}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	got, err := s.SearchEvents(ctx, SearchParams{Terms: []string{"lighthouse"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected archived event to leave the index, got %d", len(got))
	}
}

func TestMigrate_BackfillsSearchText(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.PutEvent(ctx, testEvent("e1", 1, model.Generic{Text: "Old ruins by the river"}, 0.25))
	if _, err := s.db.Exec(`UPDATE events SET text = ''`); err != nil {
		t.Fatalf("clear text: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.SearchEvents(ctx, SearchParams{Terms: []string{"ruins"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e1" {
		t.Errorf("expected backfilled e1, got %+v", got)
	}
}

func TestNewSQLiteStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	garbage := make([]byte, 8192)
	for i := range garbage {
		garbage[i] = byte(i * 7)
	}
	if err := os.WriteFile(path, garbage, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewSQLiteStore(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestReopenKeepsEvents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	s.PutEvent(ctx, testEvent("e1", 1, model.Quest{Title: "Find the relic", Status: model.QuestCompleted}, 0.9))
	s.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if q := got.Payload.(model.Quest); q.Title != "Find the relic" || q.Status != model.QuestCompleted {
		t.Errorf("quest payload: %+v", q)
	}
}
