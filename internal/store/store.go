// Package store persists session memory in SQLite: events, their
// embedding vectors, and the archive of compacted summaries.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/humbrol2/humbbot-memory/internal/model"
	"github.com/humbrol2/humbbot-memory/internal/vectorindex"
)

var (
	// ErrNotFound is returned when an event does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCorrupt is returned by NewSQLiteStore when the file on disk is not
	// a readable database.
	ErrCorrupt = errors.New("store corrupt")
)

// ListParams filters ListEvents.
type ListParams struct {
	Type model.EventType
	Tier model.Tier
	// Limit keeps only the most recent events; 0 means all.
	Limit int
}

// SearchParams holds parameters for a keyword search over event payloads.
type SearchParams struct {
	Terms []string
	Limit int
}

// Store defines the durable memory interface for one session.
type Store interface {
	vectorindex.Persister

	// PutEvent inserts a new event.
	PutEvent(ctx context.Context, e *model.Event) error

	// GetEvent retrieves an event by ID.
	GetEvent(ctx context.Context, id string) (*model.Event, error)

	// ListEvents returns matching events in ascending Seq order.
	ListEvents(ctx context.Context, p ListParams) ([]model.Event, error)

	// SearchEvents returns events whose payload mentions any term, newest first.
	SearchEvents(ctx context.Context, p SearchParams) ([]model.Event, error)

	// RecordAccess stores an event's access count and last access time.
	RecordAccess(ctx context.Context, id string, count int, at time.Time) error

	// SetTiers refreshes the cached tier column.
	SetTiers(ctx context.Context, tiers map[string]model.Tier) error

	// Archive appends summaries and deletes the folded events and their
	// vectors in one transaction.
	Archive(ctx context.Context, summaries []model.ArchiveSummary, removeIDs []string) error

	// Summaries lists archived summaries, oldest first.
	Summaries(ctx context.Context) ([]model.ArchiveSummary, error)

	// ClearVectors drops every stored vector.
	ClearVectors(ctx context.Context) error

	// MaxSeq returns the highest event sequence number, or 0.
	MaxSeq(ctx context.Context) (int64, error)

	Stats(ctx context.Context) (*Stats, error)
	ExportAll(ctx context.Context) (*Dump, error)
	Import(ctx context.Context, d *Dump) (int, error)

	// Close closes the store.
	Close() error
}
