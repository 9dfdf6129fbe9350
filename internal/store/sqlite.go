package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/humbrol2/humbbot-memory/internal/model"
)

const timeFormat = time.RFC3339Nano

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path. A
// file that SQLite cannot read yields an error wrapping ErrCorrupt.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}

	if err := s.check(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, dbPath, err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) check() error {
	var res string
	if err := s.db.QueryRow(`PRAGMA quick_check`).Scan(&res); err != nil {
		return err
	}
	if res != "ok" {
		return fmt.Errorf("quick_check: %s", res)
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id               TEXT PRIMARY KEY,
		seq              INTEGER NOT NULL,
		event_type       TEXT NOT NULL,
		payload          TEXT NOT NULL,
		significance     REAL NOT NULL,
		access_count     INTEGER NOT NULL DEFAULT 0,
		last_accessed_at TEXT,
		created_at       TEXT NOT NULL,
		tier             TEXT NOT NULL DEFAULT 'hot',
		text             TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_events_seq ON events(seq);
	CREATE INDEX IF NOT EXISTS idx_events_tier ON events(tier);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);

	CREATE TABLE IF NOT EXISTS vectors (
		id     TEXT PRIMARY KEY,
		seq    INTEGER NOT NULL,
		dims   INTEGER NOT NULL,
		vector BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS archive_summaries (
		id                TEXT PRIMARY KEY,
		compacted_at      TEXT NOT NULL,
		event_type        TEXT NOT NULL,
		count             INTEGER NOT NULL,
		participants      TEXT,
		locations         TEXT,
		first_at          TEXT NOT NULL,
		last_at           TEXT NOT NULL,
		mean_significance REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_compacted ON archive_summaries(compacted_at);

	CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
		text,
		content=events,
		content_rowid=rowid
	);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	// Add text column if missing (upgrade from older schema)
	s.db.Exec(`ALTER TABLE events ADD COLUMN text TEXT NOT NULL DEFAULT ''`)

	// FTS5 triggers for automatic sync
	s.db.Exec(`CREATE TRIGGER IF NOT EXISTS events_ai AFTER INSERT ON events BEGIN
		INSERT INTO events_fts(rowid, text) VALUES (new.rowid, new.text);
	END`)
	s.db.Exec(`CREATE TRIGGER IF NOT EXISTS events_ad AFTER DELETE ON events BEGIN
		INSERT INTO events_fts(events_fts, rowid, text) VALUES('delete', old.rowid, old.text);
	END`)
	s.db.Exec(`CREATE TRIGGER IF NOT EXISTS events_au AFTER UPDATE OF text ON events BEGIN
		INSERT INTO events_fts(events_fts, rowid, text) VALUES('delete', old.rowid, old.text);
		INSERT INTO events_fts(rowid, text) VALUES (new.rowid, new.text);
	END`)

	return s.backfillText()
}

// backfillText fills the searchable description of rows written before the
// text column existed and rebuilds the full-text index over them.
func (s *SQLiteStore) backfillText() error {
	rows, err := s.db.Query(`SELECT id, event_type, payload FROM events WHERE text = ''`)
	if err != nil {
		return fmt.Errorf("backfill text: %w", err)
	}
	texts := map[string]string{}
	for rows.Next() {
		var id, typ, payload string
		if err := rows.Scan(&id, &typ, &payload); err != nil {
			rows.Close()
			return fmt.Errorf("backfill text: %w", err)
		}
		p, err := model.DecodePayload(model.EventType(typ), []byte(payload))
		if err != nil {
			continue
		}
		if text := model.Describe(p); text != "" {
			texts[id] = text
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("backfill text: %w", err)
	}
	if len(texts) == 0 {
		return nil
	}

	for id, text := range texts {
		if _, err := s.db.Exec(`UPDATE events SET text = ? WHERE id = ?`, text, id); err != nil {
			return fmt.Errorf("backfill text %s: %w", id, err)
		}
	}
	if _, err := s.db.Exec(`INSERT INTO events_fts(events_fts) VALUES('rebuild')`); err != nil {
		return fmt.Errorf("rebuild fts: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutEvent(ctx context.Context, e *model.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	tier := e.Tier
	if tier == "" {
		tier = model.TierHot
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, seq, event_type, payload, significance, access_count, last_accessed_at, created_at, tier, text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Seq, string(e.Type), string(payload), e.Significance, e.AccessCount,
		formatTimePtr(e.LastAccessed), e.Timestamp.UTC().Format(timeFormat), string(tier), model.Describe(e.Payload))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

const eventColumns = `id, seq, event_type, payload, significance, access_count, last_accessed_at, created_at, tier`

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, p ListParams) ([]model.Event, error) {
	var where []string
	var args []interface{}

	if p.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(p.Type))
	}
	if p.Tier != "" {
		where = append(where, "tier = ?")
		args = append(args, string(p.Tier))
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if p.Limit > 0 {
		// Most recent Limit rows, returned oldest first.
		query = `SELECT * FROM (` + query + ` ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC`
		args = append(args, p.Limit)
	} else {
		query += ` ORDER BY seq ASC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) RecordAccess(ctx context.Context, id string, count int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET access_count = ?, last_accessed_at = ? WHERE id = ?`,
		count, at.UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("record access: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) SetTiers(ctx context.Context, tiers map[string]model.Tier) error {
	if len(tiers) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE events SET tier = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for id, t := range tiers {
		if _, err := stmt.ExecContext(ctx, string(t), id); err != nil {
			return fmt.Errorf("set tier %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row scanner) (model.Event, error) {
	var e model.Event
	var eventType, payload, createdAt, tier string
	var lastAccessed sql.NullString

	err := row.Scan(
		&e.ID, &e.Seq, &eventType, &payload, &e.Significance,
		&e.AccessCount, &lastAccessed, &createdAt, &tier,
	)
	if err != nil {
		return e, err
	}

	e.Type, _ = model.ParseEventType(eventType)
	// A payload that no longer decodes keeps its zero-valued variant.
	e.Payload, _ = model.DecodePayload(e.Type, []byte(payload))
	e.Timestamp, _ = time.Parse(timeFormat, createdAt)
	e.Tier = model.Tier(tier)
	if lastAccessed.Valid {
		t, _ := time.Parse(timeFormat, lastAccessed.String)
		e.LastAccessed = &t
	}
	return e, nil
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeFormat)
	return &s
}
