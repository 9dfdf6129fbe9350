// Package engine ties the memory components together into one handle per
// session: recording, context assembly, search and compaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/humbrol2/humbbot-memory/internal/assemble"
	"github.com/humbrol2/humbbot-memory/internal/compact"
	"github.com/humbrol2/humbbot-memory/internal/config"
	"github.com/humbrol2/humbbot-memory/internal/embedding"
	"github.com/humbrol2/humbbot-memory/internal/logging"
	"github.com/humbrol2/humbbot-memory/internal/metrics"
	"github.com/humbrol2/humbbot-memory/internal/model"
	"github.com/humbrol2/humbbot-memory/internal/recorder"
	"github.com/humbrol2/humbbot-memory/internal/relevance"
	"github.com/humbrol2/humbbot-memory/internal/store"
	"github.com/humbrol2/humbbot-memory/internal/vectorindex"
)

// Options configures Open.
type Options struct {
	// Session names the memory; required.
	Session string
	// Config supplies data dir and tunables; nil uses config.Default().
	Config *config.Config
	// Embedder replaces the provider named in Config.Embedding. It is still
	// wrapped with the timeout, limiter, breaker and cache.
	Embedder embedding.Embedder
	// Metrics is shared across sessions; nil registers a private set.
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Engine is the memory of one session. Methods are safe for concurrent use
// and run one at a time.
type Engine struct {
	mu sync.Mutex

	session string
	dir     string
	cfg     *config.Config
	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Metrics

	store        store.Store
	index        vectorindex.Index
	embedder     embedding.Embedder
	guard        *embedding.Guarded
	releaseCache func()

	rec     *recorder.Recorder
	scorer  relevance.Scorer
	asmOpts assemble.Options
	compPol compact.Policy

	nextSeq int64
	// hot is the working set in Seq order.
	hot []*model.Event
	// unsaved holds events whose insert failed; retried by Flush.
	unsaved map[string]*model.Event
	// tombstones are events compacted while the archive write failed.
	tombstones map[string]bool
	// pending are summaries not yet written to the archive.
	pending []model.ArchiveSummary
	// turn freezes access counts for ranking until the next Record.
	turn map[string]int
}

// Open loads or creates the memory of opts.Session under the config's data
// dir. A corrupt database is moved aside and the session starts empty.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	if err := ValidateSession(opts.Session); err != nil {
		return nil, err
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	log = log.With("session", opts.Session)
	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	dir := SessionDir(cfg.DataDir, opts.Session)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	e := &Engine{
		session:    opts.Session,
		dir:        dir,
		cfg:        cfg,
		now:        now,
		log:        log,
		metrics:    m,
		rec:        recorder.New(cfg.Significance, now),
		scorer:     relevance.NewBlended(cfg.Relevance),
		unsaved:    map[string]*model.Event{},
		tombstones: map[string]bool{},
		compPol: compact.Policy{
			Tiers:              cfg.Tiers,
			RetainSignificance: cfg.Compaction.RetainSignificance,
		},
		asmOpts: assemble.Options{
			SemanticThreshold: cfg.Assembly.SemanticThreshold,
			ImmediateWindow:   cfg.Assembly.ImmediateWindow,
			RecencyHalfLife:   cfg.Relevance.RecencyHalfLife,
		},
	}

	s, err := openStore(dir, log)
	if err != nil {
		return nil, err
	}
	e.store = s

	if err := e.openIndex(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := e.openEmbedder(opts.Embedder); err != nil {
		e.index.Close()
		s.Close()
		return nil, err
	}

	maxSeq, err := s.MaxSeq(ctx)
	if err != nil {
		log.Error("read max seq", "error", err)
	}
	e.nextSeq = maxSeq + 1
	e.reloadHot(ctx)

	log.Debug("session opened", "dir", dir, "hot", len(e.hot), "vectors", e.index.Len(), "embedding", e.embedder != nil)
	return e, nil
}

func openStore(dir string, log *slog.Logger) (*store.SQLiteStore, error) {
	path := filepath.Join(dir, dbFile)
	s, err := store.NewSQLiteStore(path)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, store.ErrCorrupt) {
		return nil, err
	}
	moved, merr := moveAside(path)
	if merr != nil {
		return nil, fmt.Errorf("%w (move aside: %v)", err, merr)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		os.Remove(path + suffix)
	}
	log.Error("store corrupt, starting empty", "error", err, "moved_to", moved)
	return store.NewSQLiteStore(path)
}

func (e *Engine) openIndex(ctx context.Context) error {
	switch e.cfg.VectorIndex.Backend {
	case "chromem":
		dir := filepath.Join(e.dir, vectorDir)
		c, err := vectorindex.OpenChromem(dir, e.cfg.VectorIndex.Compress, e.log)
		if errors.Is(err, vectorindex.ErrCorrupt) {
			moved, merr := moveAside(dir)
			if merr != nil {
				return fmt.Errorf("%w (move aside: %v)", err, merr)
			}
			e.log.Error("vector index corrupt, starting empty", "error", err, "moved_to", moved)
			c, err = vectorindex.OpenChromem(dir, e.cfg.VectorIndex.Compress, e.log)
		}
		if err != nil {
			return err
		}
		e.index = c
	default:
		f, err := vectorindex.LoadFlat(ctx, e.store, e.log)
		if errors.Is(err, vectorindex.ErrCorrupt) {
			e.log.Error("vectors corrupt, starting empty", "error", err)
			if cerr := e.store.ClearVectors(ctx); cerr != nil {
				e.log.Error("clear vectors", "error", cerr)
			}
			f, err = vectorindex.NewFlat(e.store, e.log), nil
		}
		if err != nil {
			return err
		}
		e.index = f
	}
	return nil
}

func (e *Engine) openEmbedder(raw embedding.Embedder) error {
	if raw == nil {
		p, err := embedding.New(e.cfg.Embedding)
		if errors.Is(err, embedding.ErrDisabled) {
			e.log.Debug("embedding disabled, vector search off")
			e.releaseCache = func() {}
			return nil
		}
		if err != nil {
			return err
		}
		raw = p
	}
	e.guard = embedding.NewGuarded(raw, e.cfg.Embedding, e.log.With("component", "embedding"))
	e.embedder = e.guard
	e.releaseCache = func() {}
	if e.cfg.Embedding.CacheSize > 0 {
		c, err := embedding.NewCached(e.guard, e.cfg.Embedding.CacheSize)
		if err != nil {
			return fmt.Errorf("embedding cache: %w", err)
		}
		e.embedder = c
		e.releaseCache = c.Close
	}
	return nil
}

// reloadHot fills the working set with the newest persisted events that
// still classify as hot.
func (e *Engine) reloadHot(ctx context.Context) {
	events, err := e.store.ListEvents(ctx, store.ListParams{Limit: e.cfg.Compaction.HotThreshold})
	if err != nil {
		e.log.Error("load hot set", "error", err)
		return
	}
	now := e.now()
	e.hot = e.hot[:0]
	for i := range events {
		ev := &events[i]
		if e.tombstones[ev.ID] {
			continue
		}
		if e.cfg.Tiers.ClassifyEvent(ev, now) == model.TierHot {
			e.hot = append(e.hot, ev)
		}
	}
	e.metrics.HotEvents.WithLabelValues(e.session).Set(float64(len(e.hot)))
}

// Session returns the session name.
func (e *Engine) Session() string { return e.session }

// Dir returns the session's directory.
func (e *Engine) Dir() string { return e.dir }

// Flush retries failed event inserts and vector writes.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked(ctx)
}

func (e *Engine) flushLocked(ctx context.Context) error {
	var errs []error
	ids := make([]string, 0, len(e.unsaved))
	for id := range e.unsaved {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return e.unsaved[ids[i]].Seq < e.unsaved[ids[j]].Seq })
	for _, id := range ids {
		if err := e.store.PutEvent(ctx, e.unsaved[id]); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(e.unsaved, id)
	}
	if err := e.index.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close flushes pending writes and releases the session.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx := context.Background()
	var errs []error
	if err := e.flushLocked(ctx); err != nil {
		e.log.Error("flush on close", "error", err)
		errs = append(errs, err)
	}
	if err := e.index.Close(); err != nil {
		errs = append(errs, err)
	}
	e.releaseCache()
	if err := e.store.Close(); err != nil {
		errs = append(errs, err)
	}
	e.metrics.HotEvents.DeleteLabelValues(e.session)
	return errors.Join(errs...)
}

func (e *Engine) persistError(op string, err error, args ...any) {
	e.metrics.PersistErrors.WithLabelValues(op).Inc()
	e.log.Error(op+" failed", append([]any{"error", err}, args...)...)
}

// eventByID finds an event in memory or the store. Tombstoned events are
// not found.
func (e *Engine) eventByID(ctx context.Context, id string) (*model.Event, error) {
	if e.tombstones[id] {
		return nil, store.ErrNotFound
	}
	for _, ev := range e.hot {
		if ev.ID == id {
			return ev, nil
		}
	}
	if ev, ok := e.unsaved[id]; ok {
		return ev, nil
	}
	return e.store.GetEvent(ctx, id)
}
