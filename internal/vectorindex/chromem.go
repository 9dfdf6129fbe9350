package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

const (
	chromemCollection = "events"
	seqKey            = "seq"
	// dimsFile records the vector dimension next to the collection, since
	// chromem-go cannot list documents to recover it.
	dimsFile = "dims"
)

var errNoEmbeddingFunc = errors.New("documents must carry their own embedding")

// Chromem is an Index backed by a persistent chromem-go database, one gob
// file per vector under dir.
type Chromem struct {
	mu      sync.Mutex
	db      *chromem.DB
	col     *chromem.Collection
	dir     string
	dims    int
	lastSeq int64
	log     *slog.Logger
}

// OpenChromem opens or creates the database at dir. A directory that
// cannot be decoded is reported as ErrCorrupt.
func OpenChromem(dir string, compress bool, log *slog.Logger) (*Chromem, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := chromem.NewPersistentDB(dir, compress)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrCorrupt, dir, err)
	}
	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbeddingFunc }
	col, err := db.GetOrCreateCollection(chromemCollection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	c := &Chromem{db: db, col: col, dir: dir, log: log.With("component", "vectorindex", "backend", "chromem")}
	if col.Count() > 0 {
		dims, err := readDims(dir)
		if err != nil {
			return nil, err
		}
		c.dims = dims
	}
	return c, nil
}

// readDims returns the recorded dimension, or 0 when none was recorded.
func readDims(dir string) (int, error) {
	b, err := os.ReadFile(filepath.Join(dir, dimsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read dims: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: dims file %q", ErrCorrupt, strings.TrimSpace(string(b)))
	}
	return n, nil
}

// setDims records the dimension on first use.
func (c *Chromem) setDims(n int) {
	if c.dims == n {
		return
	}
	c.dims = n
	if err := os.WriteFile(filepath.Join(c.dir, dimsFile), []byte(strconv.Itoa(n)), 0o644); err != nil {
		c.log.Warn("record vector dimension", "dims", n, "error", err)
	}
}

func (c *Chromem) nextSeq() int64 {
	s := time.Now().UnixNano()
	if s <= c.lastSeq {
		s = c.lastSeq + 1
	}
	c.lastSeq = s
	return s
}

// Upsert stores vec under id. Re-upserting an id moves it to the end of
// the insertion order.
func (c *Chromem) Upsert(ctx context.Context, id string, vec []float32) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dims != 0 && len(vec) != c.dims {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), c.dims)
	}
	if norm(vec) == 0 {
		// chromem normalizes on insert; a zero vector would become NaN.
		return ErrZeroVector
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)

	if err := c.removeLocked(ctx, id); err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        id,
		Embedding: cp,
		Metadata:  map[string]string{seqKey: strconv.FormatInt(c.nextSeq(), 10)},
	}
	if err := c.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	c.setDims(len(cp))
	return nil
}

// Search returns up to k hits with similarity >= minSimilarity. k <= 0
// means no limit.
func (c *Chromem) Search(ctx context.Context, query []float32, k int, minSimilarity float64) ([]Hit, error) {
	if len(query) == 0 || norm(query) == 0 {
		return nil, ErrZeroVector
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.col.Count()
	if n == 0 {
		return nil, nil
	}
	if c.dims != 0 && len(query) != c.dims {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), c.dims)
	}
	// chromem-go requires nResults <= collection size.
	res, err := c.col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	type ranked struct {
		hit Hit
		seq int64
	}
	rs := make([]ranked, 0, len(res))
	for _, r := range res {
		sim := float64(r.Similarity)
		if sim < minSimilarity {
			continue
		}
		if c.dims == 0 {
			c.setDims(len(r.Embedding))
		}
		seq, _ := strconv.ParseInt(r.Metadata[seqKey], 10, 64)
		rs = append(rs, ranked{hit: Hit{ID: r.ID, Similarity: sim}, seq: seq})
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].hit.Similarity != rs[j].hit.Similarity {
			return rs[i].hit.Similarity > rs[j].hit.Similarity
		}
		return rs[i].seq < rs[j].seq
	})
	if k > 0 && len(rs) > k {
		rs = rs[:k]
	}
	hits := make([]Hit, len(rs))
	for i, r := range rs {
		hits[i] = r.hit
	}
	return hits, nil
}

// Remove deletes id. Unknown ids are ignored.
func (c *Chromem) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(ctx, id)
}

func (c *Chromem) removeLocked(ctx context.Context, id string) error {
	if c.col.Count() == 0 {
		return nil
	}
	err := c.col.Delete(ctx, nil, nil, id)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// Len returns the number of stored vectors.
func (c *Chromem) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.col.Count()
}

// Flush is a no-op: chromem-go writes each document as it is added.
func (c *Chromem) Flush(context.Context) error { return nil }

func (c *Chromem) Close() error { return nil }
