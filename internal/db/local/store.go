package local

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docstore/internal/db"
	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/aggregation"
	"github.com/kailas-cloud/docstore/internal/domain/query"
	"github.com/kailas-cloud/docstore/internal/domain/result"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Config holds local engine settings.
type Config struct {
	DataDir         string
	DefaultPageSize int
}

// Store is the file-backed interpreter engine. Every collection lives in
// memory and is rewritten to disk after each mutation.
type Store struct {
	dir      string
	pageSize int
	logger   *zap.Logger
	closed   atomic.Bool

	mu          sync.Mutex
	collections map[string]*collection
}

// Open loads every collection file under cfg.DataDir, creating the directory if needed.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = result.DefaultPageSize
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, &db.Error{Op: db.OpLoad, Err: err}
	}

	s := &Store{
		dir:         cfg.DataDir,
		pageSize:    cfg.DefaultPageSize,
		logger:      logger,
		collections: make(map[string]*collection),
	}

	entries, err := os.ReadDir(cfg.DataDir)
	if err != nil {
		return nil, &db.Error{Op: db.OpLoad, Err: err}
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		s.load(strings.TrimSuffix(name, fileExt))
	}
	logger.Info("local datastore opened",
		zap.String("data_dir", cfg.DataDir),
		zap.Int("collections", len(s.collections)),
	)
	return s, nil
}

// load reads one collection file. Unreadable or malformed files become an
// empty collection and are logged.
func (s *Store) load(name string) {
	c := newCollection(name, filepath.Join(s.dir, name+fileExt))
	s.collections[name] = c

	data, err := os.ReadFile(c.path)
	if err != nil {
		s.logger.Warn("collection file unreadable, starting empty",
			zap.String("collection", name), zap.Error(err))
		return
	}
	ids, docs, err := decodeCollection(data)
	if err != nil {
		s.logger.Warn("collection file malformed, starting empty",
			zap.String("collection", name),
			zap.Error(fmt.Errorf("%w: %w", domain.ErrMalformedPersistence, err)))
		return
	}
	c.ids, c.docs = ids, docs
}

// collection returns the named collection, creating an empty one on first use.
func (s *Store) collection(name string) (*collection, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("%w: collection name %q", domain.ErrInvalidQuery, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = newCollection(name, filepath.Join(s.dir, name+fileExt))
		s.collections[name] = c
	}
	return c, nil
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return domain.ErrClosed
	}
	return nil
}

func (s *Store) persist(c *collection) error {
	data, err := encodeCollection(c.ids, c.docs)
	if err != nil {
		return &db.Error{Op: db.OpPersist, Err: err}
	}
	if err := writeAtomic(c.path, data); err != nil {
		return &db.Error{Op: db.OpPersist, Err: err}
	}
	return nil
}

// QueryBuilder returns a fresh query builder.
func (s *Store) QueryBuilder() *query.Builder { return query.NewBuilder() }

// Ping reports whether the store is open and its directory is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, err := os.Stat(s.dir); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close marks the store closed. Writes are eager so nothing is flushed.
func (s *Store) Close(_ context.Context) error {
	s.closed.Store(true)
	return nil
}

// ResetDB empties every known collection and rewrites its file.
func (s *Store) ResetDB(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	cols := make([]*collection, 0, len(s.collections))
	for _, c := range s.collections {
		cols = append(cols, c)
	}
	s.mu.Unlock()

	for _, c := range cols {
		c.mu.Lock()
		c.ids = nil
		c.docs = make(map[string]map[string]any)
		err := s.persist(c)
		c.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// --- writes ---

// Add stores a copy of doc under a new id. Any _id in doc is ignored.
func (s *Store) Add(ctx context.Context, name string, doc domain.Document) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	c, err := s.collection(name)
	if err != nil {
		return "", err
	}
	stored := normalizeDoc(domain.Clone(doc))
	delete(stored, domain.IDField)
	id := uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.save()
	c.ids = append(c.ids, id)
	c.docs[id] = stored
	if err := s.persist(c); err != nil {
		c.restore(prev)
		return "", err
	}
	return id, nil
}

// UpdateOne merges values into the first match. Returns nil when nothing matches.
func (s *Store) UpdateOne(ctx context.Context, name string, q query.Query, values domain.Document) (domain.Document, error) {
	docs, err := s.update(ctx, name, q, values, 1)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// UpdateMany merges values into every match and returns the updated documents.
func (s *Store) UpdateMany(ctx context.Context, name string, q query.Query, values domain.Document) ([]domain.Document, error) {
	return s.update(ctx, name, q, values, 0)
}

func (s *Store) update(ctx context.Context, name string, q query.Query, values domain.Document, limit int) ([]domain.Document, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	pred, err := compileQuery(q)
	if err != nil {
		return nil, &db.Error{Op: db.OpUpdate, Err: err}
	}
	patch := normalizeDoc(domain.Clone(values))
	delete(patch, domain.IDField)

	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.matchingIDs(pred, limit)
	if len(ids) == 0 {
		return []domain.Document{}, nil
	}
	prev := c.save()
	for _, id := range ids {
		merged := maps.Clone(c.docs[id])
		if merged == nil {
			merged = map[string]any{}
		}
		for k, v := range patch {
			merged[k] = domain.CloneValue(v)
		}
		c.docs[id] = merged
	}
	if err := s.persist(c); err != nil {
		c.restore(prev)
		return nil, err
	}
	out := make([]domain.Document, len(ids))
	for i, id := range ids {
		out[i] = c.view(id)
	}
	return out, nil
}

// DeleteOne removes the first match in scan order.
func (s *Store) DeleteOne(ctx context.Context, name string, q query.Query) (bool, error) {
	n, err := s.delete(ctx, name, q, 1)
	return n > 0, err
}

// DeleteMany removes every match and returns how many were removed.
func (s *Store) DeleteMany(ctx context.Context, name string, q query.Query) (int, error) {
	return s.delete(ctx, name, q, 0)
}

func (s *Store) delete(ctx context.Context, name string, q query.Query, limit int) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	c, err := s.collection(name)
	if err != nil {
		return 0, err
	}
	pred, err := compileQuery(q)
	if err != nil {
		return 0, &db.Error{Op: db.OpDelete, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.matchingIDs(pred, limit)
	if len(ids) == 0 {
		return 0, nil
	}
	prev := c.save()
	c.remove(ids)
	if err := s.persist(c); err != nil {
		c.restore(prev)
		return 0, err
	}
	return len(ids), nil
}

// --- reads ---

// matched returns copies of the documents satisfying q's conditions with
// q's joins attached, in scan order.
func (s *Store) matched(ctx context.Context, name string, q query.Query, op string) ([]domain.Document, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	pred, err := compileQuery(q)
	if err != nil {
		return nil, &db.Error{Op: op, Err: err}
	}
	for _, j := range q.Joins {
		if j.Kind != query.JoinInner && j.Kind != query.JoinLeft {
			return nil, &db.Error{Op: op, Err: fmt.Errorf("%w: %s join", domain.ErrUnsupportedOperation, j.Kind)}
		}
	}

	c.mu.RLock()
	docs := c.snapshot(pred)
	c.mu.RUnlock()

	for _, j := range q.Joins {
		foreign, err := s.rows(j.Collection)
		if err != nil {
			return nil, &db.Error{Op: op, Err: err}
		}
		lookup(docs, foreign, lookupSpec(j))
	}
	return docs, nil
}

// rows snapshots a whole collection under its own read lock.
func (s *Store) rows(name string) ([]domain.Document, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot(matchAll), nil
}

// GetOne returns the first document of the ordered result, or nil.
func (s *Store) GetOne(ctx context.Context, name string, q query.Query) (domain.Document, error) {
	docs, err := s.matched(ctx, name, q, db.OpFind)
	if err != nil {
		return nil, err
	}
	sortDocs(docs, withIDTiebreak(q.Sort))
	docs = window(docs, q.OffsetValue(), 1)
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// GetMany returns every match; only an explicit limit truncates.
func (s *Store) GetMany(ctx context.Context, name string, q query.Query) ([]domain.Document, error) {
	docs, err := s.matched(ctx, name, q, db.OpFind)
	if err != nil {
		return nil, err
	}
	sortDocs(docs, withIDTiebreak(q.Sort))
	return window(docs, q.OffsetValue(), q.LimitOr(0)), nil
}

// GetPaginated returns one page; total counts every match.
func (s *Store) GetPaginated(ctx context.Context, name string, q query.Query) (result.Page, error) {
	docs, err := s.matched(ctx, name, q, db.OpFind)
	if err != nil {
		return result.Page{}, err
	}
	limit := q.LimitOr(s.pageSize)
	offset := q.OffsetValue()
	total := len(docs)
	sortDocs(docs, withIDTiebreak(q.Sort))
	return result.NewPage(total, window(docs, offset, limit), offset, limit), nil
}

// Count counts matching documents.
func (s *Store) Count(ctx context.Context, name string, q query.Query) (int, error) {
	docs, err := s.matched(ctx, name, q, db.OpCount)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Sum adds field over matching documents. A missing or non-numeric value fails the call.
func (s *Store) Sum(ctx context.Context, name, field string, q query.Query) (float64, error) {
	docs, err := s.matched(ctx, name, q, db.OpSum)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, d := range docs {
		f, err := numericField(d, field)
		if err != nil {
			return 0, &db.Error{Op: db.OpSum, Err: err}
		}
		total += f
	}
	return total, nil
}

// GroupSum sums valueField per distinct groupField value in first-encountered order.
func (s *Store) GroupSum(ctx context.Context, name, groupField, valueField string, q query.Query) ([]result.GroupSum, error) {
	docs, err := s.matched(ctx, name, q, db.OpGroupSum)
	if err != nil {
		return nil, err
	}
	parts := partitionBy(docs, groupField)
	out := make([]result.GroupSum, 0, len(parts))
	for _, p := range parts {
		row := result.GroupSum{Group: p.key, ValueField: valueField, Count: len(p.docs)}
		for _, d := range p.docs {
			f, err := numericField(d, valueField)
			if err != nil {
				return nil, &db.Error{Op: db.OpGroupSum, Err: err}
			}
			row.Total += f
		}
		out = append(out, row)
	}
	return out, nil
}

func numericField(d domain.Document, field string) (float64, error) {
	v, _ := domain.Lookup(d, field)
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: field %q on document %v is %T", domain.ErrTypeMismatch, field, d[domain.IDField], v)
	}
	return f, nil
}

// Aggregate runs p over the whole collection.
func (s *Store) Aggregate(ctx context.Context, name string, p aggregation.Pipeline) ([]domain.Document, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	docs, err := s.rows(name)
	if err != nil {
		return nil, err
	}
	docs, err = runPipeline(docs, p, s.rows)
	if err != nil {
		return nil, &db.Error{Op: db.OpAggregate, Err: err}
	}
	return docs, nil
}
