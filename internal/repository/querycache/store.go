// Package querycache caches datastore reductions and paginated reads in a
// key-value store. Every collection has a generation counter that writes
// through the decorator bump, so stale entries are never read back.
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docstore/internal/db"
	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/query"
	"github.com/kailas-cloud/docstore/internal/domain/result"
)

// KeyPrefix namespaces every cache key.
const KeyPrefix = "docstore:qcache:"

// DefaultTTL bounds staleness against writers that bypass the decorator.
const DefaultTTL = 5 * time.Minute

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// kv is the consumer interface for the cache backend (ISP).
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
}

// Store decorates a db.Store with a read-through cache for Count, Sum,
// GroupSum and GetPaginated. Queries with joins read other collections and
// are never cached. Cache failures degrade to the inner store.
//
// Cached pages come back JSON-decoded: numbers are float64 and dates are
// RFC 3339 strings.
type Store struct {
	db.Store
	kv         kv
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(inner db.Store, cache kv, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		Store:      inner,
		kv:         cache,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// --- cached reads ---

// Count is cached per collection generation.
func (s *Store) Count(ctx context.Context, collection string, q query.Query) (int, error) {
	return cached(ctx, s, collection, "count", q, nil, func() (int, error) {
		return s.Store.Count(ctx, collection, q)
	})
}

// Sum is cached per collection generation.
func (s *Store) Sum(ctx context.Context, collection, field string, q query.Query) (float64, error) {
	return cached(ctx, s, collection, "sum", q, []string{field}, func() (float64, error) {
		return s.Store.Sum(ctx, collection, field, q)
	})
}

// GroupSum is cached per collection generation.
func (s *Store) GroupSum(ctx context.Context, collection, groupField, valueField string, q query.Query) ([]result.GroupSum, error) {
	return cached(ctx, s, collection, "group_sum", q, []string{groupField, valueField}, func() ([]result.GroupSum, error) {
		return s.Store.GroupSum(ctx, collection, groupField, valueField, q)
	})
}

// GetPaginated is cached per collection generation.
func (s *Store) GetPaginated(ctx context.Context, collection string, q query.Query) (result.Page, error) {
	return cached(ctx, s, collection, "page", q, nil, func() (result.Page, error) {
		return s.Store.GetPaginated(ctx, collection, q)
	})
}

// cached serves op from the cache or runs load and stores its result.
func cached[T any](
	ctx context.Context, s *Store, collection, op string, q query.Query, args []string, load func() (T, error),
) (T, error) {
	key, ok := s.cacheKey(ctx, collection, op, q, args)
	if !ok {
		return load()
	}

	var out T
	if s.getFromCache(ctx, key, &out) {
		s.incCache("hit")
		return out, nil
	}
	s.incCache("miss")

	out, err := load()
	if err != nil {
		return out, err
	}
	s.putToCache(ctx, key, out)
	return out, nil
}

// --- invalidating writes ---

// Add inserts through the inner store and bumps the collection generation.
func (s *Store) Add(ctx context.Context, collection string, doc domain.Document) (string, error) {
	id, err := s.Store.Add(ctx, collection, doc)
	if err == nil {
		s.bump(ctx, collection)
	}
	return id, err
}

// UpdateOne updates through the inner store; a match bumps the generation.
func (s *Store) UpdateOne(ctx context.Context, collection string, q query.Query, values domain.Document) (domain.Document, error) {
	doc, err := s.Store.UpdateOne(ctx, collection, q, values)
	if err == nil && doc != nil {
		s.bump(ctx, collection)
	}
	return doc, err
}

// UpdateMany updates through the inner store; any match bumps the generation.
func (s *Store) UpdateMany(ctx context.Context, collection string, q query.Query, values domain.Document) ([]domain.Document, error) {
	docs, err := s.Store.UpdateMany(ctx, collection, q, values)
	if err == nil && len(docs) > 0 {
		s.bump(ctx, collection)
	}
	return docs, err
}

// DeleteOne deletes through the inner store; a removal bumps the generation.
func (s *Store) DeleteOne(ctx context.Context, collection string, q query.Query) (bool, error) {
	ok, err := s.Store.DeleteOne(ctx, collection, q)
	if err == nil && ok {
		s.bump(ctx, collection)
	}
	return ok, err
}

// DeleteMany deletes through the inner store; any removal bumps the generation.
func (s *Store) DeleteMany(ctx context.Context, collection string, q query.Query) (int, error) {
	n, err := s.Store.DeleteMany(ctx, collection, q)
	if err == nil && n > 0 {
		s.bump(ctx, collection)
	}
	return n, err
}

// ResetDB resets the inner store and bumps the epoch, retiring the entries
// of every collection. A failed reset still bumps it.
func (s *Store) ResetDB(ctx context.Context) error {
	err := s.Store.ResetDB(ctx)
	if _, incErr := s.kv.IncrBy(ctx, epochKey, 1); incErr != nil {
		s.logger.Warn("Failed to bump cache epoch", zap.Error(incErr))
	}
	return err //nolint:wrapcheck // decorator is transparent
}

// --- keys ---

// epochKey is bumped by ResetDB and is part of every cache key.
const epochKey = KeyPrefix + "epoch"

func generationKey(collection string) string {
	return KeyPrefix + "gen:" + collection
}

func (s *Store) bump(ctx context.Context, collection string) {
	if _, err := s.kv.IncrBy(ctx, generationKey(collection), 1); err != nil {
		s.logger.Warn("Failed to bump cache generation", zap.String("collection", collection), zap.Error(err))
	}
}

func (s *Store) counter(ctx context.Context, key string) (int64, error) {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse counter %s=%q: %w", key, data, err)
	}
	return n, nil
}

type keyMaterial struct {
	Op    string      `json:"op"`
	Args  []string    `json:"args,omitempty"`
	Query query.Query `json:"query"`
	// Types keeps operands that marshal alike apart, e.g. a time.Time and
	// its RFC 3339 string.
	Types []string `json:"types,omitempty"`
}

// operandTypes lists the Go type of every operand in condition order.
func operandTypes(q query.Query) []string {
	var out []string
	var walk func(conds []query.Condition)
	walk = func(conds []query.Condition) {
		for _, c := range conds {
			tags := []string{typeTag(c.Op.Value), typeTag(c.Op.Low), typeTag(c.Op.High)}
			for _, v := range c.Op.Values {
				tags = append(tags, typeTag(v))
			}
			out = append(out, c.Field+"="+strings.Join(tags, ","))
			if c.Op.Sub != nil {
				out = append(out, "(")
				walk(c.Op.Sub.And)
				out = append(out, "|")
				walk(c.Op.Sub.Or)
				out = append(out, ")")
			}
		}
	}
	walk(q.And)
	out = append(out, "|")
	walk(q.Or)
	return out
}

func typeTag(v any) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case []any:
		tags := make([]string, len(t))
		for i, e := range t {
			tags[i] = typeTag(e)
		}
		return "[" + strings.Join(tags, " ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		tags := make([]string, len(keys))
		for i, k := range keys {
			tags[i] = k + ":" + typeTag(t[k])
		}
		return "{" + strings.Join(tags, " ") + "}"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// cacheKey is "<prefix><collection>:<epoch>:<generation>:<op>:<sha256>". ok is false
// when the query cannot be cached.
func (s *Store) cacheKey(ctx context.Context, collection, op string, q query.Query, args []string) (string, bool) {
	if len(q.Joins) > 0 {
		return "", false
	}
	epoch, err := s.counter(ctx, epochKey)
	if err != nil {
		s.logger.Warn("Failed to read cache epoch", zap.Error(err))
		return "", false
	}
	gen, err := s.counter(ctx, generationKey(collection))
	if err != nil {
		s.logger.Warn("Failed to read cache generation", zap.String("collection", collection), zap.Error(err))
		return "", false
	}
	material, err := json.Marshal(keyMaterial{Op: op, Args: args, Query: q, Types: operandTypes(q)})
	if err != nil {
		s.logger.Debug("Query not cacheable", zap.String("collection", collection), zap.Error(err))
		return "", false
	}
	h := sha256.Sum256(material)
	return fmt.Sprintf("%s%s:%d:%d:%s:%s", KeyPrefix, collection, epoch, gen, op, hex.EncodeToString(h[:])), true
}

// --- cache I/O ---

func (s *Store) incCache(result string) {
	if s.cacheTotal != nil {
		s.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (s *Store) getFromCache(ctx context.Context, key string, out any) bool {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			s.logger.Warn("Failed to get cached result", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("Failed to parse cached result", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) putToCache(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("Failed to encode result for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.kv.SetWithTTL(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("Failed to cache result", zap.String("key", key), zap.Error(err))
	}
}
