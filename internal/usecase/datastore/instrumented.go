// Package datastore holds decorators that add cross-cutting behaviour to
// any db.Store engine.
package datastore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docstore/internal/db"
	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/aggregation"
	"github.com/kailas-cloud/docstore/internal/domain/query"
	"github.com/kailas-cloud/docstore/internal/domain/result"
	"github.com/kailas-cloud/docstore/internal/metrics"
)

// Compile-time check: InstrumentedStore implements db.Store.
var _ db.Store = (*InstrumentedStore)(nil)

// InstrumentedStore records operation metrics and logs around an inner store.
// Caller errors (invalid queries, type mismatches, unsupported operations)
// log at warn, everything else at error.
type InstrumentedStore struct {
	inner  db.Store
	engine string
	logger *zap.Logger
}

// NewInstrumentedStore wraps a store with metrics and logging. engine is the metrics label.
func NewInstrumentedStore(inner db.Store, engine string, logger *zap.Logger) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, engine: engine, logger: logger}
}

func (s *InstrumentedStore) observe(op, collection string, start time.Time, err error) {
	duration := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.DatastoreOpsTotal.WithLabelValues(s.engine, op, status).Inc()
	metrics.DatastoreOpDuration.WithLabelValues(s.engine, op).Observe(duration.Seconds())

	fields := []zap.Field{
		zap.String("engine", s.engine),
		zap.String("op", op),
		zap.String("collection", collection),
		zap.Duration("duration", duration),
	}
	switch {
	case err == nil:
		s.logger.Debug("Datastore operation completed", fields...)
	case isCallerError(err):
		s.logger.Warn("Datastore operation rejected", append(fields, zap.Error(err))...)
	default:
		s.logger.Error("Datastore operation failed", append(fields, zap.Error(err))...)
	}
}

func isCallerError(err error) bool {
	return errors.Is(err, domain.ErrInvalidQuery) ||
		errors.Is(err, domain.ErrTypeMismatch) ||
		errors.Is(err, domain.ErrUnsupportedOperation) ||
		errors.Is(err, domain.ErrClosed) ||
		errors.Is(err, context.Canceled)
}

// QueryBuilder returns the inner store's builder.
func (s *InstrumentedStore) QueryBuilder() *query.Builder { return s.inner.QueryBuilder() }

// Ping is not recorded; health probes would dominate the metrics.
func (s *InstrumentedStore) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }

// Close closes the inner store.
func (s *InstrumentedStore) Close(ctx context.Context) error {
	err := s.inner.Close(ctx)
	if err != nil {
		s.logger.Error("Datastore close failed", zap.String("engine", s.engine), zap.Error(err))
	}
	return err //nolint:wrapcheck // decorator is transparent
}

// ResetDB records a reset. The collection label is empty.
func (s *InstrumentedStore) ResetDB(ctx context.Context) error {
	start := time.Now()
	err := s.inner.ResetDB(ctx)
	s.observe(db.OpReset, "", start, err)
	return err //nolint:wrapcheck // decorator is transparent
}

// Add records an insert.
func (s *InstrumentedStore) Add(ctx context.Context, collection string, doc domain.Document) (string, error) {
	start := time.Now()
	id, err := s.inner.Add(ctx, collection, doc)
	s.observe(db.OpInsert, collection, start, err)
	return id, err //nolint:wrapcheck // decorator is transparent
}

// UpdateOne records an update.
func (s *InstrumentedStore) UpdateOne(ctx context.Context, collection string, q query.Query, values domain.Document) (domain.Document, error) {
	start := time.Now()
	doc, err := s.inner.UpdateOne(ctx, collection, q, values)
	s.observe(db.OpUpdate, collection, start, err)
	return doc, err //nolint:wrapcheck // decorator is transparent
}

// UpdateMany records an update.
func (s *InstrumentedStore) UpdateMany(ctx context.Context, collection string, q query.Query, values domain.Document) ([]domain.Document, error) {
	start := time.Now()
	docs, err := s.inner.UpdateMany(ctx, collection, q, values)
	s.observe(db.OpUpdate, collection, start, err)
	return docs, err //nolint:wrapcheck // decorator is transparent
}

// DeleteOne records a delete.
func (s *InstrumentedStore) DeleteOne(ctx context.Context, collection string, q query.Query) (bool, error) {
	start := time.Now()
	ok, err := s.inner.DeleteOne(ctx, collection, q)
	s.observe(db.OpDelete, collection, start, err)
	return ok, err //nolint:wrapcheck // decorator is transparent
}

// DeleteMany records a delete.
func (s *InstrumentedStore) DeleteMany(ctx context.Context, collection string, q query.Query) (int, error) {
	start := time.Now()
	n, err := s.inner.DeleteMany(ctx, collection, q)
	s.observe(db.OpDelete, collection, start, err)
	return n, err //nolint:wrapcheck // decorator is transparent
}

// GetOne records a find.
func (s *InstrumentedStore) GetOne(ctx context.Context, collection string, q query.Query) (domain.Document, error) {
	start := time.Now()
	doc, err := s.inner.GetOne(ctx, collection, q)
	s.observe(db.OpFind, collection, start, err)
	return doc, err //nolint:wrapcheck // decorator is transparent
}

// GetMany records a find.
func (s *InstrumentedStore) GetMany(ctx context.Context, collection string, q query.Query) ([]domain.Document, error) {
	start := time.Now()
	docs, err := s.inner.GetMany(ctx, collection, q)
	s.observe(db.OpFind, collection, start, err)
	return docs, err //nolint:wrapcheck // decorator is transparent
}

// GetPaginated records a find.
func (s *InstrumentedStore) GetPaginated(ctx context.Context, collection string, q query.Query) (result.Page, error) {
	start := time.Now()
	page, err := s.inner.GetPaginated(ctx, collection, q)
	s.observe(db.OpFind, collection, start, err)
	return page, err //nolint:wrapcheck // decorator is transparent
}

// Count records a count.
func (s *InstrumentedStore) Count(ctx context.Context, collection string, q query.Query) (int, error) {
	start := time.Now()
	n, err := s.inner.Count(ctx, collection, q)
	s.observe(db.OpCount, collection, start, err)
	return n, err //nolint:wrapcheck // decorator is transparent
}

// Sum records a sum.
func (s *InstrumentedStore) Sum(ctx context.Context, collection, field string, q query.Query) (float64, error) {
	start := time.Now()
	total, err := s.inner.Sum(ctx, collection, field, q)
	s.observe(db.OpSum, collection, start, err)
	return total, err //nolint:wrapcheck // decorator is transparent
}

// GroupSum records a grouped sum.
func (s *InstrumentedStore) GroupSum(ctx context.Context, collection, groupField, valueField string, q query.Query) ([]result.GroupSum, error) {
	start := time.Now()
	rows, err := s.inner.GroupSum(ctx, collection, groupField, valueField, q)
	s.observe(db.OpGroupSum, collection, start, err)
	return rows, err //nolint:wrapcheck // decorator is transparent
}

// Aggregate records a pipeline run.
func (s *InstrumentedStore) Aggregate(ctx context.Context, collection string, p aggregation.Pipeline) ([]domain.Document, error) {
	start := time.Now()
	docs, err := s.inner.Aggregate(ctx, collection, p)
	s.observe(db.OpAggregate, collection, start, err)
	return docs, err //nolint:wrapcheck // decorator is transparent
}
