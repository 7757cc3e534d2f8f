package mongo

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docstore/internal/db"
	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/aggregation"
	"github.com/kailas-cloud/docstore/internal/domain/query"
	"github.com/kailas-cloud/docstore/internal/domain/result"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const defaultConnectTimeout = 10 * time.Second

// Config holds connection parameters for the remote engine.
type Config struct {
	URI      string
	Database string
	// CertFile is an optional PEM CA bundle; setting it enables TLS.
	CertFile        string
	DefaultPageSize int
	ConnectTimeout  time.Duration
}

// Collection is the consumer interface for *mongo.Collection (ISP).
type Collection interface {
	Aggregate(ctx context.Context, pipeline any, opts ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error)
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
	FindOneAndUpdate(ctx context.Context, filter, update any, opts ...options.Lister[options.FindOneAndUpdateOptions]) *mongo.SingleResult
	UpdateMany(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateManyOptions]) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any, opts ...options.Lister[options.DeleteOneOptions]) (*mongo.DeleteResult, error)
	DeleteMany(ctx context.Context, filter any, opts ...options.Lister[options.DeleteManyOptions]) (*mongo.DeleteResult, error)
}

// client is the consumer interface for *mongo.Client (ISP).
type client interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Disconnect(ctx context.Context) error
}

// Store compiles queries and pipelines into aggregation pipelines and runs
// them on a MongoDB database.
type Store struct {
	client   client
	coll     func(name string) Collection
	drop     func(ctx context.Context) error
	pageSize int
	logger   *zap.Logger
	closed   atomic.Bool
}

// New connects to cfg.URI and verifies the connection with a ping.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("uri is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	opts := options.Client().ApplyURI(cfg.URI).SetConnectTimeout(cfg.ConnectTimeout)
	if cfg.CertFile != "" {
		tlsCfg, err := loadTLS(cfg.CertFile)
		if err != nil {
			return nil, &db.Error{Op: db.OpConnect, Err: err}
		}
		opts.SetTLSConfig(tlsCfg)
	}

	c, err := mongo.Connect(opts)
	if err != nil {
		return nil, &db.Error{Op: db.OpConnect, Err: err}
	}
	database := c.Database(cfg.Database)
	s := newStore(c, func(name string) Collection { return database.Collection(name) }, cfg.DefaultPageSize, logger)
	s.drop = database.Drop

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = c.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	logger.Info("mongo datastore connected", zap.String("database", cfg.Database))
	return s, nil
}

// NewStoreForTest creates a Store over the given collection resolver (test-only).
func NewStoreForTest(coll func(name string) Collection, pageSize int) *Store {
	return newStore(nil, coll, pageSize, zap.NewNop())
}

func newStore(c client, coll func(string) Collection, pageSize int, logger *zap.Logger) *Store {
	if pageSize <= 0 {
		pageSize = result.DefaultPageSize
	}
	return &Store{client: c, coll: coll, pageSize: pageSize, logger: logger}
}

func loadTLS(certFile string) (*tls.Config, error) {
	pem, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("read cert file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", certFile)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (s *Store) collection(name string) (Collection, error) {
	if s.closed.Load() {
		return nil, domain.ErrClosed
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", domain.ErrInvalidQuery)
	}
	return s.coll(name), nil
}

func (s *Store) run(ctx context.Context, c Collection, p mongo.Pipeline, op string) ([]bson.M, error) {
	cur, err := c.Aggregate(ctx, p)
	if err != nil {
		return nil, &db.Error{Op: op, Err: err}
	}
	var rows []bson.M
	if err := cur.All(ctx, &rows); err != nil {
		return nil, &db.Error{Op: op, Err: err}
	}
	return rows, nil
}

// QueryBuilder returns a fresh query builder.
func (s *Store) QueryBuilder() *query.Builder { return query.NewBuilder() }

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	if s.client == nil {
		return nil
	}
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close disconnects the client. Further calls fail with domain.ErrClosed.
func (s *Store) Close(ctx context.Context) error {
	if s.closed.Swap(true) || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// ResetDB drops the database, removing every collection.
func (s *Store) ResetDB(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	if s.drop == nil {
		return nil
	}
	if err := s.drop(ctx); err != nil {
		return &db.Error{Op: db.OpDelete, Err: err}
	}
	return nil
}

// --- writes ---

// Add inserts a copy of doc under a new id. Any _id in doc is ignored.
func (s *Store) Add(ctx context.Context, name string, doc domain.Document) (string, error) {
	c, err := s.collection(name)
	if err != nil {
		return "", err
	}
	stored := domain.Clone(doc)
	if stored == nil {
		stored = domain.Document{}
	}
	id := uuid.NewString()
	stored[domain.IDField] = id
	if _, err := c.InsertOne(ctx, stored); err != nil {
		return "", &db.Error{Op: db.OpInsert, Err: err}
	}
	return id, nil
}

// UpdateOne sets values on the first match and returns the updated document,
// or nil when nothing matches.
func (s *Store) UpdateOne(ctx context.Context, name string, q query.Query, values domain.Document) (domain.Document, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	filter, err := CompileMatch(q)
	if err != nil {
		return nil, &db.Error{Op: db.OpUpdate, Err: err}
	}
	set := patch(values)
	if len(set) == 0 {
		return s.GetOne(ctx, name, query.Query{And: q.And, Or: q.Or})
	}

	var row bson.M
	err = c.FindOneAndUpdate(ctx, filter, bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpUpdate, Err: err}
	}
	return fromBSONDoc(row), nil
}

// UpdateMany sets values on every match and returns the updated documents.
// The matching ids are read first so only those documents are re-read.
func (s *Store) UpdateMany(ctx context.Context, name string, q query.Query, values domain.Document) ([]domain.Document, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	filter, err := CompileMatch(q)
	if err != nil {
		return nil, &db.Error{Op: db.OpUpdate, Err: err}
	}
	rows, err := s.run(ctx, c, mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$project", Value: bson.D{{Key: domain.IDField, Value: 1}}}},
	}, db.OpUpdate)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []domain.Document{}, nil
	}
	ids := make(bson.A, len(rows))
	for i, r := range rows {
		ids[i] = r[domain.IDField]
	}
	byID := bson.D{{Key: domain.IDField, Value: bson.D{{Key: "$in", Value: ids}}}}

	if set := patch(values); len(set) > 0 {
		if _, err := c.UpdateMany(ctx, byID, bson.D{{Key: "$set", Value: set}}); err != nil {
			return nil, &db.Error{Op: db.OpUpdate, Err: err}
		}
	}
	updated, err := s.run(ctx, c, mongo.Pipeline{{{Key: "$match", Value: byID}}}, db.OpUpdate)
	if err != nil {
		return nil, err
	}
	return fromBSONDocs(updated), nil
}

// patch drops _id from update values.
func patch(values domain.Document) bson.D {
	set := make(bson.D, 0, len(values))
	for k, v := range values {
		if k == domain.IDField {
			continue
		}
		set = append(set, bson.E{Key: k, Value: v})
	}
	return set
}

// DeleteOne removes the first match.
func (s *Store) DeleteOne(ctx context.Context, name string, q query.Query) (bool, error) {
	c, err := s.collection(name)
	if err != nil {
		return false, err
	}
	filter, err := CompileMatch(q)
	if err != nil {
		return false, &db.Error{Op: db.OpDelete, Err: err}
	}
	res, err := c.DeleteOne(ctx, filter)
	if err != nil {
		return false, &db.Error{Op: db.OpDelete, Err: err}
	}
	return res.DeletedCount > 0, nil
}

// DeleteMany removes every match and returns how many were removed.
func (s *Store) DeleteMany(ctx context.Context, name string, q query.Query) (int, error) {
	c, err := s.collection(name)
	if err != nil {
		return 0, err
	}
	filter, err := CompileMatch(q)
	if err != nil {
		return 0, &db.Error{Op: db.OpDelete, Err: err}
	}
	res, err := c.DeleteMany(ctx, filter)
	if err != nil {
		return 0, &db.Error{Op: db.OpDelete, Err: err}
	}
	return int(res.DeletedCount), nil
}

// --- reads ---

func (s *Store) prepare(name string, q query.Query, op string) (Collection, compiledQuery, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, compiledQuery{}, err
	}
	cq, err := compile(q)
	if err != nil {
		return nil, compiledQuery{}, &db.Error{Op: op, Err: err}
	}
	return c, cq, nil
}

// GetOne returns the first document of the ordered result, or nil.
func (s *Store) GetOne(ctx context.Context, name string, q query.Query) (domain.Document, error) {
	c, cq, err := s.prepare(name, q, db.OpFind)
	if err != nil {
		return nil, err
	}
	rows, err := s.run(ctx, c, cq.window(q.OffsetValue(), 1), db.OpFind)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return fromBSONDoc(rows[0]), nil
}

// GetMany returns every match; only an explicit limit truncates.
func (s *Store) GetMany(ctx context.Context, name string, q query.Query) ([]domain.Document, error) {
	c, cq, err := s.prepare(name, q, db.OpFind)
	if err != nil {
		return nil, err
	}
	rows, err := s.run(ctx, c, cq.window(q.OffsetValue(), q.LimitOr(0)), db.OpFind)
	if err != nil {
		return nil, err
	}
	return fromBSONDocs(rows), nil
}

// GetPaginated runs a count pass and a data pass built from one compiled
// match. A write between the passes can make total disagree with items.
func (s *Store) GetPaginated(ctx context.Context, name string, q query.Query) (result.Page, error) {
	c, cq, err := s.prepare(name, q, db.OpFind)
	if err != nil {
		return result.Page{}, err
	}
	total, err := s.total(ctx, c, cq, db.OpFind)
	if err != nil {
		return result.Page{}, err
	}
	limit := q.LimitOr(s.pageSize)
	offset := q.OffsetValue()
	rows, err := s.run(ctx, c, cq.window(offset, limit), db.OpFind)
	if err != nil {
		return result.Page{}, err
	}
	return result.NewPage(total, fromBSONDocs(rows), offset, limit), nil
}

func (s *Store) total(ctx context.Context, c Collection, cq compiledQuery, op string) (int, error) {
	rows, err := s.run(ctx, c, cq.count(), op)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return toInt(rows[0]["total"]), nil
}

// Count counts matching documents.
func (s *Store) Count(ctx context.Context, name string, q query.Query) (int, error) {
	c, cq, err := s.prepare(name, q, db.OpCount)
	if err != nil {
		return 0, err
	}
	return s.total(ctx, c, cq, db.OpCount)
}

// sumStage groups by key, totalling field and counting values that are
// not numbers in "bad".
func sumStage(key any, field string) bson.D {
	ref := "$" + field
	return bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: key},
		{Key: "total", Value: bson.D{{Key: "$sum", Value: ref}}},
		{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		{Key: "bad", Value: bson.D{{Key: "$sum", Value: cond(isNumber(ref), 0, 1)}}},
	}}}
}

func mismatch(field string, bad int) error {
	return fmt.Errorf("%w: field %q is not numeric on %d documents", domain.ErrTypeMismatch, field, bad)
}

// Sum adds field over matching documents. A missing or non-numeric value fails the call.
func (s *Store) Sum(ctx context.Context, name, field string, q query.Query) (float64, error) {
	c, cq, err := s.prepare(name, q, db.OpSum)
	if err != nil {
		return 0, err
	}
	rows, err := s.run(ctx, c, append(cq.filtered(), sumStage(nil, field)), db.OpSum)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	if bad := toInt(rows[0]["bad"]); bad > 0 {
		return 0, &db.Error{Op: db.OpSum, Err: mismatch(field, bad)}
	}
	return toFloat(rows[0]["total"]), nil
}

// GroupSum sums valueField per distinct groupField value. Row order is unspecified.
func (s *Store) GroupSum(ctx context.Context, name, groupField, valueField string, q query.Query) ([]result.GroupSum, error) {
	c, cq, err := s.prepare(name, q, db.OpGroupSum)
	if err != nil {
		return nil, err
	}
	rows, err := s.run(ctx, c, append(cq.filtered(), sumStage("$"+groupField, valueField)), db.OpGroupSum)
	if err != nil {
		return nil, err
	}
	out := make([]result.GroupSum, 0, len(rows))
	for _, r := range rows {
		if bad := toInt(r["bad"]); bad > 0 {
			return nil, &db.Error{Op: db.OpGroupSum, Err: mismatch(valueField, bad)}
		}
		out = append(out, result.GroupSum{
			Group:      fromBSON(r["_id"]),
			ValueField: valueField,
			Total:      toFloat(r["total"]),
			Count:      toInt(r["count"]),
		})
	}
	return out, nil
}

// Aggregate compiles p and runs it over the whole collection.
func (s *Store) Aggregate(ctx context.Context, name string, p aggregation.Pipeline) ([]domain.Document, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	compiled, err := CompilePipeline(p)
	if err != nil {
		return nil, &db.Error{Op: db.OpAggregate, Err: err}
	}
	rows, err := s.run(ctx, c, compiled, db.OpAggregate)
	if err != nil {
		return nil, err
	}
	return fromBSONDocs(rows), nil
}
