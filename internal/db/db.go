package db

import (
	"context"
	"time"

	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/aggregation"
	"github.com/kailas-cloud/docstore/internal/domain/query"
	"github.com/kailas-cloud/docstore/internal/domain/result"
)

// Store is the datastore contract shared by every engine.
//
//nolint:interfacebloat // consumers use the narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	Writer
	Reader
	Reducer
	Aggregator
	Resetter
	QueryBuilder() *query.Builder
	Close(ctx context.Context) error
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Writer mutates documents.
type Writer interface {
	Add(ctx context.Context, collection string, doc domain.Document) (string, error)
	UpdateOne(ctx context.Context, collection string, q query.Query, values domain.Document) (domain.Document, error)
	UpdateMany(ctx context.Context, collection string, q query.Query, values domain.Document) ([]domain.Document, error)
	DeleteOne(ctx context.Context, collection string, q query.Query) (bool, error)
	DeleteMany(ctx context.Context, collection string, q query.Query) (int, error)
}

// Reader fetches documents.
type Reader interface {
	GetOne(ctx context.Context, collection string, q query.Query) (domain.Document, error)
	GetMany(ctx context.Context, collection string, q query.Query) ([]domain.Document, error)
	GetPaginated(ctx context.Context, collection string, q query.Query) (result.Page, error)
}

// Reducer computes scalar reductions over matching documents.
// Joins apply, sort and the page window do not.
type Reducer interface {
	Count(ctx context.Context, collection string, q query.Query) (int, error)
	Sum(ctx context.Context, collection, field string, q query.Query) (float64, error)
	GroupSum(ctx context.Context, collection, groupField, valueField string, q query.Query) ([]result.GroupSum, error)
}

// Aggregator runs aggregation pipelines.
type Aggregator interface {
	Aggregate(ctx context.Context, collection string, p aggregation.Pipeline) ([]domain.Document, error)
}

// Resetter drops every collection of the database.
type Resetter interface {
	ResetDB(ctx context.Context) error
}

// KVStore is the key-value backend of the query cache.
type KVStore interface {
	Pinger
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
}
