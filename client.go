// Package docstore is a portable document query and aggregation library.
// Queries and pipelines are built once and run unchanged on either the
// file-backed local engine or MongoDB.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docstore/internal/config"
	"github.com/kailas-cloud/docstore/internal/db"
	"github.com/kailas-cloud/docstore/internal/db/factory"
	"github.com/kailas-cloud/docstore/internal/domain/aggregation"
	"github.com/kailas-cloud/docstore/internal/domain/result"
)

// Client is the docstore entry point. All datastore operations are
// promoted from the configured engine.
type Client struct {
	db.Store
	ds *factory.Datastore
}

// New opens the engine selected by the options. Exactly one of WithLocal or
// WithMongo is required.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := config.Config{}
	cc := &clientConfig{}
	for _, o := range opts {
		o.apply(&cfg, cc)
	}

	if cfg.Datastore.Driver == "" {
		return nil, errors.New("docstore: engine required (use WithLocal or WithMongo)")
	}
	if cfg.Datastore.DefaultPageSize <= 0 {
		cfg.Datastore.DefaultPageSize = result.DefaultPageSize
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("docstore: %w", err)
	}

	logger := cc.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ds, err := factory.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("docstore: %w", err)
	}
	return &Client{Store: ds.Store, ds: ds}, nil
}

// Driver reports the engine in use: "local" or "mongo".
func (c *Client) Driver() string {
	if c.ds == nil {
		return ""
	}
	return c.ds.Driver
}

// PipelineBuilder returns a fresh aggregation pipeline builder.
func (c *Client) PipelineBuilder() *PipelineBuilder { return aggregation.NewBuilder() }

// Close releases the engine and the cache client.
func (c *Client) Close(ctx context.Context) error {
	if c.ds == nil {
		return nil
	}
	return c.ds.Close(ctx)
}
