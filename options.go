package docstore

import (
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docstore/internal/config"
)

// Option configures the Client.
type Option interface {
	apply(*config.Config, *clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*config.Config, *clientConfig)

func (f optionFunc) apply(c *config.Config, cc *clientConfig) { f(c, cc) }

type clientConfig struct {
	logger *zap.Logger
}

// WithLocal selects the file-backed local engine rooted at dataDir.
func WithLocal(dataDir string) Option {
	return optionFunc(func(c *config.Config, _ *clientConfig) {
		c.Datastore.Driver = config.DriverLocal
		c.Datastore.DataDir = dataDir
	})
}

// WithMongo selects the MongoDB engine.
func WithMongo(uri, database string) Option {
	return optionFunc(func(c *config.Config, _ *clientConfig) {
		c.Datastore.Driver = config.DriverMongo
		c.Mongo.URI = uri
		c.Mongo.Database = database
	})
}

// WithMongoCA enables TLS with the PEM CA bundle at certFile.
func WithMongoCA(certFile string) Option {
	return optionFunc(func(c *config.Config, _ *clientConfig) {
		c.Mongo.CertFile = certFile
	})
}

// WithRedisCache caches counts, sums, group sums and pages in Redis.
// ttl <= 0 uses the default of five minutes.
func WithRedisCache(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *config.Config, _ *clientConfig) {
		c.Cache.Enabled = true
		c.Cache.Addrs = []string{addr}
		c.Cache.Password = password
		c.Cache.TTLSec = int(ttl / time.Second)
	})
}

// WithDefaultPageSize sets the page size used when a query has no limit.
// Default: 32.
func WithDefaultPageSize(n int) Option {
	return optionFunc(func(c *config.Config, _ *clientConfig) {
		c.Datastore.DefaultPageSize = n
	})
}

// WithLogger enables structured logging. Default: no-op.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(_ *config.Config, cc *clientConfig) {
		cc.logger = l
	})
}
