package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validLocal() Config {
	return Config{
		HTTP:      HTTPConfig{Port: 8080},
		Datastore: DatastoreConfig{Driver: DriverLocal, DataDir: "data"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid local", func(*Config) {}, ""},
		{"invalid port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"unknown driver", func(c *Config) { c.Datastore.Driver = "sqlite" }, `got "sqlite"`},
		{"local without dir", func(c *Config) { c.Datastore.DataDir = "" }, "datastore.data_dir"},
		{"mongo without uri", func(c *Config) {
			c.Datastore.Driver = DriverMongo
			c.Mongo.Database = "app"
		}, "mongo.uri"},
		{"mongo without database", func(c *Config) {
			c.Datastore.Driver = DriverMongo
			c.Mongo.URI = "mongodb://localhost:27017"
		}, "mongo.database"},
		{"valid mongo", func(c *Config) {
			c.Datastore.Driver = DriverMongo
			c.Mongo.URI = "mongodb://localhost:27017"
			c.Mongo.Database = "app"
		}, ""},
		{"cache without addrs", func(c *Config) { c.Cache.Enabled = true }, "cache.addrs"},
		{"cache with addrs", func(c *Config) {
			c.Cache.Enabled = true
			c.Cache.Addrs = []string{"localhost:6379"}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validLocal()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Setenv("MONGO_URI", "")
	t.Setenv("MONGO_DBNAME", "")

	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected Port=8080, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 10 {
		t.Errorf("expected WriteTimeoutSec=10, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Datastore.Driver != DriverLocal {
		t.Errorf("expected Driver=local, got %q", cfg.Datastore.Driver)
	}
	if cfg.Datastore.DataDir != "data" {
		t.Errorf("expected DataDir='data', got %q", cfg.Datastore.DataDir)
	}
	if cfg.Datastore.DefaultPageSize != 20 {
		t.Errorf("expected DefaultPageSize=20, got %d", cfg.Datastore.DefaultPageSize)
	}
	if cfg.Mongo.ConnectTimeoutSec != 10 {
		t.Errorf("expected ConnectTimeoutSec=10, got %d", cfg.Mongo.ConnectTimeoutSec)
	}
	if cfg.Cache.TTLSec != 300 {
		t.Errorf("expected TTLSec=300, got %d", cfg.Cache.TTLSec)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://env:27017")
	t.Setenv("MONGO_DBNAME", "envdb")

	cfg := Config{
		HTTP:      HTTPConfig{Port: 9000, ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Datastore: DatastoreConfig{Driver: DriverLocal, DataDir: "/var/docs", DefaultPageSize: 50},
		Mongo:     MongoConfig{URI: "mongodb://file:27017", Database: "filedb"},
		Cache:     CacheConfig{TTLSec: 30},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 9000 || cfg.HTTP.ReadTimeoutSec != 30 || cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("http overridden: %+v", cfg.HTTP)
	}
	if cfg.Datastore.Driver != DriverLocal {
		t.Errorf("explicit driver overridden: %q", cfg.Datastore.Driver)
	}
	if cfg.Datastore.DataDir != "/var/docs" || cfg.Datastore.DefaultPageSize != 50 {
		t.Errorf("datastore overridden: %+v", cfg.Datastore)
	}
	if cfg.Mongo.URI != "mongodb://file:27017" || cfg.Mongo.Database != "filedb" {
		t.Errorf("mongo overridden by env: %+v", cfg.Mongo)
	}
	if cfg.Cache.TTLSec != 30 {
		t.Errorf("expected TTLSec=30, got %d", cfg.Cache.TTLSec)
	}
}

func TestApplyDefaults_MongoEnvFallback(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_DBNAME", "app")

	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Datastore.Driver != DriverMongo {
		t.Fatalf("expected Driver=mongo, got %q", cfg.Datastore.Driver)
	}
	if cfg.Mongo.URI != "mongodb://localhost:27017" || cfg.Mongo.Database != "app" {
		t.Errorf("unexpected mongo config: %+v", cfg.Mongo)
	}
}

func TestApplyDefaults_MongoEnvNeedsBoth(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_DBNAME", "")

	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Datastore.Driver != DriverLocal {
		t.Fatalf("expected Driver=local, got %q", cfg.Datastore.Driver)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("DOCSTORE_TEST_SET", "value")
	t.Setenv("DOCSTORE_TEST_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"a: ${DOCSTORE_TEST_SET}", "a: value"},
		{"a: ${DOCSTORE_TEST_SET:-fallback}", "a: value"},
		{"a: ${DOCSTORE_TEST_EMPTY:-fallback}", "a: fallback"},
		{"a: ${DOCSTORE_TEST_UNSET_X:-}", "a: "},
		{"a: ${DOCSTORE_TEST_UNSET_X}", "a: "},
		{"a: plain", "a: plain"},
	}
	for _, tt := range tests {
		if got := string(expandEnvVars([]byte(tt.in))); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := `
http:
  port: ${DOCSTORE_TEST_PORT:-9090}
datastore:
  driver: local
  data_dir: ./docs
cache:
  enabled: true
  addrs: ["localhost:6379"]
  ttl_sec: 60
`
	if err := os.WriteFile(filepath.Join(dir, "config", "unittest.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load("unittest")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected Port=9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Datastore.DataDir != "./docs" {
		t.Errorf("expected DataDir='./docs', got %q", cfg.Datastore.DataDir)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTLSec != 60 {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "broken.yaml"), []byte("datastore:\n  driver: sqlite\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	if _, err := Load("broken"); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if got := GetEnv(); got != "local" {
		t.Errorf("expected local, got %q", got)
	}
	t.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("expected prod, got %q", got)
	}
}
