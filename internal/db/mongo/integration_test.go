//go:build integration

package mongo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docstore/internal/db/enginetest"
	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/query"
)

var (
	dbSeq                atomic.Uint64
	integrationURI       string
	integrationContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	uri := strings.TrimSpace(os.Getenv("DOCSTORE_MONGO_URI"))
	if uri == "" {
		container, generated, err := startMongoContainer(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start integration container: %v\n", err)
			os.Exit(1)
		}
		integrationContainer = container
		integrationURI = generated
	} else {
		integrationURI = uri
	}

	exitCode := m.Run()

	if integrationContainer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := integrationContainer.Terminate(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate integration container: %v\n", err)
			if exitCode == 0 {
				exitCode = 1
			}
		}
	}

	os.Exit(exitCode)
}

func startMongoContainer(ctx context.Context) (testcontainers.Container, string, error) {
	request := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: request,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start mongo container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, "", fmt.Errorf("resolve container host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, "", fmt.Errorf("resolve container port: %w", err)
	}
	return container, fmt.Sprintf("mongodb://%s:%s", host, mappedPort.Port()), nil
}

// newIntegrationStore connects to a fresh database that is dropped on cleanup.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	name := fmt.Sprintf("docstore_it_%d_%d", os.Getpid(), dbSeq.Add(1))

	s, err := New(ctx, Config{URI: integrationURI, Database: name}, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = s.ResetDB(ctx)
		_ = s.Close(ctx)
	})
	return s
}

func TestIntegration_FilterSuite(t *testing.T) {
	enginetest.RunFilterSuite(t, newIntegrationStore(t), "people")
}

func TestIntegration_PaginationSuite(t *testing.T) {
	enginetest.RunPaginationSuite(t, newIntegrationStore(t), "numbers")
}

func TestIntegration_AggregationSuite(t *testing.T) {
	enginetest.RunAggregationSuite(t, newIntegrationStore(t), "agg_")
}

func TestIntegration_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newIntegrationStore(t)
	enginetest.Seed(t, s, "people", enginetest.People())

	byCity := query.NewBuilder().Filter("city", query.Equals("Paris")).Build()
	docs, err := s.UpdateMany(ctx, "people", byCity, domain.Document{"visited": true})
	if err != nil {
		t.Fatalf("update many: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 updated, got %d", len(docs))
	}
	for _, d := range docs {
		if d["visited"] != true {
			t.Errorf("not updated: %v", d)
		}
	}

	one, err := s.UpdateOne(ctx, "people", query.NewBuilder().Filter("name", query.Equals("bob")).Build(),
		domain.Document{"age": 26})
	if err != nil {
		t.Fatalf("update one: %v", err)
	}
	if enginetest.Float(one["age"]) != 26 {
		t.Errorf("age: got %v", one["age"])
	}

	n, err := s.DeleteMany(ctx, "people", byCity)
	if err != nil || n != 2 {
		t.Fatalf("delete many: got %d, %v", n, err)
	}
	left, err := s.Count(ctx, "people", query.NewBuilder().Build())
	if err != nil || left != 3 {
		t.Errorf("count after delete: got %d, %v", left, err)
	}
}
