package surrealdb

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bobmcallan/marketsift/internal/common"
)

var (
	surrealOnce      sync.Once
	surrealContainer *surrealDBContainer
	surrealError     error
)

// surrealDBContainer wraps a testcontainers SurrealDB instance.
type surrealDBContainer struct {
	container testcontainers.Container
	host      string
	port      string
}

// startSurrealDB starts a shared SurrealDB container for the test run.
// Uses sync.Once so only one container is created per process.
func startSurrealDB(t *testing.T) *surrealDBContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping SurrealDB container test in short mode")
	}

	surrealOnce.Do(func() {
		ctx := context.Background()

		req := testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--user", "root", "--pass", "root"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("8000/tcp"),
				wait.ForLog("Started web server"),
			).WithDeadline(60 * time.Second),
		}

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			surrealError = fmt.Errorf("start SurrealDB container: %w", err)
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			container.Terminate(ctx)
			surrealError = fmt.Errorf("get SurrealDB host: %w", err)
			return
		}

		mappedPort, err := container.MappedPort(ctx, "8000/tcp")
		if err != nil {
			container.Terminate(ctx)
			surrealError = fmt.Errorf("get SurrealDB port: %w", err)
			return
		}

		surrealContainer = &surrealDBContainer{
			container: container,
			host:      host,
			port:      mappedPort.Port(),
		}
	})

	if surrealError != nil {
		t.Skipf("SurrealDB container unavailable: %v", surrealError)
	}

	return surrealContainer
}

// address returns the WebSocket RPC address for SurrealDB.
func (c *surrealDBContainer) address() string {
	return fmt.Sprintf("ws://%s:%s/rpc", c.host, c.port)
}

// newContainerStore connects a Store to the shared container, using a distinct
// database per test for isolation.
func newContainerStore(t *testing.T, database string) *Store {
	t.Helper()

	c := startSurrealDB(t)
	cfg := &common.StorageConfig{
		Address:   c.address(),
		Username:  "root",
		Password:  "root",
		Namespace: "marketsift_test",
		Database:  database,
	}

	store, err := NewStore(common.NewSilentLogger(), cfg)
	if err != nil {
		t.Fatalf("connect store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
