package vdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestClient spins up a disposable pgvector/postgres container and
// returns a fully migrated Client. It needs a Docker daemon; the tests
// that call it skip themselves under -short, same gating convention the
// teacher uses for its database-backed integration tests.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{
		Host:     host,
		Port:     port.Int(),
		User:     "test",
		Password: "test",
		Database: "test",
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func TestClientHealth(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	client := newTestClient(t)

	status, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
}

func TestSourcePrimaryKeyAndColumns(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Pool.Exec(ctx, `
		CREATE TABLE public.articles (
			id BIGINT PRIMARY KEY,
			body TEXT NOT NULL
		)`)
	require.NoError(t, err)

	pk, err := client.SourcePrimaryKey(ctx, "public", "articles")
	require.NoError(t, err)
	require.Len(t, pk, 1)
	assert.Equal(t, "id", pk[0].AttName)

	cols, err := client.SourceColumns(ctx, "public", "articles")
	require.NoError(t, err)
	assert.Len(t, cols, 2)

	exists, err := client.TableExists(ctx, "public", "articles")
	require.NoError(t, err)
	assert.True(t, exists)

	missing, err := client.TableExists(ctx, "public", "does_not_exist")
	require.NoError(t, err)
	assert.False(t, missing)
}
