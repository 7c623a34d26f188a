//go:build integration

package history

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/rulespec/rules"
)

func setupPostgresStore(t *testing.T) *SQLStore {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { postgres.Terminate(ctx) })

	host, err := postgres.Host(ctx)
	require.NoError(t, err)
	port, err := postgres.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	var store *SQLStore
	for i := 0; i < 30; i++ {
		if store, err = OpenSQLStore(ctx, Postgres, connStr); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	migrationSQL, err := os.ReadFile("../migrations/000001_initial_schema.up.sql")
	require.NoError(t, err)
	_, err = store.DB().Exec(string(migrationSQL))
	require.NoError(t, err)

	return store
}

func TestPostgresSQLStore(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	for _, s := range []Sample{at(3, 30), at(0, 0), at(2, 20), at(1, 10), at(4, 40)} {
		require.NoError(t, store.Record(ctx, "latency", s))
	}

	last, err := store.Series(ctx, "latency", rules.LastN(2), epoch)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 40}, values(last))

	recent, err := store.Series(ctx, "latency", rules.TimeRange(2*time.Minute), epoch.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 30, 40}, values(recent))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"latency"}, keys)

	require.NoError(t, store.Delete(ctx, "latency"))
	assert.ErrorIs(t, store.Delete(ctx, "latency"), ErrNotFound)
}
