//go:build integration

package ruleset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/rulespec/expr"
)

// setupTestDB creates a PostgreSQL testcontainer and runs migrations
func setupTestDB(t *testing.T) *sql.DB {
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
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	migrationSQL, err := os.ReadFile("../migrations/000001_initial_schema.up.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(migrationSQL))
	require.NoError(t, err)

	return db
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(setupTestDB(t))

	def := parse(t, discountTiers)
	def.ID = uuid.NewString()
	require.NoError(t, store.Create(ctx, "acme", def))

	dup := parse(t, discountTiers)
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, store.Create(ctx, "acme", dup), ErrAlreadyExists)

	got, err := store.Get(ctx, "acme", "discount-tier")
	require.NoError(t, err)
	assert.Equal(t, def.ID, got.ID)
	assert.Equal(t, KindFirstMatch, got.Kind)
	assert.Equal(t, "standard", got.Fallback)
	assert.Len(t, got.Rules, 2)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = store.Get(ctx, "acme", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	tenants, err := store.Tenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, tenants)

	list, err := store.List(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, "acme", "discount-tier"))
	assert.ErrorIs(t, store.Delete(ctx, "acme", "discount-tier"), ErrNotFound)
}

func TestPostgresStoreConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(setupTestDB(t))

	const writers = 8
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		def := parse(t, discountTiers)
		def.ID = uuid.NewString()
		go func() { errs <- store.Create(ctx, "acme", def) }()
	}

	created := 0
	for i := 0; i < writers; i++ {
		err := <-errs
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyExists)
	}
	assert.Equal(t, 1, created)
}

func TestManagerReloadsFromPostgres(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(setupTestDB(t))

	first := NewManager(store, Options{})
	_, err := first.Put(ctx, "acme", parse(t, discountTiers))
	require.NoError(t, err)
	_, err = first.Put(ctx, "globex", parse(t, rollout))
	require.NoError(t, err)

	second := NewManager(store, Options{})
	require.NoError(t, second.LoadAll(ctx))
	assert.Equal(t, []string{"acme", "globex"}, second.Tenants())

	d, err := second.Decide("acme", "discount-tier", expr.Facts{"user": map[string]any{"vip": true, "spend": 2000}})
	require.NoError(t, err)
	assert.Equal(t, "platinum", d.Result)
}
