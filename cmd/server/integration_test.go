//go:build integration

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/rulespec/internal/config"
	"github.com/liamcoop/rulespec/ruleset"
)

// startPostgres starts a PostgreSQL testcontainer and returns its URL
func startPostgres(t *testing.T) string {
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

	return fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())
}

// TestEndToEndPostgres creates a rule set through the API, restarts the
// stack on the same database and decides against the reloaded rule set
func TestEndToEndPostgres(t *testing.T) {
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Database.Driver = config.DriverPostgres
	cfg.Database.URL = startPostgres(t)
	cfg.History.CacheTTL = time.Minute

	var st *storage
	var err error
	for i := 0; i < 30; i++ {
		if st, err = openStorage(ctx, &cfg); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	migrationSQL, err := os.ReadFile("../../migrations/000001_initial_schema.up.sql")
	require.NoError(t, err)
	_, err = st.db.Exec(string(migrationSQL))
	require.NoError(t, err)

	manager := ruleset.NewManager(st.ruleSets, ruleset.Options{Samples: st.samples})
	ts := httptest.NewServer(NewServer(manager, st.samples, st.db, 5*time.Second))
	defer ts.Close()

	status, _ := do(t, http.MethodPost, ts.URL+"/api/v1/tenants/acme/rulesets", "application/yaml", tiersYAML)
	require.Equal(t, http.StatusCreated, status)

	status, _ = do(t, http.MethodPost, ts.URL+"/api/v1/samples/cpu", "application/json", `{"value": 0.5}`)
	require.Equal(t, http.StatusCreated, status)

	reloaded := ruleset.NewManager(st.ruleSets, ruleset.Options{Samples: st.samples})
	require.NoError(t, reloaded.LoadAll(ctx))
	ts2 := httptest.NewServer(NewServer(reloaded, st.samples, st.db, 5*time.Second))
	defer ts2.Close()

	status, body := do(t, http.MethodPost, ts2.URL+"/api/v1/tenants/acme/rulesets/discount-tier/decide", "application/json",
		`{"user": {"vip": true, "spend": 10}}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "gold", body["result"])

	status, body = do(t, http.MethodGet, ts2.URL+"/api/v1/samples/cpu", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["samples"], 1)

	status, body = do(t, http.MethodGet, ts2.URL+"/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, body["tenantsLoaded"])
}
