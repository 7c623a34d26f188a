package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/liamcoop/rulespec/history"
	"github.com/liamcoop/rulespec/internal/config"
	"github.com/liamcoop/rulespec/internal/logger"
	"github.com/liamcoop/rulespec/ruleset"
)

var cfgFile string

func newRootCommand() *cobra.Command {
	loader := config.NewLoader()

	cmd := &cobra.Command{
		Use:   "rulespec-server",
		Short: "Serve multi-tenant rule sets over HTTP",
		Long: `rulespec-server compiles declarative rule sets (first match, weighted,
threshold, comparative and historical) and evaluates them against posted
facts. Sample series feeding historical rule sets are recorded through the
same API.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loader.WithConfigPath(cfgFile).Load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	flags.String("addr", "", "listen address (default :8080)")
	flags.String("database-driver", "", "memory, postgres or sqlite")
	flags.String("database-url", "", "database connection string")
	flags.String("rulesets-dir", "", "directory of YAML rule sets preloaded into the default tenant")
	flags.String("log-level", "", "trace, debug, info, warn or error")

	v := loader.Viper()
	_ = v.BindPFlag("server.addr", flags.Lookup("addr"))
	_ = v.BindPFlag("database.driver", flags.Lookup("database-driver"))
	_ = v.BindPFlag("database.url", flags.Lookup("database-url"))
	_ = v.BindPFlag("rulesets.dir", flags.Lookup("rulesets-dir"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))

	return cmd
}

// storage holds the stores selected by database.driver
type storage struct {
	db       *sql.DB
	ruleSets ruleset.Store
	samples  history.Store
}

func (st *storage) Close() error {
	if st.db != nil {
		return st.db.Close()
	}
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	st := &storage{}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		sqlStore, err := history.OpenSQLStore(ctx, history.Postgres, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		st.db = sqlStore.DB()
		st.ruleSets = ruleset.NewPostgresStore(st.db)
		st.samples = sqlStore
	case config.DriverSQLite:
		sqlStore, err := history.OpenSQLStore(ctx, history.SQLite, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := sqlStore.EnsureSchema(ctx); err != nil {
			sqlStore.Close()
			return nil, err
		}
		st.db = sqlStore.DB()
		st.ruleSets = ruleset.NewInMemoryStore()
		st.samples = sqlStore
	default:
		st.ruleSets = ruleset.NewInMemoryStore()
		st.samples = history.NewInMemoryStore(cfg.History.MaxSamples)
	}

	if cfg.History.CacheTTL > 0 {
		st.samples = history.NewCachedStore(st.samples, history.CacheConfig{TTL: cfg.History.CacheTTL})
	}
	return st, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	defer logger.Shutdown(context.Background())

	st, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer st.Close()

	manager := ruleset.NewManager(st.ruleSets, ruleset.Options{
		Samples:      st.samples,
		QueryTimeout: cfg.History.QueryTimeout,
	})

	logger.Info("loading rule sets", "driver", cfg.Database.Driver)
	if err := manager.LoadAll(ctx); err != nil {
		return fmt.Errorf("failed to load rule sets: %w", err)
	}

	if cfg.RuleSets.Dir != "" {
		defs, err := ruleset.LoadDir(cfg.RuleSets.Dir)
		if err != nil {
			return fmt.Errorf("failed to read rule sets: %w", err)
		}
		if err := manager.Preload(ctx, cfg.RuleSets.DefaultTenant, defs); err != nil {
			return err
		}
		logger.Info("rule sets preloaded", "dir", cfg.RuleSets.Dir, "count", len(defs), "tenant", cfg.RuleSets.DefaultTenant)
	}

	server := NewServer(manager, st.samples, st.db, cfg.Server.RequestTimeout)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr, "tenants", len(manager.Tenants()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		logger.Fatal("rulespec-server failed", "error", err)
	}
}
