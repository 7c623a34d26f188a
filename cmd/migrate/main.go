package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/liamcoop/rulespec/internal/logger"
)

// migrator is the subset of *migrate.Migrate the commands use
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
}

func newRootCommand(open func(path, databaseURL string) (migrator, error)) *cobra.Command {
	var databaseURL, migrationsPath string

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the rule set and sample schema to PostgreSQL",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database", "", "database URL (default $DATABASE_URL)")
	root.PersistentFlags().StringVar(&migrationsPath, "path", "migrations", "path to migrations directory")

	withMigrator := func(fn func(m migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			url := databaseURL
			if url == "" {
				url = os.Getenv("DATABASE_URL")
			}
			if url == "" {
				return errors.New("database URL is required: use --database or DATABASE_URL")
			}

			logger.Info("connecting to database", "migrations", migrationsPath)
			m, err := open(migrationsPath, url)
			if err != nil {
				return fmt.Errorf("failed to create migration instance: %w", err)
			}
			return fn(m, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m migrator, _ []string) error {
				err := m.Up()
				if errors.Is(err, migrate.ErrNoChange) {
					logger.Info("no migrations to run, database is up to date")
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
				logger.Info("migrations completed")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m migrator, _ []string) error {
				if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("failed to roll back migrations: %w", err)
				}
				logger.Info("rollback completed")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m migrator, _ []string) error {
				version, dirty, err := m.Version()
				if err != nil {
					return fmt.Errorf("failed to get version: %w", err)
				}
				logger.Info("current version", "version", version, "dirty", dirty)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(m migrator, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version number %q: %w", args[0], err)
				}
				if err := m.Force(version); err != nil {
					return fmt.Errorf("failed to force version: %w", err)
				}
				logger.Info("forced version", "version", version)
				return nil
			}),
		},
	)

	return root
}

func openMigrator(path, databaseURL string) (migrator, error) {
	return migrate.New("file://"+path, databaseURL)
}

func main() {
	if err := newRootCommand(openMigrator).ExecuteContext(context.Background()); err != nil {
		logger.Fatal("migration failed", "error", err)
	}
}
