package ruleset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gopkg.in/yaml.v3"
)

// uniqueViolation is the SQLSTATE of a duplicate key
const uniqueViolation = pq.ErrorCode("23505")

// isUniqueViolation reports whether err is a Postgres duplicate key error
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// PostgresStore implements Store backed by PostgreSQL. Definitions are kept
// as YAML text in rule_sets.definition; the tables are created by the
// migrations directory.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed Store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the tenant if needed, then the definition
func (s *PostgresStore) Create(ctx context.Context, tenantID string, def *Definition) error {
	body, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tenants (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, tenantID); err != nil {
		return fmt.Errorf("failed to insert tenant: %w", err)
	}

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM rule_sets WHERE tenant_id = $1 AND name = $2)
	`, tenantID, def.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule set existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule set %s/%s: %w", tenantID, def.Name, ErrAlreadyExists)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rule_sets (id, tenant_id, name, kind, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, def.ID, tenantID, def.Name, string(def.Kind), string(body), now, now)
	if isUniqueViolation(err) {
		// a concurrent create of the same name won the race after the check
		return fmt.Errorf("rule set %s/%s: %w", tenantID, def.Name, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert rule set: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rule set %s/%s: %w", tenantID, def.Name, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to commit rule set: %w", err)
	}
	def.CreatedAt = now
	def.UpdatedAt = now
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*Definition, error) {
	var (
		id, body             string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &body, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal([]byte(body), &def); err != nil {
		return nil, fmt.Errorf("failed to decode definition %s: %w", id, err)
	}
	def.ID = id
	def.CreatedAt = createdAt
	def.UpdatedAt = updatedAt
	return &def, nil
}

// Get retrieves a definition by name
func (s *PostgresStore) Get(ctx context.Context, tenantID, name string) (*Definition, error) {
	def, err := scanDefinition(s.db.QueryRowContext(ctx, `
		SELECT id, definition, created_at, updated_at
		FROM rule_sets
		WHERE tenant_id = $1 AND name = $2
	`, tenantID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule set %s/%s: %w", tenantID, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule set: %w", err)
	}
	return def, nil
}

// List returns the tenant's definitions ordered by name
func (s *PostgresStore) List(ctx context.Context, tenantID string) ([]*Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, definition, created_at, updated_at
		FROM rule_sets
		WHERE tenant_id = $1
		ORDER BY name ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule sets: %w", err)
	}
	defer rows.Close()

	defs := []*Definition{}
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule set: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule sets: %w", err)
	}
	return defs, nil
}

// Delete removes a definition
func (s *PostgresStore) Delete(ctx context.Context, tenantID, name string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM rule_sets
		WHERE tenant_id = $1 AND name = $2
	`, tenantID, name)
	if err != nil {
		return fmt.Errorf("failed to delete rule set: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule set %s/%s: %w", tenantID, name, ErrNotFound)
	}
	return nil
}

// Tenants lists tenants that own at least one rule set
func (s *PostgresStore) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT tenant_id FROM rule_sets ORDER BY tenant_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}
