package ruleset

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "rule_sets_tenant_id_name_key"`}
	assert.True(t, isUniqueViolation(dup))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", dup)))

	assert.False(t, isUniqueViolation(&pq.Error{Code: "22P02"}), "invalid text representation")
	assert.False(t, isUniqueViolation(sql.ErrNoRows))
	assert.False(t, isUniqueViolation(nil))
}
