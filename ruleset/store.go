package ruleset

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Store persists rule-set definitions per tenant
type Store interface {
	// Create adds a definition, failing with ErrAlreadyExists when the
	// tenant already has a rule set of that name
	Create(ctx context.Context, tenantID string, def *Definition) error

	// Get returns a definition by name
	Get(ctx context.Context, tenantID, name string) (*Definition, error)

	// List returns the tenant's definitions ordered by name
	List(ctx context.Context, tenantID string) ([]*Definition, error)

	// Delete removes a definition
	Delete(ctx context.Context, tenantID, name string) error

	// Tenants lists tenants that own at least one definition
	Tenants(ctx context.Context) ([]string, error)
}

// InMemoryStore implements Store with nested maps guarded by an RWMutex
type InMemoryStore struct {
	defs map[string]map[string]*Definition
	mu   sync.RWMutex
}

// NewInMemoryStore creates an empty store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		defs: make(map[string]map[string]*Definition),
	}
}

// Create stores a copy of def and sets its timestamps
func (s *InMemoryStore) Create(_ context.Context, tenantID string, def *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.defs[tenantID]
	if !ok {
		tenant = make(map[string]*Definition)
		s.defs[tenantID] = tenant
	}
	if _, exists := tenant[def.Name]; exists {
		return fmt.Errorf("rule set %s/%s: %w", tenantID, def.Name, ErrAlreadyExists)
	}

	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now
	tenant[def.Name] = def.clone()
	return nil
}

// Get returns a copy of the named definition
func (s *InMemoryStore) Get(_ context.Context, tenantID, name string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, exists := s.defs[tenantID][name]
	if !exists {
		return nil, fmt.Errorf("rule set %s/%s: %w", tenantID, name, ErrNotFound)
	}
	return def.clone(), nil
}

// List returns copies of the tenant's definitions
func (s *InMemoryStore) List(_ context.Context, tenantID string) ([]*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Definition, 0, len(s.defs[tenantID]))
	for _, def := range s.defs[tenantID] {
		out = append(out, def.clone())
	}
	slices.SortFunc(out, func(a, b *Definition) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Delete removes the named definition
func (s *InMemoryStore) Delete(_ context.Context, tenantID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.defs[tenantID]
	if _, exists := tenant[name]; !exists {
		return fmt.Errorf("rule set %s/%s: %w", tenantID, name, ErrNotFound)
	}
	delete(tenant, name)
	if len(tenant) == 0 {
		delete(s.defs, tenantID)
	}
	return nil
}

// Tenants lists tenant IDs
func (s *InMemoryStore) Tenants(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]string, 0, len(s.defs))
	for id := range s.defs {
		tenants = append(tenants, id)
	}
	slices.Sort(tenants)
	return tenants, nil
}
