package ruleset

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/rulespec/expr"
	"github.com/liamcoop/rulespec/internal/logger"
)

// loadConcurrency bounds the tenants compiled in parallel by LoadAll
const loadConcurrency = 8

// compiledSets is a tenant's immutable name -> rule set map. Mutations build
// a new map and swap it in, so readers never hold the lock while deciding.
type compiledSets map[string]*RuleSet

// Manager serves compiled rule sets for all tenants. Mutations hold writeMu
// across the store write and the map swap, so the served map applies them in
// the same order as the store.
type Manager struct {
	store   Store
	opts    Options
	tenants map[string]compiledSets
	mu      sync.RWMutex
	writeMu sync.Mutex
}

// NewManager creates a manager over store
func NewManager(store Store, opts Options) *Manager {
	return &Manager{
		store:   store,
		opts:    opts,
		tenants: make(map[string]compiledSets),
	}
}

// LoadAll compiles every stored definition and replaces the served set.
// Definitions that no longer compile are logged and skipped.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	tenantIDs, err := m.store.Tenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch tenants: %w", err)
	}

	loaded := make([]compiledSets, len(tenantIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, tenantID := range tenantIDs {
		g.Go(func() error {
			sets, err := m.loadTenant(gctx, tenantID)
			if err != nil {
				return fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
			}
			loaded[i] = sets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	tenants := make(map[string]compiledSets, len(tenantIDs))
	for i, tenantID := range tenantIDs {
		tenants[tenantID] = loaded[i]
	}

	m.mu.Lock()
	m.tenants = tenants
	m.mu.Unlock()

	logger.Info("rule sets loaded", "tenants", len(tenants))
	return nil
}

func (m *Manager) loadTenant(ctx context.Context, tenantID string) (compiledSets, error) {
	defs, err := m.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	sets := make(compiledSets, len(defs))
	for _, def := range defs {
		rs, err := Compile(def, m.opts)
		if err != nil {
			logger.WarnRejectedDefinition(tenantID, def.Name, err)
			continue
		}
		sets[def.Name] = rs
	}
	return sets, nil
}

// Put validates and compiles def, persists it and starts serving it. The
// definition is never stored when it fails to compile.
func (m *Manager) Put(ctx context.Context, tenantID string, def *Definition) (*RuleSet, error) {
	if err := ValidateName("tenant", tenantID); err != nil {
		return nil, err
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	rs, err := Compile(def, m.opts)
	if err != nil {
		logger.WarnRejectedDefinition(tenantID, def.Name, err)
		return nil, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.Create(ctx, tenantID, def); err != nil {
		return nil, err
	}
	rs.def.CreatedAt = def.CreatedAt
	rs.def.UpdatedAt = def.UpdatedAt

	m.mu.Lock()
	next := maps.Clone(m.tenants[tenantID])
	if next == nil {
		next = make(compiledSets)
	}
	next[def.Name] = rs
	m.tenants[tenantID] = next
	m.mu.Unlock()

	logger.Info("rule set created", "tenant", tenantID, "ruleSet", def.Name, "kind", def.Kind, "id", def.ID)
	return rs, nil
}

// Preload puts defs into tenantID, skipping names that already exist
func (m *Manager) Preload(ctx context.Context, tenantID string, defs []*Definition) error {
	for _, def := range defs {
		if _, err := m.Put(ctx, tenantID, def); err != nil && !errors.Is(err, ErrAlreadyExists) {
			return fmt.Errorf("failed to preload %s: %w", def.Name, err)
		}
	}
	return nil
}

// Get returns the compiled rule set
func (m *Manager) Get(tenantID, name string) (*RuleSet, error) {
	m.mu.RLock()
	sets, ok := m.tenants[tenantID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}

	rs, ok := sets[name]
	if !ok {
		return nil, fmt.Errorf("rule set %s/%s: %w", tenantID, name, ErrNotFound)
	}
	return rs, nil
}

// List returns the tenant's definitions ordered by name
func (m *Manager) List(tenantID string) ([]*Definition, error) {
	m.mu.RLock()
	sets, ok := m.tenants[tenantID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}

	names := slices.Sorted(maps.Keys(sets))
	defs := make([]*Definition, len(names))
	for i, name := range names {
		defs[i] = sets[name].Definition()
	}
	return defs, nil
}

// Tenants returns the served tenant IDs in ascending order
func (m *Manager) Tenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.tenants))
}

// Delete removes a rule set from the store and stops serving it
func (m *Manager) Delete(ctx context.Context, tenantID, name string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.Delete(ctx, tenantID, name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := maps.Clone(m.tenants[tenantID])
	delete(next, name)
	if len(next) == 0 {
		delete(m.tenants, tenantID)
	} else {
		m.tenants[tenantID] = next
	}

	logger.Info("rule set deleted", "tenant", tenantID, "ruleSet", name)
	return nil
}

// Decide evaluates the named rule set against facts
func (m *Manager) Decide(tenantID, name string, facts expr.Facts) (Decision, error) {
	rs, err := m.Get(tenantID, name)
	if err != nil {
		return noMatch(), err
	}

	d := rs.Decide(facts)
	logger.RecordDecision(d.Matched)
	return d, nil
}
