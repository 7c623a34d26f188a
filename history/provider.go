package history

import (
	"context"
	"time"

	"github.com/liamcoop/rulespec/internal/logger"
	"github.com/liamcoop/rulespec/rules"
)

// DefaultQueryTimeout bounds a single provider query
const DefaultQueryTimeout = 2 * time.Second

// Provider adapts a Store to rules.HistoricalDataProvider. The series key is
// derived from the evaluation context. Store errors are logged and reported
// as an empty series, which a HistoricalSpec treats as insufficient data.
type Provider[C any] struct {
	store   Store
	key     func(C) (string, bool)
	timeout time.Duration
	now     func() time.Time
}

// ProviderOption configures a Provider
type ProviderOption[C any] func(*Provider[C])

// WithQueryTimeout overrides DefaultQueryTimeout
func WithQueryTimeout[C any](d time.Duration) ProviderOption[C] {
	return func(p *Provider[C]) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProviderClock sets the clock used to anchor time-range windows
func WithProviderClock[C any](now func() time.Time) ProviderOption[C] {
	return func(p *Provider[C]) { p.now = now }
}

// NewProvider creates a provider reading from store
func NewProvider[C any](store Store, key func(C) (string, bool), opts ...ProviderOption[C]) *Provider[C] {
	p := &Provider[C]{
		store:   store,
		key:     key,
		timeout: DefaultQueryTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StaticKey returns a key function that ignores the context
func StaticKey[C any](key string) func(C) (string, bool) {
	return func(C) (string, bool) { return key, true }
}

// GetData implements rules.HistoricalDataProvider
func (p *Provider[C]) GetData(window rules.AnalysisWindow, c C) []rules.Sample[float64] {
	key, ok := p.key(c)
	if !ok || key == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	samples, err := p.store.Series(ctx, key, window, p.now())
	if err != nil {
		logger.WarnProvider(key, err)
		return nil
	}
	return samples
}
