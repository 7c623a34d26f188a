// Package history stores time-stamped samples and serves them to
// rules.HistoricalSpec through the HistoricalDataProvider contract.
package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/liamcoop/rulespec/rules"
)

// Sample is a numeric observation
type Sample = rules.Sample[float64]

// ErrNotFound is returned when a series key has no samples
var ErrNotFound = errors.New("series not found")

// Store persists sample series by key
type Store interface {
	// Record appends a sample to the series identified by key
	Record(ctx context.Context, key string, sample Sample) error

	// Series returns the samples of key restricted to window, oldest first.
	// An unknown key yields an empty series, not an error.
	Series(ctx context.Context, key string, window rules.AnalysisWindow, now time.Time) ([]Sample, error)

	// Keys lists the known series keys in ascending order
	Keys(ctx context.Context) ([]string, error)

	// Delete removes a series
	Delete(ctx context.Context, key string) error
}

// DefaultMaxSamples bounds each in-memory series
const DefaultMaxSamples = 10000

// InMemoryStore keeps series in memory, ordered by time. Reads return a copy
// taken under the read lock, so callers always see a consistent snapshot.
type InMemoryStore struct {
	series     map[string][]Sample
	maxSamples int
	mu         sync.RWMutex
}

// NewInMemoryStore creates a store that keeps at most maxSamples per key,
// dropping the oldest first. maxSamples <= 0 selects DefaultMaxSamples.
func NewInMemoryStore(maxSamples int) *InMemoryStore {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &InMemoryStore{
		series:     make(map[string][]Sample),
		maxSamples: maxSamples,
	}
}

// Record inserts sample keeping the series sorted by time
func (s *InMemoryStore) Record(_ context.Context, key string, sample Sample) error {
	if key == "" {
		return fmt.Errorf("series key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	series := s.series[key]
	i, _ := slices.BinarySearchFunc(series, sample.Time, func(e Sample, t time.Time) int {
		if e.Time.After(t) {
			return 1
		}
		return -1
	})
	series = slices.Insert(series, i, sample)
	if len(series) > s.maxSamples {
		series = slices.Clone(series[len(series)-s.maxSamples:])
	}
	s.series[key] = series
	return nil
}

// Series returns a windowed copy of the series
func (s *InMemoryStore) Series(_ context.Context, key string, window rules.AnalysisWindow, now time.Time) ([]Sample, error) {
	s.mu.RLock()
	snapshot := slices.Clone(s.series[key])
	s.mu.RUnlock()

	return rules.ApplyWindow(window, snapshot, now), nil
}

// Keys lists series keys
func (s *InMemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.series))
	for k := range s.series {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// Delete removes a series
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.series[key]; !exists {
		return fmt.Errorf("series %s: %w", key, ErrNotFound)
	}
	delete(s.series, key)
	return nil
}
