package rules

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Sample is one time-stamped observation
type Sample[V any] struct {
	Time  time.Time
	Value V
}

// WindowKind selects how an AnalysisWindow restricts a series
type WindowKind int

const (
	// WindowAll passes every sample through
	WindowAll WindowKind = iota
	// WindowLastN keeps the N most recent samples
	WindowLastN
	// WindowTimeRange keeps samples no older than the interval
	WindowTimeRange
)

// AnalysisWindow restricts a sample series before aggregation
type AnalysisWindow struct {
	kind     WindowKind
	count    int
	interval time.Duration
}

// AllData returns a window that keeps every sample
func AllData() AnalysisWindow {
	return AnalysisWindow{kind: WindowAll}
}

// LastN returns a window that keeps the n most recent samples
func LastN(n int) AnalysisWindow {
	return AnalysisWindow{kind: WindowLastN, count: n}
}

// TimeRange returns a window that keeps samples taken within interval of the
// reference time
func TimeRange(interval time.Duration) AnalysisWindow {
	return AnalysisWindow{kind: WindowTimeRange, interval: interval}
}

// Kind returns the window kind
func (w AnalysisWindow) Kind() WindowKind { return w.kind }

// Count returns N for a last-N window
func (w AnalysisWindow) Count() int { return w.count }

// Interval returns the trailing interval of a time-range window
func (w AnalysisWindow) Interval() time.Duration { return w.interval }

// Validate rejects non-positive sizes and intervals
func (w AnalysisWindow) Validate() error {
	switch w.kind {
	case WindowLastN:
		if w.count <= 0 {
			return fmt.Errorf("%w: last %d", ErrInvalidWindow, w.count)
		}
	case WindowTimeRange:
		if w.interval <= 0 {
			return fmt.Errorf("%w: range %s", ErrInvalidWindow, w.interval)
		}
	}
	return nil
}

// String renders the window in the form accepted by ParseWindow
func (w AnalysisWindow) String() string {
	switch w.kind {
	case WindowLastN:
		return "last:" + strconv.Itoa(w.count)
	case WindowTimeRange:
		return "range:" + w.interval.String()
	default:
		return "all"
	}
}

// ParseWindow parses "all", "last:<n>" or "range:<duration>"
func ParseWindow(s string) (AnalysisWindow, error) {
	kind, arg, _ := strings.Cut(strings.TrimSpace(s), ":")
	var w AnalysisWindow
	switch kind {
	case "", "all":
		return AllData(), nil
	case "last":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return AnalysisWindow{}, fmt.Errorf("invalid window %q: %w", s, err)
		}
		w = LastN(n)
	case "range":
		d, err := time.ParseDuration(arg)
		if err != nil {
			return AnalysisWindow{}, fmt.Errorf("invalid window %q: %w", s, err)
		}
		w = TimeRange(d)
	default:
		return AnalysisWindow{}, fmt.Errorf("invalid window %q: unknown kind %q", s, kind)
	}
	if err := w.Validate(); err != nil {
		return AnalysisWindow{}, err
	}
	return w, nil
}

// ApplyWindow restricts samples to w. Last-N orders samples by time and keeps
// the tail; time-range keeps samples with Time >= now - interval. The input
// slice is not modified.
func ApplyWindow[V any](w AnalysisWindow, samples []Sample[V], now time.Time) []Sample[V] {
	switch w.kind {
	case WindowLastN:
		sorted := slices.Clone(samples)
		slices.SortStableFunc(sorted, func(a, b Sample[V]) int { return a.Time.Compare(b.Time) })
		if w.count <= 0 {
			return sorted[:0]
		}
		if len(sorted) > w.count {
			sorted = sorted[len(sorted)-w.count:]
		}
		return sorted
	case WindowTimeRange:
		cutoff := now.Add(-w.interval)
		out := make([]Sample[V], 0, len(samples))
		for _, s := range samples {
			if !s.Time.Before(cutoff) {
				out = append(out, s)
			}
		}
		return out
	default:
		return slices.Clone(samples)
	}
}

// HistoricalDataProvider supplies the raw series for a context. It must be
// safe for concurrent use and return a consistent snapshot.
type HistoricalDataProvider[C, V any] interface {
	GetData(window AnalysisWindow, context C) []Sample[V]
}

// ProviderFunc adapts a function to HistoricalDataProvider
type ProviderFunc[C, V any] func(window AnalysisWindow, context C) []Sample[V]

// GetData calls f(window, context)
func (f ProviderFunc[C, V]) GetData(window AnalysisWindow, context C) []Sample[V] {
	return f(window, context)
}

// Aggregation reduces a non-empty sample series to a single value
type Aggregation[V cmp.Ordered] struct {
	name         string
	isPercentile bool
	percentile   float64
	reduce       func([]Sample[V]) (V, bool)
}

// Name identifies the aggregation, e.g. "median" or "p95"
func (a Aggregation[V]) Name() string { return a.name }

// Aggregate applies the aggregation. It reports false for an empty series.
func (a Aggregation[V]) Aggregate(samples []Sample[V]) (V, bool) {
	if len(samples) == 0 || a.reduce == nil {
		var zero V
		return zero, false
	}
	return a.reduce(samples)
}

func sortedValues[V cmp.Ordered](samples []Sample[V]) []V {
	values := make([]V, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	slices.Sort(values)
	return values
}

// Median returns the middle value of the sorted series. For an even count it
// returns the lower of the two middle values, never their average.
func Median[V cmp.Ordered]() Aggregation[V] {
	return Aggregation[V]{name: "median", reduce: func(samples []Sample[V]) (V, bool) {
		values := sortedValues(samples)
		return values[(len(values)-1)/2], true
	}}
}

// Percentile returns the nearest-rank percentile p of the sorted series:
// index round(p/100 * (n-1)), clamped to the last element. Percentiles outside
// [0, 100] produce no result.
func Percentile[V cmp.Ordered](p float64) Aggregation[V] {
	return Aggregation[V]{
		name:         "p" + strconv.FormatFloat(p, 'f', -1, 64),
		isPercentile: true,
		percentile:   p,
		reduce: func(samples []Sample[V]) (V, bool) {
			if !validPercentile(p) {
				var zero V
				return zero, false
			}
			values := sortedValues(samples)
			idx := int(math.Round(p / 100 * float64(len(values)-1)))
			idx = min(max(idx, 0), len(values)-1)
			return values[idx], true
		},
	}
}

func validPercentile(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 100
}

// Custom reduces the series with fn
func Custom[V cmp.Ordered](name string, fn func([]Sample[V]) (V, bool)) Aggregation[V] {
	return Aggregation[V]{name: name, reduce: fn}
}

// Mean averages a numeric series, converting back to V
func Mean[V Number]() Aggregation[V] {
	return Custom("mean", func(samples []Sample[V]) (V, bool) {
		sum := 0.0
		for _, s := range samples {
			sum += float64(s.Value)
		}
		return V(sum / float64(len(samples))), true
	})
}

// Min returns the smallest value
func Min[V cmp.Ordered]() Aggregation[V] {
	return Custom("min", func(samples []Sample[V]) (V, bool) {
		return sortedValues(samples)[0], true
	})
}

// Max returns the largest value
func Max[V cmp.Ordered]() Aggregation[V] {
	return Custom("max", func(samples []Sample[V]) (V, bool) {
		values := sortedValues(samples)
		return values[len(values)-1], true
	})
}

// HistoricalSpec aggregates a windowed series pulled from a provider
type HistoricalSpec[C any, V cmp.Ordered] struct {
	provider    HistoricalDataProvider[C, V]
	window      AnalysisWindow
	aggregation Aggregation[V]
	minimum     int
	now         func() time.Time
}

// HistoricalOption customizes a HistoricalSpec
type HistoricalOption[C any, V cmp.Ordered] func(*HistoricalSpec[C, V])

// WithMinimumDataPoints sets the number of samples required to produce a
// result. The default is 1.
func WithMinimumDataPoints[C any, V cmp.Ordered](n int) HistoricalOption[C, V] {
	return func(s *HistoricalSpec[C, V]) { s.minimum = n }
}

// WithClock sets the reference clock for time-range windows
func WithClock[C any, V cmp.Ordered](now func() time.Time) HistoricalOption[C, V] {
	return func(s *HistoricalSpec[C, V]) { s.now = now }
}

// NewHistorical builds a HistoricalSpec. It fails when the provider is nil,
// the window is invalid, the percentile is outside [0, 100] or the minimum is
// negative.
func NewHistorical[C any, V cmp.Ordered](provider HistoricalDataProvider[C, V], window AnalysisWindow, aggregation Aggregation[V], opts ...HistoricalOption[C, V]) (*HistoricalSpec[C, V], error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if aggregation.reduce == nil {
		return nil, fmt.Errorf("rules: aggregation is required")
	}
	if aggregation.isPercentile && !validPercentile(aggregation.percentile) {
		return nil, ErrInvalidPercentile
	}
	s := &HistoricalSpec[C, V]{
		provider:    provider,
		window:      window,
		aggregation: aggregation,
		minimum:     1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.minimum < 0 {
		return nil, ErrInvalidMinimum
	}
	return s, nil
}

// Decide fetches the series, applies the window and aggregates it. It
// produces no result when fewer than the minimum number of samples remain.
func (s *HistoricalSpec[C, V]) Decide(context C) (V, bool) {
	samples := ApplyWindow(s.window, s.provider.GetData(s.window, context), s.now())
	if len(samples) == 0 || len(samples) < s.minimum {
		var zero V
		return zero, false
	}
	return s.aggregation.Aggregate(samples)
}

// Window returns the configured analysis window
func (s *HistoricalSpec[C, V]) Window() AnalysisWindow { return s.window }
