package rules

import "cmp"

// Comparison is the test a ComparativeSpec applies to the extracted value
type Comparison[V cmp.Ordered] struct {
	test func(v V, eq equalFunc[V]) bool
}

// Above is satisfied by values strictly greater than bound
func Above[V cmp.Ordered](bound V) Comparison[V] {
	return Comparison[V]{test: func(v V, _ equalFunc[V]) bool { return v > bound }}
}

// Below is satisfied by values strictly less than bound
func Below[V cmp.Ordered](bound V) Comparison[V] {
	return Comparison[V]{test: func(v V, _ equalFunc[V]) bool { return v < bound }}
}

// EqualTo is satisfied by values equal to target, within tolerance if one is set
func EqualTo[V cmp.Ordered](target V) Comparison[V] {
	return Comparison[V]{test: func(v V, eq equalFunc[V]) bool { return eq(v, target) }}
}

// Between is satisfied by values in the inclusive range [lower, upper].
// It fails with ErrInvalidRange when lower > upper.
func Between[V cmp.Ordered](lower, upper V) (Comparison[V], error) {
	if lower > upper {
		return Comparison[V]{}, ErrInvalidRange
	}
	return Comparison[V]{test: func(v V, _ equalFunc[V]) bool { return v >= lower && v <= upper }}, nil
}

// Matching applies an arbitrary test to the value
func Matching[V cmp.Ordered](test func(V) bool) Comparison[V] {
	return Comparison[V]{test: func(v V, _ equalFunc[V]) bool { return test(v) }}
}

// ComparativeSpec compares a value extracted from the context against a
// comparison fixed at construction. A missing value is not satisfied.
type ComparativeSpec[C any, V cmp.Ordered] struct {
	value      func(C) (V, bool)
	comparison Comparison[V]
	eq         equalFunc[V]
}

// ComparativeOption customizes a ComparativeSpec
type ComparativeOption[C any, V cmp.Ordered] func(*ComparativeSpec[C, V])

// WithComparativeTolerance sets the tolerance used by EqualTo
func WithComparativeTolerance[C any, V Number](tolerance V) ComparativeOption[C, V] {
	return func(s *ComparativeSpec[C, V]) {
		s.eq = toleranceEqual(tolerance)
	}
}

// NewComparative builds a ComparativeSpec
func NewComparative[C any, V cmp.Ordered](value func(C) (V, bool), comparison Comparison[V], opts ...ComparativeOption[C, V]) *ComparativeSpec[C, V] {
	s := &ComparativeSpec[C, V]{
		value:      value,
		comparison: comparison,
		eq:         exactEqual[V],
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsSatisfiedBy extracts the value and applies the comparison
func (s *ComparativeSpec[C, V]) IsSatisfiedBy(context C) bool {
	if s.value == nil || s.comparison.test == nil {
		return false
	}
	v, ok := s.value(context)
	if !ok {
		return false
	}
	return s.comparison.test(v, s.eq)
}
