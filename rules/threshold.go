package rules

import (
	"cmp"
	"fmt"
)

// Number is the set of types that support tolerance-based equality
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Operator is a comparison between an extracted value and a threshold
type Operator int

const (
	GreaterThan Operator = iota
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	Equal
	NotEqual
)

var operatorSymbols = map[Operator]string{
	GreaterThan:        ">",
	GreaterThanOrEqual: ">=",
	LessThan:           "<",
	LessThanOrEqual:    "<=",
	Equal:              "==",
	NotEqual:           "!=",
}

func (o Operator) String() string {
	if s, ok := operatorSymbols[o]; ok {
		return s
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// ParseOperator parses one of >, >=, <, <=, ==, !=
func ParseOperator(s string) (Operator, error) {
	for op, sym := range operatorSymbols {
		if sym == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown comparison operator %q", s)
}

// equalFunc decides equality for Equal and NotEqual
type equalFunc[V any] func(a, b V) bool

func exactEqual[V cmp.Ordered](a, b V) bool { return a == b }

func toleranceEqual[V Number](tolerance V) equalFunc[V] {
	return func(a, b V) bool {
		if a > b {
			return a-b <= tolerance
		}
		return b-a <= tolerance
	}
}

func compare[V cmp.Ordered](op Operator, value, threshold V, eq equalFunc[V]) bool {
	switch op {
	case GreaterThan:
		return value > threshold
	case GreaterThanOrEqual:
		return value >= threshold
	case LessThan:
		return value < threshold
	case LessThanOrEqual:
		return value <= threshold
	case Equal:
		return eq(value, threshold)
	case NotEqual:
		return !eq(value, threshold)
	default:
		return false
	}
}

// ThresholdSource resolves the threshold a value is compared against
type ThresholdSource[C any, V cmp.Ordered] struct {
	resolve func(C) (V, bool)
}

// Fixed compares against a constant
func Fixed[C any, V cmp.Ordered](threshold V) ThresholdSource[C, V] {
	return ThresholdSource[C, V]{resolve: func(C) (V, bool) { return threshold, true }}
}

// Adaptive calls supplier at every evaluation
func Adaptive[C any, V cmp.Ordered](supplier func() V) ThresholdSource[C, V] {
	return ThresholdSource[C, V]{resolve: func(C) (V, bool) { return supplier(), true }}
}

// Contextual extracts the threshold from the evaluated context. A missing
// threshold fails closed.
func Contextual[C any, V cmp.Ordered](extract func(C) (V, bool)) ThresholdSource[C, V] {
	return ThresholdSource[C, V]{resolve: extract}
}

// Computed derives the threshold from the full context
func Computed[C any, V cmp.Ordered](compute func(C) V) ThresholdSource[C, V] {
	return ThresholdSource[C, V]{resolve: func(c C) (V, bool) { return compute(c), true }}
}

// ThresholdSpec compares a value extracted from the context against a
// threshold. It fails closed: a missing value or threshold is not satisfied.
type ThresholdSpec[C any, V cmp.Ordered] struct {
	value     func(C) (V, bool)
	threshold ThresholdSource[C, V]
	op        Operator
	eq        equalFunc[V]
}

// ThresholdOption customizes a ThresholdSpec
type ThresholdOption[C any, V cmp.Ordered] func(*ThresholdSpec[C, V])

// WithTolerance makes Equal and NotEqual treat values within tolerance of the
// threshold as equal. Ordering operators are unaffected.
func WithTolerance[C any, V Number](tolerance V) ThresholdOption[C, V] {
	return func(s *ThresholdSpec[C, V]) {
		s.eq = toleranceEqual(tolerance)
	}
}

// NewThreshold builds a ThresholdSpec
func NewThreshold[C any, V cmp.Ordered](value func(C) (V, bool), op Operator, threshold ThresholdSource[C, V], opts ...ThresholdOption[C, V]) *ThresholdSpec[C, V] {
	s := &ThresholdSpec[C, V]{
		value:     value,
		threshold: threshold,
		op:        op,
		eq:        exactEqual[V],
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsSatisfiedBy extracts the value and threshold and applies the operator
func (s *ThresholdSpec[C, V]) IsSatisfiedBy(context C) bool {
	if s.value == nil || s.threshold.resolve == nil {
		return false
	}
	v, ok := s.value(context)
	if !ok {
		return false
	}
	t, ok := s.threshold.resolve(context)
	if !ok {
		return false
	}
	return compare(s.op, v, t, s.eq)
}

// Operator returns the configured comparison
func (s *ThresholdSpec[C, V]) Operator() Operator {
	return s.op
}
