package rules

import (
	"errors"
	"fmt"
)

// Construction errors. Evaluation never returns errors; absence of a result
// is reported through the ok flag of Decide.
var (
	// ErrEmptyCandidates is returned when a composite is built without candidates
	ErrEmptyCandidates = errors.New("rules: at least one candidate is required")

	// ErrInvalidWeight matches any *InvalidWeightError via errors.Is
	ErrInvalidWeight = errors.New("rules: weight must be positive and finite")

	// ErrInvalidPercentile is returned for percentiles outside [0, 100]
	ErrInvalidPercentile = errors.New("rules: percentile must be within [0, 100]")

	// ErrInvalidMinimum is returned when a minimum sample count is negative
	ErrInvalidMinimum = errors.New("rules: minimum data points must not be negative")

	// ErrNilProvider is returned when a historical spec has no data provider
	ErrNilProvider = errors.New("rules: historical data provider is required")

	// ErrInvalidRange is returned when a Between comparison has lower > upper
	ErrInvalidRange = errors.New("rules: lower bound must not exceed upper bound")

	// ErrInvalidWindow is returned for non-positive window sizes or intervals
	ErrInvalidWindow = errors.New("rules: analysis window must be positive")

	// ErrNilSpecification matches any *NilSpecificationError via errors.Is
	ErrNilSpecification = errors.New("rules: specification is nil")
)

// InvalidWeightError reports the offending candidate of a WeightedSpec
type InvalidWeightError struct {
	Index  int
	Weight float64
}

func (e *InvalidWeightError) Error() string {
	return fmt.Sprintf("rules: candidate %d has invalid weight %v (must be positive and finite)", e.Index, e.Weight)
}

// Is reports whether target is ErrInvalidWeight
func (e *InvalidWeightError) Is(target error) bool {
	return target == ErrInvalidWeight
}

// NilSpecificationError reports a candidate or pair built without a predicate
type NilSpecificationError struct {
	Index int
}

func (e *NilSpecificationError) Error() string {
	return fmt.Sprintf("rules: candidate %d has a nil specification", e.Index)
}

// Is reports whether target is ErrNilSpecification
func (e *NilSpecificationError) Is(target error) bool {
	return target == ErrNilSpecification
}
