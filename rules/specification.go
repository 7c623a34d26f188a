// Package rules provides composable business-rule specifications.
//
// A Specification is a pure predicate over a candidate value. Specifications
// compose with And, Or and Not, and lift into DecisionSpecs that produce an
// optional typed result. FirstMatchSpec, WeightedSpec, ThresholdSpec,
// ComparativeSpec and HistoricalSpec build on that algebra.
//
// Every specification in this package is immutable after construction and
// safe to evaluate from multiple goroutines, with the exception of the random
// source handed to a WeightedSpec, which is owned by the caller.
package rules

// Specification is a pure boolean predicate over a candidate of type T.
// Evaluating the same candidate twice must give the same answer.
type Specification[T any] interface {
	IsSatisfiedBy(candidate T) bool
}

// Func adapts a plain predicate function to Specification
type Func[T any] func(candidate T) bool

// IsSatisfiedBy calls f(candidate)
func (f Func[T]) IsSatisfiedBy(candidate T) bool {
	return f(candidate)
}

// AlwaysTrue returns a specification satisfied by every candidate
func AlwaysTrue[T any]() Specification[T] {
	return Func[T](func(T) bool { return true })
}

// AlwaysFalse returns a specification satisfied by no candidate
func AlwaysFalse[T any]() Specification[T] {
	return Func[T](func(T) bool { return false })
}

// isNil reports whether spec has nothing to evaluate
func isNil[T any](spec Specification[T]) bool {
	if spec == nil {
		return true
	}
	f, ok := spec.(Func[T])
	return ok && f == nil
}

// orNever replaces a nil specification with one that is never satisfied
func orNever[T any](spec Specification[T]) Specification[T] {
	if isNil(spec) {
		return AnySpecification[T]{}
	}
	return spec
}

func neverNil[T any](specs []Specification[T]) []Specification[T] {
	out := make([]Specification[T], len(specs))
	for i, s := range specs {
		out[i] = orNever(s)
	}
	return out
}

// AndSpecification is satisfied when every child is satisfied.
// Children are evaluated in order and evaluation stops at the first failure.
type AndSpecification[T any] struct {
	specs []Specification[T]
}

// And combines specs with logical AND. An empty And is satisfied; a nil
// child is never satisfied.
func And[T any](specs ...Specification[T]) *AndSpecification[T] {
	return &AndSpecification[T]{specs: neverNil(specs)}
}

// IsSatisfiedBy returns true if all child specifications are satisfied
func (s *AndSpecification[T]) IsSatisfiedBy(candidate T) bool {
	for _, spec := range s.specs {
		if !spec.IsSatisfiedBy(candidate) {
			return false
		}
	}
	return true
}

// OrSpecification is satisfied when any child is satisfied.
// Children are evaluated in order and evaluation stops at the first success.
type OrSpecification[T any] struct {
	specs []Specification[T]
}

// Or combines specs with logical OR. An empty Or is not satisfied; a nil
// child is never satisfied.
func Or[T any](specs ...Specification[T]) *OrSpecification[T] {
	return &OrSpecification[T]{specs: neverNil(specs)}
}

// IsSatisfiedBy returns true if any child specification is satisfied
func (s *OrSpecification[T]) IsSatisfiedBy(candidate T) bool {
	for _, spec := range s.specs {
		if spec.IsSatisfiedBy(candidate) {
			return true
		}
	}
	return false
}

// NotSpecification inverts a specification
type NotSpecification[T any] struct {
	spec Specification[T]
}

// Not negates spec. A nil spec is never satisfied, so its negation always is.
func Not[T any](spec Specification[T]) *NotSpecification[T] {
	return &NotSpecification[T]{spec: orNever(spec)}
}

// IsSatisfiedBy returns the inverse of the wrapped specification
func (s *NotSpecification[T]) IsSatisfiedBy(candidate T) bool {
	return !s.spec.IsSatisfiedBy(candidate)
}

// AnySpecification erases the concrete type of a specification so that
// heterogeneous specifications can be stored side by side. It forwards to
// the wrapped predicate and adds no behavior of its own.
type AnySpecification[T any] struct {
	fn func(T) bool
}

// Erase wraps spec in an AnySpecification. Erasing an AnySpecification
// returns it unchanged.
func Erase[T any](spec Specification[T]) AnySpecification[T] {
	if isNil(spec) {
		return AnySpecification[T]{}
	}
	if s, ok := spec.(AnySpecification[T]); ok {
		return s
	}
	return AnySpecification[T]{fn: spec.IsSatisfiedBy}
}

// Predicate wraps a predicate function in an AnySpecification
func Predicate[T any](fn func(T) bool) AnySpecification[T] {
	return AnySpecification[T]{fn: fn}
}

// IsSatisfiedBy forwards to the wrapped predicate. The zero value is never satisfied.
func (s AnySpecification[T]) IsSatisfiedBy(candidate T) bool {
	if s.fn == nil {
		return false
	}
	return s.fn(candidate)
}

// And returns s AND other, short-circuiting when s is not satisfied
func (s AnySpecification[T]) And(other Specification[T]) AnySpecification[T] {
	return Erase[T](And[T](s, other))
}

// Or returns s OR other, short-circuiting when s is satisfied
func (s AnySpecification[T]) Or(other Specification[T]) AnySpecification[T] {
	return Erase[T](Or[T](s, other))
}

// Not returns the negation of s
func (s AnySpecification[T]) Not() AnySpecification[T] {
	return Erase[T](Not[T](s))
}
