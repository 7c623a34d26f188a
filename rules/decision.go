package rules

// DecisionSpec is a pure function from a context to an optional result.
// ok is false when the decision has no answer for the context; that is an
// expected outcome, not an error.
type DecisionSpec[C, R any] interface {
	Decide(context C) (result R, ok bool)
}

// DecisionFunc adapts a function to DecisionSpec
type DecisionFunc[C, R any] func(context C) (R, bool)

// Decide calls f(context)
func (f DecisionFunc[C, R]) Decide(context C) (R, bool) {
	return f(context)
}

// BooleanDecision lifts a boolean specification into a DecisionSpec that
// produces a fixed result whenever the specification is satisfied.
type BooleanDecision[C, R any] struct {
	spec   Specification[C]
	result R
}

// Returning pairs spec with result. A nil spec never produces the result.
func Returning[C, R any](spec Specification[C], result R) *BooleanDecision[C, R] {
	return &BooleanDecision[C, R]{spec: orNever(spec), result: result}
}

// Decide returns the fixed result when the wrapped spec is satisfied
func (d *BooleanDecision[C, R]) Decide(context C) (R, bool) {
	if d.spec.IsSatisfiedBy(context) {
		return d.result, true
	}
	var zero R
	return zero, false
}

// PredicateDecision is the closure-based equivalent of BooleanDecision
type PredicateDecision[C, R any] struct {
	predicate func(C) bool
	result    R
}

// NewPredicateDecision returns result whenever predicate holds. A nil
// predicate never holds.
func NewPredicateDecision[C, R any](predicate func(C) bool, result R) *PredicateDecision[C, R] {
	if predicate == nil {
		predicate = func(C) bool { return false }
	}
	return &PredicateDecision[C, R]{predicate: predicate, result: result}
}

// Decide returns the fixed result when the predicate holds
func (d *PredicateDecision[C, R]) Decide(context C) (R, bool) {
	if d.predicate(context) {
		return d.result, true
	}
	var zero R
	return zero, false
}

// AnyDecisionSpec erases the concrete type of a DecisionSpec
type AnyDecisionSpec[C, R any] struct {
	fn func(C) (R, bool)
}

// EraseDecision wraps d in an AnyDecisionSpec
func EraseDecision[C, R any](d DecisionSpec[C, R]) AnyDecisionSpec[C, R] {
	if d == nil {
		return AnyDecisionSpec[C, R]{}
	}
	if a, ok := d.(AnyDecisionSpec[C, R]); ok {
		return a
	}
	return AnyDecisionSpec[C, R]{fn: d.Decide}
}

// Decide forwards to the wrapped decision. The zero value never decides.
func (a AnyDecisionSpec[C, R]) Decide(context C) (R, bool) {
	if a.fn == nil {
		var zero R
		return zero, false
	}
	return a.fn(context)
}

// When gates decision on spec: the decision is only consulted when spec is
// satisfied.
func When[C, R any](spec Specification[C], decision DecisionSpec[C, R]) AnyDecisionSpec[C, R] {
	spec = orNever(spec)
	decision = EraseDecision(decision)
	return AnyDecisionSpec[C, R]{fn: func(context C) (R, bool) {
		if !spec.IsSatisfiedBy(context) {
			var zero R
			return zero, false
		}
		return decision.Decide(context)
	}}
}

// FirstOf consults decisions in order and returns the first result produced
func FirstOf[C, R any](decisions ...DecisionSpec[C, R]) AnyDecisionSpec[C, R] {
	ds := make([]DecisionSpec[C, R], len(decisions))
	for i, d := range decisions {
		ds[i] = EraseDecision(d)
	}
	return AnyDecisionSpec[C, R]{fn: func(context C) (R, bool) {
		for _, d := range ds {
			if r, ok := d.Decide(context); ok {
				return r, true
			}
		}
		var zero R
		return zero, false
	}}
}

// Satisfied turns a DecisionSpec into a boolean specification that holds
// whenever the decision produces a result.
func Satisfied[C, R any](decision DecisionSpec[C, R]) AnySpecification[C] {
	decision = EraseDecision(decision)
	return Predicate(func(context C) bool {
		_, ok := decision.Decide(context)
		return ok
	})
}
