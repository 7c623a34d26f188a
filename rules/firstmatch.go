package rules

// Pair couples a predicate with the result it selects
type Pair[C, R any] struct {
	Spec   Specification[C]
	Result R
}

// Match reports which pair of a FirstMatchSpec fired
type Match[R any] struct {
	Index  int
	Result R
}

// FirstMatchSpec resolves an ordered list of pairs to the result of the first
// pair whose predicate is satisfied. Pairs after the first match are never
// evaluated, so the construction order is the priority order.
type FirstMatchSpec[C, R any] struct {
	pairs []Pair[C, R]
}

// NewFirstMatch builds a FirstMatchSpec from pairs, preserving their order.
// A pair with a nil spec never matches; use FirstMatchBuilder to reject it.
func NewFirstMatch[C, R any](pairs ...Pair[C, R]) *FirstMatchSpec[C, R] {
	return &FirstMatchSpec[C, R]{pairs: neverNilPairs(pairs, 0)}
}

func neverNilPairs[C, R any](pairs []Pair[C, R], extra int) []Pair[C, R] {
	out := make([]Pair[C, R], len(pairs), len(pairs)+extra)
	for i, p := range pairs {
		out[i] = Pair[C, R]{Spec: orNever(p.Spec), Result: p.Result}
	}
	return out
}

// WithFallback builds a FirstMatchSpec whose last pair always matches and
// returns fallback, so Decide always produces a result.
func WithFallback[C, R any](pairs []Pair[C, R], fallback R) *FirstMatchSpec[C, R] {
	all := neverNilPairs(pairs, 1)
	all = append(all, Pair[C, R]{Spec: AlwaysTrue[C](), Result: fallback})
	return &FirstMatchSpec[C, R]{pairs: all}
}

// Decide returns the result of the first satisfied pair
func (s *FirstMatchSpec[C, R]) Decide(context C) (R, bool) {
	m, ok := s.DecideWithMetadata(context)
	return m.Result, ok
}

// DecideWithMetadata returns the first satisfied pair's result together with
// its index, so callers can audit which rule fired.
func (s *FirstMatchSpec[C, R]) DecideWithMetadata(context C) (Match[R], bool) {
	for i, p := range s.pairs {
		if p.Spec.IsSatisfiedBy(context) {
			return Match[R]{Index: i, Result: p.Result}, true
		}
	}
	return Match[R]{Index: -1}, false
}

// IsSatisfiedBy reports whether any pair matches context
func (s *FirstMatchSpec[C, R]) IsSatisfiedBy(context C) bool {
	_, ok := s.DecideWithMetadata(context)
	return ok
}

// Len returns the number of pairs, including a fallback pair
func (s *FirstMatchSpec[C, R]) Len() int {
	return len(s.pairs)
}

// FirstMatchBuilder accumulates pairs fluently
type FirstMatchBuilder[C, R any] struct {
	pairs []Pair[C, R]
}

// NewFirstMatchBuilder returns an empty builder
func NewFirstMatchBuilder[C, R any]() *FirstMatchBuilder[C, R] {
	return &FirstMatchBuilder[C, R]{}
}

// Add appends a (spec, result) pair
func (b *FirstMatchBuilder[C, R]) Add(spec Specification[C], result R) *FirstMatchBuilder[C, R] {
	b.pairs = append(b.pairs, Pair[C, R]{Spec: spec, Result: result})
	return b
}

// AddFunc appends a (predicate, result) pair
func (b *FirstMatchBuilder[C, R]) AddFunc(predicate func(C) bool, result R) *FirstMatchBuilder[C, R] {
	return b.Add(Func[C](predicate), result)
}

// Fallback appends an always-true pair returning result
func (b *FirstMatchBuilder[C, R]) Fallback(result R) *FirstMatchBuilder[C, R] {
	return b.Add(AlwaysTrue[C](), result)
}

// Build returns the FirstMatchSpec. It fails with ErrEmptyCandidates when no
// pair was added and with a *NilSpecificationError when a pair has no spec.
func (b *FirstMatchBuilder[C, R]) Build() (*FirstMatchSpec[C, R], error) {
	if len(b.pairs) == 0 {
		return nil, ErrEmptyCandidates
	}
	for i, p := range b.pairs {
		if isNil(p.Spec) {
			return nil, &NilSpecificationError{Index: i}
		}
	}
	return NewFirstMatch(b.pairs...), nil
}
