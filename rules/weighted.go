package rules

import "math"

// Candidate is one weighted option of a WeightedSpec
type Candidate[C, R any] struct {
	Spec   Specification[C]
	Weight float64
	Result R
}

// Probability is a result paired with its selection probability
type Probability[R any] struct {
	Result      R
	Probability float64
}

// WeightedSpec selects a result at random among the candidates whose
// predicate is satisfied, with probability proportional to weight.
// Ineligible candidates carry no probability mass.
//
// The random source is owned by the caller. SystemRandom is safe for
// concurrent use; seeded sources are not and must be wrapped with Locked
// when a WeightedSpec is shared between goroutines.
type WeightedSpec[C, R any] struct {
	candidates []Candidate[C, R]
	rng        RandomSource
}

// NewWeighted validates candidates and builds a WeightedSpec drawing from
// SystemRandom. It fails with ErrEmptyCandidates for an empty list, with
// an *InvalidWeightError for any weight that is not positive and finite and
// with a *NilSpecificationError for a candidate without a predicate.
func NewWeighted[C, R any](candidates ...Candidate[C, R]) (*WeightedSpec[C, R], error) {
	return NewWeightedWithSource(SystemRandom(), candidates...)
}

// NewWeightedWithSource is NewWeighted with an explicit random source
func NewWeightedWithSource[C, R any](rng RandomSource, candidates ...Candidate[C, R]) (*WeightedSpec[C, R], error) {
	if len(candidates) == 0 {
		return nil, ErrEmptyCandidates
	}
	for i, c := range candidates {
		if err := validateCandidate(i, c.Spec, c.Weight); err != nil {
			return nil, err
		}
	}
	if rng == nil {
		rng = SystemRandom()
	}
	return &WeightedSpec[C, R]{
		candidates: append([]Candidate[C, R](nil), candidates...),
		rng:        rng,
	}, nil
}

func validateCandidate[C any](index int, spec Specification[C], w float64) error {
	if isNil(spec) {
		return &NilSpecificationError{Index: index}
	}
	return validateWeight(index, w)
}

func validateWeight(index int, w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
		return &InvalidWeightError{Index: index, Weight: w}
	}
	return nil
}

// Decide filters the candidates to those satisfied by context, preserving
// order, and performs a weighted draw among them.
func (s *WeightedSpec[C, R]) Decide(context C) (R, bool) {
	eligible := s.eligible(context)
	if len(eligible) == 0 {
		var zero R
		return zero, false
	}
	return eligible[s.pick(eligible)].Result, true
}

// IsSatisfiedBy reports whether at least one candidate is eligible
func (s *WeightedSpec[C, R]) IsSatisfiedBy(context C) bool {
	for _, c := range s.candidates {
		if c.Spec.IsSatisfiedBy(context) {
			return true
		}
	}
	return false
}

func (s *WeightedSpec[C, R]) eligible(context C) []Candidate[C, R] {
	out := make([]Candidate[C, R], 0, len(s.candidates))
	for _, c := range s.candidates {
		if c.Spec.IsSatisfiedBy(context) {
			out = append(out, c)
		}
	}
	return out
}

// pick runs the roulette walk over a non-empty eligible list
func (s *WeightedSpec[C, R]) pick(eligible []Candidate[C, R]) int {
	total := 0.0
	for _, c := range eligible {
		total += c.Weight
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		i := int(s.rng.Float64() * float64(len(eligible)))
		return min(i, len(eligible)-1)
	}

	r := s.rng.Float64() * total
	cumulative := 0.0
	for i, c := range eligible {
		cumulative += c.Weight
		if cumulative >= r {
			return i
		}
	}
	// rounding left r above the final cumulative sum
	return len(eligible) - 1
}

// Candidates returns a copy of the candidate list in construction order
func (s *WeightedSpec[C, R]) Candidates() []Candidate[C, R] {
	return append([]Candidate[C, R](nil), s.candidates...)
}

// TotalWeight is the sum of all candidate weights, eligible or not
func (s *WeightedSpec[C, R]) TotalWeight() float64 {
	total := 0.0
	for _, c := range s.candidates {
		total += c.Weight
	}
	return total
}

// Distribution returns weight/total for every candidate in construction order.
//
// The distribution is static: it is computed over the full candidate list and
// ignores eligibility. When some candidates are not satisfied by a given
// context, Decide never selects them and the observed frequencies differ from
// these values. Use EligibleDistribution for the per-context view.
func (s *WeightedSpec[C, R]) Distribution() []Probability[R] {
	return distribution(s.candidates)
}

// EligibleDistribution returns the selection probabilities Decide actually
// uses for context. It is empty when no candidate is eligible.
func (s *WeightedSpec[C, R]) EligibleDistribution(context C) []Probability[R] {
	return distribution(s.eligible(context))
}

func distribution[C, R any](candidates []Candidate[C, R]) []Probability[R] {
	total := 0.0
	for _, c := range candidates {
		total += c.Weight
	}
	out := make([]Probability[R], len(candidates))
	for i, c := range candidates {
		out[i] = Probability[R]{Result: c.Result, Probability: c.Weight / total}
	}
	return out
}

// ExpectedValue is the probability-weighted mean result over the static
// distribution. See WeightedSpec.Distribution for the eligibility caveat.
func ExpectedValue[C any, R Number](s *WeightedSpec[C, R]) float64 {
	mean := 0.0
	for _, p := range s.Distribution() {
		mean += p.Probability * float64(p.Result)
	}
	return mean
}

// Variance of the result over the static distribution
func Variance[C any, R Number](s *WeightedSpec[C, R]) float64 {
	mean := ExpectedValue(s)
	v := 0.0
	for _, p := range s.Distribution() {
		d := float64(p.Result) - mean
		v += p.Probability * d * d
	}
	return v
}

// StandardDeviation is the square root of Variance
func StandardDeviation[C any, R Number](s *WeightedSpec[C, R]) float64 {
	return math.Sqrt(Variance(s))
}

// WeightedBuilder accumulates candidates, validating each one as it is
// added. The first invalid Add is remembered and reported by Build; later
// calls are ignored.
type WeightedBuilder[C, R any] struct {
	candidates []Candidate[C, R]
	err        error
}

// NewWeightedBuilder returns an empty builder
func NewWeightedBuilder[C, R any]() *WeightedBuilder[C, R] {
	return &WeightedBuilder[C, R]{}
}

// Add appends a candidate
func (b *WeightedBuilder[C, R]) Add(spec Specification[C], weight float64, result R) *WeightedBuilder[C, R] {
	if b.err != nil {
		return b
	}
	if err := validateCandidate(len(b.candidates), spec, weight); err != nil {
		b.err = err
		return b
	}
	b.candidates = append(b.candidates, Candidate[C, R]{Spec: spec, Weight: weight, Result: result})
	return b
}

// AddFunc appends a candidate guarded by a plain predicate
func (b *WeightedBuilder[C, R]) AddFunc(predicate func(C) bool, weight float64, result R) *WeightedBuilder[C, R] {
	return b.Add(Func[C](predicate), weight, result)
}

// AddAlways appends a candidate that is always eligible
func (b *WeightedBuilder[C, R]) AddAlways(weight float64, result R) *WeightedBuilder[C, R] {
	return b.Add(AlwaysTrue[C](), weight, result)
}

// Err returns the first validation error, if any
func (b *WeightedBuilder[C, R]) Err() error {
	return b.err
}

// Build returns the WeightedSpec drawing from SystemRandom
func (b *WeightedBuilder[C, R]) Build() (*WeightedSpec[C, R], error) {
	return b.BuildWithSource(SystemRandom())
}

// BuildWithSource returns the WeightedSpec drawing from rng
func (b *WeightedBuilder[C, R]) BuildWithSource(rng RandomSource) (*WeightedSpec[C, R], error) {
	if b.err != nil {
		return nil, b.err
	}
	return NewWeightedWithSource(rng, b.candidates...)
}
