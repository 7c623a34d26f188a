package ruleset

import (
	"errors"
	"fmt"
	"time"

	"github.com/liamcoop/rulespec/expr"
	"github.com/liamcoop/rulespec/history"
	"github.com/liamcoop/rulespec/rules"
)

// Options supplies the runtime dependencies of compiled rule sets
type Options struct {
	// Samples backs historical rule sets. Historical definitions are
	// rejected when it is nil.
	Samples history.Store

	// QueryTimeout bounds each sample query, see history.DefaultQueryTimeout
	QueryTimeout time.Duration

	// Random overrides the source of weighted sets that carry no seed
	Random rules.RandomSource

	// Now anchors time-range windows; defaults to time.Now
	Now func() time.Time
}

// RuleSet is a compiled, immutable definition. It is safe for concurrent use.
type RuleSet struct {
	def      *Definition
	decide   func(expr.Facts) Decision
	weighted *rules.WeightedSpec[expr.Facts, int]
}

// Definition returns a copy of the source definition
func (rs *RuleSet) Definition() *Definition {
	return rs.def.clone()
}

// Decide evaluates the rule set against facts
func (rs *RuleSet) Decide(facts expr.Facts) Decision {
	return rs.decide(facts)
}

// Distribution returns the static selection probabilities of a weighted set
func (rs *RuleSet) Distribution() ([]rules.Probability[any], error) {
	if rs.weighted == nil {
		return nil, ErrNotWeighted
	}
	return rs.resultsOf(rs.weighted.Distribution()), nil
}

// EligibleDistribution returns the probabilities Decide uses for facts
func (rs *RuleSet) EligibleDistribution(facts expr.Facts) ([]rules.Probability[any], error) {
	if rs.weighted == nil {
		return nil, ErrNotWeighted
	}
	return rs.resultsOf(rs.weighted.EligibleDistribution(facts)), nil
}

func (rs *RuleSet) resultsOf(indexed []rules.Probability[int]) []rules.Probability[any] {
	out := make([]rules.Probability[any], len(indexed))
	for i, p := range indexed {
		out[i] = rules.Probability[any]{Result: rs.def.Rules[p.Result].Result, Probability: p.Probability}
	}
	return out
}

// Compile validates def and compiles its expressions
func Compile(def *Definition, opts Options) (*RuleSet, error) {
	if err := ValidateDefinition(def); err != nil {
		return nil, err
	}

	env, err := expr.NewEnvironment(def.variables()...)
	if err != nil {
		return nil, invalid("variables", "%v", err)
	}

	rs := &RuleSet{def: def.clone()}
	switch def.Kind {
	case KindFirstMatch:
		err = rs.compileFirstMatch(env)
	case KindWeighted:
		err = rs.compileWeighted(env, opts)
	case KindThreshold:
		err = rs.compileThreshold(env)
	case KindComparative:
		err = rs.compileComparative(env)
	case KindHistorical:
		err = rs.compileHistorical(env, opts)
	}
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func condition(env *expr.Environment, index int, when string) (rules.Specification[expr.Facts], error) {
	if when == "" {
		return rules.AlwaysTrue[expr.Facts](), nil
	}
	p, err := env.Predicate(when)
	if err != nil {
		return nil, invalid(fmt.Sprintf("rules[%d].when", index), "%v", err)
	}
	return p, nil
}

func (rs *RuleSet) compileFirstMatch(env *expr.Environment) error {
	pairs := make([]rules.Pair[expr.Facts, any], len(rs.def.Rules))
	for i, r := range rs.def.Rules {
		spec, err := condition(env, i, r.When)
		if err != nil {
			return err
		}
		pairs[i] = rules.Pair[expr.Facts, any]{Spec: spec, Result: r.Result}
	}

	spec := rules.NewFirstMatch(pairs...)
	if rs.def.Fallback != nil {
		spec = rules.WithFallback(pairs, rs.def.Fallback)
	}

	rs.decide = func(facts expr.Facts) Decision {
		m, ok := spec.DecideWithMetadata(facts)
		if !ok {
			return noMatch()
		}
		return Decision{Matched: true, Result: m.Result, Index: m.Index}
	}
	return nil
}

func (rs *RuleSet) compileWeighted(env *expr.Environment, opts Options) error {
	b := rules.NewWeightedBuilder[expr.Facts, int]()
	for i, r := range rs.def.Rules {
		spec, err := condition(env, i, r.When)
		if err != nil {
			return err
		}
		b.Add(spec, r.Weight, i)
	}

	rng := opts.Random
	if rs.def.Seed != nil {
		rng = rules.Locked(rules.NewSeededRandom(*rs.def.Seed))
	}
	spec, err := b.BuildWithSource(rng)
	if err != nil {
		var weightErr *rules.InvalidWeightError
		if errors.As(err, &weightErr) {
			return invalid(fmt.Sprintf("rules[%d].weight", weightErr.Index), "%v", err)
		}
		return invalid("rules", "%v", err)
	}

	rs.weighted = spec
	rs.decide = func(facts expr.Facts) Decision {
		i, ok := spec.Decide(facts)
		if !ok {
			return noMatch()
		}
		return Decision{Matched: true, Result: rs.def.Rules[i].Result, Index: i}
	}
	return nil
}

func resultOr(result any) any {
	if result == nil {
		return true
	}
	return result
}

func boolean(spec rules.Specification[expr.Facts], result any) func(expr.Facts) Decision {
	result = resultOr(result)
	return func(facts expr.Facts) Decision {
		if !spec.IsSatisfiedBy(facts) {
			return noMatch()
		}
		return Decision{Matched: true, Result: result, Index: 0}
	}
}

func (rs *RuleSet) compileThreshold(env *expr.Environment) error {
	t := rs.def.Threshold
	value, err := env.Number(t.Value)
	if err != nil {
		return invalid("threshold.value", "%v", err)
	}
	threshold, err := env.Number(t.Threshold)
	if err != nil {
		return invalid("threshold.threshold", "%v", err)
	}
	op, _ := rules.ParseOperator(t.Operator)

	var topts []rules.ThresholdOption[expr.Facts, float64]
	if t.Tolerance > 0 {
		topts = append(topts, rules.WithTolerance[expr.Facts](t.Tolerance))
	}
	spec := rules.NewThreshold(value, op, rules.Contextual(threshold), topts...)

	rs.decide = boolean(spec, t.Result)
	return nil
}

func (rs *RuleSet) compileComparative(env *expr.Environment) error {
	c := rs.def.Comparative
	value, err := env.Number(c.Value)
	if err != nil {
		return invalid("comparative.value", "%v", err)
	}

	var comparison rules.Comparison[float64]
	switch c.Comparison {
	case CompareAbove:
		comparison = rules.Above(c.Bound)
	case CompareBelow:
		comparison = rules.Below(c.Bound)
	case CompareEqual:
		comparison = rules.EqualTo(c.Bound)
	case CompareBetween:
		comparison, err = rules.Between(c.Lower, c.Upper)
		if err != nil {
			return invalid("comparative.lower", "%v", err)
		}
	}

	var copts []rules.ComparativeOption[expr.Facts, float64]
	if c.Tolerance > 0 {
		copts = append(copts, rules.WithComparativeTolerance[expr.Facts](c.Tolerance))
	}
	spec := rules.NewComparative(value, comparison, copts...)

	rs.decide = boolean(spec, c.Result)
	return nil
}

func aggregation(h *Historical) rules.Aggregation[float64] {
	switch h.Aggregation {
	case AggregatePercentile:
		return rules.Percentile[float64](h.Percentile)
	case AggregateMean:
		return rules.Mean[float64]()
	case AggregateMin:
		return rules.Min[float64]()
	case AggregateMax:
		return rules.Max[float64]()
	default:
		return rules.Median[float64]()
	}
}

func (rs *RuleSet) compileHistorical(env *expr.Environment, opts Options) error {
	h := rs.def.Historical
	if opts.Samples == nil {
		return invalid("historical", "no sample store is configured")
	}
	key, err := env.String(h.Key)
	if err != nil {
		return invalid("historical.key", "%v", err)
	}
	window, _ := rules.ParseWindow(h.Window)

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	provider := history.NewProvider(opts.Samples, key,
		history.WithQueryTimeout[expr.Facts](opts.QueryTimeout),
		history.WithProviderClock[expr.Facts](now))

	hopts := []rules.HistoricalOption[expr.Facts, float64]{rules.WithClock[expr.Facts, float64](now)}
	if h.MinimumDataPoints > 0 {
		hopts = append(hopts, rules.WithMinimumDataPoints[expr.Facts, float64](h.MinimumDataPoints))
	}
	spec, err := rules.NewHistorical[expr.Facts, float64](provider, window, aggregation(h), hopts...)
	if err != nil {
		return invalid("historical", "%v", err)
	}

	rs.decide = func(facts expr.Facts) Decision {
		v, ok := spec.Decide(facts)
		if !ok {
			return noMatch()
		}
		return Decision{Matched: true, Result: v, Index: 0}
	}
	return nil
}
