package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/rulespec/rules"
)

func newEnv(t *testing.T) *Environment {
	t.Helper()
	env, err := NewEnvironment("user", "service")
	require.NoError(t, err)
	return env
}

func facts() Facts {
	return Facts{
		"user": map[string]any{
			"age":     20,
			"vip":     true,
			"country": "CA",
			"spend":   1250.5,
		},
		"service": map[string]any{
			"latency":  520.0,
			"baseline": 420.0,
			"region":   "eu-west",
		},
	}
}

func TestPredicate(t *testing.T) {
	env := newEnv(t)

	adult, err := env.Predicate(`user.age >= 18`)
	require.NoError(t, err)
	assert.True(t, adult.IsSatisfiedBy(facts()))
	assert.Equal(t, `user.age >= 18`, adult.Source())

	foreign, err := env.Predicate(`user.country != "CA"`)
	require.NoError(t, err)
	assert.False(t, foreign.IsSatisfiedBy(facts()))
}

func TestPredicateFailsClosed(t *testing.T) {
	env := newEnv(t)

	missing, err := env.Predicate(`user.loyalty_years > 2`)
	require.NoError(t, err)
	assert.False(t, missing.IsSatisfiedBy(facts()), "missing field is not satisfied")
	assert.False(t, missing.IsSatisfiedBy(Facts{}), "missing variable is not satisfied")

	notBool, err := env.Predicate(`user.country`)
	require.NoError(t, err, "dyn output is accepted at compile time")
	assert.False(t, notBool.IsSatisfiedBy(facts()))
}

func TestPredicateRejectsInvalidExpressions(t *testing.T) {
	env := newEnv(t)

	_, err := env.Predicate(`user.age >=`)
	assert.Error(t, err)

	_, err = env.Predicate(`1 + 2`)
	assert.Error(t, err, "int expression is not a predicate")

	_, err = env.Predicate(`order.total > 1`)
	assert.Error(t, err, "undeclared variable")
}

func TestPredicateComposesWithRules(t *testing.T) {
	env := newEnv(t)
	vip, err := env.Predicate(`user.vip`)
	require.NoError(t, err)
	european, err := env.Predicate(`service.region.startsWith("eu-")`)
	require.NoError(t, err)

	spec := rules.And[Facts](vip, european)
	assert.True(t, spec.IsSatisfiedBy(facts()))

	tier := rules.NewFirstMatch(
		rules.Pair[Facts, string]{Spec: rules.Not[Facts](vip), Result: "standard"},
		rules.Pair[Facts, string]{Spec: vip, Result: "vip"},
	)
	got, ok := tier.Decide(facts())
	require.True(t, ok)
	assert.Equal(t, "vip", got)
}

func TestNumberExtractor(t *testing.T) {
	env := newEnv(t)

	latency, err := env.Number(`service.latency`)
	require.NoError(t, err)
	baseline, err := env.Number(`service.baseline`)
	require.NoError(t, err)

	spec := rules.NewThreshold(latency, rules.GreaterThan, rules.Contextual(baseline),
		rules.WithTolerance[Facts](50.0))
	assert.True(t, spec.IsSatisfiedBy(facts()))

	age, err := env.Number(`user.age`)
	require.NoError(t, err)
	v, ok := age(facts())
	require.True(t, ok)
	assert.Equal(t, 20.0, v)

	doubled, err := env.Number(`2 * 21`)
	require.NoError(t, err)
	v, ok = doubled(Facts{})
	require.True(t, ok)
	assert.Equal(t, 42.0, v)

	_, ok = latency(Facts{})
	assert.False(t, ok)

	_, err = env.Number(`"text"`)
	assert.Error(t, err)
}

func TestStringExtractor(t *testing.T) {
	env := newEnv(t)

	key, err := env.String(`"latency:" + service.region`)
	require.NoError(t, err)
	got, ok := key(facts())
	require.True(t, ok)
	assert.Equal(t, "latency:eu-west", got)

	_, err = env.String(`true`)
	assert.Error(t, err)
}

func TestCompileCachesPrograms(t *testing.T) {
	env := newEnv(t)

	a, err := env.Compile(`user.vip`)
	require.NoError(t, err)
	b, err := env.Compile(`user.vip`)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, []string{"user", "service"}, env.Variables())
}
