package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReturning(t *testing.T) {
	d := Returning(adult(), "adult")

	got, ok := d.Decide(user{Age: 40})
	assert.True(t, ok)
	assert.Equal(t, "adult", got)

	got, ok = d.Decide(user{Age: 4})
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestPredicateDecision(t *testing.T) {
	d := NewPredicateDecision(func(u user) bool { return u.VIP }, 0.25)

	got, ok := d.Decide(user{VIP: true})
	assert.True(t, ok)
	assert.Equal(t, 0.25, got)

	_, ok = d.Decide(user{})
	assert.False(t, ok)
}

func TestEraseDecision(t *testing.T) {
	d := EraseDecision[user, string](Returning(adult(), "adult"))
	again := EraseDecision[user, string](d)

	got, ok := again.Decide(user{Age: 20})
	assert.True(t, ok)
	assert.Equal(t, "adult", got)

	_, ok = EraseDecision[user, string](nil).Decide(user{Age: 20})
	assert.False(t, ok)
}

func TestWhenGatesDecision(t *testing.T) {
	inner := DecisionFunc[user, string](func(user) (string, bool) { return "routed", true })
	d := When[user, string](adult(), inner)

	_, ok := d.Decide(user{Age: 10})
	assert.False(t, ok)

	got, ok := d.Decide(user{Age: 30})
	assert.True(t, ok)
	assert.Equal(t, "routed", got)
}

func TestFirstOf(t *testing.T) {
	d := FirstOf[user, string](
		Returning[user, string](Func[user](func(u user) bool { return u.VIP }), "vip"),
		Returning(adult(), "adult"),
	)

	got, _ := d.Decide(user{Age: 30, VIP: true})
	assert.Equal(t, "vip", got)
	got, _ = d.Decide(user{Age: 30})
	assert.Equal(t, "adult", got)
	_, ok := d.Decide(user{Age: 3})
	assert.False(t, ok)
}

func TestSatisfied(t *testing.T) {
	spec := Satisfied[user, string](Returning(adult(), "adult"))
	assert.True(t, spec.IsSatisfiedBy(user{Age: 18}))
	assert.False(t, spec.IsSatisfiedBy(user{Age: 17}))
}

func TestDecisionsTolerateNilParts(t *testing.T) {
	_, ok := Returning[user](nil, "x").Decide(user{})
	assert.False(t, ok)

	_, ok = NewPredicateDecision[user](nil, "x").Decide(user{})
	assert.False(t, ok)

	_, ok = When[user, string](nil, Returning(AlwaysTrue[user](), "x")).Decide(user{})
	assert.False(t, ok)

	_, ok = When[user, string](AlwaysTrue[user](), nil).Decide(user{})
	assert.False(t, ok)

	got, ok := FirstOf[user, string](nil, Returning(AlwaysTrue[user](), "x")).Decide(user{})
	assert.True(t, ok)
	assert.Equal(t, "x", got)

	assert.False(t, Satisfied[user, string](nil).IsSatisfiedBy(user{}))
}
