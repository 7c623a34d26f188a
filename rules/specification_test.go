package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	Age     int
	VIP     bool
	Country string
}

// countingSpec records how many times it is evaluated
type countingSpec struct {
	result bool
	calls  int
}

func (c *countingSpec) IsSatisfiedBy(user) bool {
	c.calls++
	return c.result
}

func adult() Specification[user] {
	return Func[user](func(u user) bool { return u.Age >= 18 })
}

func TestAndShortCircuits(t *testing.T) {
	right := &countingSpec{result: true}
	spec := And[user](AlwaysFalse[user](), right)

	assert.False(t, spec.IsSatisfiedBy(user{}))
	assert.Equal(t, 0, right.calls, "right operand must not be evaluated")
}

func TestOrShortCircuits(t *testing.T) {
	right := &countingSpec{result: false}
	spec := Or[user](AlwaysTrue[user](), right)

	assert.True(t, spec.IsSatisfiedBy(user{}))
	assert.Equal(t, 0, right.calls, "right operand must not be evaluated")
}

func TestAndOrNot(t *testing.T) {
	vip := Func[user](func(u user) bool { return u.VIP })
	canadian := Func[user](func(u user) bool { return u.Country == "CA" })

	tests := []struct {
		name string
		spec Specification[user]
		in   user
		want bool
	}{
		{"and both", And[user](adult(), vip), user{Age: 30, VIP: true}, true},
		{"and one", And[user](adult(), vip), user{Age: 30}, false},
		{"or one", Or[user](vip, canadian), user{Country: "CA"}, true},
		{"or none", Or[user](vip, canadian), user{Country: "US"}, false},
		{"not", Not[user](adult()), user{Age: 12}, true},
		{"empty and", And[user](), user{}, true},
		{"empty or", Or[user](), user{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.IsSatisfiedBy(tt.in))
		})
	}
}

func TestAnySpecificationFluent(t *testing.T) {
	vip := Predicate(func(u user) bool { return u.VIP })
	spec := Erase(adult()).And(vip).Or(Func[user](func(u user) bool { return u.Country == "CA" })).Not()

	assert.False(t, spec.IsSatisfiedBy(user{Age: 40, VIP: true}))
	assert.False(t, spec.IsSatisfiedBy(user{Country: "CA"}))
	assert.True(t, spec.IsSatisfiedBy(user{Age: 40}))
}

func TestEraseIsIdempotent(t *testing.T) {
	right := &countingSpec{result: true}
	erased := Erase(Erase[user](right))

	require.True(t, erased.IsSatisfiedBy(user{}))
	assert.Equal(t, 1, right.calls)

	var zero AnySpecification[user]
	assert.False(t, zero.IsSatisfiedBy(user{}))
	assert.False(t, Erase[user](nil).IsSatisfiedBy(user{}))
}

func TestSpecificationsAreRepeatable(t *testing.T) {
	spec := Erase(adult()).And(Not[user](Func[user](func(u user) bool { return u.VIP })))
	in := user{Age: 25}
	first := spec.IsSatisfiedBy(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, spec.IsSatisfiedBy(in))
	}
}

func TestNilSpecificationsAreNeverSatisfied(t *testing.T) {
	u := user{Age: 30}
	assert.False(t, And(adult(), nil).IsSatisfiedBy(u))
	assert.True(t, Or(nil, adult()).IsSatisfiedBy(u))
	assert.False(t, Or[user](nil, nil).IsSatisfiedBy(u))
	assert.True(t, Not[user](nil).IsSatisfiedBy(u))
	assert.False(t, Erase[user](Func[user](nil)).IsSatisfiedBy(u))
}
