package ruleset

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefinition(t *testing.T) {
	seed := uint64(1)
	tests := []struct {
		name  string
		def   Definition
		field string
	}{
		{"missing name", Definition{Kind: KindFirstMatch, Rules: []Rule{{Result: 1}}}, "name"},
		{"bad name", Definition{Name: "has space", Kind: KindFirstMatch, Rules: []Rule{{Result: 1}}}, "name"},
		{"long name", Definition{Name: strings.Repeat("a", 101), Kind: KindFirstMatch, Rules: []Rule{{Result: 1}}}, "name"},
		{"non-uuid id", Definition{ID: "not-a-uuid", Name: "x", Kind: KindFirstMatch, Rules: []Rule{{Result: 1}}}, "id"},
		{"missing kind", Definition{Name: "x"}, "kind"},
		{"unknown kind", Definition{Name: "x", Kind: "random"}, "kind"},
		{"reserved variable", Definition{Name: "x", Kind: KindFirstMatch, Variables: []string{"package"}, Rules: []Rule{{Result: 1}}}, "variables"},
		{"invalid variable", Definition{Name: "x", Kind: KindFirstMatch, Variables: []string{"1user"}, Rules: []Rule{{Result: 1}}}, "variables"},
		{"duplicate variable", Definition{Name: "x", Kind: KindFirstMatch, Variables: []string{"a", "a"}, Rules: []Rule{{Result: 1}}}, "variables"},
		{"no rules", Definition{Name: "x", Kind: KindFirstMatch}, "rules"},
		{"padded condition", Definition{Name: "x", Kind: KindFirstMatch, Rules: []Rule{{When: " true", Result: 1}}}, "rules[0].when"},
		{"weight on first match", Definition{Name: "x", Kind: KindFirstMatch, Rules: []Rule{{Weight: 2, Result: 1}}}, "rules[0].weight"},
		{"seed on first match", Definition{Name: "x", Kind: KindFirstMatch, Seed: &seed, Rules: []Rule{{Result: 1}}}, "seed"},
		{"zero weight", Definition{Name: "x", Kind: KindWeighted, Rules: []Rule{{Weight: 1}, {Weight: 0}}}, "rules[1].weight"},
		{"infinite weight", Definition{Name: "x", Kind: KindWeighted, Rules: []Rule{{Weight: math.Inf(1)}}}, "rules[0].weight"},
		{"weighted fallback", Definition{Name: "x", Kind: KindWeighted, Fallback: "f", Rules: []Rule{{Weight: 1}}}, "fallback"},
		{"missing threshold", Definition{Name: "x", Kind: KindThreshold}, "threshold"},
		{"bad operator", Definition{Name: "x", Kind: KindThreshold, Threshold: &Threshold{Value: "1", Threshold: "2", Operator: "=>"}}, "threshold.operator"},
		{"negative tolerance", Definition{Name: "x", Kind: KindThreshold, Threshold: &Threshold{Value: "1", Threshold: "2", Operator: ">", Tolerance: -1}}, "threshold.tolerance"},
		{"inverted between", Definition{Name: "x", Kind: KindComparative, Comparative: &Comparative{Value: "1", Comparison: CompareBetween, Lower: 5, Upper: 1}}, "comparative.lower"},
		{"unknown comparison", Definition{Name: "x", Kind: KindComparative, Comparative: &Comparative{Value: "1", Comparison: "near"}}, "comparative.comparison"},
		{"bad window", Definition{Name: "x", Kind: KindHistorical, Historical: &Historical{Key: `"k"`, Window: "last:0", Aggregation: AggregateMedian}}, "historical.window"},
		{"bad percentile", Definition{Name: "x", Kind: KindHistorical, Historical: &Historical{Key: `"k"`, Aggregation: AggregatePercentile, Percentile: 101}}, "historical.percentile"},
		{"unknown aggregation", Definition{Name: "x", Kind: KindHistorical, Historical: &Historical{Key: `"k"`, Aggregation: "mode"}}, "historical.aggregation"},
		{"negative minimum", Definition{Name: "x", Kind: KindHistorical, Historical: &Historical{Key: `"k"`, Aggregation: AggregateMax, MinimumDataPoints: -1}}, "historical.minimum_data_points"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDefinition(&tt.def)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateDefinitionAccepts(t *testing.T) {
	defs := []Definition{
		{Name: "tiers", Kind: KindFirstMatch, Variables: []string{"user", "_ctx"}, Rules: []Rule{{When: "user.vip", Result: "gold"}}, Fallback: "standard"},
		{ID: "7d3f0a2e-5b1c-4c8e-9a6f-2e4b8c1d0f93", Name: "with-id", Kind: KindFirstMatch, Rules: []Rule{{Result: 1}}},
		{Name: "ab.test-1", Kind: KindWeighted, Rules: []Rule{{Weight: 0.5, Result: "a"}, {Weight: 0.5, Result: "b"}}},
		{Name: "p95", Kind: KindHistorical, Historical: &Historical{Key: `"k"`, Window: "range:1h", Aggregation: AggregatePercentile, Percentile: 95}},
	}
	for _, def := range defs {
		assert.NoError(t, ValidateDefinition(&def), def.Name)
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("tenant", "acme-corp"))
	assert.Error(t, ValidateName("tenant", ""))
	assert.Error(t, ValidateName("tenant", "-acme"))
	assert.EqualError(t, ValidateName("tenant", "a/b"), `invalid tenant: must match pattern ^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
}
