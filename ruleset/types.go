// Package ruleset compiles declarative rule-set definitions into decision
// specifications and serves them per tenant.
package ruleset

import "time"

// Kind selects how a rule set decides
type Kind string

const (
	KindFirstMatch  Kind = "first_match"
	KindWeighted    Kind = "weighted"
	KindThreshold   Kind = "threshold"
	KindComparative Kind = "comparative"
	KindHistorical  Kind = "historical"
)

// DefaultVariables are declared when a definition names none
var DefaultVariables = []string{"input"}

// Definition is the stored, declarative form of a rule set. Conditions and
// values are CEL expressions over the declared variables.
type Definition struct {
	ID          string       `yaml:"id,omitempty" json:"id,omitempty"`
	Name        string       `yaml:"name" json:"name"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Kind        Kind         `yaml:"kind" json:"kind"`
	Variables   []string     `yaml:"variables,omitempty" json:"variables,omitempty"`
	Rules       []Rule       `yaml:"rules,omitempty" json:"rules,omitempty"`
	Fallback    any          `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	Seed        *uint64      `yaml:"seed,omitempty" json:"seed,omitempty"`
	Threshold   *Threshold   `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Comparative *Comparative `yaml:"comparative,omitempty" json:"comparative,omitempty"`
	Historical  *Historical  `yaml:"historical,omitempty" json:"historical,omitempty"`
	CreatedAt   time.Time    `yaml:"-" json:"created_at"`
	UpdatedAt   time.Time    `yaml:"-" json:"updated_at"`
}

// Rule is one condition/result pair of a first_match or weighted set.
// An empty When always matches.
type Rule struct {
	When   string  `yaml:"when,omitempty" json:"when,omitempty"`
	Weight float64 `yaml:"weight,omitempty" json:"weight,omitempty"`
	Result any     `yaml:"result" json:"result"`
}

// Threshold compares a numeric value against a numeric threshold expression
type Threshold struct {
	Value     string  `yaml:"value" json:"value"`
	Operator  string  `yaml:"operator" json:"operator"`
	Threshold string  `yaml:"threshold" json:"threshold"`
	Tolerance float64 `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	Result    any     `yaml:"result,omitempty" json:"result,omitempty"`
}

// Comparison names accepted by Comparative
const (
	CompareAbove   = "above"
	CompareBelow   = "below"
	CompareEqual   = "equal"
	CompareBetween = "between"
)

// Comparative tests a numeric value against constant bounds
type Comparative struct {
	Value      string  `yaml:"value" json:"value"`
	Comparison string  `yaml:"comparison" json:"comparison"`
	Bound      float64 `yaml:"bound,omitempty" json:"bound,omitempty"`
	Lower      float64 `yaml:"lower,omitempty" json:"lower,omitempty"`
	Upper      float64 `yaml:"upper,omitempty" json:"upper,omitempty"`
	Tolerance  float64 `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	Result     any     `yaml:"result,omitempty" json:"result,omitempty"`
}

// Aggregation names accepted by Historical
const (
	AggregateMedian     = "median"
	AggregatePercentile = "percentile"
	AggregateMean       = "mean"
	AggregateMin        = "min"
	AggregateMax        = "max"
)

// Historical aggregates a stored sample series. Key is a CEL string
// expression selecting the series; Window uses rules.ParseWindow syntax.
type Historical struct {
	Key               string  `yaml:"key" json:"key"`
	Window            string  `yaml:"window,omitempty" json:"window,omitempty"`
	Aggregation       string  `yaml:"aggregation" json:"aggregation"`
	Percentile        float64 `yaml:"percentile,omitempty" json:"percentile,omitempty"`
	MinimumDataPoints int     `yaml:"minimum_data_points,omitempty" json:"minimum_data_points,omitempty"`
}

// Decision is the outcome of evaluating a rule set. Index is the position of
// the selected rule, or -1 when nothing matched or the kind has no rules.
type Decision struct {
	Matched bool `json:"matched"`
	Result  any  `json:"result"`
	Index   int  `json:"index"`
}

func noMatch() Decision {
	return Decision{Index: -1}
}

func (d *Definition) variables() []string {
	if len(d.Variables) == 0 {
		return DefaultVariables
	}
	return d.Variables
}

func (d *Definition) clone() *Definition {
	c := *d
	c.Variables = append([]string(nil), d.Variables...)
	c.Rules = append([]Rule(nil), d.Rules...)
	if d.Seed != nil {
		seed := *d.Seed
		c.Seed = &seed
	}
	if d.Threshold != nil {
		t := *d.Threshold
		c.Threshold = &t
	}
	if d.Comparative != nil {
		cmp := *d.Comparative
		c.Comparative = &cmp
	}
	if d.Historical != nil {
		h := *d.Historical
		c.Historical = &h
	}
	return &c
}
