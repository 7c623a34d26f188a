package ruleset

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/liamcoop/rulespec/rules"
)

const (
	maxNameLength = 100
	maxVariables  = 100
	maxRules      = 500
)

var (
	identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	namePattern       = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
)

// ValidateName checks a tenant ID or rule-set name
func ValidateName(field, name string) error {
	if name == "" {
		return invalid(field, "cannot be empty")
	}
	if len(name) > maxNameLength {
		return invalid(field, "length %d exceeds maximum of %d characters", len(name), maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return invalid(field, "must match pattern %s", namePattern)
	}
	return nil
}

// ValidateDefinition checks the structure of a definition. Expressions are
// type-checked later, by Compile.
func ValidateDefinition(def *Definition) error {
	if err := ValidateName("name", def.Name); err != nil {
		return err
	}
	if def.ID != "" {
		if _, err := uuid.Parse(def.ID); err != nil {
			return invalid("id", "%q is not a UUID", def.ID)
		}
	}

	if len(def.Variables) > maxVariables {
		return invalid("variables", "%d variables, maximum allowed is %d", len(def.Variables), maxVariables)
	}
	seen := make(map[string]bool, len(def.Variables))
	for _, v := range def.Variables {
		if err := validateIdentifier(v); err != nil {
			return invalid("variables", "%q: %v", v, err)
		}
		if seen[v] {
			return invalid("variables", "duplicate variable %q", v)
		}
		seen[v] = true
	}

	switch def.Kind {
	case KindFirstMatch:
		return validateRules(def, false)
	case KindWeighted:
		return validateRules(def, true)
	case KindThreshold:
		return validateThreshold(def.Threshold)
	case KindComparative:
		return validateComparative(def.Comparative)
	case KindHistorical:
		return validateHistorical(def.Historical)
	case "":
		return invalid("kind", "is required")
	default:
		return invalid("kind", "unknown kind %q", def.Kind)
	}
}

func validateRules(def *Definition, weighted bool) error {
	if len(def.Rules) == 0 {
		return invalid("rules", "must contain at least one rule")
	}
	if len(def.Rules) > maxRules {
		return invalid("rules", "%d rules, maximum allowed is %d", len(def.Rules), maxRules)
	}
	for i, r := range def.Rules {
		if strings.TrimSpace(r.When) != r.When {
			return invalid(fmt.Sprintf("rules[%d].when", i), "has leading or trailing whitespace")
		}
		if weighted {
			if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) || r.Weight <= 0 {
				return invalid(fmt.Sprintf("rules[%d].weight", i), "must be positive and finite, got %v", r.Weight)
			}
		} else if r.Weight != 0 {
			return invalid(fmt.Sprintf("rules[%d].weight", i), "only weighted rule sets take weights")
		}
	}
	if weighted && def.Fallback != nil {
		return invalid("fallback", "weighted rule sets have no fallback")
	}
	if !weighted && def.Seed != nil {
		return invalid("seed", "only weighted rule sets take a seed")
	}
	return nil
}

func validateThreshold(t *Threshold) error {
	if t == nil {
		return invalid("threshold", "is required for kind %s", KindThreshold)
	}
	if t.Value == "" {
		return invalid("threshold.value", "is required")
	}
	if t.Threshold == "" {
		return invalid("threshold.threshold", "is required")
	}
	if _, err := rules.ParseOperator(t.Operator); err != nil {
		return invalid("threshold.operator", "%v", err)
	}
	if t.Tolerance < 0 || math.IsNaN(t.Tolerance) {
		return invalid("threshold.tolerance", "must not be negative")
	}
	return nil
}

func validateComparative(c *Comparative) error {
	if c == nil {
		return invalid("comparative", "is required for kind %s", KindComparative)
	}
	if c.Value == "" {
		return invalid("comparative.value", "is required")
	}
	switch c.Comparison {
	case CompareAbove, CompareBelow, CompareEqual:
	case CompareBetween:
		if c.Lower > c.Upper {
			return invalid("comparative.lower", "%v is greater than upper %v", c.Lower, c.Upper)
		}
	default:
		return invalid("comparative.comparison", "unknown comparison %q", c.Comparison)
	}
	if c.Tolerance < 0 || math.IsNaN(c.Tolerance) {
		return invalid("comparative.tolerance", "must not be negative")
	}
	return nil
}

func validateHistorical(h *Historical) error {
	if h == nil {
		return invalid("historical", "is required for kind %s", KindHistorical)
	}
	if h.Key == "" {
		return invalid("historical.key", "is required")
	}
	if _, err := rules.ParseWindow(h.Window); err != nil {
		return invalid("historical.window", "%v", err)
	}
	switch h.Aggregation {
	case AggregateMedian, AggregateMean, AggregateMin, AggregateMax:
	case AggregatePercentile:
		if h.Percentile < 0 || h.Percentile > 100 || math.IsNaN(h.Percentile) {
			return invalid("historical.percentile", "must be in [0, 100], got %v", h.Percentile)
		}
	default:
		return invalid("historical.aggregation", "unknown aggregation %q", h.Aggregation)
	}
	if h.MinimumDataPoints < 0 {
		return invalid("historical.minimum_data_points", "must not be negative")
	}
	return nil
}

// validateIdentifier validates a CEL variable name
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxNameLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern %s", identifierPattern)
	}
	if reservedKeywords[name] {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}
	return nil
}

// reservedKeywords cannot be declared as CEL variables
var reservedKeywords = map[string]bool{
	"true": true, "false": true, "null": true,
	"if": true, "else": true, "for": true, "while": true,
	"break": true, "continue": true, "return": true,
	"var": true, "let": true, "const": true, "function": true,
	"in": true, "as": true, "import": true, "package": true,
	"namespace": true, "loop": true, "void": true,
}
