// Package expr compiles CEL expressions into rule building blocks:
// boolean predicates, numeric and string extractors over a facts map.
package expr

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Facts is the evaluation input: top-level variable name -> value
type Facts = map[string]any

// costLimit bounds the work a single expression may perform
const costLimit = 1000000

// Environment is a CEL environment with a fixed set of dynamically typed
// top-level variables. It caches compiled programs by source text and is safe
// for concurrent use.
type Environment struct {
	env      *cel.Env
	vars     []string
	programs map[string]*Program
	mu       sync.RWMutex
}

// NewEnvironment creates an environment declaring each variable as dyn
func NewEnvironment(variables ...string) (*Environment, error) {
	opts := make([]cel.EnvOption, 0, len(variables))
	for _, name := range variables {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Environment{
		env:      env,
		vars:     append([]string(nil), variables...),
		programs: make(map[string]*Program),
	}, nil
}

// Variables returns the declared variable names
func (e *Environment) Variables() []string {
	return append([]string(nil), e.vars...)
}

// Program is a compiled CEL expression
type Program struct {
	source  string
	output  *cel.Type
	program cel.Program
}

// Compile type-checks expression and builds a cost-limited program
func (e *Environment) Compile(expression string) (*Program, error) {
	e.mu.RLock()
	p, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := e.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	p = &Program{source: expression, output: ast.OutputType(), program: prog}
	e.mu.Lock()
	e.programs[expression] = p
	e.mu.Unlock()
	return p, nil
}

// Source returns the expression text
func (p *Program) Source() string {
	return p.source
}

// Eval evaluates the program. Evaluation errors, such as a reference to a
// missing fact, are reported as ok == false.
func (p *Program) Eval(facts Facts) (any, bool) {
	out, _, err := p.program.Eval(facts)
	if err != nil {
		return nil, false
	}
	return out.Value(), true
}

func (p *Program) outputs(t *cel.Type) bool {
	return p.output.IsExactType(t) || p.output.IsExactType(cel.DynType)
}

// Predicate is a boolean CEL expression usable as a rules.Specification
type Predicate struct {
	program *Program
}

// Predicate compiles a boolean expression. Expressions whose static type is
// neither bool nor dyn are rejected.
func (e *Environment) Predicate(expression string) (*Predicate, error) {
	p, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	if !p.outputs(cel.BoolType) {
		return nil, fmt.Errorf("expression %q must evaluate to bool, got %s", expression, p.output)
	}
	return &Predicate{program: p}, nil
}

// IsSatisfiedBy evaluates the predicate. Errors and non-boolean results are
// treated as not satisfied.
func (p *Predicate) IsSatisfiedBy(facts Facts) bool {
	out, ok := p.program.Eval(facts)
	if !ok {
		return false
	}
	b, ok := out.(bool)
	return ok && b
}

// Source returns the expression text
func (p *Predicate) Source() string {
	return p.program.source
}

// Number compiles a numeric expression into an extractor suitable for
// rules.NewThreshold. Integer results are widened to float64.
func (e *Environment) Number(expression string) (func(Facts) (float64, bool), error) {
	p, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	if !p.outputs(cel.DoubleType) && !p.output.IsExactType(cel.IntType) && !p.output.IsExactType(cel.UintType) {
		return nil, fmt.Errorf("expression %q must evaluate to a number, got %s", expression, p.output)
	}
	return func(facts Facts) (float64, bool) {
		out, ok := p.Eval(facts)
		if !ok {
			return 0, false
		}
		return toFloat(out)
	}, nil
}

// String compiles a string expression into an extractor
func (e *Environment) String(expression string) (func(Facts) (string, bool), error) {
	p, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	if !p.outputs(cel.StringType) {
		return nil, fmt.Errorf("expression %q must evaluate to string, got %s", expression, p.output)
	}
	return func(facts Facts) (string, bool) {
		out, ok := p.Eval(facts)
		if !ok {
			return "", false
		}
		s, ok := out.(string)
		return s, ok
	}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
