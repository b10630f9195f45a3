// Package expr implements the small, closed expression language spec §9
// mandates in place of the forbidden string-`eval`: comparisons and
// AND/OR combinators over a fixed vocabulary of six signal names.
// Parsing and evaluation are delegated to github.com/PaesslerAG/gval, a
// real parser-evaluator library already present in the teacher's module
// graph (via PaesslerAG/jsonpath).
package expr

import (
	"context"
	"fmt"

	"github.com/PaesslerAG/gval"
)

// Vocabulary is the fixed set of variable names an expression may
// reference (spec §9).
var Vocabulary = map[string]struct{}{
	"latency_p99":         {},
	"error_rate":          {},
	"cpu_utilization":     {},
	"memory_utilization":  {},
	"throughput":          {},
	"burn_rate":           {},
}

// Signals binds vocabulary names to their current values for one
// evaluation.
type Signals map[string]float64

// language is gval's arithmetic/comparison language plus the keywords
// AND/OR and and/or (no other casing) as aliases for && and ||, matching
// spec §9's "AND/OR"
// wording while keeping gval's real parser as the evaluator.
var language = gval.NewLanguage(
	gval.Full(),
	gval.InfixBoolOperator("AND", func(a, b bool) (interface{}, error) { return a && b, nil }),
	gval.InfixBoolOperator("OR", func(a, b bool) (interface{}, error) { return a || b, nil }),
	gval.InfixBoolOperator("and", func(a, b bool) (interface{}, error) { return a && b, nil }),
	gval.InfixBoolOperator("or", func(a, b bool) (interface{}, error) { return a || b, nil }),
)

// Expression is a parsed, reusable condition.
type Expression struct {
	raw  string
	eval gval.Evaluable
}

// Parse compiles raw into an Expression. Parsing fails closed: an
// unparseable expression is a spec §7 InvalidInput, never evaluated.
func Parse(raw string) (*Expression, error) {
	eval, err := language.NewEvaluable(raw)
	if err != nil {
		return nil, fmt.Errorf("expr: parse %q: %w", raw, err)
	}
	return &Expression{raw: raw, eval: eval}, nil
}

// MustParse is Parse but panics on error, for compile-time-constant
// expressions defined alongside the degradation ladder / alert configs.
func MustParse(raw string) *Expression {
	e, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return e
}

// Evaluate runs the expression against signals, returning its boolean
// result. A reference to a name outside Vocabulary or a non-boolean
// result is an error; the caller treats evaluation errors as "condition
// not satisfied" rather than propagating (conditions are advisory
// triggers, not control flow that can fail the caller).
func (e *Expression) Evaluate(signals Signals) (bool, error) {
	vars := make(map[string]interface{}, len(signals))
	for k, v := range signals {
		if _, ok := Vocabulary[k]; !ok {
			continue
		}
		vars[k] = v
	}
	result, err := e.eval.EvalBool(context.Background(), vars)
	if err != nil {
		return false, fmt.Errorf("expr: evaluate %q: %w", e.raw, err)
	}
	return result, nil
}

func (e *Expression) String() string { return e.raw }
