package feature

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
)

// Rule derives one feature from an event.
// Expr is a CEL expression returning a bool (1 or 0) or a number.
type Rule struct {
	// Feature is the name of the derived feature column.
	Feature string `yaml:"feature"`
	// Expr is evaluated against the fields of one event.
	Expr string `yaml:"expr"`

	program cel.Program
}

var errUnsupportedResult = errors.New("expression result is neither bool nor number")

// Init compiles Expr with env. It fails on syntax errors, type errors and
// result types that cannot be turned into a feature value.
func (r *Rule) Init(env *cel.Env) error {
	if r.Feature == "" {
		return errors.New("rule feature must be specified")
	}

	ast, iss := env.Parse(r.Expr)
	if iss.Err() != nil {
		return fmt.Errorf("feature %s: %w", r.Feature, iss.Err())
	}

	checked, iss := env.Check(ast)
	if iss.Err() != nil {
		return fmt.Errorf("feature %s: %w", r.Feature, iss.Err())
	}

	switch checked.OutputType().String() {
	case "bool", "int", "uint", "double", "dyn":
	default:
		return fmt.Errorf("feature %s: %w: %s", r.Feature, errUnsupportedResult, checked.OutputType())
	}

	var err error
	r.program, err = env.Program(checked)
	if err != nil {
		return fmt.Errorf("feature %s: %w", r.Feature, err)
	}

	return nil
}

// Eval runs the rule against the event variables. Missing variables and
// runtime errors are returned as errors; the caller decides whether to skip the event.
func (r *Rule) Eval(vars map[string]any) (float64, error) {
	out, _, err := r.program.Eval(vars)
	if err != nil {
		return 0, err
	}

	switch v := out.Value().(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float64:
		if math.IsNaN(v) {
			return 0, errors.New("expression result is NaN")
		}
		return v, nil
	default:
		return 0, errUnsupportedResult
	}
}
