package feature

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"

	"linscore/internal/event"
)

// Schema declares the event fields rules may reference and their types:
// int, double, bool, string or dyn.
type Schema map[string]string

// Env builds a CEL environment with one variable per schema field.
// Numeric comparisons across int and double are allowed, so `start_delay_min <= 5`
// type-checks for a double field.
func (s Schema) Env() (*cel.Env, error) {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := []cel.EnvOption{cel.CrossTypeNumericComparisons(true)}
	for _, name := range names {
		t, err := celType(s[name])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		opts = append(opts, cel.Variable(name, t))
	}

	return cel.NewEnv(opts...)
}

func celType(name string) (*cel.Type, error) {
	switch strings.ToLower(name) {
	case "int":
		return cel.IntType, nil
	case "double", "float":
		return cel.DoubleType, nil
	case "bool":
		return cel.BoolType, nil
	case "string":
		return cel.StringType, nil
	case "dyn", "":
		return cel.DynType, nil
	default:
		return nil, fmt.Errorf("unsupported field type %q", name)
	}
}

// Activation converts an event into CEL variables. JSON numbers arrive as float64 or
// json.Number and are converted to the declared type; integral values only for int fields.
// Fields the schema does not declare are dropped.
func (s Schema) Activation(e event.Event) map[string]any {
	vars := make(map[string]any, len(s))
	for name, kind := range s {
		v, found := e[name]
		if !found || v == nil {
			continue
		}
		if converted, ok := convert(v, strings.ToLower(kind)); ok {
			vars[name] = converted
		}
	}
	return vars
}

func convert(v any, kind string) (any, bool) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		if err != nil {
			return nil, false
		}
		v = f
	}

	switch kind {
	case "int":
		switch x := v.(type) {
		case float64:
			if x != math.Trunc(x) {
				return nil, false
			}
			return int64(x), true
		case int:
			return int64(x), true
		case int64:
			return x, true
		}
		return nil, false
	case "double", "float":
		switch x := v.(type) {
		case float64:
			return x, true
		case int:
			return float64(x), true
		case int64:
			return float64(x), true
		}
		return nil, false
	default:
		return v, true
	}
}
