// Package steps defines the step model: one performer per edit kind,
// executing against the previous state to produce the next one and
// transpiling into code chunks. Performers register themselves under
// their step-type discriminator; versioned params from older recordings
// pass through the upgrader chain first.
package steps

import (
	"fmt"
	"sort"

	"sheetflow/internal/chunks"
	"sheetflow/internal/errs"
	"sheetflow/internal/state"
	"sheetflow/internal/values"
)

// Params is the declared parameter dictionary of one step. Values are
// JSON-shaped: strings, float64 numbers, bools, []any, map[string]any.
type Params map[string]any

// Step is one committed (or pending) edit.
type Step struct {
	ID       string
	Type     string
	Version  int
	Params   Params
	Prev     *state.State
	Post     *state.State
	ExecData map[string]any
	Skip     bool
}

// ModifiedSheetIndexes reports which sheets the step created or
// edited, in ascending order, derived from its transpiled chunks.
func (s *Step) ModifiedSheetIndexes() ([]int, error) {
	p, err := Lookup(s.Type)
	if err != nil {
		return nil, err
	}
	seen := map[int]bool{}
	var out []int
	for _, c := range p.Transpile(s) {
		for _, idx := range c.CreatedSheetIndexes() {
			if !seen[idx] {
				seen[idx] = true
				out = append(out, idx)
			}
		}
		for _, idx := range c.EditedSheetIndexes() {
			if !seen[idx] {
				seen[idx] = true
				out = append(out, idx)
			}
		}
	}
	sort.Ints(out)
	return out, nil
}

// Performer executes and transpiles one step kind.
type Performer interface {
	// Type is the step-kind discriminator, Version its current params
	// version.
	Type() string
	Version() int

	// Execute derives the successor state. It must not mutate prev and
	// must be deterministic apart from declared I/O.
	Execute(prev *state.State, p Params) (*state.State, map[string]any, error)

	// Transpile renders the executed step as code chunks.
	Transpile(step *Step) []chunks.Chunk

	// Refinable marks overwrite-eligible kinds: a repeated edit message
	// with the same step ID replaces the step instead of appending.
	Refinable() bool
}

var registry = map[string]Performer{}

// columnParamKeys records, per step type, which param keys hold column
// IDs. The saved-analysis writer substitutes headers for these so files
// stay portable.
var columnParamKeys = map[string][]string{}

func register(p Performer, columnKeys ...string) {
	if _, dup := registry[p.Type()]; dup {
		panic(fmt.Sprintf("steps: duplicate performer %q", p.Type()))
	}
	registry[p.Type()] = p
	if len(columnKeys) > 0 {
		columnParamKeys[p.Type()] = columnKeys
	}
}

// Lookup resolves a step type. Unknown types are a hard failure by the
// replay contract.
func Lookup(stepType string) (Performer, error) {
	p, ok := registry[stepType]
	if !ok {
		return nil, errs.UserConfig("unknown_step_type",
			"step type %q is not supported", stepType)
	}
	return p, nil
}

// Types lists registered step types, sorted.
func Types() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ColumnParamKeys reports which params of a step type carry column IDs.
func ColumnParamKeys(stepType string) []string {
	return columnParamKeys[stepType]
}

// Param getters. Missing or mistyped params are user-configuration
// errors carrying the key name.

func (p Params) Str(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", missingParam(key)
	}
	s, ok := v.(string)
	if !ok {
		return "", badParam(key, "a string")
	}
	return s, nil
}

// StrOr returns the param or a default when absent.
func (p Params) StrOr(key, def string) string {
	if s, err := p.Str(key); err == nil {
		return s
	}
	return def
}

func (p Params) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, missingParam(key)
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		return int(x), nil
	}
	return 0, badParam(key, "a number")
}

// IntOr returns the param or a default when absent.
func (p Params) IntOr(key string, def int) int {
	if n, err := p.Int(key); err == nil {
		return n
	}
	return def
}

func (p Params) Bool(key string) (bool, error) {
	v, ok := p[key]
	if !ok {
		return false, missingParam(key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, badParam(key, "a boolean")
	}
	return b, nil
}

// BoolOr returns the param or a default when absent.
func (p Params) BoolOr(key string, def bool) bool {
	if b, err := p.Bool(key); err == nil {
		return b
	}
	return def
}

func (p Params) StrList(key string) ([]string, error) {
	v, ok := p[key]
	if !ok {
		return nil, missingParam(key)
	}
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...), nil
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, badParam(key, "a list of strings")
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, badParam(key, "a list of strings")
}

func (p Params) Map(key string) (map[string]any, error) {
	v, ok := p[key]
	if !ok {
		return nil, missingParam(key)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, badParam(key, "an object")
	}
	return m, nil
}

// Value reads a param as a typed cell value.
func (p Params) Value(key string) (values.Value, error) {
	v, ok := p[key]
	if !ok {
		return values.Value{}, missingParam(key)
	}
	return anyToValue(v), nil
}

// anyToValue converts a JSON scalar into a cell, treating the NaN
// placeholder as missing.
func anyToValue(v any) values.Value {
	switch x := v.(type) {
	case nil:
		return values.NaN()
	case values.Value:
		return x
	case bool:
		return values.Bool(x)
	case int:
		return values.Int(int64(x))
	case int64:
		return values.Int(x)
	case float64:
		if x == float64(int64(x)) {
			return values.Int(int64(x))
		}
		return values.Float(x)
	case string:
		if x == values.NaNPlaceholder {
			return values.NaN()
		}
		return values.String(x)
	default:
		return values.String(fmt.Sprint(x))
	}
}

func missingParam(key string) error {
	return errs.UserConfig("missing_param", "required parameter %q is missing", key)
}

func badParam(key, want string) error {
	return errs.UserConfig("bad_param", "parameter %q must be %s", key, want)
}
