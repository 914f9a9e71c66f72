package manager

import (
	"fmt"
	"sort"
	"strings"

	"sheetflow/internal/chunks"
	"sheetflow/internal/logging"
	"sheetflow/internal/steps"
	"sheetflow/internal/values"
)

// CodeOptions controls the shape of the emitted script.
type CodeOptions struct {
	// AsFunction wraps the script body in a function definition.
	AsFunction   bool   `json:"as_function" yaml:"as_function"`
	FunctionName string `json:"function_name" yaml:"function_name"`
	// FunctionParams maps a parameter name to the original literal it
	// replaces in the body (an import file path or a dataframe name).
	FunctionParams map[string]string `json:"function_params" yaml:"function_params"`
	// CallFunction appends a call with the original literals as
	// arguments, so the script still runs standalone.
	CallFunction bool `json:"call_function" yaml:"call_function"`
	// Comments emits a one-line description above each chunk.
	Comments bool `json:"comments" yaml:"comments"`
}

// DefaultCodeOptions is a plain commented script, no wrapper.
func DefaultCodeOptions() CodeOptions {
	return CodeOptions{Comments: true}
}

// EmitCode transpiles the applied steps, optimizes the chunk list, and
// assembles the final script. The second return value lists the
// parameter names of the wrapper function, empty when no wrapper is
// emitted.
func (m *Manager) EmitCode() (string, []string, error) {
	if err := m.rehydrate(m.cursor); err != nil {
		return "", nil, err
	}

	var list []chunks.Chunk
	for _, st := range m.AppliedSteps() {
		p, err := steps.Lookup(st.Type)
		if err != nil {
			return "", nil, err
		}
		list = append(list, p.Transpile(st)...)
	}
	list = chunks.Optimize(list)
	logging.Get(logging.CategoryCode).Debugw("emitting code",
		"chunks", len(list), "as_function", m.codeOptions.AsFunction)

	var imports, helpers, body []string
	for _, c := range list {
		imports = appendUnique(imports, c.Imports()...)
		helpers = appendUnique(helpers, c.Helpers()...)
		code := c.Code()
		if len(code) == 0 {
			continue
		}
		if len(body) > 0 {
			body = append(body, "")
		}
		if m.codeOptions.Comments && c.Description() != "" {
			body = append(body, "# "+c.Description())
		}
		body = append(body, code...)
	}

	opts := m.codeOptions
	if !opts.AsFunction {
		return assemble(imports, helpers, body), nil, nil
	}

	name := opts.FunctionName
	if name == "" {
		name = "run_analysis"
	}
	params := sortedParamNames(opts.FunctionParams)
	for _, p := range params {
		body = substituteLiteral(body, opts.FunctionParams[p], p)
	}

	var fn []string
	fn = append(fn, fmt.Sprintf("def %s(%s):", name, strings.Join(params, ", ")))
	for _, line := range body {
		if line == "" {
			fn = append(fn, "")
		} else {
			fn = append(fn, "    "+line)
		}
	}
	names := m.finalDFNames()
	if len(names) > 0 {
		fn = append(fn, fmt.Sprintf("    return %s", strings.Join(names, ", ")))
	}
	if opts.CallFunction {
		args := make([]string, len(params))
		for i, p := range params {
			args[i] = values.PyString(opts.FunctionParams[p])
		}
		fn = append(fn, "")
		call := fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
		if len(names) > 0 {
			call = strings.Join(names, ", ") + " = " + call
		}
		fn = append(fn, call)
	}
	return assemble(imports, helpers, fn), params, nil
}

// finalDFNames lists the dataframe names of the cursor state, in sheet
// order.
func (m *Manager) finalDFNames() []string {
	st := m.CurrState()
	out := make([]string, len(st.Metas))
	for i, meta := range st.Metas {
		out[i] = meta.DFName
	}
	return out
}

// assemble joins the import block, hoisted helpers, and body into one
// script with blank lines between sections.
func assemble(imports, helpers, body []string) string {
	var sections [][]string
	if len(imports) > 0 {
		sections = append(sections, imports)
	}
	if len(helpers) > 0 {
		sections = append(sections, helpers)
	}
	if len(body) > 0 {
		sections = append(sections, body)
	}
	var parts []string
	for _, s := range sections {
		parts = append(parts, strings.Join(s, "\n"))
	}
	out := strings.Join(parts, "\n\n")
	if out != "" {
		out += "\n"
	}
	return out
}

// substituteLiteral replaces every quoted occurrence of a literal in
// the body with a bare parameter name, covering plain and raw string
// forms.
func substituteLiteral(body []string, literal, param string) []string {
	quoted := values.PyString(literal)
	out := make([]string, len(body))
	for i, line := range body {
		line = strings.ReplaceAll(line, "r"+quoted, param)
		line = strings.ReplaceAll(line, quoted, param)
		out[i] = line
	}
	return out
}

func sortedParamNames(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func appendUnique(dst []string, src ...string) []string {
	for _, s := range src {
		if s == "" {
			continue
		}
		seen := false
		for _, d := range dst {
			if d == s {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, s)
		}
	}
	return dst
}
