package formula

import (
	"fmt"
	"strconv"

	"sheetflow/internal/values"
)

// Emitted is the pandas rendering of a formula.
type Emitted struct {
	Expr    string
	Imports []string // python import lines the expression needs
	Helpers []string // python helper defs the expression needs
}

// Emit renders the AST as a pandas expression over dfName.
func Emit(node Node, dfName string) Emitted {
	e := &emitter{dfName: dfName}
	expr := e.emit(node)
	return Emitted{Expr: expr, Imports: e.imports(), Helpers: e.helpers()}
}

type emitter struct {
	dfName     string
	importSet  map[string]bool
	importList []string
	helperSet  map[string]bool
	helperList []string
}

func (e *emitter) addImport(line string) {
	if e.importSet == nil {
		e.importSet = make(map[string]bool)
	}
	if !e.importSet[line] {
		e.importSet[line] = true
		e.importList = append(e.importList, line)
	}
}

func (e *emitter) addHelper(def string) {
	if e.helperSet == nil {
		e.helperSet = make(map[string]bool)
	}
	if !e.helperSet[def] {
		e.helperSet[def] = true
		e.helperList = append(e.helperList, def)
	}
}

func (e *emitter) imports() []string { return e.importList }
func (e *emitter) helpers() []string { return e.helperList }

func (e *emitter) emit(node Node) string {
	switch n := node.(type) {
	case NumberLit:
		if n.Val == float64(int64(n.Val)) {
			return strconv.FormatInt(int64(n.Val), 10)
		}
		return strconv.FormatFloat(n.Val, 'g', -1, 64)
	case StringLit:
		return values.PyString(n.Val)
	case BoolLit:
		if n.Val {
			return "True"
		}
		return "False"
	case Ref:
		base := fmt.Sprintf("%s[%s]", e.dfName, values.PyString(n.Header))
		if n.Offset != 0 {
			return fmt.Sprintf("%s.shift(%d)", base, n.Offset)
		}
		return base
	case Unary:
		return fmt.Sprintf("-(%s)", e.emit(n.X))
	case Binary:
		l, r := e.emit(n.L), e.emit(n.R)
		if n.Op == "&" {
			e.addHelper(pyConcatDef)
			return fmt.Sprintf("_sf_concat(%s, %s)", l, r)
		}
		return fmt.Sprintf("%s %s %s", parenthesize(n.L, l), n.Op, parenthesize(n.R, r))
	case Call:
		fn := Registry[n.Name]
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = e.emit(a)
		}
		for _, imp := range fn.Imports {
			e.addImport(imp)
		}
		if fn.PyDef != "" {
			e.addHelper(fn.PyDef)
		}
		return fn.Emit(args)
	}
	return ""
}

// parenthesize wraps compound sub-expressions so operator precedence in
// the emitted python matches the parsed tree.
func parenthesize(n Node, rendered string) string {
	switch n.(type) {
	case Binary, Unary:
		return "(" + rendered + ")"
	}
	return rendered
}
