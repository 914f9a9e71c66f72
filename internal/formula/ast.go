// Package formula parses and evaluates spreadsheet-style formulas
// against a dataframe. Formulas start with "=", reference columns by
// header (quoted when the header is not a bare identifier) or by offset
// (HEADER$n, 1-based row offset, positive looks up), and call functions
// from a fixed four-family registry.
//
// Tokenization is delegated to github.com/xuri/efp, the Excel formula
// tokenizer excelize uses; the AST, evaluation, and pandas emission are
// built on top of its token stream.
package formula

// Node is a formula AST node.
type Node interface {
	node()
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Val float64
}

// StringLit is a quoted string literal.
type StringLit struct {
	Val string
}

// BoolLit is TRUE or FALSE.
type BoolLit struct {
	Val bool
}

// Ref references a column, optionally shifted by Offset rows.
// Offset > 0 reads rows above the current one, < 0 rows below.
type Ref struct {
	Header string
	Offset int
}

// Unary is a prefix operator application (only "-").
type Unary struct {
	Op string
	X  Node
}

// Binary is an infix operator application.
// Ops: + - * / & > < >= <= == !=
type Binary struct {
	Op   string
	L, R Node
}

// Call is a function application.
type Call struct {
	Name string
	Args []Node
}

func (NumberLit) node() {}
func (StringLit) node() {}
func (BoolLit) node()   {}
func (Ref) node()       {}
func (Unary) node()     {}
func (Binary) node()    {}
func (Call) node()      {}

// ReferencedHeaders walks the AST and returns every referenced header in
// first-appearance order.
func ReferencedHeaders(n Node) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(Node)
	walk = func(n Node) {
		switch t := n.(type) {
		case Ref:
			if !seen[t.Header] {
				seen[t.Header] = true
				out = append(out, t.Header)
			}
		case Unary:
			walk(t.X)
		case Binary:
			walk(t.L)
			walk(t.R)
		case Call:
			for _, a := range t.Args {
				walk(a)
			}
		}
	}
	walk(n)
	return out
}
