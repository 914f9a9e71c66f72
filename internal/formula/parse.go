package formula

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/efp"

	"sheetflow/internal/errs"
)

// token is the parser's internal token, distilled from efp's stream.
type token struct {
	kind string // num, str, bool, ref, funcStart, funcStop, subStart, subStop, argSep, infix, prefix
	text string
	ref  Ref
	num  float64
	b    bool
}

var offsetRef = regexp.MustCompile(`^(.+)\$(-?\d+)$`)

// Parse turns a formula string into an AST, resolving bare and quoted
// references against the sheet's current headers.
func Parse(formulaText string, headers map[string]bool) (Node, error) {
	body := strings.TrimSpace(formulaText)
	if !strings.HasPrefix(body, "=") {
		return nil, errs.Formula("formula_missing_equals",
			"formulas start with '=', got %q", formulaText)
	}
	body = strings.TrimSpace(body[1:])
	if body == "" {
		return nil, errs.Formula("formula_empty", "the formula is empty")
	}

	toks, err := lex(body, headers)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	node, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, errs.Formula("formula_trailing_tokens",
			"unexpected %q after the end of the formula", p.toks[p.pos].text)
	}
	return node, nil
}

// lex normalizes the formula to Excel operator spelling, runs efp, and
// post-processes its stream into parser tokens, fusing split offset
// references (efp breaks "A$-1" at the minus sign).
func lex(body string, headers map[string]bool) ([]token, error) {
	normalized := strings.ReplaceAll(body, "==", "=")
	normalized = strings.ReplaceAll(normalized, "!=", "<>")

	ps := efp.ExcelParser()
	raw := ps.Parse(normalized)

	var toks []token
	for i := 0; i < len(raw); i++ {
		t := raw[i]
		switch t.TType {
		case efp.TokenTypeWhitespace:
			continue
		case efp.TokenTypeOperand:
			switch t.TSubType {
			case efp.TokenSubTypeNumber:
				f, err := strconv.ParseFloat(t.TValue, 64)
				if err != nil {
					return nil, errs.Formula("formula_bad_number", "cannot read number %q", t.TValue)
				}
				toks = append(toks, token{kind: "num", num: f, text: t.TValue})
			case efp.TokenSubTypeLogical:
				toks = append(toks, token{kind: "bool", b: strings.EqualFold(t.TValue, "TRUE"), text: t.TValue})
			case efp.TokenSubTypeText:
				// A quoted string that names an existing header (or an
				// offset form of one) is a reference, not a literal.
				if ref, ok := refFromText(t.TValue, headers); ok {
					toks = append(toks, token{kind: "ref", ref: ref, text: t.TValue})
				} else {
					toks = append(toks, token{kind: "str", text: t.TValue})
				}
			default: // range operands: bare header tokens
				value := t.TValue
				// Re-fuse "HEADER$" "-" "N" split by the tokenizer.
				if strings.HasSuffix(value, "$") && i+2 < len(raw) &&
					raw[i+1].TValue == "-" &&
					raw[i+2].TType == efp.TokenTypeOperand &&
					raw[i+2].TSubType == efp.TokenSubTypeNumber {
					value = value + "-" + raw[i+2].TValue
					i += 2
				}
				ref, ok := refFromText(value, headers)
				if !ok {
					return nil, errs.Formula("unresolved_reference",
						"%q does not match any column in this sheet", value).
						WithHint("column references must match a current column header")
				}
				toks = append(toks, token{kind: "ref", ref: ref, text: value})
			}
		case efp.TokenTypeFunction:
			if t.TSubType == efp.TokenSubTypeStart {
				toks = append(toks, token{kind: "funcStart", text: strings.ToUpper(t.TValue)})
			} else {
				toks = append(toks, token{kind: "funcStop"})
			}
		case efp.TokenTypeSubexpression:
			if t.TSubType == efp.TokenSubTypeStart {
				toks = append(toks, token{kind: "subStart"})
			} else {
				toks = append(toks, token{kind: "subStop"})
			}
		case efp.TokenTypeArgument:
			toks = append(toks, token{kind: "argSep"})
		case efp.TokenTypeOperatorPrefix:
			toks = append(toks, token{kind: "prefix", text: t.TValue})
		case efp.TokenTypeOperatorInfix:
			op := t.TValue
			switch op {
			case "=":
				op = "=="
			case "<>":
				op = "!="
			}
			toks = append(toks, token{kind: "infix", text: op})
		case efp.TokenTypeOperatorPostfix:
			return nil, errs.Formula("formula_unsupported_operator",
				"postfix operator %q is not supported", t.TValue)
		default:
			return nil, errs.Formula("formula_unexpected_token",
				"unexpected token %q", t.TValue)
		}
	}
	return toks, nil
}

// refFromText resolves header text, including the HEADER$n offset form,
// against the sheet's headers.
func refFromText(text string, headers map[string]bool) (Ref, bool) {
	if headers[text] {
		return Ref{Header: text}, true
	}
	if m := offsetRef.FindStringSubmatch(text); m != nil {
		if headers[m[1]] {
			n, err := strconv.Atoi(m[2])
			if err == nil {
				return Ref{Header: m[1], Offset: n}, true
			}
		}
	}
	return Ref{}, false
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() *token {
	if p.pos >= len(p.toks) {
		return nil
	}
	return &p.toks[p.pos]
}

func (p *parser) next() *token {
	t := p.peek()
	if t != nil {
		p.pos++
	}
	return t
}

// Binding powers, loosest first.
func bindingPower(op string) int {
	switch op {
	case "==", "!=", ">", "<", ">=", "<=":
		return 1
	case "&":
		return 2
	case "+", "-":
		return 3
	case "*", "/":
		return 4
	}
	return 0
}

func (p *parser) parseExpr(minBP int) (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t == nil || t.kind != "infix" {
			return left, nil
		}
		bp := bindingPower(t.text)
		if bp == 0 {
			return nil, errs.Formula("formula_unsupported_operator",
				"operator %q is not supported", t.text)
		}
		if bp < minBP {
			return left, nil
		}
		p.next()
		right, err := p.parseExpr(bp + 1)
		if err != nil {
			return nil, err
		}
		left = Binary{Op: t.text, L: left, R: right}
	}
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()
	if t == nil {
		return nil, errs.Formula("formula_unexpected_end", "the formula ends unexpectedly")
	}
	switch t.kind {
	case "num":
		return NumberLit{Val: t.num}, nil
	case "str":
		return StringLit{Val: t.text}, nil
	case "bool":
		return BoolLit{Val: t.b}, nil
	case "ref":
		return t.ref, nil
	case "prefix":
		if t.text != "-" && t.text != "+" {
			return nil, errs.Formula("formula_unsupported_operator",
				"prefix operator %q is not supported", t.text)
		}
		x, err := p.parseExpr(5)
		if err != nil {
			return nil, err
		}
		if t.text == "+" {
			return x, nil
		}
		return Unary{Op: "-", X: x}, nil
	case "subStart":
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if nt := p.next(); nt == nil || nt.kind != "subStop" {
			return nil, errs.Formula("formula_unbalanced_parens", "missing closing parenthesis")
		}
		return inner, nil
	case "funcStart":
		return p.parseCall(t.text)
	}
	return nil, errs.Formula("formula_unexpected_token", "unexpected %q", t.text)
}

func (p *parser) parseCall(name string) (Node, error) {
	fn, ok := Registry[name]
	if !ok {
		return nil, errs.Formula("unknown_function",
			"%s is not a supported function", name).
			WithHint("see the function reference for the supported set")
	}
	var args []Node
	if t := p.peek(); t != nil && t.kind == "funcStop" {
		p.next()
	} else {
		for {
			arg, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			t := p.next()
			if t == nil {
				return nil, errs.Formula("formula_unbalanced_parens",
					"missing closing parenthesis in %s(...)", name)
			}
			if t.kind == "funcStop" {
				break
			}
			if t.kind != "argSep" {
				return nil, errs.Formula("formula_unexpected_token",
					"unexpected %q in %s(...)", t.text, name)
			}
		}
	}
	if len(args) < fn.MinArgs || (fn.MaxArgs >= 0 && len(args) > fn.MaxArgs) {
		return nil, arityError(name, fn, len(args))
	}
	return Call{Name: name, Args: args}, nil
}

func arityError(name string, fn Function, got int) error {
	if fn.MaxArgs < 0 {
		return errs.Formula("arity_mismatch",
			"%s takes at least %d argument(s), got %d", name, fn.MinArgs, got)
	}
	if fn.MinArgs == fn.MaxArgs {
		return errs.Formula("arity_mismatch",
			"%s takes %d argument(s), got %d", name, fn.MinArgs, got)
	}
	return errs.Formula("arity_mismatch",
		"%s takes between %d and %d arguments, got %d", name, fn.MinArgs, fn.MaxArgs, got)
}
