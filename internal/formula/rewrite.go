package formula

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var bareRef = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Serialize renders a parsed formula back to its user-facing text,
// leading "=" included. Headers that are not bare identifiers are
// quoted.
func Serialize(n Node) string {
	return "=" + serialize(n, 0, false)
}

func serialize(n Node, parentBP int, rightSide bool) string {
	switch t := n.(type) {
	case NumberLit:
		if t.Val == float64(int64(t.Val)) {
			return strconv.FormatInt(int64(t.Val), 10)
		}
		return strconv.FormatFloat(t.Val, 'g', -1, 64)
	case StringLit:
		return `"` + strings.ReplaceAll(t.Val, `"`, `""`) + `"`
	case BoolLit:
		if t.Val {
			return "TRUE"
		}
		return "FALSE"
	case Ref:
		if bareRef.MatchString(t.Header) {
			if t.Offset != 0 {
				return t.Header + "$" + strconv.Itoa(t.Offset)
			}
			return t.Header
		}
		quoted := `"` + strings.ReplaceAll(t.Header, `"`, `""`) + `"`
		if t.Offset != 0 {
			// Quoted headers cannot take the $n suffix; OFFSET is the
			// equivalent spelled as a call.
			return fmt.Sprintf("OFFSET(%s, %d)", quoted, t.Offset)
		}
		return quoted
	case Unary:
		return "-" + serialize(t.X, 5, false)
	case Binary:
		bp := bindingPower(t.Op)
		out := serialize(t.L, bp, false) + t.Op + serialize(t.R, bp, true)
		if bp < parentBP || (bp == parentBP && rightSide) {
			return "(" + out + ")"
		}
		return out
	case Call:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = serialize(a, 0, false)
		}
		return fmt.Sprintf("%s(%s)", t.Name, strings.Join(args, ", "))
	}
	return ""
}

// RenameHeader rewrites every reference to oldHeader in the formula
// text to newHeader by splicing replacements into the original source,
// so the user's spacing and everything else survive byte for byte.
// headers is the reference universe the text parses against, before
// the rename.
func RenameHeader(text string, headers map[string]bool, oldHeader, newHeader string) (string, error) {
	if _, err := Parse(text, headers); err != nil {
		return "", err
	}
	runes := []rune(text)
	var b strings.Builder
	for i := 0; i < len(runes); {
		switch {
		case runes[i] == '"':
			j := scanQuoted(runes, i)
			b.WriteString(spliceQuoted(string(runes[i:j]), oldHeader, newHeader))
			i = j
		case isIdentStart(runes[i]):
			j := i + 1
			for j < len(runes) && isIdentPart(runes[j]) {
				j++
			}
			word := string(runes[i:j])
			suffix := ""
			if k := scanOffsetSuffix(runes, j); k > j {
				suffix = string(runes[j:k])
				j = k
			}
			if word != oldHeader || (suffix == "" && isCallParen(runes, j)) {
				b.WriteString(string(runes[i:j]))
			} else {
				b.WriteString(refText(newHeader, suffix))
			}
			i = j
		default:
			b.WriteRune(runes[i])
			i++
		}
	}
	return b.String(), nil
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

// scanQuoted returns the index just past a double-quoted segment
// starting at i, treating "" as an escaped quote.
func scanQuoted(runes []rune, i int) int {
	j := i + 1
	for j < len(runes) {
		if runes[j] != '"' {
			j++
			continue
		}
		if j+1 < len(runes) && runes[j+1] == '"' {
			j += 2
			continue
		}
		return j + 1
	}
	return j
}

// scanOffsetSuffix returns the index just past a "$n" / "$-n" offset
// suffix starting at j, or j when there is none.
func scanOffsetSuffix(runes []rune, j int) int {
	if j >= len(runes) || runes[j] != '$' {
		return j
	}
	m := j + 1
	if m < len(runes) && runes[m] == '-' {
		m++
	}
	d := m
	for d < len(runes) && runes[d] >= '0' && runes[d] <= '9' {
		d++
	}
	if d == m {
		return j
	}
	return d
}

// isCallParen reports whether the next non-space rune opens a call, so
// a function spelled like a header is left alone.
func isCallParen(runes []rune, j int) bool {
	for ; j < len(runes); j++ {
		if runes[j] == ' ' || runes[j] == '\t' {
			continue
		}
		return runes[j] == '('
	}
	return false
}

// spliceQuoted rewrites a quoted segment when it references oldHeader,
// directly or through an offset suffix; anything else stays verbatim.
func spliceQuoted(seg, oldHeader, newHeader string) string {
	if len(seg) < 2 || !strings.HasSuffix(seg, `"`) {
		return seg
	}
	content := strings.ReplaceAll(seg[1:len(seg)-1], `""`, `"`)
	base, off := content, ""
	if m := offsetRef.FindStringSubmatch(content); m != nil {
		base, off = m[1], "$"+m[2]
	}
	if base != oldHeader {
		return seg
	}
	return `"` + strings.ReplaceAll(newHeader+off, `"`, `""`) + `"`
}

// refText renders newHeader as reference source text, carrying over an
// offset suffix. Quoted headers cannot take the $n form, so those
// become OFFSET calls.
func refText(newHeader, suffix string) string {
	if bareRef.MatchString(newHeader) {
		return newHeader + suffix
	}
	quoted := `"` + strings.ReplaceAll(newHeader, `"`, `""`) + `"`
	if suffix != "" {
		return fmt.Sprintf("OFFSET(%s, %s)", quoted, strings.TrimPrefix(suffix, "$"))
	}
	return quoted
}
