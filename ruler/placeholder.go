package ruler

import (
	"fmt"
	"regexp"
	"strings"
)

// Binding is one OID/value pair carried by a trap.
type Binding struct {
	OID   string
	Value string
}

var (
	rulePlaceholder    = regexp.MustCompile(`_OID\(([0-9.*]+)\)`)
	displayPlaceholder = regexp.MustCompile(`_OID\(([0-9.]+)\)`)
	numericValue       = regexp.MustCompile(`^[0-9]*\.?[0-9]+$`)
)

// NotInTrap replaces display placeholders whose OID is not bound.
const NotInTrap = "<not in trap>"

// PatternRegexp compiles an _OID() pattern. A '*' matches one numeric
// segment, '**' matches any suffix, dots are literal. The match is anchored.
func PatternRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch {
		case pattern[i] == '*' && i+1 < len(pattern) && pattern[i+1] == '*':
			b.WriteString(".*")
			i++
		case pattern[i] == '*':
			b.WriteString("[0-9]+")
		case pattern[i] == '.':
			b.WriteString(`\.`)
		default:
			b.WriteByte(pattern[i])
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// MatchBinding returns the first binding, in trap order, whose OID matches pattern.
func MatchBinding(pattern string, bindings []Binding) (Binding, bool, error) {
	re, err := PatternRegexp(pattern)
	if err != nil {
		return Binding{}, false, err
	}
	for _, b := range bindings {
		if re.MatchString(b.OID) {
			return b, true, nil
		}
	}
	return Binding{}, false, nil
}

// literal renders a bound value as an expression literal. Numbers are
// inserted bare, anything else is quoted with inner '"' turned into '\''.
func literal(value string) string {
	if numericValue.MatchString(value) {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, "'") + `"`
}

// Substitute replaces every _OID(pattern) placeholder of rule, quoted or
// not, with the value of the first matching binding. A placeholder that
// matches nothing is an ErrOIDNotFound error. Substitution is a single pass:
// inserted values are never scanned for placeholders.
func Substitute(rule string, bindings []Binding) (string, error) {
	locs := rulePlaceholder.FindAllStringSubmatchIndex(rule, -1)
	if len(locs) == 0 {
		return rule, nil
	}

	values := make(map[string]string, len(locs))
	var out strings.Builder
	last := 0
	for _, loc := range locs {
		pattern := rule[loc[2]:loc[3]]
		value, ok := values[pattern]
		if !ok {
			b, found, err := MatchBinding(pattern, bindings)
			if err != nil {
				return "", &EvalError{Kind: ErrSyntax, Expr: rule, Pos: -1, Msg: fmt.Sprintf("invalid OID pattern %s", pattern)}
			}
			if !found {
				return "", &EvalError{Kind: ErrOIDNotFound, Msg: fmt.Sprintf("OID %s not found in trap", pattern), Pos: -1}
			}
			value = literal(b.Value)
			values[pattern] = value
		}
		out.WriteString(rule[last:loc[0]])
		out.WriteString(value)
		last = loc[1]
	}
	out.WriteString(rule[last:])
	return out.String(), nil
}

// Display expands _OID(oid) tokens of a display template with the bound
// value, stripped of double quotes, or NotInTrap when the OID is absent.
func Display(template string, bindings []Binding) string {
	return displayPlaceholder.ReplaceAllStringFunc(template, func(m string) string {
		oid := displayPlaceholder.FindStringSubmatch(m)[1]
		for _, b := range bindings {
			if b.OID == oid {
				return strings.ReplaceAll(b.Value, `"`, "")
			}
		}
		return NotInTrap
	})
}

// Cleanup removes spaces outside of double-quoted strings.
func Cleanup(rule string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(rule); i++ {
		c := rule[i]
		if c == ' ' {
			continue
		}
		if c != '"' {
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(rule[i+1:], '"')
		if end < 0 {
			return "", syntaxError(rule, len(rule), "closing '\"' not found")
		}
		b.WriteString(rule[i : i+end+2])
		i += end + 1
	}
	return b.String(), nil
}
