package mibcache

import (
	"regexp"
	"strings"
)

var (
	oidLine        = regexp.MustCompile(`^\.[0-9.]+$`)
	dumpDescriptor = regexp.MustCompile(` +([^\(]+)\(.+\) type=([0-9]+)( tc=([0-9]+))?( hint=(.+))?`)
	mibPrefix      = regexp.MustCompile(`^(.*)::`)
	descriptionTag = regexp.MustCompile(`^[\t ]+DESCRIPTION[\t ]+"`)
	objectsClause  = regexp.MustCompile(`OBJECTS.*\{([^\}]+)\}`)
	blanks         = regexp.MustCompile(`[\t ]+`)

	syntaxEnum       = regexp.MustCompile(`^[\t ]+SYNTAX[\t ]+([^{]*) \{(.*)\}`)
	syntaxPlain      = regexp.MustCompile(`^[\t ]+SYNTAX[\t ]+(.*)`)
	displayHint      = regexp.MustCompile(`^[\t ]+DISPLAY-HINT[\t ]+"(.*)"`)
	descriptionLine  = regexp.MustCompile(`^[\t ]+DESCRIPTION[\t ]+"(.*)"`)
	descriptionStart = regexp.MustCompile(`^[\t ]+DESCRIPTION[\t ]+"(.*)`)
	descriptionEnd   = regexp.MustCompile(`(.*)"$`)
	textualConv      = regexp.MustCompile(`^[\t ]+-- TEXTUAL CONVENTION[\t ]+(.*)`)
)

// dumpEntry is one OID line of the corpus dump with its summary line.
type dumpEntry struct {
	OID  string
	Name string
	Type string
	TC   string
	Hint string
}

// parseDumpDescriptor parses the summary line following an OID line,
// e.g. "  linkDown(3) type=21".
func parseDumpDescriptor(line string) (name, typ, tc, hint string, ok bool) {
	m := dumpDescriptor.FindStringSubmatch(line)
	if m == nil {
		return "", "", "", "", false
	}
	return m[1], m[2], m[4], m[6], true
}

func collapse(s string) string {
	return blanks.ReplaceAllString(s, " ")
}

// parseTrapDescriptor extracts the owning MIB and the description from the
// -Td output of a trap. The description may span several lines; it ends on
// the first line holding a double quote.
func parseTrapDescriptor(lines []string) (mib, description string, ok bool) {
	if len(lines) == 0 {
		return "", "", false
	}
	m := mibPrefix.FindStringSubmatch(lines[0])
	if m == nil {
		return "", "", false
	}
	mib = m[1]

	n := 1
	for n < len(lines) && !descriptionTag.MatchString(lines[n]) {
		n++
	}
	if n == len(lines) {
		return mib, "", true
	}

	var b strings.Builder
	line := descriptionTag.ReplaceAllString(lines[n], "")
	for !strings.Contains(line, `"`) {
		b.WriteString(collapse(line))
		n++
		if n == len(lines) {
			return mib, b.String(), true
		}
		line = lines[n]
	}
	b.WriteString(line[:strings.Index(line, `"`)])
	return mib, collapse(b.String()), true
}

// parseObjects returns the names listed in the OBJECTS clause of a trap
// descriptor, in order. The last clause wins.
func parseObjects(lines []string) []string {
	var list string
	for _, line := range lines {
		if m := objectsClause.FindStringSubmatch(line); m != nil {
			list = m[1]
		}
	}
	return strings.FieldsFunc(list, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
}

// parseObjectDescriptor reads the -On -Td output of a trap object.
func parseObjectDescriptor(lines []string) Entry {
	var (
		e      Entry
		inDesc bool
		desc   string
	)
	for _, line := range lines {
		if inDesc {
			line = collapse(line)
			if m := descriptionEnd.FindStringSubmatch(line); m != nil {
				e.Description = desc + m[1]
				inDesc = false
			}
			desc += line
			continue
		}
		if oidLine.MatchString(line) {
			e.OID = line
			continue
		}
		if m := syntaxEnum.FindStringSubmatch(line); m != nil {
			e.Syntax = m[1]
			e.TypeEnum = m[2]
			continue
		}
		if m := syntaxPlain.FindStringSubmatch(line); m != nil {
			e.Syntax = m[1]
			continue
		}
		if m := displayHint.FindStringSubmatch(line); m != nil {
			e.DisplayHint = m[1]
			continue
		}
		if m := descriptionLine.FindStringSubmatch(line); m != nil {
			e.Description = m[1]
			continue
		}
		if m := descriptionStart.FindStringSubmatch(line); m != nil {
			desc = m[1]
			inDesc = true
			continue
		}
		if m := textualConv.FindStringSubmatch(line); m != nil {
			e.TextualConvention = m[1]
		}
	}
	return e
}
