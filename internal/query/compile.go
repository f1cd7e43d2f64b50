package query

import (
	"strings"

	"github.com/xmlsilo/xmlsilo/internal/machine"
	"github.com/xmlsilo/xmlsilo/internal/silo"
	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

// Stemmer is the optional callback stem()-calling predicates invoke; nil
// disables stem() (it then fails with not-supported, per
// machine.RegisterSiloFunctions).
type Stemmer func(string) string

// Compile parses xpath against s's element-name index and returns a ready
// Query. Per spec §6, xpath may union multiple paths with `|`, each path a
// sequence of `/`-separated sections; a literal `/` inside a quoted
// predicate literal or bracketed predicate body does not split the path,
// and a lone backslash-escaped `/` outside brackets is treated as a literal
// slash rather than a separator.
func Compile(s *silo.Silo, xpath string, flags Flag, stem Stemmer) (*Query, error) {
	reg := machine.NewBuiltinRegistry()
	machine.RegisterSiloFunctions(reg, stem)

	pflags := machine.ParseFlag(0)
	if flags.Has(Optimize) {
		pflags |= machine.Optimize
	}
	if flags.Has(UseIndexes) {
		pflags |= machine.UseIndexes
	}
	resolve := machine.Resolver(func(name string) (uint32, bool) {
		return s.StrtabFindByName(name)
	})

	var boundSlot uint32
	var paths [][]Section
	for _, rawPath := range splitTop(xpath, '|') {
		sections, err := compilePath(rawPath, reg, pflags, resolve, &boundSlot)
		if err != nil {
			kind := xmlerr.KindInvalidArgument
			if k, ok := xmlerr.KindOf(err); ok {
				kind = k
			}
			return nil, xmlerr.NewError(kind, "compiling xpath: "+xpath, err)
		}
		paths = append(paths, sections)
	}
	if len(paths) == 0 {
		return nil, xmlerr.NewError(xmlerr.KindInvalidArgument, "empty xpath", nil)
	}

	return &Query{
		XPath:        xpath,
		Flags:        flags,
		Paths:        paths,
		BindingSlots: int(boundSlot),
		registry:     reg,
		stackCap:     machine.DefaultStackCapacity,
	}, nil
}

func compilePath(path string, reg *machine.Registry, pflags machine.ParseFlag, resolve machine.Resolver, boundSlot *uint32) ([]Section, error) {
	var sections []Section
	for _, raw := range splitTop(path, '/') {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			// A leading (or doubled) '/' is optional path-anchoring syntax;
			// spec §6 treats "/a/b" and "a/b" as equivalent once executed
			// against a given anchor node.
			continue
		}
		sec, err := compileSection(raw, reg, pflags, resolve, boundSlot)
		if err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	if len(sections) == 0 {
		return nil, xmlerr.NewError(xmlerr.KindInvalidArgument, "xpath contains no sections", nil)
	}
	return sections, nil
}

func compileSection(raw string, reg *machine.Registry, pflags machine.ParseFlag, resolve machine.Resolver, boundSlot *uint32) (Section, error) {
	body, predicateStrs, err := splitPredicates(raw)
	if err != nil {
		return Section{}, err
	}
	body = strings.TrimSpace(body)

	var sec Section
	switch body {
	case "..", "parent::*":
		sec.Kind = SectionParent
	case "*", "child::*":
		sec.Kind = SectionWildcard
	default:
		sec.Kind = SectionElement
		sec.ElementName = body
		if idx, ok := resolve(body); ok {
			sec.ElementIndex = idx
		} else {
			sec.ElementIndex = silo.Unset
		}
	}

	for _, p := range predicateStrs {
		ops, err := reg.Parse(p, pflags, resolve, boundSlot)
		if err != nil {
			return Section{}, err
		}
		sec.Predicates = append(sec.Predicates, ops)
	}
	return sec, nil
}

// splitPredicates peels the `[...]` predicate bodies off the end of a
// section string, returning the bare element/wildcard/parent token and the
// predicate bodies in left-to-right order. A `[` or `]` appearing inside a
// single-quoted literal within a predicate body does not count towards
// bracket matching.
func splitPredicates(s string) (head string, preds []string, err error) {
	i := strings.IndexByte(s, '[')
	if i < 0 {
		return s, nil, nil
	}
	head = s[:i]
	rest := s[i:]
	inQuote := false
	depth := 0
	start := -1
	for j := 0; j < len(rest); j++ {
		c := rest[j]
		switch {
		case inQuote:
			if c == '\'' {
				inQuote = false
			}
		case c == '\'':
			inQuote = true
		case c == '[':
			if depth == 0 {
				start = j + 1
			}
			depth++
		case c == ']':
			depth--
			if depth < 0 {
				return "", nil, xmlerr.NewError(xmlerr.KindInvalidArgument, "unmatched ']' in xpath section: "+s, nil)
			}
			if depth == 0 {
				preds = append(preds, rest[start:j])
			}
		}
	}
	if depth != 0 {
		return "", nil, xmlerr.NewError(xmlerr.KindInvalidArgument, "predicate missing ']': "+s, nil)
	}
	return head, preds, nil
}

// splitTop splits s on sep at bracket-depth zero and outside single-quoted
// literals, treating a backslash-escaped sep as a literal character rather
// than a delimiter.
func splitTop(s string, sep byte) []string {
	var out []string
	depth := 0
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			if c == '\'' {
				inQuote = false
			}
		case c == '\\' && i+1 < len(s) && s[i+1] == sep:
			i++
		case c == '\'':
			inQuote = true
		case c == '[':
			depth++
		case c == ']':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
