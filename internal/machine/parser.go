package machine

import (
	"strconv"
	"strings"

	"github.com/xmlsilo/xmlsilo/internal/opcode"
	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

// maxNestingDepth bounds the predicate parser's recursion, per spec §4.7
// step 2 ("max depth 20; exceeding is invalid-data").
const maxNestingDepth = 20

// ParseFlag mirrors the subset of query.Flag the parser and optimizer care
// about, kept separate so this package has no dependency on query.
type ParseFlag uint32

const (
	// Optimize folds constant-only opcode sub-sequences at parse time.
	Optimize ParseFlag = 1 << iota
	// UseIndexes promotes text literals to resolved string-table indices
	// via Resolver, instead of comparing by string content.
	UseIndexes
)

// Resolver looks up a literal string against the silo's element-name index,
// for UseIndexes promotion. query.Compile supplies silo.Silo.StrtabFindByName.
type Resolver func(name string) (uint32, bool)

// Parse compiles one bracketed predicate body (the text between `[` and
// `]`, exclusive) into an opcode sequence, applying the registry's opcode
// fixups and, if flags has Optimize set, constant folding. boundSlot
// accumulates the ordinal of each '?'/"$'name'" placeholder encountered;
// callers compiling a multi-section XPath pass the same counter to every
// Parse call for that XPath, since slot numbering spans the whole path
// (spec §6: "the ordinal of the '?' in the XPath"), not just one predicate.
func (r *Registry) Parse(expr string, flags ParseFlag, resolve Resolver, boundSlot *uint32) ([]opcode.Value, error) {
	p := &parser{reg: r, flags: flags, resolve: resolve, boundSlot: boundSlot}
	ops, err := p.parseExpr(strings.TrimSpace(expr), 0)
	if err != nil {
		return nil, err
	}
	ops = r.applyFixup(ops)
	if flags&Optimize != 0 {
		ops = foldConstants(r, ops)
	}
	return ops, nil
}

func (r *Registry) applyFixup(ops []opcode.Value) []opcode.Value {
	sig := signature(ops)
	if fn, ok := r.fixups[sig]; ok {
		return fn(ops)
	}
	return ops
}

func signature(ops []opcode.Value) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.Signature()
	}
	return strings.Join(parts, ",")
}

type parser struct {
	reg       *Registry
	flags     ParseFlag
	resolve   Resolver
	boundSlot *uint32
}

func (p *parser) nextBoundSlot() uint32 {
	s := *p.boundSlot
	*p.boundSlot++
	return s
}

// parseExpr parses one full expression: first trying a top-level infix
// operator split (spec step 1), then falling back to a bare function call
// or literal (spec steps 2-3).
func (p *parser) parseExpr(expr string, depth int) ([]opcode.Value, error) {
	if depth > maxNestingDepth {
		return nil, xmlerr.NewError(xmlerr.KindInvalidData, "predicate nesting exceeds 20", nil)
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, xmlerr.NewError(xmlerr.KindInvalidArgument, "empty predicate", nil)
	}

	if unwrapped, ok := fullyParenthesized(expr); ok {
		return p.parseExpr(unwrapped, depth+1)
	}

	if op, start, end, found := p.reg.findTopLevelOperator(expr); found {
		lhs, rhs := expr[:start], expr[end:]
		lhsOps, err := p.parseExpr(lhs, depth+1)
		if err != nil {
			return nil, err
		}
		rhsOps, err := p.parseExpr(rhs, depth+1)
		if err != nil {
			return nil, err
		}
		fn, ok := p.reg.Lookup(op.fn)
		if !ok {
			return nil, xmlerr.NewError(xmlerr.KindNotSupported, "operator maps to unregistered function: "+op.fn, nil)
		}
		out := append(lhsOps, rhsOps...)
		out = append(out, opcode.Value{Kind: opcode.Function, Func: fn.ID, FuncName: fn.Name})
		return out, nil
	}

	return p.parseCallOrLiteral(expr, depth)
}

// fullyParenthesized reports whether expr is exactly "(...)" with the
// opening paren matched by the final closing paren (not merely starting
// and ending with parens that belong to different groups).
func fullyParenthesized(expr string) (string, bool) {
	if len(expr) < 2 || expr[0] != '(' || expr[len(expr)-1] != ')' {
		return "", false
	}
	depth := 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(expr)-1 {
				return "", false
			}
		}
	}
	return expr[1 : len(expr)-1], true
}

// parseCallOrLiteral implements spec §4.7 step 2-3: scan character by
// character; "(" opens a nested function-call argument list, "," separates
// arguments, the matching ")" closes it and the accumulated prefix becomes
// the function name. With no parens at all, the whole expression is a
// single literal.
func (p *parser) parseCallOrLiteral(expr string, depth int) ([]opcode.Value, error) {
	paren := strings.IndexByte(expr, '(')
	if paren < 0 {
		return p.parseLiteral(expr)
	}
	if !strings.HasSuffix(expr, ")") {
		return nil, xmlerr.NewError(xmlerr.KindInvalidArgument, "predicate missing ']'", nil)
	}
	name := strings.TrimSpace(expr[:paren])
	argsStr := expr[paren+1 : len(expr)-1]

	fn, ok := p.reg.Lookup(name)
	if !ok {
		return nil, xmlerr.NewError(xmlerr.KindNotSupported, "unknown function: "+name, nil)
	}

	argExprs, err := splitArgs(argsStr)
	if err != nil {
		return nil, err
	}
	if len(argExprs) != fn.Arity {
		return nil, xmlerr.NewError(xmlerr.KindInvalidData,
			"function "+name+" takes "+strconv.Itoa(fn.Arity)+" argument(s), got "+strconv.Itoa(len(argExprs)), nil)
	}

	var out []opcode.Value
	for _, a := range argExprs {
		ops, err := p.parseExpr(a, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, ops...)
	}
	out = append(out, opcode.Value{Kind: opcode.Function, Func: fn.ID, FuncName: fn.Name})
	return out, nil
}

// splitArgs splits a function call's argument-list text on top-level commas
// (not nested inside parens or quotes). A zero-arity call's empty string
// yields zero arguments, not one empty argument.
func splitArgs(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []string
	depth := 0
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case inQuote:
			if c == '\'' {
				inQuote = false
			}
		case c == '\'':
			inQuote = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, xmlerr.NewError(xmlerr.KindInvalidArgument, "unmatched ')' in predicate", nil)
			}
		case c == ',' && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if depth != 0 {
		return nil, xmlerr.NewError(xmlerr.KindInvalidArgument, "predicate missing ']'", nil)
	}
	out = append(out, s[start:])
	return out, nil
}

// parseLiteral handles spec §4.7 step 3: a single-quoted string, a bare
// decimal integer, a '?'/"$'name'" bound-value placeholder, or a bare
// identifier dispatched to the registered text handlers.
func (p *parser) parseLiteral(expr string) ([]opcode.Value, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "'") && strings.HasSuffix(expr, "'") && len(expr) >= 2:
		lit := unescapeLiteral(expr[1 : len(expr)-1])
		return []opcode.Value{p.textOpcode(lit)}, nil

	case expr == "?":
		return []opcode.Value{{Kind: opcode.BoundText, Int: p.nextBoundSlot()}}, nil

	case strings.HasPrefix(expr, "$'") && strings.HasSuffix(expr, "'"):
		// $'name' binds by name; represented the same as '?' because this
		// VM's bindings are positional slots supplied by the caller, who is
		// expected to know the XPath they wrote.
		return []opcode.Value{{Kind: opcode.BoundText, Int: p.nextBoundSlot(), Text: expr[2 : len(expr)-1]}}, nil

	default:
		if n, err := strconv.ParseUint(expr, 10, 32); err == nil {
			return []opcode.Value{opcode.Int32(uint32(n))}, nil
		}
	}

	var out []opcode.Value
	emit := func(v opcode.Value) {
		if v.Kind == opcode.Function {
			if fn, ok := p.reg.Lookup(v.FuncName); ok {
				v.Func = fn.ID
			}
		}
		out = append(out, v)
	}
	for _, h := range p.reg.handlers {
		if h(expr, emit) {
			return out, nil
		}
	}
	return nil, xmlerr.NewError(xmlerr.KindNotSupported, "unrecognized predicate token: "+expr, nil)
}

func (p *parser) textOpcode(lit string) opcode.Value {
	if p.flags&UseIndexes == 0 || p.resolve == nil {
		return opcode.Str(lit)
	}
	if idx, ok := p.resolve(lit); ok {
		return opcode.Value{Kind: opcode.IndexedText, Text: lit, Index: idx}
	}
	// Demoted: not one of the silo's element names, so it stays plain text.
	return opcode.Value{Kind: opcode.IndexedText, Text: lit, Index: opcode.Unset}
}

// unescapeLiteral resolves the XPath-level escapes spec §6 lists:
// "\/", "\t", "\n" inside a quoted literal.
func unescapeLiteral(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '/':
				b.WriteByte('/')
				i++
				continue
			case 't':
				b.WriteByte('\t')
				i++
				continue
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

