package machine

import (
	"strings"
	"unicode"

	"github.com/xmlsilo/xmlsilo/internal/opcode"
	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

// RegisterSiloFunctions adds the node-aware functions that only make sense
// once a Registry is wired to an actual silo node during evaluation: attr,
// text, tail, first, last, position, search, and — when stem is non-nil —
// stem. query.Compile calls this once per compiled Query's Registry; a
// bare Registry built for testing the comparator/string functions alone
// can skip it.
func RegisterSiloFunctions(r *Registry, stem func(string) string) {
	r.Register("attr", 1, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		name := textArg(args[0], ex)
		v, ok := ex.Node.Attr(name)
		if !ok {
			return opcode.Str(""), nil
		}
		return opcode.Str(v), nil
	})
	// attr-exists backs the bare "@x" presence shorthand: a predicate that
	// the TEXT,FUNC:attr fixup registered below rewrites from a standalone
	// attr() call (spec §6 "a[@x]",
	// "Attribute exists") into this, so that an attribute present but set
	// to the empty string still counts as existing.
	r.Register("attr-exists", 1, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		_, ok := ex.Node.Attr(textArg(args[0], ex))
		return opcode.Bool(ok), nil
	})
	r.Register("text", 0, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		v, _ := ex.Node.Text()
		val := opcode.Str(v)
		if ex.Node.IsTokenized() {
			val.Tokens = ex.Node.Tokens()
		}
		return val, nil
	})
	r.Register("tail", 0, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		v, _ := ex.Node.Tail()
		return opcode.Str(v), nil
	})
	r.Register("position", 0, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		return opcode.Int32(uint32(ex.Position)), nil
	})
	r.Register("first", 0, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		return opcode.Bool(ex.Position == 1), nil
	})
	r.Register("last", 0, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		return opcode.Bool(ex.Position == ex.Total), nil
	})
	r.Register("search", 2, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		haystackOp := resolveBound(args[0], ex)
		needle := textArg(args[1], ex)
		if len(haystackOp.Tokens) > 0 {
			return opcode.Bool(searchTokens(haystackOp.Tokens, tokenizeNeedle(needle))), nil
		}
		return opcode.Bool(search(textArg(args[0], ex), needle)), nil
	})

	r.RegisterTextHandler(func(token string, emit func(opcode.Value)) bool {
		if !strings.HasPrefix(token, "@") {
			return false
		}
		// "@name" is sugar for attr('name'); emit both opcodes so the
		// resulting sequence is exactly what writing attr('name') by hand
		// would have produced.
		emit(opcode.Str(strings.TrimPrefix(token, "@")))
		emit(opcode.Value{Kind: opcode.Function, FuncName: "attr"})
		return true
	})

	// A predicate that is nothing but "@x" (no comparison wrapped around
	// it) means "attribute exists", not "attribute value is truthy" — see
	// attr-exists above.
	r.RegisterFixup("TEXT,FUNC:attr", func(ops []opcode.Value) []opcode.Value {
		out := make([]opcode.Value, len(ops))
		copy(out, ops)
		out[len(out)-1] = opcode.Value{Kind: opcode.Function, FuncName: "attr-exists"}
		return out
	})

	if stem != nil {
		r.Register("stem", 1, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
			return opcode.Str(stem(textArg(args[0], ex))), nil
		})
	} else {
		// Registering a failing stem() (rather than leaving it absent)
		// gives a not-supported error instead of a parse-time "unknown
		// function" when a predicate mentions stem() on a silo with no
		// stemmer configured.
		r.Register("stem", 1, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
			return opcode.Value{}, xmlerr.NewError(xmlerr.KindNotSupported, "stem(): no stemmer configured for this silo", nil)
		})
	}
}

// search implements the non-tokenized half of spec §4.7's "Search
// semantics": a start-of-word, ASCII-case-insensitive substring match,
// falling back to a plain case-insensitive substring match for non-ASCII
// input.
func search(haystack, needle string) bool {
	if !isASCII(haystack) || !isASCII(needle) {
		return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
	}
	return startOfWordMatch(strings.ToLower(haystack), strings.ToLower(needle))
}

// searchTokens implements the token-fast path: true iff any haystack token
// begins with any needle token.
func searchTokens(haystackTokens, needleTokens []string) bool {
	for _, h := range haystackTokens {
		for _, n := range needleTokens {
			if strings.HasPrefix(h, n) {
				return true
			}
		}
	}
	return false
}

// tokenizeNeedle splits and lower-cases needle the same way builder.Node's
// TokenizeText does, so a needle compared against a tokenized haystack uses
// the identical notion of a "token".
func tokenizeNeedle(s string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// startOfWordMatch reports whether needle occurs in haystack at the start
// of a word: at position 0, or immediately after a non-alphanumeric byte.
func startOfWordMatch(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if i > 0 && isWordByte(haystack[i-1]) {
			continue
		}
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
