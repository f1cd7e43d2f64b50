package machine

import (
	"strconv"
	"strings"

	"github.com/xmlsilo/xmlsilo/internal/opcode"
	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

// NewBuiltinRegistry returns a Registry with every function and operator
// alias from spec §4.7's "Built-in functions" list, but none of the
// silo-aware functions (attr, text, tail, first, last, position, search,
// stem) — those are added by query.Compile via RegisterSiloFunctions once
// a silo is in the picture, per the "registered when a machine is owned by
// a silo" rule.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()

	registerComparators(r)
	registerStringFuncs(r)
	registerLogicalFuncs(r)

	r.RegisterOperator("<=", "le")
	r.RegisterOperator(">=", "ge")
	r.RegisterOperator("!=", "ne")
	r.RegisterOperator("==", "eq")
	r.RegisterOperator("=", "eq")
	r.RegisterOperator("<", "lt")
	r.RegisterOperator(">", "gt")
	r.RegisterOperator("~=", "search")
	r.RegisterOperator("&&", "and")
	r.RegisterOperator("||", "or")

	// [2] -> position(),2,eq : a bare integer predicate is short for
	// "this is the N-th matching candidate", per design note §4.7 step 4.
	r.RegisterFixup(opcode.Integer.String(), func(ops []opcode.Value) []opcode.Value {
		n := ops[0]
		return []opcode.Value{
			{Kind: opcode.Function, FuncName: "position"},
			n,
			{Kind: opcode.Function, FuncName: "eq"},
		}
	})

	return r
}

// coerced is the result of bringing two opcode.Values to a common
// comparable kind.
type coerced struct {
	asText bool
	a, b   string
	ai, bi uint64
}

// coerce implements "accept text/text, int/int, and int/text coerced via
// decimal parsing; mismatched kinds fail" from spec §4.7.
func coerce(a, b opcode.Value) (coerced, error) {
	av, aIsInt := asInt(a)
	bv, bIsInt := asInt(b)
	if aIsInt && bIsInt {
		return coerced{ai: av, bi: bv}, nil
	}
	at, aOK := asText(a)
	bt, bOK := asText(b)
	if !aOK || !bOK {
		return coerced{}, xmlerr.NewError(xmlerr.KindNotSupported, "comparison between incompatible opcode kinds", nil)
	}
	if aIsInt && !bIsInt {
		// int/text: parse the text side as decimal too, unless it fails,
		// in which case fall back to a string comparison of both sides.
		if bn, err := strconv.ParseUint(strings.TrimSpace(bt), 10, 64); err == nil {
			return coerced{ai: av, bi: bn}, nil
		}
	}
	if bIsInt && !aIsInt {
		if an, err := strconv.ParseUint(strings.TrimSpace(at), 10, 64); err == nil {
			return coerced{ai: an, bi: bv}, nil
		}
	}
	return coerced{asText: true, a: at, b: bt}, nil
}

func asInt(v opcode.Value) (uint64, bool) {
	switch v.Kind {
	case opcode.Integer, opcode.BoundInteger:
		return uint64(v.Int), true
	default:
		return 0, false
	}
}

func asText(v opcode.Value) (string, bool) {
	switch v.Kind {
	case opcode.Text, opcode.BoundText, opcode.IndexedText:
		return v.Text, true
	case opcode.Integer, opcode.BoundInteger:
		return strconv.FormatUint(uint64(v.Int), 10), true
	case opcode.Boolean:
		if v.Bool {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

func registerComparators(r *Registry) {
	cmp := func(op func(c coerced) bool) func([]opcode.Value, *ExecData) (opcode.Value, error) {
		return func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
			a, b := args[0], args[1]
			a, b = resolveBound(a, ex), resolveBound(b, ex)
			c, err := coerce(a, b)
			if err != nil {
				return opcode.Value{}, err
			}
			return opcode.Bool(op(c)), nil
		}
	}
	r.Register("eq", 2, cmp(func(c coerced) bool {
		if c.asText {
			return c.a == c.b
		}
		return c.ai == c.bi
	}))
	r.Register("ne", 2, cmp(func(c coerced) bool {
		if c.asText {
			return c.a != c.b
		}
		return c.ai != c.bi
	}))
	r.Register("lt", 2, cmp(func(c coerced) bool {
		if c.asText {
			return c.a < c.b
		}
		return c.ai < c.bi
	}))
	r.Register("gt", 2, cmp(func(c coerced) bool {
		if c.asText {
			return c.a > c.b
		}
		return c.ai > c.bi
	}))
	r.Register("le", 2, cmp(func(c coerced) bool {
		if c.asText {
			return c.a <= c.b
		}
		return c.ai <= c.bi
	}))
	r.Register("ge", 2, cmp(func(c coerced) bool {
		if c.asText {
			return c.a >= c.b
		}
		return c.ai >= c.bi
	}))
}

// resolveBound materializes a BoundText/BoundInteger opcode from ex's value
// bindings. Other kinds pass through unchanged.
func resolveBound(v opcode.Value, ex *ExecData) opcode.Value {
	switch v.Kind {
	case opcode.BoundText:
		b, err := ex.binding(v.Int)
		if err != nil {
			return v
		}
		return opcode.Str(b.Text)
	case opcode.BoundInteger:
		b, err := ex.binding(v.Int)
		if err != nil {
			return v
		}
		return opcode.Int32(b.Int)
	default:
		return v
	}
}

func textArg(v opcode.Value, ex *ExecData) string {
	v = resolveBound(v, ex)
	s, _ := asText(v)
	return s
}

func registerStringFuncs(r *Registry) {
	r.Register("contains", 2, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		return opcode.Bool(strings.Contains(textArg(args[0], ex), textArg(args[1], ex))), nil
	})
	r.Register("starts-with", 2, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		return opcode.Bool(strings.HasPrefix(textArg(args[0], ex), textArg(args[1], ex))), nil
	})
	r.Register("ends-with", 2, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		return opcode.Bool(strings.HasSuffix(textArg(args[0], ex), textArg(args[1], ex))), nil
	})
	r.Register("string-length", 1, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		return opcode.Int32(uint32(len(textArg(args[0], ex)))), nil
	})
	r.Register("number", 1, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		s := textArg(args[0], ex)
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
		if err != nil {
			return opcode.Value{}, xmlerr.NewError(xmlerr.KindInvalidData, "number(): not an integer literal: "+s, err)
		}
		return opcode.Int32(uint32(n)), nil
	})
	r.Register("string", 1, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		return opcode.Str(textArg(args[0], ex)), nil
	})
	r.Register("lower-case", 1, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		return opcode.Str(strings.ToLower(textArg(args[0], ex))), nil
	})
	r.Register("upper-case", 1, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		return opcode.Str(strings.ToUpper(textArg(args[0], ex))), nil
	})
}

func registerLogicalFuncs(r *Registry) {
	r.Register("not", 1, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		v := resolveBound(args[0], ex)
		return opcode.Bool(!truthy(v)), nil
	})
	r.Register("and", 2, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		return opcode.Bool(truthy(resolveBound(args[0], ex)) && truthy(resolveBound(args[1], ex))), nil
	})
	r.Register("or", 2, func(args []opcode.Value, ex *ExecData) (opcode.Value, error) {
		return opcode.Bool(truthy(resolveBound(args[0], ex)) || truthy(resolveBound(args[1], ex))), nil
	})
}

// truthy is how a non-boolean final (or intermediate) value is interpreted
// as a predicate outcome: a boolean by its own value, an integer by being
// nonzero, and text by being non-empty.
func truthy(v opcode.Value) bool {
	switch v.Kind {
	case opcode.Boolean:
		return v.Bool
	case opcode.Integer, opcode.BoundInteger:
		return v.Int != 0
	default:
		s, _ := asText(v)
		return s != ""
	}
}
