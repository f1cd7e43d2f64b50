// Package machine implements the predicate expression VM: a function and
// operator registry, a recursive-descent parser from XPath predicate text
// to an opcode.Value sequence, an opcode-fixup pass, a constant-folding
// optimizer, and the evaluator itself. It has no dependency on the silo
// format; query.Compile wires it to one by registering the silo-aware
// functions (attr, text, tail, first, last, position, search, stem) and by
// supplying a NodeContext per candidate node at execution time.
package machine

import (
	"sort"
	"strconv"
	"strings"

	"github.com/xmlsilo/xmlsilo/internal/opcode"
	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

// NodeContext is the minimal silo-node view the evaluator needs. Package
// query's nodeCtx (a thin adapter over silo.Node) implements it; tests can implement it
// directly without building a silo.
type NodeContext interface {
	Attr(name string) (string, bool)
	Text() (string, bool)
	Tail() (string, bool)
	Tokens() []string
	IsTokenized() bool
}

// Binding is one value supplied by the caller at execution time to satisfy a
// BoundText/BoundInteger opcode, keyed by the ordinal of the '?' (or
// '$name') placeholder that produced it.
type Binding struct {
	IsText bool
	Text   string
	Int    uint32
}

// ExecData is the per-execution context passed to every function callback:
// the node under test, its 1-based position among the candidates currently
// being matched, the total candidate count (for last()), and the caller's
// value bindings.
type ExecData struct {
	Node     NodeContext
	Position int
	Total    int
	Bindings []Binding
	Stem     func(string) string
}

func (e *ExecData) binding(slot uint32) (Binding, error) {
	if e == nil || int(slot) >= len(e.Bindings) {
		return Binding{}, xmlerr.NewError(xmlerr.KindInvalidArgument, "missing bound value at index "+strconv.Itoa(int(slot)), nil)
	}
	return e.Bindings[slot], nil
}

// Func is one registered function: its fixed arity, the callback, and a
// small integer id (the registration id, stable for a given Registry).
type Func struct {
	Name     string
	Arity    int
	Callback func(args []opcode.Value, ex *ExecData) (opcode.Value, error)
	ID       int
}

// FixupFunc rewrites a fully-parsed opcode sequence for one predicate,
// keyed by its signature (see opcode.Value.Signature); see Registry.Fixup.
type FixupFunc func(ops []opcode.Value) []opcode.Value

// TextHandler is consulted, in registration order, for every bare
// (unquoted, non-numeric) identifier the parser encounters. It may append
// opcodes to emit via emit and must return handled=true if it recognized
// the token; the parser fails with not-supported if no handler claims it.
type TextHandler func(token string, emit func(opcode.Value)) (handled bool)

// Registry holds a machine's function table, operator aliases, opcode
// fixups and text handlers. It is built once (typically by query.Compile)
// and is safe for concurrent read-only use once no more registrations are
// made, matching the "mutable table built at construction, then frozen
// before queries are allowed" design note.
type Registry struct {
	funcs     map[string]*Func
	funcsByID []*Func
	operators []operator
	fixups    map[string]FixupFunc
	handlers  []TextHandler
	nextID    int
}

type operator struct {
	token string
	fn    string
}

// NewRegistry returns an empty registry. Callers typically start from
// NewBuiltinRegistry instead.
func NewRegistry() *Registry {
	return &Registry{
		funcs:  make(map[string]*Func),
		fixups: make(map[string]FixupFunc),
	}
}

// Register adds fn under name, arity args. It panics on a duplicate name:
// registration happens once at startup, and a collision is a programming
// error, not a runtime condition.
func (r *Registry) Register(name string, arity int, cb func(args []opcode.Value, ex *ExecData) (opcode.Value, error)) {
	if _, dup := r.funcs[name]; dup {
		panic("machine: duplicate function registration: " + name)
	}
	f := &Func{Name: name, Arity: arity, Callback: cb, ID: r.nextID}
	r.nextID++
	r.funcs[name] = f
	r.funcsByID = append(r.funcsByID, f)
}

// RegisterOperator aliases an infix token (e.g. "<=") to an already
// registered function name. Longer tokens are tried first during parsing
// regardless of registration order.
func (r *Registry) RegisterOperator(token, fn string) {
	r.operators = append(r.operators, operator{token: token, fn: fn})
	sort.SliceStable(r.operators, func(i, j int) bool {
		return len(r.operators[i].token) > len(r.operators[j].token)
	})
}

// RegisterFixup installs fn to rewrite any predicate whose fully-parsed
// opcode sequence matches signature exactly.
func (r *Registry) RegisterFixup(signature string, fn FixupFunc) {
	r.fixups[signature] = fn
}

// RegisterTextHandler appends h to the list consulted for bare identifiers.
func (r *Registry) RegisterTextHandler(h TextHandler) {
	r.handlers = append(r.handlers, h)
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (*Func, bool) {
	f, ok := r.funcs[name]
	return f, ok
}

// ByID returns the function with the given registration id.
func (r *Registry) ByID(id int) (*Func, bool) {
	if id < 0 || id >= len(r.funcsByID) {
		return nil, false
	}
	return r.funcsByID[id], true
}

// operatorAt reports the longest registered operator token starting at
// position i in s, skipping matches that would split inside a quoted
// literal (handled by the caller, which only calls this outside quotes).
func (r *Registry) operatorAt(s string, i int) (operator, bool) {
	for _, op := range r.operators {
		if strings.HasPrefix(s[i:], op.token) {
			return op, true
		}
	}
	return operator{}, false
}

// findTopLevelOperator scans expr for the first (leftmost), longest
// registered operator token that sits outside any quoted literal or nested
// parenthesis, per the parser's step 1 ("scan for the longest operator
// token"). It returns the operator, and the byte range it occupies.
func (r *Registry) findTopLevelOperator(expr string) (op operator, start, end int, found bool) {
	depth := 0
	inQuote := false
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
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
		case depth == 0:
			if o, ok := r.operatorAt(expr, i); ok {
				return o, i, i + len(o.token), true
			}
		}
	}
	return operator{}, 0, 0, false
}
