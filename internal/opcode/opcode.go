// Package opcode implements the predicate virtual machine's tagged operand
// type and its fixed-capacity stack. A Value plays two roles depending on
// where it sits: before evaluation it is a parsed opcode (a literal or a
// function call); during evaluation it is also the kind of thing that can
// sit on the stack (a function's popped argument or pushed result).
package opcode

import "github.com/xmlsilo/xmlsilo/internal/xmlerr"

// Kind tags the union stored in a Value.
type Kind uint8

const (
	// Function references a registered function by index; evaluating it
	// pops its arity worth of arguments off the stack and invokes the
	// callback.
	Function Kind = iota
	// Integer is a literal (or computed) unsigned 32-bit integer.
	Integer
	// Text is a literal (or computed) string.
	Text
	// BoundInteger is a placeholder resolved at execution time from the
	// query context's value bindings, by slot index.
	BoundInteger
	// BoundText is the text-valued counterpart of BoundInteger.
	BoundText
	// IndexedText is a text literal that has also been resolved to a
	// string-table offset (when USE_INDEXES and the silo has that string
	// as an element name); Index is Unset when demoted back to plain text.
	IndexedText
	// Boolean is a computed predicate result, produced by comparator and
	// logical functions.
	Boolean
)

func (k Kind) String() string {
	switch k {
	case Function:
		return "FUNC"
	case Integer:
		return "INT"
	case Text:
		return "TEXT"
	case BoundInteger:
		return "BOUND_INT"
	case BoundText:
		return "BOUND_TEXT"
	case IndexedText:
		return "INDEXED_TEXT"
	case Boolean:
		return "BOOL"
	default:
		return "?"
	}
}

// Unset marks an IndexedText value that could not be (or was not) resolved
// to a string-table offset.
const Unset uint32 = 0xFFFFFFFF

// Value is one stack slot / parsed opcode.
type Value struct {
	Kind Kind

	// Func is the registered function index (Kind == Function), filled in
	// by the parser once the function name is resolved against the
	// registry.
	Func int
	// FuncName is kept alongside Func so the opcode signature (used to key
	// the fixup registry) and diagnostics don't need a reverse lookup.
	FuncName string

	Int   uint32 // Integer, or the slot index for BoundInteger/BoundText
	Text  string // Text, BoundText's slot name (pre-resolution), IndexedText's literal
	Index uint32 // IndexedText's resolved string-table offset, else Unset
	Bool  bool   // Boolean

	// Tokens are search tokens attached to this opcode by the text()
	// function when the node is tokenized, used by search()'s token-fast
	// path.
	Tokens []string
}

// Signature returns the opcode's one-word tag for building a predicate's
// comma-joined signature string (e.g. "TEXT,FUNC:attr,TEXT,FUNC:eq"), the
// key the fixup registry matches against.
func (v Value) Signature() string {
	if v.Kind == Function {
		return "FUNC:" + v.FuncName
	}
	return v.Kind.String()
}

// Int32 returns the literal integer opcode i.
func Int32(i uint32) Value { return Value{Kind: Integer, Int: i} }

// Str returns the literal text opcode s.
func Str(s string) Value { return Value{Kind: Text, Text: s} }

// Bool returns the boolean value b.
func Bool(b bool) Value { return Value{Kind: Boolean, Bool: b} }

// Stack is a fixed-capacity operand stack. Capacity is supplied at creation
// so a pathological predicate can fail fast with invalid-data instead of
// growing without bound.
type Stack struct {
	data []Value
	cap  int
}

// NewStack returns an empty stack that holds at most capacity values.
func NewStack(capacity int) *Stack {
	return &Stack{cap: capacity}
}

// Push appends v, failing with invalid-data if the stack is already at
// capacity.
func (s *Stack) Push(v Value) error {
	if len(s.data) >= s.cap {
		return xmlerr.NewError(xmlerr.KindInvalidData, "predicate stack overflow", nil)
	}
	s.data = append(s.data, v)
	return nil
}

// Pop removes and returns the top value, failing with invalid-data if the
// stack is empty.
func (s *Stack) Pop() (Value, error) {
	if len(s.data) == 0 {
		return Value{}, xmlerr.NewError(xmlerr.KindInvalidData, "predicate stack underflow", nil)
	}
	v := s.data[len(s.data)-1]
	s.data = s.data[:len(s.data)-1]
	return v, nil
}

// PopN removes and returns the top n values, in the order they were pushed
// (oldest first), failing with invalid-data if fewer than n are present.
func (s *Stack) PopN(n int) ([]Value, error) {
	if len(s.data) < n {
		return nil, xmlerr.NewError(xmlerr.KindInvalidData, "predicate stack underflow", nil)
	}
	out := make([]Value, n)
	copy(out, s.data[len(s.data)-n:])
	s.data = s.data[:len(s.data)-n]
	return out, nil
}

// Len returns the current number of values on the stack.
func (s *Stack) Len() int { return len(s.data) }

// Reset empties the stack without releasing its backing array, so one Stack
// can be reused across many predicate evaluations.
func (s *Stack) Reset() { s.data = s.data[:0] }
