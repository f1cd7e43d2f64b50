// Package builder implements the mutable, in-memory tree that mirrors an
// XML document while it is being assembled: one Node per element, with
// ordered attributes and children, optional text/tail, and the flags and
// scratch fields the two-pass silo writer needs.
package builder

import (
	"strconv"
	"strings"
)

// Flag marks per-node behavior set by ingest, fixups, or the locale filter.
type Flag uint32

const (
	// FlagNone is the zero value: a plain element with repaired text.
	FlagNone Flag = 0
	// FlagIgnore omits this node and its subtree from the compiled silo.
	// Traversal still visits (and can un-ignore) its siblings.
	FlagIgnore Flag = 1 << iota
	// FlagLiteralText keeps Text/Tail exactly as set, skipping whitespace
	// repair.
	FlagLiteralText
	// FlagHasText records that Text was explicitly set (possibly to "").
	FlagHasText
	// FlagHasTail records that Tail was explicitly set.
	FlagHasTail
	// FlagTokenizeText marks that Text should be tokenized for the
	// search() fast path at emit time.
	FlagTokenizeText
)

// attr is one name/value pair. Attrs is kept as a slice, not a map, so that
// insertion order survives into the silo's attribute array.
type attr struct {
	name  string
	value string
}

// Node is one element of the builder tree. The zero value is not usable;
// construct with New.
type Node struct {
	element string
	text    string
	tail    string
	attrs   []attr
	children []*Node
	parent   *Node
	flags    Flag
	tokens   []string

	// Data holds arbitrary caller-attached values, mirroring the node
	// facade's get_data/set_data described for the read side; builder
	// nodes can carry the same kind of sideband value during fixups.
	Data map[string]interface{}

	// strIdx and emitOffset are filled in by the silo writer's passes A
	// and C respectively; they are meaningless before compile and are not
	// part of the tree's logical identity.
	strIdx     uint32
	emitOffset uint32
}

// New returns a childless, parentless node with the given element name.
func New(element string) *Node {
	return &Node{element: element}
}

// Insert appends a new child node named element to parent and returns it.
func Insert(parent *Node, element string) *Node {
	n := New(element)
	parent.AddChild(n)
	return n
}

// InsertText is a convenience for Insert followed by SetText.
func InsertText(parent *Node, element, text string) *Node {
	n := Insert(parent, element)
	n.SetText(text)
	return n
}

// AddChild appends child to n's children, setting child's parent.
func (n *Node) AddChild(child *Node) {
	child.parent = n
	n.children = append(n.children, child)
}

// RemoveChild removes child from n's children, if present.
func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return
		}
	}
}

// Element returns the element name.
func (n *Node) Element() string { return n.element }

// SetElement renames the node.
func (n *Node) SetElement(element string) { n.element = element }

// Parent returns the non-owning parent pointer, or nil at the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the ordered child list. Callers must not retain it past
// a further mutation of n.
func (n *Node) Children() []*Node { return n.children }

// HasFlag reports whether f is set.
func (n *Node) HasFlag(f Flag) bool { return n.flags&f != 0 }

// AddFlag sets f.
func (n *Node) AddFlag(f Flag) { n.flags |= f }

// RemoveFlag clears f.
func (n *Node) RemoveFlag(f Flag) { n.flags &^= f }

// Flags returns the raw flag bitset.
func (n *Node) Flags() Flag { return n.flags }

// SetText sets the node's text, applying whitespace repair unless
// FlagLiteralText is set. A repaired run that collapses to nothing leaves
// the text absent (FlagHasText cleared) rather than set-but-empty.
func (n *Node) SetText(text string) {
	if !n.HasFlag(FlagLiteralText) {
		text = repairText(text)
		if text == "" {
			n.text = ""
			n.RemoveFlag(FlagHasText)
			return
		}
	}
	n.text = text
	n.AddFlag(FlagHasText)
}

// Text returns the node's text (possibly empty) and whether it was set at
// all.
func (n *Node) Text() (string, bool) { return n.text, n.HasFlag(FlagHasText) }

// TextAsUint parses Text as an unsigned decimal integer, returning 0 if it
// is absent or not a valid integer.
func (n *Node) TextAsUint() uint64 {
	v, _ := strconv.ParseUint(strings.TrimSpace(n.text), 10, 64)
	return v
}

// SetTail sets the node's tail text (the text following this element,
// before the next sibling), applying the same repair rules as SetText.
func (n *Node) SetTail(tail string) {
	if !n.HasFlag(FlagLiteralText) {
		tail = repairText(tail)
		if tail == "" {
			n.tail = ""
			n.RemoveFlag(FlagHasTail)
			return
		}
	}
	n.tail = tail
	n.AddFlag(FlagHasTail)
}

// Tail returns the node's tail text and whether it was set at all.
func (n *Node) Tail() (string, bool) { return n.tail, n.HasFlag(FlagHasTail) }

// TokenizeText splits Text on non-alphanumeric boundaries and records up to
// 32 lower-cased tokens for the search() fast path; see silo writer pass A.
func (n *Node) TokenizeText() {
	n.AddFlag(FlagTokenizeText)
	n.tokens = tokenize(n.text)
}

// Tokens returns the tokens attached to this node, if any.
func (n *Node) Tokens() []string { return n.tokens }

// AddToken attaches an extra search token directly, independent of
// TokenizeText, for fixups that supply tokens of their own.
func (n *Node) AddToken(token string) {
	n.tokens = append(n.tokens, token)
}

// SetAttr sets attr name to value, overwriting a prior value for the same
// name while preserving its original position, matching the "mapping
// attribute-name to last-set value, order preserved" contract.
func (n *Node) SetAttr(name, value string) {
	for i := range n.attrs {
		if n.attrs[i].name == name {
			n.attrs[i].value = value
			return
		}
	}
	n.attrs = append(n.attrs, attr{name: name, value: value})
}

// Attr returns the value of attribute name and whether it is present.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.attrs {
		if a.name == name {
			return a.value, true
		}
	}
	return "", false
}

// AttrAsUint parses attribute name as an unsigned decimal integer.
func (n *Node) AttrAsUint(name string) uint64 {
	v, _ := n.Attr(name)
	u, _ := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	return u
}

// AttrAt returns the i-th attribute pair, in insertion order.
func (n *Node) AttrAt(i int) (name, value string) {
	a := n.attrs[i]
	return a.name, a.value
}

// AttrCount returns the number of attributes.
func (n *Node) AttrCount() int { return len(n.attrs) }

// EmitOffset returns the byte offset the silo writer recorded for this node
// during its emitting pass. Meaningless before that pass runs.
func (n *Node) EmitOffset() uint32 { return n.emitOffset }

// SetEmitOffset is called by the silo writer's emitting pass to remember
// where this node's record landed, so the back-patching pass can resolve
// parent/next fields.
func (n *Node) SetEmitOffset(off uint32) { n.emitOffset = off }

// Depth returns the number of ancestors between n and the root (0 at root).
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Walk visits n and every descendant pre-order, calling fn on each. fn may
// freely flag nodes with FlagIgnore; Walk does not itself skip ignored
// subtrees, since fixup.Run needs to see them to decide whether to descend.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// tokenize lower-cases s and splits it into alphanumeric runs, clamped to 32
// tokens; excess tokens are dropped silently (mirrors the writer's token
// clamp, applied early so fixups see the same token set the writer emits).
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			if len(tokens) < 32 {
				tokens = append(tokens, cur.String())
			}
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		if isAlnum(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
