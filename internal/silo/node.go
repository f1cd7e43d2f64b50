package silo

import "sync"

// Node is a thin (silo, offset) handle. Two Nodes naming the same offset in
// the same silo compare equal by value; the facade never synthesizes its own
// identity, matching the original's offset-is-identity model.
type Node struct {
	S      *Silo
	Offset uint32
}

// Root returns the silo's first root node, or the zero Node and false if
// the silo is empty.
func (s *Silo) Root() (Node, bool) {
	off, ok := s.RootNode()
	if !ok {
		return Node{}, false
	}
	return Node{S: s, Offset: off}, true
}

// NodeCache optionally gives every distinct (silo, offset) pair a single
// shared *CachedNode, so callers comparing two lookups by pointer get the
// behavior described for the facade's identity-preserving accessors. It is
// opt-in: most callers are fine with the cheaper value-type Node.
type NodeCache struct {
	mu    sync.Mutex
	byOff map[uint32]*CachedNode
}

// CachedNode pairs a Node with caller-attached sideband data, mirroring the
// original's node get_data/set_data slot.
type CachedNode struct {
	Node
	Data interface{}
}

// NewNodeCache returns an empty cache.
func NewNodeCache() *NodeCache {
	return &NodeCache{byOff: make(map[uint32]*CachedNode)}
}

// Get returns the cached node for (s, off), creating it on first lookup.
func (c *NodeCache) Get(s *Silo, off uint32) *CachedNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.byOff[off]; ok {
		return n
	}
	n := &CachedNode{Node: Node{S: s, Offset: off}}
	c.byOff[off] = n
	return n
}

// Parent returns n's parent node.
func (n Node) Parent() (Node, bool) {
	off, ok := n.S.ParentOf(n.Offset)
	if !ok {
		return Node{}, false
	}
	return Node{S: n.S, Offset: off}, true
}

// Next returns n's next sibling.
func (n Node) Next() (Node, bool) {
	off, ok := n.S.NextOf(n.Offset)
	if !ok {
		return Node{}, false
	}
	return Node{S: n.S, Offset: off}, true
}

// FirstChild returns n's first child.
func (n Node) FirstChild() (Node, bool) {
	off, ok := n.S.ChildOf(n.Offset)
	if !ok {
		return Node{}, false
	}
	return Node{S: n.S, Offset: off}, true
}

// Element returns n's element name.
func (n Node) Element() string {
	name, err := n.S.ElementNameOf(n.Offset)
	if err != nil {
		return ""
	}
	return name
}

// Text returns n's text content and whether it is present.
func (n Node) Text() (string, bool) {
	text, ok, err := n.S.TextOf(n.Offset)
	if err != nil {
		return "", false
	}
	return text, ok
}

// Tail returns n's tail text and whether it is present.
func (n Node) Tail() (string, bool) {
	tail, ok, err := n.S.TailOf(n.Offset)
	if err != nil {
		return "", false
	}
	return tail, ok
}

// Attr returns the value of attribute name on n.
func (n Node) Attr(name string) (string, bool) {
	v, ok, err := n.S.AttrByName(n.Offset, name)
	if err != nil {
		return "", false
	}
	return v, ok
}

// Attrs returns every attribute pair on n, in document order.
func (n Node) Attrs() [][2]string {
	attrs, err := n.S.Attrs(n.Offset)
	if err != nil {
		return nil
	}
	return attrs
}

// Tokens returns n's attached search tokens.
func (n Node) Tokens() []string {
	tokens, err := n.S.Tokens(n.Offset)
	if err != nil {
		return nil
	}
	return tokens
}

// Children returns n's live children, in document order.
func (n Node) Children() []Node {
	var out []Node
	c, ok := n.FirstChild()
	for ok {
		out = append(out, c)
		c, ok = c.Next()
	}
	return out
}

// Walk visits n and every descendant pre-order.
func (n Node) Walk(fn func(Node)) {
	fn(n)
	for _, c := range n.Children() {
		c.Walk(fn)
	}
}
