package xmlsilo

import (
	"context"
	"io"

	"github.com/xmlsilo/xmlsilo/internal/profile"
	"github.com/xmlsilo/xmlsilo/internal/query"
	"github.com/xmlsilo/xmlsilo/internal/silo"
	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

// Stats is the size accounting spec.md's original_source supplemented
// xb_silo_get_stats exposes: node count, string-table size, and file size.
type Stats = silo.Stats

// Silo is a loaded, read-only silo: either mmap-backed (via Builder.Ensure)
// or held as a plain byte slice (via Load). Queries against it may run
// concurrently from multiple goroutines; Close releases the mmap, if any.
type Silo struct {
	mmap        *silo.Mmap
	profile     *profile.Profiler
	invalidated chan struct{}
}

func newProfiler() *profile.Profiler { return profile.New() }

// Load wraps already-in-memory silo bytes (e.g. read from an embed.FS or a
// network fetch) without mmap or disk persistence.
func Load(data []byte, flags CompileFlag) (*Silo, error) {
	s, err := silo.Load(data, flags)
	if err != nil {
		return nil, err
	}
	return &Silo{mmap: &silo.Mmap{Silo: s}, profile: newProfiler()}, nil
}

// Open mmaps an already-compiled silo file at path, for the CLI's dump,
// export and query verbs, which act on a previously compiled silo rather
// than compiling one themselves.
func Open(path string, flags CompileFlag) (*Silo, error) {
	m, err := silo.OpenMmap(path, flags)
	if err != nil {
		return nil, err
	}
	return &Silo{mmap: m, profile: newProfiler()}, nil
}

// Close releases the silo's mmap, if it has one.
func (s *Silo) Close() error { return s.mmap.Close() }

// GUID returns the silo's content fingerprint.
func (s *Silo) GUID() [16]byte { return s.mmap.GUID() }

// Stats returns the silo's size accounting.
func (s *Silo) Stats() Stats { return s.mmap.Stats() }

// EnableProfiling turns on per-query timing accumulation.
func (s *Silo) EnableProfiling() { s.profile.Enable() }

// SetProfileSink directs Chrome-trace-format events to w as queries run.
func (s *Silo) SetProfileSink(w io.Writer) { s.profile.SetSink(w) }

// ProfileString renders the profiler's accumulated summary.
func (s *Silo) ProfileString() string { return s.profile.String() }

// Invalidated returns the channel a Builder.Ensure-produced Silo signals on
// when WatchBlob observes the underlying file change on disk. A Silo
// created via Load has a nil channel; receiving from a nil channel blocks
// forever, which callers typically want selected against other work rather
// than awaited alone.
func (s *Silo) Invalidated() <-chan struct{} { return s.invalidated }

// Root returns the silo's root node.
func (s *Silo) Root() (Node, bool) {
	n, ok := s.mmap.Silo.Root()
	if !ok {
		return Node{}, false
	}
	return Node{s: s, n: n}, true
}

// Compile parses xpath against this silo's element-name index. stem may be
// nil, disabling predicates that call stem().
func (s *Silo) Compile(xpath string, flags QueryFlag, stem Stemmer) (*Query, error) {
	q, err := query.Compile(s.mmap.Silo, xpath, flags, stem)
	if err != nil {
		return nil, err
	}
	return &Query{s: s, q: q}, nil
}

// Query compiles and immediately executes xpath against the silo's root.
// Callers executing the same XPath repeatedly should Compile once and reuse
// the resulting Query instead.
func (s *Silo) Query(xpath string, flags QueryFlag, ctx QueryContext) ([]Node, error) {
	q, err := s.Compile(xpath, flags, nil)
	if err != nil {
		return nil, err
	}
	return q.ExecuteRoot(ctx)
}

// QueryFirst is Query with an effective limit of 1, returning a not-found
// error rather than an empty slice when there is no match.
func (s *Silo) QueryFirst(xpath string, flags QueryFlag) (Node, error) {
	q, err := s.Compile(xpath, flags, nil)
	if err != nil {
		return Node{}, err
	}
	root, ok := s.Root()
	if !ok {
		return Node{}, xmlerr.NewError(xmlerr.KindNotFound, "silo has no root node", nil)
	}
	return q.First(root, QueryContext{})
}

// WatchFile polls path for modifications, calling onChange once per
// observed change, until ctx is done. It is exported for callers (notably
// the CLI's --wait) that want to drive their own re-run loop against a
// compiled silo file rather than relying on Builder.Ensure's WatchBlob.
func WatchFile(ctx context.Context, path string, onChange func()) {
	silo.WatchFile(ctx, path, onChange)
}

// Node is a read-only handle onto one element of a compiled Silo: a thin
// (silo, offset) pair, cheap to copy and safe to share across goroutines.
type Node struct {
	s *Silo
	n silo.Node
}

func wrapNodes(s *Silo, ns []silo.Node) []Node {
	if len(ns) == 0 {
		return nil
	}
	out := make([]Node, len(ns))
	for i, n := range ns {
		out[i] = Node{s: s, n: n}
	}
	return out
}

// Element returns the node's element name.
func (n Node) Element() string { return n.n.Element() }

// Attr returns the value of attribute name and whether it is present.
func (n Node) Attr(name string) (string, bool) { return n.n.Attr(name) }

// Attrs returns every attribute, in document order.
func (n Node) Attrs() [][2]string { return n.n.Attrs() }

// Text returns the node's text and whether it was present in the source.
func (n Node) Text() (string, bool) { return n.n.Text() }

// Tail returns the node's tail text and whether it was present.
func (n Node) Tail() (string, bool) { return n.n.Tail() }

// Tokens returns the node's precomputed search tokens, if tokenized.
func (n Node) Tokens() []string { return n.n.Tokens() }

// Parent returns n's parent, if any.
func (n Node) Parent() (Node, bool) {
	p, ok := n.n.Parent()
	if !ok {
		return Node{}, false
	}
	return Node{s: n.s, n: p}, true
}

// Next returns n's next sibling, if any.
func (n Node) Next() (Node, bool) {
	nx, ok := n.n.Next()
	if !ok {
		return Node{}, false
	}
	return Node{s: n.s, n: nx}, true
}

// Children returns n's direct children, in document order.
func (n Node) Children() []Node { return wrapNodes(n.s, n.n.Children()) }

// Walk visits n and its subtree, pre-order.
func (n Node) Walk(fn func(Node)) {
	n.n.Walk(func(raw silo.Node) { fn(Node{s: n.s, n: raw}) })
}

// Query compiles xpath fresh and executes it rooted at n. For a query run
// repeatedly, compile once via the owning Silo's Compile and reuse the
// Query instead.
func (n Node) Query(xpath string, flags QueryFlag, ctx QueryContext) ([]Node, error) {
	q, err := n.s.Compile(xpath, flags, nil)
	if err != nil {
		return nil, err
	}
	return q.Execute(n, ctx)
}

// QueryFirst is Query with an effective limit of 1, per
// SPEC_FULL.md's supplemented xb_node_query_first convenience.
func (n Node) QueryFirst(xpath string, flags QueryFlag) (Node, error) {
	q, err := n.s.Compile(xpath, flags, nil)
	if err != nil {
		return Node{}, err
	}
	return q.First(n, QueryContext{})
}
