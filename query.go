package xmlsilo

import (
	"github.com/xmlsilo/xmlsilo/internal/machine"
	"github.com/xmlsilo/xmlsilo/internal/query"
	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

// QueryFlag controls one Query's compile and execution behavior, matching
// spec.md §3's OPTIMIZE/USE_INDEXES/REVERSE/FORCE_NODE_CACHE flags.
type QueryFlag = query.Flag

const (
	Optimize       = query.Optimize
	UseIndexes     = query.UseIndexes
	Reverse        = query.Reverse
	ForceNodeCache = query.ForceNodeCache
)

// Binding supplies one bound value ('?' or "$'name'" placeholder) at
// execution time, re-exported from internal/machine.
type Binding = machine.Binding

// BindText and BindInt construct a text- or integer-valued Binding.
func BindText(s string) Binding { return Binding{IsText: true, Text: s} }
func BindInt(i uint32) Binding  { return Binding{Int: i} }

// QueryContext bundles one execution's limit and value bindings.
type QueryContext = query.Context

// Stemmer is the optional callback predicates calling stem() invoke.
type Stemmer = query.Stemmer

// Query is one compiled XPath, ready to execute against any node of the
// Silo it was compiled for. Per spec.md §3, a Query may be created once and
// reused across executions and across goroutines.
type Query struct {
	s *Silo
	q *query.Query
}

// XPath returns the original XPath text this Query was compiled from.
func (q *Query) XPath() string { return q.q.XPath }

// BindingSlots returns how many distinct '?'/"$'name'" placeholders this
// XPath contains; Execute's QueryContext.Bindings must supply at least this
// many entries.
func (q *Query) BindingSlots() int { return q.q.BindingSlots }

// Execute runs q starting at anchor, returning matches in document order
// (or reversed, if Reverse was set at Compile time).
func (q *Query) Execute(anchor Node, ctx QueryContext) ([]Node, error) {
	done := q.s.profile.Start(q.q.XPath)
	defer done()
	res, err := q.q.Execute(anchor.n, ctx)
	if err != nil {
		return nil, err
	}
	return wrapNodes(q.s, res), nil
}

// ExecuteRoot runs q starting at the silo's root node.
func (q *Query) ExecuteRoot(ctx QueryContext) ([]Node, error) {
	root, ok := q.s.Root()
	if !ok {
		return nil, xmlerr.NewError(xmlerr.KindNotFound, "silo has no root node", nil)
	}
	return q.Execute(root, ctx)
}

// First runs q starting at anchor and returns the first match, or a
// not-found error if there is none, per SPEC_FULL.md's supplemented
// xb_node_query_first convenience.
func (q *Query) First(anchor Node, ctx QueryContext) (Node, error) {
	done := q.s.profile.Start(q.q.XPath)
	defer done()
	n, err := q.q.First(anchor.n, ctx)
	if err != nil {
		return Node{}, err
	}
	return Node{s: q.s, n: n}, nil
}
