package query

import (
	"github.com/xmlsilo/xmlsilo/internal/machine"
	"github.com/xmlsilo/xmlsilo/internal/opcode"
	"github.com/xmlsilo/xmlsilo/internal/silo"
	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

// group is a set of candidate nodes sharing one parent, in document order;
// candidates within one group share the position/last() numbering space
// spec §4.8 calls "local to that section/parent pair".
type group struct {
	members []silo.Node
}

// Execute runs q against anchor (the silo root for a whole-silo query, or
// any node for a node-relative one), unioning all of q's `|`-separated
// paths in document order and deduplicating by node identity, then applying
// Flags' REVERSE and ctx.Limit.
func (q *Query) Execute(anchor silo.Node, ctx Context) ([]silo.Node, error) {
	stack := opcode.NewStack(q.stackCap)

	var all []silo.Node
	seen := make(map[uint32]bool)
	for _, sections := range q.Paths {
		res, err := q.runPath(sections, anchor, ctx.Bindings, stack)
		if err != nil {
			return nil, err
		}
		for _, n := range res {
			if seen[n.Offset] {
				continue
			}
			seen[n.Offset] = true
			all = append(all, n)
		}
	}

	if q.Flags.Has(Reverse) {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}
	if ctx.Limit > 0 && len(all) > ctx.Limit {
		all = all[:ctx.Limit]
	}
	return all, nil
}

// First runs q with an effective limit of 1 and returns the first result,
// or a not-found error if the query matched nothing.
func (q *Query) First(anchor silo.Node, ctx Context) (silo.Node, error) {
	ctx.Limit = 1
	res, err := q.Execute(anchor, ctx)
	if err != nil {
		return silo.Node{}, err
	}
	if len(res) == 0 {
		return silo.Node{}, xmlerr.NewError(xmlerr.KindNotFound, "xpath matched no nodes: "+q.XPath, nil)
	}
	return res[0], nil
}

func (q *Query) runPath(sections []Section, anchor silo.Node, bindings []machine.Binding, stack *opcode.Stack) ([]silo.Node, error) {
	groups := []group{{members: []silo.Node{anchor}}}
	var matched []silo.Node
	for i, sec := range sections {
		if i > 0 && sec.Kind == SectionParent {
			// ".." steps up from the nodes the previous section matched,
			// not from their children.
			groups = []group{{members: matched}}
		}
		var err error
		matched, groups, err = evalSection(q.registry, sec, groups, bindings, stack)
		if err != nil {
			return nil, err
		}
		if i < len(sections)-1 && len(groups) == 0 {
			return nil, nil
		}
	}
	return matched, nil
}

// evalSection matches sec against every group's candidates, computing
// position/last() within each group separately, and builds the next
// sections' groups (one per matched node, holding that node's children) for
// the caller to continue with.
func evalSection(reg *machine.Registry, sec Section, groups []group, bindings []machine.Binding, stack *opcode.Stack) (matched []silo.Node, next []group, err error) {
	for _, g := range groups {
		candidates, err := candidatesFor(sec, g)
		if err != nil {
			return nil, nil, err
		}

		var named []silo.Node
		for _, c := range candidates {
			if sectionMatches(sec, c) {
				named = append(named, c)
			}
		}

		total := len(named)
		for i, c := range named {
			ok, err := evalPredicates(reg, sec.Predicates, stack, c, i+1, total, bindings)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
			matched = append(matched, c)
			next = append(next, group{members: c.Children()})
		}
	}
	return matched, next, nil
}

// candidatesFor returns the nodes sec should test for a name/wildcard
// match. Every kind but SectionParent just tests the group's own members;
// SectionParent instead maps each member to its parent first (deduplicating
// consecutive duplicates, since adjacent siblings share one parent and so
// collapse to it), per spec §4.8's ".." axis.
func candidatesFor(sec Section, g group) ([]silo.Node, error) {
	if sec.Kind != SectionParent {
		return g.members, nil
	}
	var out []silo.Node
	var lastOffset uint32
	haveLast := false
	for _, m := range g.members {
		p, ok := m.Parent()
		if !ok {
			return nil, xmlerr.NewError(xmlerr.KindInvalidArgument, "parent axis: node has no parent", nil)
		}
		if haveLast && p.Offset == lastOffset {
			continue
		}
		lastOffset, haveLast = p.Offset, true
		out = append(out, p)
	}
	return out, nil
}

func sectionMatches(sec Section, n silo.Node) bool {
	switch sec.Kind {
	case SectionWildcard, SectionParent:
		return true
	case SectionElement:
		if sec.ElementIndex == silo.Unset {
			return false
		}
		return n.Element() == sec.ElementName
	default:
		return false
	}
}

func evalPredicates(reg *machine.Registry, preds [][]opcode.Value, stack *opcode.Stack, n silo.Node, position, total int, bindings []machine.Binding) (bool, error) {
	ex := &machine.ExecData{
		Node:     nodeCtx{n},
		Position: position,
		Total:    total,
		Bindings: bindings,
	}
	for _, p := range preds {
		ok, err := reg.Eval(p, stack, ex)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
