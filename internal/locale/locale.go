// Package locale implements the SINGLE_LANG post-merge pass: once every
// source has been ingested, merged, and fixed up, this collapses sibling
// groups that share an element name down to the single highest-priority
// translation, per the configured locale list.
//
// This runs after ingest's own NATIVE_LANGS marking (which drops elements
// whose language isn't in the list at all); SINGLE_LANG implies
// NATIVE_LANGS, so by the time this pass runs, surviving same-name
// siblings are all in-list and only need picking among themselves.
package locale

import "github.com/xmlsilo/xmlsilo/internal/builder"

// Priority returns n's priority index in locales (0 = highest), resolving
// xml:lang by walking up to the nearest ancestor (including n itself) that
// sets it, defaulting to "C" when none do.
func Priority(n *builder.Node, locales []string) (int, bool) {
	lang := "C"
	for cur := n; cur != nil; cur = cur.Parent() {
		if v, ok := cur.Attr("xml:lang"); ok {
			lang = v
			break
		}
	}
	for i, l := range locales {
		if l == lang {
			return i, true
		}
	}
	return 0, false
}

// FilterSingleLang walks root's subtree and, for every parent, groups its
// non-ignored children by element name; within each group of size > 1, only
// the members at the best (lowest) priority index survive — the rest are
// flagged builder.FlagIgnore.
func FilterSingleLang(root *builder.Node, locales []string) {
	var visit func(n *builder.Node)
	visit = func(n *builder.Node) {
		groups := make(map[string][]*builder.Node)
		for _, c := range n.Children() {
			if c.HasFlag(builder.FlagIgnore) {
				continue
			}
			groups[c.Element()] = append(groups[c.Element()], c)
		}
		for _, members := range groups {
			if len(members) < 2 {
				continue
			}
			best := -1
			priorities := make([]int, len(members))
			for i, m := range members {
				p, ok := Priority(m, locales)
				priorities[i] = p
				if !ok {
					continue
				}
				if best == -1 || p < best {
					best = p
				}
			}
			for i, m := range members {
				if priorities[i] != best {
					m.AddFlag(builder.FlagIgnore)
				}
			}
		}
		for _, c := range n.Children() {
			visit(c)
		}
	}
	visit(root)
}
