// Package query implements the XPath-subset compiler and executor described
// in spec §4.8: splitting a path into sections (element/wildcard/parent
// steps), compiling each section's bracketed predicates through
// internal/machine, and walking a silo to produce node results in document
// order.
package query

import (
	"github.com/xmlsilo/xmlsilo/internal/machine"
	"github.com/xmlsilo/xmlsilo/internal/opcode"
	"github.com/xmlsilo/xmlsilo/internal/silo"
)

// Flag is an alias of silo.QueryFlag: OPTIMIZE, USE_INDEXES, REVERSE,
// FORCE_NODE_CACHE all live together as one bit-set per the data model's
// Query entity.
type Flag = silo.QueryFlag

const (
	Optimize       = silo.Optimize
	UseIndexes     = silo.UseIndexes
	Reverse        = silo.Reverse
	ForceNodeCache = silo.ForceNodeCache
)

// SectionKind distinguishes the three step shapes spec §3 lists for a
// Section.
type SectionKind int

const (
	SectionElement SectionKind = iota
	SectionWildcard
	SectionParent
)

// Section is one `/`-delimited XPath step.
type Section struct {
	Kind SectionKind

	// ElementName and ElementIndex are set only for SectionElement.
	// ElementIndex is silo.Unset when the name is not one of the silo's
	// distinct element names, in which case this section (and the whole
	// path it belongs to) matches nothing.
	ElementName  string
	ElementIndex uint32

	// Predicates is this section's bracketed expressions, already
	// compiled; every predicate must evaluate true for a name-matching
	// candidate to advance.
	Predicates [][]opcode.Value
}

// Context bundles the per-execution inputs spec §3 groups as "an immutable
// bundle of (limit, query flags, value bindings)".
type Context struct {
	// Limit caps the number of results returned; 0 means unlimited.
	Limit int
	// Bindings supplies values for BoundText/BoundInteger opcodes, indexed
	// by the ordinal of the '?'/"$'name'" placeholder that produced them.
	Bindings []machine.Binding
}

// Query is one compiled XPath: flags, the element-name index resolved
// against one silo, and one or more `|`-unioned paths of sections. It is
// immutable after Compile returns and may be executed concurrently by
// multiple goroutines against the silo it was compiled for.
type Query struct {
	XPath string
	Flags Flag
	Paths [][]Section

	// BindingSlots is how many distinct '?'/"$'name'" placeholders this
	// XPath contains, across all its sections; a caller must supply at
	// least this many Bindings.
	BindingSlots int

	registry *machine.Registry
	stackCap int
}
