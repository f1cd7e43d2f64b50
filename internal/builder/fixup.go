package builder

import (
	"fmt"

	"golang.org/x/xerrors"
)

// FixupFunc rewrites bn in place. Returning a non-nil error aborts the
// compile with that error; setting FlagIgnore on bn causes bn and its
// subtree to be omitted from the silo while letting traversal continue to
// siblings.
type FixupFunc func(bn *Node) error

// Fixup is a user-supplied callback plus the bookkeeping the writer needs to
// fold it into the silo's GUID and to bound how deep it is allowed to look.
type Fixup struct {
	ID       string
	Func     FixupFunc
	MaxDepth int // 0 = root only, -1 = unlimited
}

// GUID returns the string folded into the overall silo GUID input,
// "func-id=<id>@<max_depth>" when depth is bounded, "func-id=<id>" when
// unbounded.
func (f Fixup) GUID() string {
	if f.MaxDepth < 0 {
		return fmt.Sprintf("func-id=%s", f.ID)
	}
	return fmt.Sprintf("func-id=%s@%d", f.ID, f.MaxDepth)
}

// Run applies fixups in visitation order (pre-order, depth-bounded) over
// root's subtree, stopping at the first error.
func Run(root *Node, fixups []Fixup) error {
	for _, fx := range fixups {
		if err := runOne(root, fx); err != nil {
			return xerrors.Errorf("fixup %s: %w", fx.ID, err)
		}
	}
	return nil
}

func runOne(root *Node, fx Fixup) error {
	var visit func(n *Node, depth int) error
	visit = func(n *Node, depth int) error {
		if fx.MaxDepth >= 0 && depth > fx.MaxDepth {
			return nil
		}
		if err := fx.Func(n); err != nil {
			return err
		}
		for _, c := range n.Children() {
			if err := visit(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(root, 0)
}
