package query

import "github.com/xmlsilo/xmlsilo/internal/silo"

// nodeCtx adapts silo.Node to machine.NodeContext.
type nodeCtx struct {
	n silo.Node
}

func (c nodeCtx) Attr(name string) (string, bool) { return c.n.Attr(name) }
func (c nodeCtx) Text() (string, bool)             { return c.n.Text() }
func (c nodeCtx) Tail() (string, bool)             { return c.n.Tail() }
func (c nodeCtx) Tokens() []string                 { return c.n.Tokens() }

func (c nodeCtx) IsTokenized() bool {
	tok, err := c.n.S.IsTokenized(c.n.Offset)
	return err == nil && tok
}
