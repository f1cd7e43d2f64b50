package ingest

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/xmlsilo/xmlsilo/internal/arena"
	"github.com/xmlsilo/xmlsilo/internal/builder"
	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

const defaultChunkSize = 32 * 1024

// Options controls one streaming parse.
type Options struct {
	// LiteralText disables whitespace repair for every node parsed from
	// this stream.
	LiteralText bool

	// NativeLangs, when true, marks every element whose inherited
	// xml:lang is not present in Locales with builder.FlagIgnore.
	// Locales must be non-empty when NativeLangs is set.
	NativeLangs bool
	Locales     []string

	// ChunkSize bounds how many bytes are read per underlying Read call,
	// so cancellation is checked at a bounded granularity; 0 means the
	// spec's default of 32 KiB.
	ChunkSize int

	// Arena, if set, backs every element name, attribute and text/tail
	// string copied out of the decoder's reused token buffers. Using one
	// arena per compile avoids one small heap allocation per string on
	// documents with many elements. Nil falls back to plain Go strings,
	// which is fine for tests that don't care about allocation pressure.
	Arena *arena.Arena
}

func (o *Options) dup(s string) string {
	if o.Arena == nil || s == "" {
		return s
	}
	return o.Arena.Strdup(s)
}

// Parse streams r (already decompressed) and returns the root-level
// elements it contains, in document order. Any element nested inside one
// already flagged IGNORE is itself flagged IGNORE (propagated down), but
// parsing continues so callers still see the full shape of the document.
func Parse(ctx context.Context, r io.Reader, opts Options) ([]*builder.Node, error) {
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	if opts.NativeLangs && len(opts.Locales) == 0 {
		return nil, xmlerr.NewError(xmlerr.KindInvalidData, "NATIVE_LANGS requires at least one locale", nil)
	}

	dec := xml.NewDecoder(&cancelReader{ctx: ctx, r: r, chunk: chunk})

	type frame struct {
		node      *builder.Node
		lastChild *builder.Node
		text      []byte
		lang      string
		ignored   bool
	}
	var stack []*frame
	var roots []*builder.Node

	flush := func(f *frame) {
		if len(f.text) == 0 {
			return
		}
		txt := opts.dup(string(f.text))
		f.text = f.text[:0]
		if f.lastChild != nil {
			f.lastChild.SetTail(txt)
		} else {
			f.node.SetText(txt)
		}
	}

	langPriority := func(lang string) (int, bool) {
		if lang == "" {
			lang = "C"
		}
		for i, l := range opts.Locales {
			if l == lang {
				return i, true
			}
		}
		return 0, false
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, xmlerr.NewError(xmlerr.KindInvalidData, "parsing XML", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var parent *frame
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
				flush(parent)
			}

			n := builder.New(t.Name.Local)
			if opts.LiteralText {
				n.AddFlag(builder.FlagLiteralText)
			}

			lang := ""
			if parent != nil {
				lang = parent.lang
			}
			for _, a := range t.Attr {
				name := a.Name.Local
				space := a.Name.Space
				if space == "http://www.w3.org/XML/1998/namespace" {
					// encoding/xml reports the reserved "xml" prefix as
					// its namespace URL; restore the prefix.
					space = "xml"
				}
				if space != "" {
					name = space + ":" + a.Name.Local
				}
				n.SetAttr(name, a.Value)
				if name == "xml:lang" {
					lang = a.Value
				}
			}

			ignored := parent != nil && parent.ignored
			if opts.NativeLangs {
				if _, ok := langPriority(lang); !ok {
					ignored = true
				}
			}
			if ignored {
				n.AddFlag(builder.FlagIgnore)
			}

			if parent != nil {
				parent.node.AddChild(n)
				parent.lastChild = n
			} else {
				roots = append(roots, n)
			}
			stack = append(stack, &frame{node: n, lang: lang, ignored: ignored})

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, xmlerr.NewError(xmlerr.KindInvalidData, "unmatched close tag </"+t.Name.Local+">", nil)
			}
			top := stack[len(stack)-1]
			if top.node.Element() != t.Name.Local {
				return nil, xmlerr.NewError(xmlerr.KindInvalidData,
					"unmatched close tag: expected </"+top.node.Element()+"> got </"+t.Name.Local+">", nil)
			}
			flush(top)
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			top.text = append(top.text, t...)
		}
	}

	if len(stack) != 0 {
		return nil, xmlerr.NewError(xmlerr.KindInvalidData, "truncated XML: unclosed <"+stack[len(stack)-1].node.Element()+">", nil)
	}
	return roots, nil
}

// cancelReader checks ctx at the top of each chunk read, satisfying spec
// §5's "checked at I/O boundaries and at the top of each chunk read".
type cancelReader struct {
	ctx   context.Context
	r     io.Reader
	chunk int
}

func (c *cancelReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, xmlerr.NewError(xmlerr.KindCancelled, "ingest cancelled", err)
	}
	if len(p) > c.chunk {
		p = p[:c.chunk]
	}
	return c.r.Read(p)
}
