package silo

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"log"
	"strings"

	"github.com/xmlsilo/xmlsilo/internal/builder"
	"github.com/xmlsilo/xmlsilo/internal/strtab"
	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

// WriteOptions controls one compile's writer pass.
type WriteOptions struct {
	Flags CompileFlag

	// GUIDInputs are joined with "&" and SHA-1'd to produce the silo's
	// GUID: per-source GUIDs, fixup GUIDs ("func-id=..."), the locale
	// list, and manually-imported-node addresses, in that order.
	GUIDInputs []string
}

// Write runs the writer's four passes (intern, size, emit, back-patch)
// over roots and returns the finished silo bytes.
func Write(roots []*builder.Node, opts WriteOptions) ([]byte, error) {
	if opts.Flags.Has(SingleRoot) && countLive(roots) > 1 {
		return nil, xmlerr.NewError(xmlerr.KindInvalidData,
			"SINGLE_ROOT: compile produced more than one root element", nil)
	}

	st := strtab.NewBuilder()

	// Pass A: interning. Element names are interned first (and only via
	// InternName) so strtab_ntags ends up exactly the distinct element
	// name count, per the string table's invariant.
	if err := internPass(roots, st); err != nil {
		return nil, err
	}
	ntags := st.NumTags()
	if ntags > 0xFFFF {
		return nil, xmlerr.NewError(xmlerr.KindInvalidData, "more than 65535 distinct element names", nil)
	}

	// Pass B: sizing, to pre-size the output buffer.
	nodeAreaSize := sizePass(roots)

	// Pass C: emitting.
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+nodeAreaSize+st.Len()))
	buf.Write(make([]byte, headerSize)) // placeholder, patched below
	if err := emitPass(roots, buf, st); err != nil {
		return nil, err
	}
	strtabOff := uint32(buf.Len())
	buf.Write(st.Bytes())

	out := buf.Bytes()

	// Pass D: back-patching parent/next.
	backpatchPass(roots, out)

	guid := computeGUID(opts.GUIDInputs)
	writeHeader(out, guid, uint16(ntags), strtabOff, uint64(len(out)))

	return out, nil
}

func countLive(nodes []*builder.Node) int {
	n := 0
	for _, r := range nodes {
		if !r.HasFlag(builder.FlagIgnore) {
			n++
		}
	}
	return n
}

// liveChildren returns n's non-ignored children, in order.
func liveChildren(n *builder.Node) []*builder.Node {
	children := n.Children()
	out := make([]*builder.Node, 0, len(children))
	for _, c := range children {
		if !c.HasFlag(builder.FlagIgnore) {
			out = append(out, c)
		}
	}
	return out
}

func liveRoots(roots []*builder.Node) []*builder.Node {
	out := make([]*builder.Node, 0, len(roots))
	for _, r := range roots {
		if !r.HasFlag(builder.FlagIgnore) {
			out = append(out, r)
		}
	}
	return out
}

// walkLive visits every non-ignored node in roots, pre-order, depth-first.
func walkLive(roots []*builder.Node, fn func(*builder.Node)) {
	var visit func(n *builder.Node)
	visit = func(n *builder.Node) {
		fn(n)
		for _, c := range liveChildren(n) {
			visit(c)
		}
	}
	for _, r := range liveRoots(roots) {
		visit(r)
	}
}

func internPass(roots []*builder.Node, st *strtab.Builder) error {
	walkLive(roots, func(n *builder.Node) {
		st.InternName(n.Element())
	})
	var err error
	walkLive(roots, func(n *builder.Node) {
		if err != nil {
			return
		}
		if n.AttrCount() > MaxAttrs {
			err = xmlerr.NewError(xmlerr.KindInvalidData, "element <"+n.Element()+"> has more than 63 attributes", nil)
			return
		}
		for i := 0; i < n.AttrCount(); i++ {
			name, value := n.AttrAt(i)
			st.Intern(name)
			st.Intern(value)
		}
		if text, ok := effectiveText(n); ok {
			st.Intern(text)
		}
		if tail, ok := effectiveTail(n); ok {
			st.Intern(tail)
		}
		tokens := n.Tokens()
		if len(tokens) > MaxTokens {
			log.Printf("silo: writer: element <%s> has %d search tokens, clamping to %d", n.Element(), len(tokens), MaxTokens)
			tokens = tokens[:MaxTokens]
		}
		for _, t := range tokens {
			st.Intern(t)
		}
	})
	return err
}

// effectiveText applies the literal-text cleanup rule: a LITERAL_TEXT node
// whose text is pure whitespace is emitted as absent regardless of
// HasText.
func effectiveText(n *builder.Node) (string, bool) {
	text, ok := n.Text()
	if !ok {
		return "", false
	}
	if n.HasFlag(builder.FlagLiteralText) && strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

func effectiveTail(n *builder.Node) (string, bool) {
	tail, ok := n.Tail()
	if !ok {
		return "", false
	}
	if n.HasFlag(builder.FlagLiteralText) && strings.TrimSpace(tail) == "" {
		return "", false
	}
	return tail, true
}

// sizePass sums each live node's record size plus the one sentinel byte
// that terminates its children list. The root-level list of siblings is
// not itself preceded by any node whose "children" it is, so it needs no
// sentinel of its own: a reader reaches the first root directly (at
// headerSize) and threads siblings via the precomputed next field,
// stopping when next == 0. A silo with no roots at all is therefore
// exactly headerSize + the (possibly empty) string table, with no node
// area bytes.
func sizePass(roots []*builder.Node) int {
	size := 0
	walkLive(roots, func(n *builder.Node) {
		tokenCount := clampTokenCount(len(n.Tokens()))
		size += nodeSize(n.AttrCount(), tokenCount) + sentinelSize
	})
	return size
}

func emitPass(roots []*builder.Node, buf *bytes.Buffer, st *strtab.Builder) error {
	var emitNode func(n *builder.Node) error
	emitNode = func(n *builder.Node) error {
		n.SetEmitOffset(uint32(buf.Len()))
		if err := writeNodeRecord(buf, n, st); err != nil {
			return err
		}
		for _, c := range liveChildren(n) {
			if err := emitNode(c); err != nil {
				return err
			}
		}
		buf.WriteByte(0) // sentinel: IS_ELEMENT=0, terminates n's children
		return nil
	}
	for _, r := range liveRoots(roots) {
		if err := emitNode(r); err != nil {
			return err
		}
	}
	return nil
}

func writeNodeRecord(buf *bytes.Buffer, n *builder.Node, st *strtab.Builder) error {
	attrCount := n.AttrCount()
	if !clampAttrCount(attrCount) {
		return xmlerr.NewError(xmlerr.KindInvalidData, "element <"+n.Element()+"> has more than 63 attributes", nil)
	}
	tokens := n.Tokens()
	tokenCount := clampTokenCount(len(tokens))

	flags := flagIsElement | byte(attrCount)&attrCountMask
	if n.HasFlag(builder.FlagTokenizeText) {
		flags |= flagIsTokenized
	}

	elementName, _ := st.Lookup(n.Element())

	textOff := Unset
	if text, ok := effectiveText(n); ok {
		textOff, _ = st.Lookup(text)
	}
	tailOff := Unset
	if tail, ok := effectiveTail(n); ok {
		tailOff, _ = st.Lookup(tail)
	}

	buf.WriteByte(flags)
	buf.WriteByte(byte(tokenCount))
	writeU32(buf, elementName)
	writeU32(buf, 0) // parent, back-patched
	writeU32(buf, 0) // next, back-patched
	writeU32(buf, textOff)
	writeU32(buf, tailOff)

	for i := 0; i < attrCount; i++ {
		name, value := n.AttrAt(i)
		nameOff, _ := st.Lookup(name)
		valueOff, _ := st.Lookup(value)
		writeU32(buf, nameOff)
		writeU32(buf, valueOff)
	}
	for i := 0; i < tokenCount; i++ {
		off, _ := st.Lookup(tokens[i])
		writeU32(buf, off)
	}
	return nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// backpatchPass fills in each live node's parent/next fields now that every
// node's emitted offset is known.
func backpatchPass(roots []*builder.Node, out []byte) {
	var visit func(nodes []*builder.Node, parentOff uint32)
	visit = func(nodes []*builder.Node, parentOff uint32) {
		for i, n := range nodes {
			off := n.EmitOffset()
			binary.LittleEndian.PutUint32(out[off+offParent:], parentOff)
			next := uint32(0)
			if i+1 < len(nodes) {
				next = nodes[i+1].EmitOffset()
			}
			binary.LittleEndian.PutUint32(out[off+offNext:], next)
			visit(liveChildren(n), off)
		}
	}
	visit(liveRoots(roots), 0)
}

func writeHeader(out []byte, guid [16]byte, ntags uint16, strtabOff uint32, filesz uint64) {
	copy(out[0:4], Magic[:])
	binary.LittleEndian.PutUint32(out[4:8], FormatVersion)
	copy(out[8:24], guid[:])
	binary.LittleEndian.PutUint16(out[24:26], ntags)
	// out[26:28] is the zero padding field.
	binary.LittleEndian.PutUint32(out[28:32], strtabOff)
	binary.LittleEndian.PutUint64(out[32:40], filesz)
}

// computeGUID is the silo's content fingerprint: a SHA-1 of the
// "&"-joined GUID inputs, truncated to 16 bytes.
func computeGUID(inputs []string) [16]byte {
	sum := sha1.Sum([]byte(strings.Join(inputs, "&")))
	var guid [16]byte
	copy(guid[:], sum[:16])
	return guid
}
