package silo

import (
	"encoding/binary"

	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

// Silo is the read-only, mmap-friendly view over compiled silo bytes. It
// never mutates Data: Data is either an in-process compile result or a copy
// of an mmap'd file's bytes (see OpenMmap).
type Silo struct {
	Data []byte

	guid        [16]byte
	strtabOff   uint32
	ntags       int
	nameToOff   map[string]uint32
	nodeAreaEnd uint32
}

// Record is a decoded view of one element node record.
type Record struct {
	Offset      uint32
	IsTokenized bool
	AttrCount   int
	TokenCount  int
	ElementName uint32
	Parent      uint32
	Next        uint32
	Text        uint32
	Tail        uint32
}

func (r Record) size() int {
	return nodeSize(r.AttrCount, r.TokenCount)
}

// Load validates data's header and builds the element-name index. Unless
// NoMagic is set, a bad magic or version is an invalid-data error.
func Load(data []byte, flags CompileFlag) (*Silo, error) {
	if len(data) < headerSize {
		return nil, xmlerr.NewError(xmlerr.KindInvalidData, "silo shorter than its header", nil)
	}
	if !flags.Has(NoMagic) {
		if string(data[0:4]) != string(Magic[:]) {
			return nil, xmlerr.NewError(xmlerr.KindInvalidData, "bad magic", nil)
		}
		if v := binary.LittleEndian.Uint32(data[4:8]); v != FormatVersion {
			return nil, xmlerr.NewError(xmlerr.KindInvalidData, "unsupported format version", nil)
		}
	}

	s := &Silo{Data: data}
	copy(s.guid[:], data[8:24])
	s.ntags = int(binary.LittleEndian.Uint16(data[24:26]))
	s.strtabOff = binary.LittleEndian.Uint32(data[28:32])
	filesz := binary.LittleEndian.Uint64(data[32:40])

	if uint64(len(data)) != filesz {
		return nil, xmlerr.NewError(xmlerr.KindInvalidData, "filesz header field does not match actual length", nil)
	}
	if s.strtabOff > uint32(len(data)) {
		return nil, xmlerr.NewError(xmlerr.KindInvalidData, "strtab offset out of range", nil)
	}
	s.nodeAreaEnd = s.strtabOff

	if err := s.buildNameIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// GUID returns the silo's content fingerprint.
func (s *Silo) GUID() [16]byte { return s.guid }

// Stats reports basic size accounting, adapted from the original's
// xb_silo_get_stats-style size accounting, for the CLI dump command.
type Stats struct {
	NodeCount  int
	StrtabSize int
	FileSize   int
}

// Stats walks the node area counting live element records.
func (s *Silo) Stats() Stats {
	n := 0
	off, ok := s.RootNode()
	for ok {
		n++
		off, ok = s.nextPreOrder(off)
	}
	return Stats{
		NodeCount:  n,
		StrtabSize: len(s.Data) - int(s.strtabOff),
		FileSize:   len(s.Data),
	}
}

// nextPreOrder advances off to the next node in a full pre-order walk:
// descend into children first, else follow next, else climb via parent
// until a next is found.
func (s *Silo) nextPreOrder(off uint32) (uint32, bool) {
	if c, ok := s.ChildOf(off); ok {
		return c, true
	}
	for {
		if n, ok := s.next(off); ok {
			return n, true
		}
		p, ok := s.parent(off)
		if !ok {
			return 0, false
		}
		off = p
	}
}

func (s *Silo) buildNameIndex() error {
	s.nameToOff = make(map[string]uint32, s.ntags)
	off := uint32(0)
	for i := 0; i < s.ntags; i++ {
		str, n, err := s.readCString(s.strtabOff + off)
		if err != nil {
			return err
		}
		s.nameToOff[str] = off
		off += uint32(n)
	}
	return nil
}

// RootNode returns the byte offset of the first root element, or false for
// an empty silo (file size no larger than the header).
func (s *Silo) RootNode() (uint32, bool) {
	if uint32(len(s.Data)) <= headerSize {
		return 0, false
	}
	if headerSize >= s.nodeAreaEnd {
		return 0, false
	}
	return headerSize, true
}

// NodeAt decodes the record at off.
func (s *Silo) NodeAt(off uint32) (Record, error) {
	if off+nodeHeaderSize > uint32(len(s.Data)) {
		return Record{}, xmlerr.NewError(xmlerr.KindInvalidData, "node record out of range", nil)
	}
	d := s.Data
	flags := d[off+offFlags]
	if flags&flagIsElement == 0 {
		return Record{}, xmlerr.NewError(xmlerr.KindInvalidData, "offset refers to a sentinel, not an element", nil)
	}
	r := Record{
		Offset:      off,
		IsTokenized: flags&flagIsTokenized != 0,
		AttrCount:   int(flags & attrCountMask),
		TokenCount:  int(d[off+offTokenCount]),
		ElementName: binary.LittleEndian.Uint32(d[off+offElemName:]),
		Parent:      binary.LittleEndian.Uint32(d[off+offParent:]),
		Next:        binary.LittleEndian.Uint32(d[off+offNext:]),
		Text:        binary.LittleEndian.Uint32(d[off+offText:]),
		Tail:        binary.LittleEndian.Uint32(d[off+offTail:]),
	}
	if off+uint32(r.size()) > uint32(len(d)) {
		return Record{}, xmlerr.NewError(xmlerr.KindInvalidData, "node record's attrs/tokens run past end of file", nil)
	}
	return r, nil
}

// isSentinel reports whether the byte at off is a sentinel (IS_ELEMENT
// unset), the terminator for a sibling run.
func (s *Silo) isSentinel(off uint32) bool {
	if off >= uint32(len(s.Data)) {
		return true
	}
	return s.Data[off]&flagIsElement == 0
}

// ParentOf returns n's parent offset, or (0, false) at the root.
func (s *Silo) ParentOf(off uint32) (uint32, bool) { return s.parent(off) }

func (s *Silo) parent(off uint32) (uint32, bool) {
	r, err := s.NodeAt(off)
	if err != nil || r.Parent == 0 {
		return 0, false
	}
	return r.Parent, true
}

// NextOf returns n's next-sibling offset, or (0, false) if n is last.
func (s *Silo) NextOf(off uint32) (uint32, bool) { return s.next(off) }

func (s *Silo) next(off uint32) (uint32, bool) {
	r, err := s.NodeAt(off)
	if err != nil || r.Next == 0 {
		return 0, false
	}
	return r.Next, true
}

// ChildOf returns the offset of n's first child, or (0, false) if n has no
// live children (the byte immediately after n's record is a sentinel).
func (s *Silo) ChildOf(off uint32) (uint32, bool) {
	r, err := s.NodeAt(off)
	if err != nil {
		return 0, false
	}
	childOff := off + uint32(r.size())
	if s.isSentinel(childOff) {
		return 0, false
	}
	return childOff, true
}

// ElementNameOf returns n's element name.
func (s *Silo) ElementNameOf(off uint32) (string, error) {
	r, err := s.NodeAt(off)
	if err != nil {
		return "", err
	}
	str, _, err := s.readCString(s.strtabOff + r.ElementName)
	return str, err
}

// TextOf returns n's text and whether it is present.
func (s *Silo) TextOf(off uint32) (string, bool, error) {
	r, err := s.NodeAt(off)
	if err != nil {
		return "", false, err
	}
	if r.Text == Unset {
		return "", false, nil
	}
	str, _, err := s.readCString(s.strtabOff + r.Text)
	return str, true, err
}

// TailOf returns n's tail and whether it is present.
func (s *Silo) TailOf(off uint32) (string, bool, error) {
	r, err := s.NodeAt(off)
	if err != nil {
		return "", false, err
	}
	if r.Tail == Unset {
		return "", false, nil
	}
	str, _, err := s.readCString(s.strtabOff + r.Tail)
	return str, true, err
}

// AttrByName returns the value of attribute name on n.
func (s *Silo) AttrByName(off uint32, name string) (string, bool, error) {
	r, err := s.NodeAt(off)
	if err != nil {
		return "", false, err
	}
	base := off + nodeHeaderSize
	for i := 0; i < r.AttrCount; i++ {
		rec := base + uint32(i*attrRecordSize)
		nameOff := binary.LittleEndian.Uint32(s.Data[rec:])
		n, _, err := s.readCString(s.strtabOff + nameOff)
		if err != nil {
			return "", false, err
		}
		if n == name {
			valueOff := binary.LittleEndian.Uint32(s.Data[rec+4:])
			v, _, err := s.readCString(s.strtabOff + valueOff)
			return v, true, err
		}
	}
	return "", false, nil
}

// Attrs returns every (name, value) pair on n, in document order.
func (s *Silo) Attrs(off uint32) ([][2]string, error) {
	r, err := s.NodeAt(off)
	if err != nil {
		return nil, err
	}
	base := off + nodeHeaderSize
	out := make([][2]string, 0, r.AttrCount)
	for i := 0; i < r.AttrCount; i++ {
		rec := base + uint32(i*attrRecordSize)
		nameOff := binary.LittleEndian.Uint32(s.Data[rec:])
		valueOff := binary.LittleEndian.Uint32(s.Data[rec+4:])
		name, _, err := s.readCString(s.strtabOff + nameOff)
		if err != nil {
			return nil, err
		}
		value, _, err := s.readCString(s.strtabOff + valueOff)
		if err != nil {
			return nil, err
		}
		out = append(out, [2]string{name, value})
	}
	return out, nil
}

// Tokens returns n's attached search tokens.
func (s *Silo) Tokens(off uint32) ([]string, error) {
	r, err := s.NodeAt(off)
	if err != nil {
		return nil, err
	}
	base := off + nodeHeaderSize + uint32(r.AttrCount*attrRecordSize)
	out := make([]string, 0, r.TokenCount)
	for i := 0; i < r.TokenCount; i++ {
		off := binary.LittleEndian.Uint32(s.Data[base+uint32(i*tokenRecordSize):])
		str, _, err := s.readCString(s.strtabOff + off)
		if err != nil {
			return nil, err
		}
		out = append(out, str)
	}
	return out, nil
}

// IsTokenized reports whether n carries IS_TOKENIZED.
func (s *Silo) IsTokenized(off uint32) (bool, error) {
	r, err := s.NodeAt(off)
	if err != nil {
		return false, err
	}
	return r.IsTokenized, nil
}

// StrtabLookupByOffset returns the NUL-terminated string at the given
// offset within the string table region.
func (s *Silo) StrtabLookupByOffset(off uint32) (string, error) {
	str, _, err := s.readCString(s.strtabOff + off)
	return str, err
}

// StrtabFindByName returns the string-table offset of name if it is one of
// the strtab_ntags element names, else (Unset, false).
func (s *Silo) StrtabFindByName(name string) (uint32, bool) {
	off, ok := s.nameToOff[name]
	return off, ok
}

// readCString reads a NUL-terminated string starting at absolute offset
// off, returning the string, its encoded length including the NUL, and an
// error if off lies outside the string table region or no NUL is found
// before the end of the file.
func (s *Silo) readCString(off uint32) (string, int, error) {
	if off < s.strtabOff || off >= uint32(len(s.Data)) {
		return "", 0, xmlerr.NewError(xmlerr.KindInvalidData, "string-table offset out of range", nil)
	}
	d := s.Data
	for i := off; i < uint32(len(d)); i++ {
		if d[i] == 0 {
			return string(d[off:i]), int(i-off) + 1, nil
		}
	}
	return "", 0, xmlerr.NewError(xmlerr.KindInvalidData, "string-table entry is not NUL-terminated", nil)
}
