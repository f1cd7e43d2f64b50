// Package strtab implements the append-only string table shared by the silo
// writer and the query compiler: every interned string gets a stable
// 32-bit byte offset, NUL-terminated, valid for the lifetime of the table.
package strtab

import "math"

// Unset is the sentinel offset meaning "no string", used for absent text,
// tail and attribute values.
const Unset uint32 = math.MaxUint32

// Builder accumulates NUL-terminated strings and remembers the offset each
// distinct string was assigned, so repeated interning is O(1) after the
// first occurrence.
type Builder struct {
	buf     []byte
	offsets map[string]uint32

	// ntags counts how many of the distinct strings interned so far via
	// InternName are still "current" in the sense of being part of the
	// element-name prefix; see NumTags.
	ntags int
}

// NewBuilder returns an empty string table builder.
func NewBuilder() *Builder {
	return &Builder{offsets: make(map[string]uint32)}
}

// Intern appends s (if not already present) followed by a NUL byte and
// returns its stable byte offset within the table.
func (b *Builder) Intern(s string) uint32 {
	if off, ok := b.offsets[s]; ok {
		return off
	}
	off := uint32(len(b.buf))
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	b.offsets[s] = off
	return off
}

// InternName interns s and, if it is new, counts it towards NumTags. The
// writer calls this only for element names, before any other kind of string
// is interned, so that the first NumTags() strings in the final table are
// exactly the distinct element names (the invariant the query compiler's
// element-name index depends on).
func (b *Builder) InternName(s string) uint32 {
	_, existed := b.offsets[s]
	off := b.Intern(s)
	if !existed {
		b.ntags++
	}
	return off
}

// NumTags returns the count of distinct strings interned via InternName.
func (b *Builder) NumTags() int {
	return b.ntags
}

// Len returns the current size of the table in bytes.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Lookup returns the offset of s if it has already been interned.
func (b *Builder) Lookup(s string) (uint32, bool) {
	off, ok := b.offsets[s]
	return off, ok
}

// Bytes returns the accumulated table. The returned slice must not be
// mutated; callers that need to keep it should copy.
func (b *Builder) Bytes() []byte {
	return b.buf
}
