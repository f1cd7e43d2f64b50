package builder

import "io"

// SourceFlag controls per-source ingest behavior.
type SourceFlag uint32

const (
	SourceFlagNone SourceFlag = 0
	// SourceFlagLiteralText disables whitespace repair for every node
	// parsed from this source (equivalent to setting FlagLiteralText on
	// each node as it is created).
	SourceFlagLiteralText SourceFlag = 1 << iota
	// SourceFlagWatchFile registers a file-monitor on this source's
	// input path (meaningful only when the source is backed by a file).
	SourceFlagWatchFile
	// SourceFlagWatchDirectory registers a file-monitor on this source's
	// containing directory.
	SourceFlagWatchDirectory
)

// Source describes one input document to be merged into a builder tree.
type Source struct {
	// Stream supplies the raw (possibly compressed) bytes. Ingest decides
	// how to decompress it from content-type sniffing.
	Stream io.Reader

	// GUID is the content fingerprint for this source: path+mtime, or a
	// SHA-1 of the XML bytes when no stable path/mtime is available. It
	// is one of the inputs folded into the overall silo GUID.
	GUID string

	// Path is the source's path, used for diagnostics and as a default
	// GUID input; empty for in-memory sources.
	Path string

	// Prefix, if non-empty, wraps the imported subtree's root(s) in a
	// synthetic element of this name.
	Prefix string

	// Info, if set, is appended as a subtree under each imported
	// root-level component (see original_source's prefix/info wrapping,
	// folded into SPEC_FULL.md).
	Info *Node

	// Fixups run on this source's imported subtree only, before the
	// global fixup wave.
	Fixups []Fixup

	Flags SourceFlag
}
