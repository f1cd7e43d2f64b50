package ingest

import (
	"bufio"
	"path/filepath"
	"strings"
)

// ContentType is the result of sniffing an input stream's first bytes (and,
// failing that, its filename extension).
type ContentType int

const (
	ContentTypeXML ContentType = iota
	ContentTypeGzip
	ContentTypeXZ
	ContentTypeZstd
	ContentTypeDesktopEntry
	ContentTypeUnknown
)

func (c ContentType) String() string {
	switch c {
	case ContentTypeXML:
		return "application/xml"
	case ContentTypeGzip:
		return "application/gzip"
	case ContentTypeXZ:
		return "application/x-xz"
	case ContentTypeZstd:
		return "application/zstd"
	case ContentTypeDesktopEntry:
		return "application/x-desktop"
	default:
		return "application/octet-stream"
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Sniff peeks at br (without consuming it) to classify the stream, falling
// back to name's extension when the magic bytes are inconclusive.
func Sniff(br *bufio.Reader, name string) ContentType {
	peek, _ := br.Peek(6)
	switch {
	case hasPrefix(peek, gzipMagic):
		return ContentTypeGzip
	case hasPrefix(peek, xzMagic):
		return ContentTypeXZ
	case hasPrefix(peek, zstdMagic):
		return ContentTypeZstd
	}
	trimmed := strings.TrimLeft(string(peek), " \t\r\n")
	if strings.HasPrefix(trimmed, "<") {
		return ContentTypeXML
	}
	if strings.HasPrefix(trimmed, "[") {
		return ContentTypeDesktopEntry
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xml":
		return ContentTypeXML
	case ".gz":
		return ContentTypeGzip
	case ".xz":
		return ContentTypeXZ
	case ".zst":
		return ContentTypeZstd
	case ".desktop":
		return ContentTypeDesktopEntry
	}
	return ContentTypeUnknown
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
