package xmlsilo

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/xmlsilo/xmlsilo/internal/arena"
	"github.com/xmlsilo/xmlsilo/internal/builder"
	"github.com/xmlsilo/xmlsilo/internal/ingest"
	"github.com/xmlsilo/xmlsilo/internal/locale"
	"github.com/xmlsilo/xmlsilo/internal/silo"
	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

// CompileFlag controls one Builder's compile, matching spec.md §6's
// configuration options. It is an alias of the internal representation
// shared by the silo loader and lifecycle packages.
type CompileFlag = silo.CompileFlag

const (
	NativeLangs   = silo.NativeLangs
	SingleLang    = silo.SingleLang
	IgnoreInvalid = silo.IgnoreInvalid
	WatchBlob     = silo.WatchBlob
	IgnoreGUID    = silo.IgnoreGUID
	SingleRoot    = silo.SingleRoot
	NoMagic       = silo.NoMagic
)

// Source is one input document to merge into a Builder, re-exported from
// internal/builder so callers never need to import an internal package to
// construct one.
type Source = builder.Source

const (
	SourceFlagLiteralText    = builder.SourceFlagLiteralText
	SourceFlagWatchFile      = builder.SourceFlagWatchFile
	SourceFlagWatchDirectory = builder.SourceFlagWatchDirectory
)

// Fixup is a caller-supplied tree rewrite, re-exported from
// internal/builder.
type Fixup = builder.Fixup

// BuilderNode is a mutable builder-tree element, used by Builder.ImportNode
// and Source.Info/Source.Prefix wrapping before a silo is compiled. It is
// distinct from the read-only Node a compiled Silo returns from a query.
type BuilderNode = builder.Node

// NewBuilderNode returns a childless, parentless builder node named
// element, for use with Builder.ImportNode.
func NewBuilderNode(element string) *BuilderNode { return builder.New(element) }

// Builder assembles one or more Sources (and manually-imported nodes) into
// a builder tree, then compiles it to silo bytes. The zero value is ready
// to use.
type Builder struct {
	Flags CompileFlag

	// Locales, when NativeLangs or SingleLang is set, lists the accepted
	// xml:lang values in priority order (index 0 = highest priority).
	Locales []string

	// GlobalFixups run once over the fully-merged tree, after every
	// source's own per-source fixups and before locale filtering.
	GlobalFixups []Fixup

	// Arena, if set, backs every string copied out of ingest's XML
	// decoder; shared across all of this Builder's sources.
	Arena *arena.Arena

	sources     []Source
	imported    []*BuilderNode
	importAddrs []string
}

// AddSource queues src for ingest at Compile time.
func (b *Builder) AddSource(src Source) {
	b.sources = append(b.sources, src)
}

// ImportNode splices root (and its subtree) directly into the compiled
// tree, independent of any Source, per SPEC_FULL.md's supplemented
// xb_builder_import_node feature. root's subtree is folded into the silo's
// GUID as a manually-imported-node address, since it has no content stream
// of its own to fingerprint.
func (b *Builder) ImportNode(root *BuilderNode) {
	b.imported = append(b.imported, root)
	b.importAddrs = append(b.importAddrs, nodeAddr(root))
}

// Compile ingests every queued Source and imported node, applies fixups and
// locale filtering, and writes the result to silo bytes. It does not write
// to disk; use Ensure for the cached, mmap-backed, disk-persisted path.
func (b *Builder) Compile(ctx context.Context) ([]byte, [16]byte, error) {
	roots, guidInputs, err := b.build(ctx)
	if err != nil {
		return nil, [16]byte{}, err
	}
	data, err := silo.Write(roots, silo.WriteOptions{Flags: b.Flags, GUIDInputs: guidInputs})
	if err != nil {
		return nil, [16]byte{}, err
	}
	s, err := silo.Load(data, b.Flags)
	if err != nil {
		return nil, [16]byte{}, err
	}
	return data, s.GUID(), nil
}

// Ensure compiles b (via Compile) to obtain the candidate GUID and
// atomically replaces the silo persisted at cachePath only when that GUID
// differs from the persisted one or the file is missing or fails to load
// (with IgnoreGUID, any persisted silo that loads is kept), then mmaps and
// returns the result. If WatchBlob is set the
// returned Silo also gets a file-change watch wired to its invalidation
// channel.
func (b *Builder) Ensure(ctx context.Context, cachePath string) (*Silo, error) {
	var watch chan struct{}
	if b.Flags.Has(WatchBlob) {
		watch = make(chan struct{}, 1)
	}
	m, err := silo.Ensure(ctx, cachePath, b.Flags, func() ([]byte, [16]byte, error) {
		return b.Compile(ctx)
	})
	if err != nil {
		return nil, err
	}
	s := &Silo{mmap: m, profile: newProfiler(), invalidated: watch}
	if watch != nil {
		silo.WatchFile(ctx, cachePath, func() {
			select {
			case watch <- struct{}{}:
			default:
			}
		})
	}
	return s, nil
}

// build runs ingest over every queued Source, applies per-source then
// global fixups, merges in imported nodes, and applies locale filtering,
// returning the merged root list and the ordered GUID input strings.
func (b *Builder) build(ctx context.Context) ([]*BuilderNode, []string, error) {
	fetched, err := b.fetchAll(ctx)
	if err != nil {
		return nil, nil, err
	}

	var roots []*BuilderNode
	var guidInputs []string

	for i, src := range b.sources {
		if fetched[i].err != nil {
			if b.Flags.Has(IgnoreInvalid) {
				log.Printf("skipping source %q: %v", src.Path, fetched[i].err)
				continue
			}
			return nil, nil, fetched[i].err
		}
		srcRoots, err := b.parseOne(ctx, src, fetched[i].raw)
		if err != nil {
			if b.Flags.Has(IgnoreInvalid) {
				log.Printf("skipping source %q: %v", src.Path, err)
				continue
			}
			return nil, nil, err
		}
		if src.Info != nil {
			for _, r := range srcRoots {
				r.AddChild(src.Info)
			}
		}
		if src.Prefix != "" {
			wrapper := builder.New(src.Prefix)
			for _, r := range srcRoots {
				wrapper.AddChild(r)
			}
			srcRoots = []*BuilderNode{wrapper}
		}
		for _, fx := range src.Fixups {
			for _, r := range srcRoots {
				if err := builder.Run(r, []Fixup{fx}); err != nil {
					return nil, nil, err
				}
			}
			guidInputs = append(guidInputs, fx.GUID())
		}
		roots = append(roots, srcRoots...)
		guidInputs = append(guidInputs, src.GUID)
	}

	roots = append(roots, b.imported...)

	for _, fx := range b.GlobalFixups {
		for _, r := range roots {
			if err := builder.Run(r, []Fixup{fx}); err != nil {
				return nil, nil, err
			}
		}
		guidInputs = append(guidInputs, fx.GUID())
	}

	if b.Flags.Has(SingleLang) {
		for _, r := range roots {
			locale.FilterSingleLang(r, b.Locales)
		}
	}
	if len(b.Locales) > 0 {
		guidInputs = append(guidInputs, b.Locales...)
	}
	guidInputs = append(guidInputs, b.importAddrs...)

	return roots, guidInputs, nil
}

type fetchResult struct {
	raw []byte
	err error
}

// fetchAll opens, sniffs and decompresses every queued source concurrently
// via errgroup, the same fan-out idiom the teacher uses for its batch
// package builds. This stage touches only I/O and the stdlib/klauspost
// decompressors, never b.Arena, which is documented as single-goroutine
// only; the bytes it produces are fed to parseOne back on the caller's
// goroutine, in source order, so GUID input ordering stays deterministic.
func (b *Builder) fetchAll(ctx context.Context) ([]fetchResult, error) {
	results := make([]fetchResult, len(b.sources))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, src := range b.sources {
		i, src := i, src
		eg.Go(func() error {
			raw, err := fetchOne(egCtx, src)
			results[i] = fetchResult{raw: raw, err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func fetchOne(ctx context.Context, src Source) ([]byte, error) {
	stream := src.Stream
	if stream == nil {
		if src.Path == "" {
			return nil, xmlerr.NewError(xmlerr.KindInvalidArgument, "source has neither Stream nor Path", nil)
		}
		rc, err := ingest.Open(ctx, src.Path)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		stream = rc
	}

	br := bufio.NewReader(stream)
	r, _, err := ingest.DefaultAdapters().Apply(br, src.Path)
	if err != nil {
		return nil, err
	}
	return ioutil.ReadAll(r)
}

// parseOne runs the SAX parse of one already-fetched source's decompressed
// bytes, allocating out of b.Arena. Called sequentially from build so the
// arena never sees concurrent writers.
func (b *Builder) parseOne(ctx context.Context, src Source, raw []byte) ([]*BuilderNode, error) {
	roots, err := ingest.Parse(ctx, bytes.NewReader(raw), ingest.Options{
		LiteralText: src.Flags&builder.SourceFlagLiteralText != 0,
		NativeLangs: b.Flags.Has(NativeLangs) || b.Flags.Has(SingleLang),
		Locales:     b.Locales,
		Arena:       b.Arena,
	})
	if err != nil {
		return nil, err
	}

	if src.Flags&builder.SourceFlagWatchFile != 0 && src.Path != "" {
		silo.WatchFile(ctx, src.Path, func() {})
	}
	if src.Flags&builder.SourceFlagWatchDirectory != 0 && src.Path != "" {
		silo.WatchDirectory(ctx, src.Path, func() {})
	}

	return roots, nil
}

// nodeAddr renders root's pointer identity as GUID input text, per spec's
// "manually-imported-node addresses" input: it only needs to change when
// the imported subtree's identity changes, not to be stable across runs.
func nodeAddr(root *BuilderNode) string {
	return fmt.Sprintf("%s@%p", root.Element(), root)
}
