package ingest

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/xmlsilo/xmlsilo/internal/builder"
)

func TestSniffByMagic(t *testing.T) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	w.Write([]byte("<a/>"))
	w.Close()

	cases := []struct {
		name string
		data []byte
		want ContentType
	}{
		{"gzip magic", gz.Bytes(), ContentTypeGzip},
		{"xml by prefix", []byte("<components/>"), ContentTypeXML},
		{"desktop by prefix", []byte("[Desktop Entry]\nName=x\n"), ContentTypeDesktopEntry},
		{"leading whitespace xml", []byte("  \n<components/>"), ContentTypeXML},
	}
	for _, c := range cases {
		br := bufio.NewReader(bytes.NewReader(c.data))
		if got := Sniff(br, "irrelevant"); got != c.want {
			t.Errorf("%s: Sniff() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSniffFallsBackToExtension(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader(nil))
	if got := Sniff(br, "component.xml"); got != ContentTypeXML {
		t.Errorf("Sniff(empty, .xml) = %v, want ContentTypeXML", got)
	}
	if got := Sniff(br, "component.zst"); got != ContentTypeZstd {
		t.Errorf("Sniff(empty, .zst) = %v, want ContentTypeZstd", got)
	}
	if got := Sniff(br, "component.bin"); got != ContentTypeUnknown {
		t.Errorf("Sniff(empty, .bin) = %v, want ContentTypeUnknown", got)
	}
}

func TestApplyGzipRoundTrip(t *testing.T) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	w.Write([]byte("<components/>"))
	w.Close()

	br := bufio.NewReader(&gz)
	r, ct, err := DefaultAdapters().Apply(br, "components.xml.gz")
	if err != nil {
		t.Fatal(err)
	}
	if ct != ContentTypeGzip {
		t.Fatalf("ContentType = %v, want ContentTypeGzip", ct)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "<components/>" {
		t.Fatalf("decompressed = %q, want <components/>", out)
	}
}

func TestApplyUnknownContentTypeErrors(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader([]byte{0x00, 0x01, 0x02, 0x03}))
	if _, _, err := DefaultAdapters().Apply(br, "mystery.bin"); err == nil {
		t.Fatal("expected not-supported error for an unregistered content type")
	}
}

func TestParseNestedElementsWithTextAndTail(t *testing.T) {
	xmlDoc := `<components origin="lvfs"><component type="desktop"><id>gimp.desktop</id><name>GIMP</name></component></components>`
	roots, err := Parse(context.Background(), strings.NewReader(xmlDoc), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 1 || roots[0].Element() != "components" {
		t.Fatalf("roots = %v", roots)
	}
	if v, ok := roots[0].Attr("origin"); !ok || v != "lvfs" {
		t.Fatalf("origin attr = %q, %v", v, ok)
	}
	comp := roots[0].Children()[0]
	if v, _ := comp.Attr("type"); v != "desktop" {
		t.Fatalf("type attr = %q", v)
	}
	id := comp.Children()[0]
	if text, _ := id.Text(); text != "gimp.desktop" {
		t.Fatalf("id text = %q", text)
	}
}

func TestParseUnmatchedCloseTagErrors(t *testing.T) {
	_, err := Parse(context.Background(), strings.NewReader("<a></b>"), Options{})
	if err == nil {
		t.Fatal("expected error for mismatched close tag")
	}
}

func TestParseTruncatedXMLErrors(t *testing.T) {
	_, err := Parse(context.Background(), strings.NewReader("<a><b>"), Options{})
	if err == nil {
		t.Fatal("expected error for unclosed element")
	}
}

func TestParseNativeLangsRequiresLocales(t *testing.T) {
	_, err := Parse(context.Background(), strings.NewReader("<a/>"), Options{NativeLangs: true})
	if err == nil {
		t.Fatal("expected error: NATIVE_LANGS with no locales configured")
	}
}

func TestParseNativeLangsFlagsOutOfListElements(t *testing.T) {
	xmlDoc := `<c><p xml:lang="fr">F</p><p xml:lang="de">D</p><p>E</p></c>`
	roots, err := Parse(context.Background(), strings.NewReader(xmlDoc), Options{
		NativeLangs: true,
		Locales:     []string{"fr", "C"},
	})
	if err != nil {
		t.Fatal(err)
	}
	children := roots[0].Children()
	if children[0].HasFlag(builder.FlagIgnore) {
		t.Error("fr element is in the locale list and must not be ignored")
	}
	if !children[1].HasFlag(builder.FlagIgnore) {
		t.Error("de element is absent from the locale list and should be ignored")
	}
	if children[2].HasFlag(builder.FlagIgnore) {
		t.Error("no xml:lang defaults to C, which is in the locale list")
	}
}

func TestParseIgnorePropagatesToDescendants(t *testing.T) {
	xmlDoc := `<c><p xml:lang="de"><span>inner</span></p></c>`
	roots, err := Parse(context.Background(), strings.NewReader(xmlDoc), Options{
		NativeLangs: true,
		Locales:     []string{"fr", "C"},
	})
	if err != nil {
		t.Fatal(err)
	}
	p := roots[0].Children()[0]
	span := p.Children()[0]
	if !p.HasFlag(builder.FlagIgnore) || !span.HasFlag(builder.FlagIgnore) {
		t.Fatal("IGNORE on a parent must propagate to its descendants")
	}
}

func TestParseCancelledContextErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Parse(ctx, strings.NewReader("<components/>"), Options{})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
