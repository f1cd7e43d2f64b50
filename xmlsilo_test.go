package xmlsilo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuilderCompileAndQuery(t *testing.T) {
	b := &Builder{}
	b.AddSource(Source{
		Stream: strings.NewReader(`<components origin="lvfs"><component type="desktop"><id>gimp.desktop</id></component></components>`),
		GUID:   "src-1",
	})

	data, guid, err := b.Compile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if guid == [16]byte{} {
		t.Fatal("expected a non-zero GUID")
	}

	s, err := Load(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	n, err := s.QueryFirst("components/component[@type='desktop']/id", 0)
	if err != nil {
		t.Fatal(err)
	}
	if text, ok := n.Text(); !ok || text != "gimp.desktop" {
		t.Fatalf("text() = %q, %v, want gimp.desktop, true", text, ok)
	}
}

func TestBuilderSourcePrefixAndInfo(t *testing.T) {
	b := &Builder{}
	info := NewBuilderNode("info")
	info.SetAttr("scope", "user")
	b.AddSource(Source{
		Stream: strings.NewReader(`<component><id>a.desktop</id></component>`),
		GUID:   "src-1",
		Prefix: "components",
		Info:   info,
	})

	data, _, err := b.Compile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s, err := Load(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	root, ok := s.Root()
	if !ok || root.Element() != "components" {
		t.Fatalf("root = %+v, %v, want components wrapper", root, ok)
	}
	res, err := s.Query("components/component/info", 0, QueryContext{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 {
		t.Fatalf("got %d info nodes, want 1", len(res))
	}
	if v, _ := res[0].Attr("scope"); v != "user" {
		t.Fatalf("info/@scope = %q, want user", v)
	}
}

// Mirrors spec.md scenario 5: only the highest-priority xml:lang sibling
// survives a SINGLE_LANG compile, and the dropped siblings leave no trace.
func TestBuilderSingleLangPipeline(t *testing.T) {
	b := &Builder{
		Flags:   SingleLang,
		Locales: []string{"fr", "C"},
	}
	b.AddSource(Source{
		Stream: strings.NewReader(`<c><p xml:lang="fr">F</p><p xml:lang="de">D</p><p>E</p></c>`),
		GUID:   "src-1",
	})

	data, _, err := b.Compile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s, err := Load(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	root, ok := s.Root()
	if !ok {
		t.Fatal("expected a root")
	}
	children := root.Children()
	if len(children) != 1 {
		t.Fatalf("got %d surviving <p> siblings, want 1", len(children))
	}
	if text, _ := children[0].Text(); text != "F" {
		t.Fatalf("surviving sibling text = %q, want F", text)
	}
	for _, dropped := range []string{"D", "E"} {
		if strings.Contains(string(data), dropped) {
			t.Fatalf("compiled silo bytes unexpectedly contain dropped text %q", dropped)
		}
	}
}

func TestBuilderImportNodeAffectsGUID(t *testing.T) {
	base := &Builder{}
	base.AddSource(Source{Stream: strings.NewReader(`<a/>`), GUID: "src-1"})
	_, g1, err := base.Compile(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	withImport := &Builder{}
	withImport.AddSource(Source{Stream: strings.NewReader(`<a/>`), GUID: "src-1"})
	withImport.ImportNode(NewBuilderNode("extra"))
	_, g2, err := withImport.Compile(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if g1 == g2 {
		t.Fatal("importing an extra node should change the compiled GUID")
	}
}

func TestBuilderIgnoreInvalidSkipsBadSource(t *testing.T) {
	b := &Builder{Flags: IgnoreInvalid}
	b.AddSource(Source{Stream: strings.NewReader(`<unclosed>`), GUID: "bad"})
	b.AddSource(Source{Stream: strings.NewReader(`<ok/>`), GUID: "good"})

	data, _, err := b.Compile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s, err := Load(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	root, ok := s.Root()
	if !ok || root.Element() != "ok" {
		t.Fatalf("root = %+v, %v, want the surviving 'ok' source", root, ok)
	}
}

func TestBuilderWithoutIgnoreInvalidPropagatesError(t *testing.T) {
	b := &Builder{}
	b.AddSource(Source{Stream: strings.NewReader(`<unclosed>`), GUID: "bad"})
	if _, _, err := b.Compile(context.Background()); err == nil {
		t.Fatal("expected the malformed source's error to propagate")
	}
}

// Mirrors spec.md scenario 6: re-Ensure-ing identical sources against an
// already-compiled cache file must not rewrite it, and must yield the same
// GUID.
func TestEnsureCacheHit(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.xmlb")

	newBuilder := func() *Builder {
		b := &Builder{}
		b.AddSource(Source{Stream: strings.NewReader(`<components/>`), GUID: "src-1"})
		return b
	}

	s1, err := newBuilder().Ensure(context.Background(), cachePath)
	if err != nil {
		t.Fatal(err)
	}
	guid1 := s1.GUID()
	info1, err := os.Stat(cachePath)
	if err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := newBuilder().Ensure(context.Background(), cachePath)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	guid2 := s2.GUID()
	info2, err := os.Stat(cachePath)
	if err != nil {
		t.Fatal(err)
	}

	if guid1 != guid2 {
		t.Fatal("re-Ensure-ing identical sources should produce the same GUID")
	}
	if !info1.ModTime().Equal(info2.ModTime()) {
		t.Fatal("re-Ensure-ing identical sources should not rewrite the cache file")
	}
}

func TestEnsureRecompilesOnSourceChange(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.xmlb")

	b1 := &Builder{}
	b1.AddSource(Source{Stream: strings.NewReader(`<a/>`), GUID: "v1"})
	s1, err := b1.Ensure(context.Background(), cachePath)
	if err != nil {
		t.Fatal(err)
	}
	guid1 := s1.GUID()
	s1.Close()

	b2 := &Builder{}
	b2.AddSource(Source{Stream: strings.NewReader(`<a/>`), GUID: "v2"})
	s2, err := b2.Ensure(context.Background(), cachePath)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	if s2.GUID() == guid1 {
		t.Fatal("a changed source GUID should produce a different compiled GUID")
	}
}

func TestQueryCompileOnceExecuteTwice(t *testing.T) {
	b := &Builder{}
	b.AddSource(Source{
		Stream: strings.NewReader(`<xs><x>a</x><x>b</x></xs>`),
		GUID:   "src-1",
	})
	data, _, err := b.Compile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s, err := Load(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	root, _ := s.Root()

	q, err := s.Compile("xs/x", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	res1, err := q.Execute(root, QueryContext{})
	if err != nil {
		t.Fatal(err)
	}
	res2, err := q.Execute(root, QueryContext{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(res1) != 2 {
		t.Fatalf("got %d results, want 2", len(res1))
	}
	if len(res2) != 1 {
		t.Fatalf("got %d limited results, want 1", len(res2))
	}
}

func TestQueryFirstNotFoundOnEmptyMatch(t *testing.T) {
	b := &Builder{}
	b.AddSource(Source{Stream: strings.NewReader(`<a/>`), GUID: "src-1"})
	data, _, err := b.Compile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s, err := Load(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.QueryFirst("a/nonexistent", 0); err == nil {
		t.Fatal("expected a not-found error")
	}
}

func TestProfilingAccumulatesAcrossQueries(t *testing.T) {
	b := &Builder{}
	b.AddSource(Source{Stream: strings.NewReader(`<xs><x>a</x></xs>`), GUID: "src-1"})
	data, _, err := b.Compile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s, err := Load(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	s.EnableProfiling()
	if _, err := s.Query("xs/x", 0, QueryContext{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(s.ProfileString(), "xs/x") {
		t.Fatalf("ProfileString() = %q, want an entry for xs/x", s.ProfileString())
	}
}
