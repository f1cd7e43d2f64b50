package query

import (
	"testing"

	"github.com/xmlsilo/xmlsilo/internal/builder"
	"github.com/xmlsilo/xmlsilo/internal/machine"
	"github.com/xmlsilo/xmlsilo/internal/silo"
)

func mustLoad(t *testing.T, roots []*builder.Node) *silo.Silo {
	t.Helper()
	data, err := silo.Write(roots, silo.WriteOptions{})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	s, err := silo.Load(data, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func mustQuery(t *testing.T, s *silo.Silo, xpath string, flags Flag) []silo.Node {
	t.Helper()
	root, ok := s.Root()
	if !ok {
		t.Fatal("silo has no root")
	}
	q, err := Compile(s, xpath, flags, nil)
	if err != nil {
		t.Fatalf("Compile(%q): %v", xpath, err)
	}
	res, err := q.Execute(root, Context{})
	if err != nil {
		t.Fatalf("Execute(%q): %v", xpath, err)
	}
	return res
}

// Scenario 1: components/component[@type='desktop']/id
func TestScenarioBasicQuery(t *testing.T) {
	root := builder.New("components")
	root.SetAttr("origin", "lvfs")
	comp := builder.Insert(root, "component")
	comp.SetAttr("type", "desktop")
	builder.InsertText(comp, "id", "gimp.desktop")

	s := mustLoad(t, []*builder.Node{root})
	res := mustQuery(t, s, "components/component[@type='desktop']/id", 0)
	if len(res) != 1 {
		t.Fatalf("got %d results, want 1", len(res))
	}
	text, ok := res[0].Text()
	if !ok || text != "gimp.desktop" {
		t.Fatalf("text() = %q, %v, want %q", text, ok, "gimp.desktop")
	}
	if res[0].Element() != "id" {
		t.Fatalf("element = %q, want id", res[0].Element())
	}
}

// Scenario 2: union with one unknown branch
func TestScenarioUnionWithUnknownBranch(t *testing.T) {
	root := builder.New("components")
	comp := builder.Insert(root, "component")
	comp.SetAttr("type", "desktop")
	builder.InsertText(comp, "id", "gimp.desktop")

	s := mustLoad(t, []*builder.Node{root})
	res := mustQuery(t, s, "components/dave|components/component/id", 0)
	if len(res) != 1 {
		t.Fatalf("got %d results, want 1", len(res))
	}
	if text, _ := res[0].Text(); text != "gimp.desktop" {
		t.Fatalf("text() = %q, want gimp.desktop", text)
	}
}

// Scenario 3: positional predicate and last()
func TestScenarioPositionalAndLast(t *testing.T) {
	xs := builder.New("xs")
	builder.InsertText(xs, "x", "a")
	builder.InsertText(xs, "x", "b")
	builder.InsertText(xs, "x", "c")
	s := mustLoad(t, []*builder.Node{xs})

	if res := mustQuery(t, s, "xs/x[2]", 0); len(res) != 1 {
		t.Fatalf("xs/x[2]: got %d results, want 1", len(res))
	} else if text, _ := res[0].Text(); text != "b" {
		t.Fatalf("xs/x[2] text = %q, want b", text)
	}

	if res := mustQuery(t, s, "xs/x[last()]", 0); len(res) != 1 {
		t.Fatalf("xs/x[last()]: got %d results, want 1", len(res))
	} else if text, _ := res[0].Text(); text != "c" {
		t.Fatalf("xs/x[last()] text = %q, want c", text)
	}

	if res := mustQuery(t, s, "xs/x[4]", 0); len(res) != 0 {
		t.Fatalf("xs/x[4]: got %d results, want 0 (not-found)", len(res))
	}
}

// Scenario 4: escaped slash in a predicate literal
func TestScenarioEscapedSlashInLiteral(t *testing.T) {
	r := builder.New("r")
	builder.InsertText(r, "id", "n/a")
	s := mustLoad(t, []*builder.Node{r})

	res := mustQuery(t, s, `r/id[text()='n\/a']`, 0)
	if len(res) != 1 {
		t.Fatalf("got %d results, want 1", len(res))
	}
	if text, _ := res[0].Text(); text != "n/a" {
		t.Fatalf("text() = %q, want n/a", text)
	}
}

func TestLimitRespected(t *testing.T) {
	xs := builder.New("xs")
	for _, v := range []string{"a", "b", "c", "d"} {
		builder.InsertText(xs, "x", v)
	}
	s := mustLoad(t, []*builder.Node{xs})
	root, _ := s.Root()
	q, err := Compile(s, "xs/x", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := q.Execute(root, Context{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("got %d results, want 2", len(res))
	}
}

func TestReverseMatchesManualReverse(t *testing.T) {
	xs := builder.New("xs")
	for _, v := range []string{"a", "b", "c"} {
		builder.InsertText(xs, "x", v)
	}
	s := mustLoad(t, []*builder.Node{xs})
	forward := mustQuery(t, s, "xs/x", 0)
	reversed := mustQuery(t, s, "xs/x", Reverse)
	if len(forward) != len(reversed) {
		t.Fatalf("length mismatch: %d vs %d", len(forward), len(reversed))
	}
	for i := range forward {
		if forward[i].Offset != reversed[len(reversed)-1-i].Offset {
			t.Fatalf("reverse() did not mirror forward order at index %d", i)
		}
	}
}

func TestBoundValueMatchesLiteralSubstitution(t *testing.T) {
	xs := builder.New("xs")
	builder.InsertText(xs, "x", "a")
	builder.InsertText(xs, "x", "b")
	s := mustLoad(t, []*builder.Node{xs})

	root, _ := s.Root()
	q, err := Compile(s, "xs/x[text()=?]", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if q.BindingSlots != 1 {
		t.Fatalf("BindingSlots = %d, want 1", q.BindingSlots)
	}
	res, err := q.Execute(root, Context{Bindings: []machine.Binding{{IsText: true, Text: "b"}}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 {
		t.Fatalf("got %d results, want 1", len(res))
	}
	if text, _ := res[0].Text(); text != "b" {
		t.Fatalf("text() = %q, want b", text)
	}
}

func TestParentAxis(t *testing.T) {
	root := builder.New("components")
	comp := builder.Insert(root, "component")
	builder.InsertText(comp, "id", "a.desktop")
	builder.InsertText(comp, "name", "App A")
	s := mustLoad(t, []*builder.Node{root})

	res := mustQuery(t, s, "components/component/id/../name", 0)
	if len(res) != 1 {
		t.Fatalf("got %d results, want 1", len(res))
	}
	if text, _ := res[0].Text(); text != "App A" {
		t.Fatalf("text() = %q, want %q", text, "App A")
	}
}

func TestWildcardMatchesAnyElement(t *testing.T) {
	root := builder.New("components")
	builder.Insert(root, "component")
	builder.Insert(root, "category")
	s := mustLoad(t, []*builder.Node{root})

	res := mustQuery(t, s, "components/*", 0)
	if len(res) != 2 {
		t.Fatalf("got %d results, want 2", len(res))
	}
}

func TestEmptySiloHasNoRoot(t *testing.T) {
	s := mustLoad(t, nil)
	if _, ok := s.Root(); ok {
		t.Fatal("empty silo unexpectedly has a root")
	}
	if _, err := Compile(s, "anything", 0, nil); err != nil {
		t.Fatalf("Compile against an empty silo's element index should still succeed: %v", err)
	}
}

func TestSectionZeroTestsAnchorItself(t *testing.T) {
	root := builder.New("components")
	builder.Insert(root, "component")
	s := mustLoad(t, []*builder.Node{root})
	root0, _ := s.Root()

	// Leading slash is optional anchoring syntax; both forms test section 0
	// against the anchor node itself, not the anchor's children.
	resNoSlash := mustQuery(t, s, "components", 0)
	if len(resNoSlash) != 1 {
		t.Fatalf("\"components\": got %d results, want 1", len(resNoSlash))
	}
	if resNoSlash[0].Offset != root0.Offset {
		t.Fatal("\"components\" should match the anchor itself")
	}
}
