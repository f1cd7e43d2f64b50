package machine

import (
	"testing"

	"github.com/xmlsilo/xmlsilo/internal/opcode"
)

type fakeNode struct {
	attrs    map[string]string
	text     string
	hasText  bool
	tail     string
	hasTail  bool
	tokens   []string
	tokenize bool
}

func (f *fakeNode) Attr(name string) (string, bool) { v, ok := f.attrs[name]; return v, ok }
func (f *fakeNode) Text() (string, bool)             { return f.text, f.hasText }
func (f *fakeNode) Tail() (string, bool)             { return f.tail, f.hasTail }
func (f *fakeNode) Tokens() []string                 { return f.tokens }
func (f *fakeNode) IsTokenized() bool                { return f.tokenize }

func registryWithSiloFuncs(t *testing.T, stem func(string) string) *Registry {
	t.Helper()
	r := NewBuiltinRegistry()
	RegisterSiloFunctions(r, stem)
	return r
}

func evalOn(t *testing.T, r *Registry, expr string, node *fakeNode) bool {
	t.Helper()
	var slot uint32
	ops, err := r.Parse(expr, 0, nil, &slot)
	if err != nil {
		t.Fatalf("Parse(%q): %v", expr, err)
	}
	got, err := r.Eval(ops, opcode.NewStack(DefaultStackCapacity), &ExecData{Node: node, Position: 1, Total: 1})
	if err != nil {
		t.Fatalf("Eval(%q): %v", expr, err)
	}
	return got
}

func TestAttrFunctionReadsNodeAttribute(t *testing.T) {
	r := registryWithSiloFuncs(t, nil)
	n := &fakeNode{attrs: map[string]string{"type": "desktop"}}
	if !evalOn(t, r, "attr('type')='desktop'", n) {
		t.Error("expected attr('type') to equal desktop")
	}
}

func TestAttrExistsShorthand(t *testing.T) {
	r := registryWithSiloFuncs(t, nil)
	present := &fakeNode{attrs: map[string]string{"x": ""}}
	absent := &fakeNode{attrs: map[string]string{}}
	if !evalOn(t, r, "@x", present) {
		t.Error("@x should be true when the attribute exists, even if empty")
	}
	if evalOn(t, r, "@x", absent) {
		t.Error("@x should be false when the attribute is absent")
	}
}

func TestTextAndTailFunctions(t *testing.T) {
	r := registryWithSiloFuncs(t, nil)
	n := &fakeNode{text: "hello", hasText: true, tail: "world", hasTail: true}
	if !evalOn(t, r, "text()='hello'", n) {
		t.Error("text() should read the node's text")
	}
	if !evalOn(t, r, "tail()='world'", n) {
		t.Error("tail() should read the node's tail")
	}
}

func TestFirstLastPosition(t *testing.T) {
	r := registryWithSiloFuncs(t, nil)
	n := &fakeNode{}
	var slot uint32
	ops, err := r.Parse("first()", 0, nil, &slot)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Eval(ops, opcode.NewStack(DefaultStackCapacity), &ExecData{Node: n, Position: 1, Total: 3})
	if err != nil || !got {
		t.Fatalf("first() at position 1 = %v, %v, want true, nil", got, err)
	}
	got, err = r.Eval(ops, opcode.NewStack(DefaultStackCapacity), &ExecData{Node: n, Position: 2, Total: 3})
	if err != nil || got {
		t.Fatalf("first() at position 2 = %v, %v, want false, nil", got, err)
	}

	ops, err = r.Parse("last()", 0, nil, &slot)
	if err != nil {
		t.Fatal(err)
	}
	got, err = r.Eval(ops, opcode.NewStack(DefaultStackCapacity), &ExecData{Node: n, Position: 3, Total: 3})
	if err != nil || !got {
		t.Fatalf("last() at position 3/3 = %v, %v, want true, nil", got, err)
	}
}

func TestStemAbsentIsNotSupported(t *testing.T) {
	r := registryWithSiloFuncs(t, nil)
	n := &fakeNode{text: "running", hasText: true}
	var slot uint32
	ops, err := r.Parse("stem(text())='run'", 0, nil, &slot)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Eval(ops, opcode.NewStack(DefaultStackCapacity), &ExecData{Node: n, Position: 1, Total: 1}); err == nil {
		t.Fatal("expected a not-supported error when no stemmer is configured")
	}
}

func TestStemConfigured(t *testing.T) {
	stem := func(s string) string {
		if s == "running" {
			return "run"
		}
		return s
	}
	r := registryWithSiloFuncs(t, stem)
	n := &fakeNode{text: "running", hasText: true}
	if !evalOn(t, r, "stem(text())='run'", n) {
		t.Error("expected stem(text()) to equal 'run'")
	}
}

func TestSearchStartOfWordMatch(t *testing.T) {
	r := registryWithSiloFuncs(t, nil)
	n := &fakeNode{text: "GNU Image Manipulation Program", hasText: true}
	if !evalOn(t, r, "search(text(), 'Image')", n) {
		t.Error(`search() should match "Image" at a word boundary`)
	}
	if evalOn(t, r, "search(text(), 'mage')", n) {
		t.Error(`search() should not match "mage" mid-word`)
	}
}

func TestSearchUsesTokensWhenTokenized(t *testing.T) {
	r := registryWithSiloFuncs(t, nil)
	n := &fakeNode{tokenize: true, tokens: []string{"gimp", "image", "editor"}}
	if !evalOn(t, r, "search(text(), 'ima')", n) {
		t.Error("tokenized search should match a token prefix")
	}
	if evalOn(t, r, "search(text(), 'zzz')", n) {
		t.Error("tokenized search should not match a nonexistent prefix")
	}
}
