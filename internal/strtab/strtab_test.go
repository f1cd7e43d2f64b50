package strtab

import "testing"

func TestInternDeduplicates(t *testing.T) {
	b := NewBuilder()
	o1 := b.Intern("component")
	o2 := b.Intern("component")
	if o1 != o2 {
		t.Fatalf("Intern(same string) offsets differ: %d, %d", o1, o2)
	}
	o3 := b.Intern("id")
	if o3 == o1 {
		t.Fatal("distinct strings must not share an offset")
	}
}

func TestInternNULTerminated(t *testing.T) {
	b := NewBuilder()
	b.Intern("a")
	b.Intern("bb")
	buf := b.Bytes()
	if buf[1] != 0 {
		t.Fatalf("expected a NUL terminator after \"a\", got %v", buf)
	}
}

func TestInternNameCountsDistinctNames(t *testing.T) {
	b := NewBuilder()
	b.InternName("components")
	b.InternName("component")
	b.InternName("components") // repeat, should not double-count
	if b.NumTags() != 2 {
		t.Fatalf("NumTags() = %d, want 2", b.NumTags())
	}
}

func TestInternNameAndInternShareTheSameOffsetSpace(t *testing.T) {
	b := NewBuilder()
	off := b.InternName("id")
	if got, ok := b.Lookup("id"); !ok || got != off {
		t.Fatalf("Lookup(id) = %d, %v, want %d, true", got, ok, off)
	}
}

func TestLookupMissingReturnsNotOK(t *testing.T) {
	b := NewBuilder()
	if _, ok := b.Lookup("nope"); ok {
		t.Fatal("expected ok=false for an uninterned string")
	}
}

func TestLenTracksTableSize(t *testing.T) {
	b := NewBuilder()
	if b.Len() != 0 {
		t.Fatalf("Len() on empty builder = %d, want 0", b.Len())
	}
	b.Intern("ab")
	if b.Len() != 3 { // "ab" + NUL
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
}
