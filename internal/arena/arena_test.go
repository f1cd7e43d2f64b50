package arena

import "testing"

func TestStrdupCopiesIndependently(t *testing.T) {
	a := New()
	src := []byte("hello")
	s := a.Strdup(string(src))
	src[0] = 'H'
	if s != "hello" {
		t.Fatalf("Strdup result changed after mutating the source: %q", s)
	}
}

func TestStrdupEmptyReturnsEmpty(t *testing.T) {
	a := New()
	if got := a.Strdup(""); got != "" {
		t.Fatalf("Strdup(\"\") = %q, want empty", got)
	}
}

func TestStrndupStopsAtNUL(t *testing.T) {
	a := New()
	src := "ab\x00cd"
	if got := a.Strndup(src, len(src)); got != "ab" {
		t.Fatalf("Strndup = %q, want ab", got)
	}
}

func TestStrndupRespectsLengthBound(t *testing.T) {
	a := New()
	if got := a.Strndup("abcdef", 3); got != "abc" {
		t.Fatalf("Strndup(_, 3) = %q, want abc", got)
	}
}

func TestAllocOversizeGetsDedicatedChunk(t *testing.T) {
	a := New()
	before := a.NumChunks()
	a.Alloc(2 << 20) // bigger than the 1 MiB chunk size
	if a.NumChunks() != before+1 {
		t.Fatalf("NumChunks() = %d, want %d after an oversize alloc", a.NumChunks(), before+1)
	}
}

func TestResetReleasesChunks(t *testing.T) {
	a := New()
	a.Alloc(16)
	if a.NumChunks() == 0 {
		t.Fatal("expected at least one chunk after an allocation")
	}
	a.Reset()
	if a.NumChunks() != 0 {
		t.Fatalf("NumChunks() after Reset = %d, want 0", a.NumChunks())
	}
}

func TestAllocZeroReturnsNil(t *testing.T) {
	a := New()
	if got := a.Alloc(0); got != nil {
		t.Fatalf("Alloc(0) = %v, want nil", got)
	}
}
