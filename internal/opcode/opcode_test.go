package opcode

import (
	"testing"

	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

func TestValueSignature(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Int32(3), "INT"},
		{Str("x"), "TEXT"},
		{Bool(true), "BOOL"},
		{Value{Kind: Function, FuncName: "attr"}, "FUNC:attr"},
	}
	for _, c := range cases {
		if got := c.v.Signature(); got != c.want {
			t.Errorf("Signature() = %q, want %q", got, c.want)
		}
	}
}

func TestStackPushPop(t *testing.T) {
	s := NewStack(2)
	if err := s.Push(Int32(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Push(Int32(2)); err != nil {
		t.Fatal(err)
	}
	if err := s.Push(Int32(3)); err == nil {
		t.Fatal("expected overflow error")
	} else if k, ok := xmlerr.KindOf(err); !ok || k != xmlerr.KindInvalidData {
		t.Fatalf("overflow error kind = %v, %v", k, ok)
	}

	v, err := s.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if v.Int != 2 {
		t.Fatalf("Pop() = %+v, want Int=2", v)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestStackPopUnderflow(t *testing.T) {
	s := NewStack(4)
	if _, err := s.Pop(); err == nil {
		t.Fatal("expected underflow error")
	}
	if _, err := s.PopN(1); err == nil {
		t.Fatal("expected underflow error from PopN")
	}
}

func TestStackPopNOrder(t *testing.T) {
	s := NewStack(4)
	s.Push(Int32(1))
	s.Push(Int32(2))
	s.Push(Int32(3))
	vs, err := s.PopN(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 2 || vs[0].Int != 2 || vs[1].Int != 3 {
		t.Fatalf("PopN(2) = %+v, want [2, 3]", vs)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestStackReset(t *testing.T) {
	s := NewStack(4)
	s.Push(Int32(1))
	s.Push(Int32(2))
	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", s.Len())
	}
	if err := s.Push(Int32(9)); err != nil {
		t.Fatal(err)
	}
}
