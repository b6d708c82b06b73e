package ircache

import (
	"testing"

	"quill/internal/ir"
	"quill/internal/types"
)

func TestDigestBytesStable(t *testing.T) {
	a := DigestBytes([]byte("let x = 1"))
	b := DigestBytes([]byte("let x = 1"))
	if a != b {
		t.Fatalf("same content must digest identically")
	}
	if a == DigestBytes([]byte("let x = 2")) {
		t.Fatalf("different content must digest differently")
	}
	if a.Zero() {
		t.Fatalf("non-empty content must not digest to zero")
	}
}

func TestSummarizeDeterministicOrder(t *testing.T) {
	in := types.NewInterner()
	ty := in.RegisterFn([]types.TypeID{in.Builtins().Int}, in.Builtins().Bool)

	m := ir.NewModule("demo")
	m.NewFunc("q$zeta", ty)
	m.NewFunc("q$alpha", ty)

	s := Summarize(m, in, DigestBytes([]byte("src")))
	if len(s.Funcs) != 2 {
		t.Fatalf("Funcs = %d, want 2", len(s.Funcs))
	}
	if s.Funcs[0].Name != "q$alpha" || s.Funcs[1].Name != "q$zeta" {
		t.Fatalf("functions must list in name order, got %q then %q", s.Funcs[0].Name, s.Funcs[1].Name)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := OpenAt(t.TempDir())
	if err != nil {
		t.Fatalf("OpenAt: %v", err)
	}

	input := DigestBytes([]byte("module src"))
	in := types.NewInterner()
	m := ir.NewModule("demo")
	m.NewFunc("q$main", in.Builtins().Unit)

	want := Summarize(m, in, input)
	if err := c.Put(input, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got Summary
	ok, err := c.Get(input, &got)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v; want hit", ok, err)
	}
	if !got.Fresh(input) {
		t.Fatalf("round-tripped summary must be fresh for its input digest")
	}
	if got.Module != "demo" || len(got.Funcs) != 1 || got.Funcs[0].Name != "q$main" {
		t.Fatalf("payload mismatch: %+v", got)
	}
	if got.Fresh(DigestBytes([]byte("edited"))) {
		t.Fatalf("summary must be stale for different input content")
	}
}

func TestCacheMissAndDrop(t *testing.T) {
	c, err := OpenAt(t.TempDir())
	if err != nil {
		t.Fatalf("OpenAt: %v", err)
	}

	var out Summary
	ok, err := c.Get(DigestBytes([]byte("absent")), &out)
	if err != nil || ok {
		t.Fatalf("missing key must be a clean miss, got %v, %v", ok, err)
	}

	key := DigestBytes([]byte("present"))
	if err := c.Put(key, &Summary{Schema: 1, Module: "m", Input: key}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.DropAll(); err != nil {
		t.Fatalf("DropAll: %v", err)
	}
	ok, err = c.Get(key, &out)
	if err != nil || ok {
		t.Fatalf("dropped entry must miss, got %v, %v", ok, err)
	}
}
