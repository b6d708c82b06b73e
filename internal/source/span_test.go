package source

import "testing"

func TestSpanCover(t *testing.T) {
	a := Span{File: 1, Start: 10, End: 20}
	b := Span{File: 1, Start: 5, End: 15}
	got := a.Cover(b)
	if got.Start != 5 || got.End != 20 {
		t.Fatalf("Cover = %v, want 1:5-20", got)
	}

	other := Span{File: 2, Start: 0, End: 100}
	if got := a.Cover(other); got != a {
		t.Fatalf("Cover across files must be a no-op, got %v", got)
	}
}

func TestSpanContains(t *testing.T) {
	outer := Span{File: 0, Start: 0, End: 50}
	inner := Span{File: 0, Start: 10, End: 20}
	if !outer.Contains(inner) {
		t.Fatalf("outer must contain inner")
	}
	if inner.Contains(outer) {
		t.Fatalf("inner must not contain outer")
	}
}

func TestFileSetResolve(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("test.ql", []byte("line one\nline two\nline three\n"))

	start, end := fs.Resolve(Span{File: id, Start: 9, End: 17})
	if start.Line != 2 || start.Col != 1 {
		t.Fatalf("start = %+v, want line 2 col 1", start)
	}
	if end.Line != 2 || end.Col != 9 {
		t.Fatalf("end = %+v, want line 2 col 9", end)
	}
}

func TestFileSetLatestWins(t *testing.T) {
	fs := NewFileSet()
	fs.AddVirtual("a.ql", []byte("old"))
	id2 := fs.AddVirtual("a.ql", []byte("new"))

	f, ok := fs.GetByPath("a.ql")
	if !ok {
		t.Fatalf("expected a.ql in set")
	}
	if f.ID != id2 {
		t.Fatalf("index must point at the latest version, got %d want %d", f.ID, id2)
	}
	if string(f.Content) != "new" {
		t.Fatalf("content = %q", f.Content)
	}
}

func TestNormalizeCRLF(t *testing.T) {
	got, changed := normalizeCRLF([]byte("a\r\nb\rc\n"))
	if !changed {
		t.Fatalf("expected replacement")
	}
	if string(got) != "a\nb\rc\n" {
		t.Fatalf("got %q", got)
	}
}
