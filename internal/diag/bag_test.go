package diag

import (
	"testing"

	"quill/internal/source"
)

func TestBagLimit(t *testing.T) {
	b := NewBag(2)
	if !b.Add(Diagnostic{Code: TcTypeMismatch}) {
		t.Fatalf("first add must succeed")
	}
	if !b.Add(Diagnostic{Code: TcMissingMember}) {
		t.Fatalf("second add must succeed")
	}
	if b.Add(Diagnostic{Code: TcTupleArity}) {
		t.Fatalf("third add must be rejected by the limit")
	}
	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
}

func TestBagSortDeterministic(t *testing.T) {
	b := NewBag(10)
	b.Add(Diagnostic{Primary: source.Span{File: 0, Start: 20}, Severity: SevError, Code: TcMissingMember})
	b.Add(Diagnostic{Primary: source.Span{File: 0, Start: 5}, Severity: SevWarning, Code: LowWritebackConflict})
	b.Add(Diagnostic{Primary: source.Span{File: 0, Start: 5}, Severity: SevError, Code: TcTypeMismatch})
	b.Sort()

	items := b.Items()
	if items[0].Code != TcTypeMismatch {
		t.Fatalf("errors at the same offset must sort before warnings, got %v", items[0].Code)
	}
	if items[2].Code != TcMissingMember {
		t.Fatalf("later offsets must sort last, got %v", items[2].Code)
	}
}

func TestSeverityOrderAndNames(t *testing.T) {
	if !(SevInfo < SevWarning && SevWarning < SevError) {
		t.Fatalf("severity levels must rank info < warning < error")
	}
	names := map[Severity]string{SevInfo: "info", SevWarning: "warning", SevError: "error", Severity(9): "unknown"}
	for s, want := range names {
		if got := s.String(); got != want {
			t.Errorf("Severity(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestReportBuilderEmitOnce(t *testing.T) {
	bag := NewBag(10)
	rb := ReportError(BagReporter{Bag: bag}, TcDoesNotConform, source.Span{}, "type 'Int' does not conform to 'Comparable'")
	rb.WithNote(source.Span{Start: 1, End: 2}, "in call to function 'max'")
	rb.Emit()
	rb.Emit()

	if bag.Len() != 1 {
		t.Fatalf("Emit must report exactly once, got %d", bag.Len())
	}
	if len(bag.Items()[0].Notes) != 1 {
		t.Fatalf("note was not attached")
	}
}
