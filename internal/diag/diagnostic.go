package diag

import (
	"quill/internal/source"
)

// Severity ranks how serious a diagnostic is. The bag orders errors
// ahead of warnings of the same position when sorting.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "info"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	default:
		return "unknown"
	}
}

// Note is a supplementary record attached to a diagnostic, typically
// pointing at a related declaration ("found candidate", "requirement
// declared here").
type Note struct {
	Span source.Span
	Msg  string
}

// Diagnostic is a single reportable condition with an optional set of
// attached notes. Rendering is someone else's job; this core only selects
// and records.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  source.Span
	Notes    []Note
}

// WithNote returns a copy with one more note appended.
func (d Diagnostic) WithNote(sp source.Span, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Span: sp, Msg: msg})
	return d
}
