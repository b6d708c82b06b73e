package convention

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}
}

func TestParseOverrides(t *testing.T) {
	tbl, err := Parse("[arguments]\nself = \"first\"\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tbl.SelfPlacement != PlaceFirst {
		t.Fatalf("self placement = %q, want first", tbl.SelfPlacement)
	}
	// untouched keys keep defaults
	if tbl.IndirectResultPlacement != PlaceFirst || tbl.CapturePlacement != PlaceLast {
		t.Fatalf("defaults not preserved: %+v", tbl)
	}
}

func TestParseRejectsUnknownPlacement(t *testing.T) {
	if _, err := Parse("[arguments]\nself = \"middle\"\n"); err == nil {
		t.Fatal("expected error for unknown placement")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conv.toml")
	text := "[arguments]\nwitnesses = \"first\"\n"
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tbl, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tbl.WitnessPlacement != PlaceFirst {
		t.Fatalf("witnesses placement = %q, want first", tbl.WitnessPlacement)
	}
}

func TestDumpRoundTrip(t *testing.T) {
	tbl, err := Parse(Default().Dump())
	if err != nil {
		t.Fatalf("reparse dump: %v", err)
	}
	if tbl != Default() {
		t.Fatalf("round trip changed table: %+v", tbl)
	}
}
