// Package convention holds the implicit-argument layout used when lowering
// function signatures. The exact placement of self, indirect-result
// buffers, closure captures, and generic witnesses is a convention, not a
// law; it is read from a table so alternative ABIs stay a config change.
package convention

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Placement names where an implicit argument goes relative to the explicit
// parameter list.
type Placement string

const (
	// PlaceFirst prepends before explicit parameters.
	PlaceFirst Placement = "first"
	// PlaceLast appends after explicit parameters.
	PlaceLast Placement = "last"
)

func (p Placement) valid() bool {
	return p == PlaceFirst || p == PlaceLast
}

// Table describes the implicit-argument layout for lowered functions.
type Table struct {
	// SelfPlacement positions the self argument of methods.
	SelfPlacement Placement `toml:"self"`
	// IndirectResultPlacement positions the caller-allocated result buffer
	// for address-only results.
	IndirectResultPlacement Placement `toml:"indirect_result"`
	// CapturePlacement positions closure-capture arguments.
	CapturePlacement Placement `toml:"captures"`
	// WitnessPlacement positions generic-substitution witness arguments.
	WitnessPlacement Placement `toml:"witnesses"`
}

// Default is the built-in layout: self last (method convention), indirect
// result first, captures and witnesses trailing.
func Default() Table {
	return Table{
		SelfPlacement:           PlaceLast,
		IndirectResultPlacement: PlaceFirst,
		CapturePlacement:        PlaceLast,
		WitnessPlacement:        PlaceLast,
	}
}

type fileLayout struct {
	Arguments Table `toml:"arguments"`
}

// Load reads a table from a TOML file. Missing keys keep their defaults.
func Load(path string) (Table, error) {
	cfg := fileLayout{Arguments: Default()}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Table{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if err := cfg.Arguments.Validate(); err != nil {
		return Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg.Arguments, nil
}

// Parse reads a table from TOML text.
func Parse(text string) (Table, error) {
	cfg := fileLayout{Arguments: Default()}
	if _, err := toml.Decode(text, &cfg); err != nil {
		return Table{}, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if err := cfg.Arguments.Validate(); err != nil {
		return Table{}, err
	}
	return cfg.Arguments, nil
}

// Validate rejects placements outside the known set.
func (t Table) Validate() error {
	for name, p := range map[string]Placement{
		"self":            t.SelfPlacement,
		"indirect_result": t.IndirectResultPlacement,
		"captures":        t.CapturePlacement,
		"witnesses":       t.WitnessPlacement,
	} {
		if !p.valid() {
			return fmt.Errorf("convention: invalid placement %q for %s", p, name)
		}
	}
	return nil
}

// Dump renders the table as TOML text.
func (t Table) Dump() string {
	return fmt.Sprintf(
		"[arguments]\nself = %q\nindirect_result = %q\ncaptures = %q\nwitnesses = %q\n",
		t.SelfPlacement, t.IndirectResultPlacement, t.CapturePlacement, t.WitnessPlacement,
	)
}
