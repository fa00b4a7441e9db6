// Package cmdutil provides shared command utilities for the capwire
// subcommands. It centralizes flag groups, pipeline option assembly and
// error output.
package cmdutil

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opmodel/capwire/internal/config"
	"github.com/opmodel/capwire/internal/unit"
)

// UnitFlags holds the input unit selection shared by build, inspect and diff.
type UnitFlags struct {
	Units []string
}

// AddTo registers the unit flags on the given cobra command.
func (f *UnitFlags) AddTo(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.Units, "unit", "u", nil,
		"Input unit as path[=output] (can be repeated; default: units from the config file)")
}

// Locations returns the units named by args and --unit, in that order. When
// neither names a unit, the config file's units are used.
func (f *UnitFlags) Locations(args []string, cfg *config.Config) ([]unit.Location, error) {
	given := append(append([]string(nil), args...), f.Units...)
	if len(given) > 0 {
		return unit.ParseLocations(given)
	}

	locs := make([]unit.Location, 0, len(cfg.Units))
	for i, u := range cfg.Units {
		if u.Path == "" {
			return nil, fmt.Errorf("units[%d]: empty path", i)
		}
		locs = append(locs, unit.Location{Path: u.Path, Output: u.Output})
	}
	return locs, nil
}

// OutputFlags holds the -o flag of commands that print a report.
type OutputFlags struct {
	Format string
}

// AddTo registers the output flags on the given cobra command.
func (f *OutputFlags) AddTo(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Format, "output", "o", "table",
		"Output format: table, yaml, json")
}

// ResolveModulePath returns the module path from command args,
// defaulting to the current directory.
func ResolveModulePath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
