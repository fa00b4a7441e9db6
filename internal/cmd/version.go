package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opmodel/capwire/internal/cmdtypes"
	"github.com/opmodel/capwire/internal/version"
)

// NewVersionCmd creates the version command.
func NewVersionCmd(_ *cmdtypes.GlobalConfig) *cobra.Command {
	var (
		shortFlag bool
		jsonFlag  bool
	)

	c := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Show capwire version information.

Displays:
  - capwire version, commit, and build date
  - CUE SDK version used for schema validation`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			info := version.GetInfo()
			w := c.OutOrStdout()
			switch {
			case shortFlag:
				fmt.Fprintln(w, info.Short())
			case jsonFlag:
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(w, string(data))
			default:
				fmt.Fprintln(w, info.String())
			}
			return nil
		},
	}

	c.Flags().BoolVar(&shortFlag, "short", false, "Print only the version number")
	c.Flags().BoolVar(&jsonFlag, "json", false, "Print version information as JSON")
	c.MarkFlagsMutuallyExclusive("short", "json")

	return c
}
