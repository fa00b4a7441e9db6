package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/capwire/internal/cmdtypes"
	"github.com/opmodel/capwire/internal/cmdutil"
	"github.com/opmodel/capwire/internal/describe"
	"github.com/opmodel/capwire/internal/manifest"
	"github.com/opmodel/capwire/internal/output"
)

// NewDescribeCmd creates the describe command.
func NewDescribeCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	var (
		forceFlag  bool
		dryRunFlag bool
	)

	c := &cobra.Command{
		Use:   "describe [module-dir]",
		Short: "Write register descriptors for a module's providers",
		Long: `Find the //capwire:provider directives of a Go module and write one register
descriptor per provider to capwire/registers/.

Stale descriptors are removed and the module is recorded in the module
register. In incremental mode a module that is already recorded is skipped
unless --force is given.

Arguments:
  module-dir    Module root containing go.mod (default: current directory)

Examples:
  # Describe the module in the current directory
  capwire describe

  # Check the directives without writing
  capwire describe ./greeter --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runDescribe(c, args, cfg, forceFlag, dryRunFlag)
		},
	}

	c.Flags().BoolVarP(&forceFlag, "force", "f", false,
		"Describe the module even when it is already registered")
	c.Flags().BoolVar(&dryRunFlag, "dry-run", false,
		"Validate descriptors without writing anything")

	return c
}

func runDescribe(c *cobra.Command, args []string, cfg *cmdtypes.GlobalConfig, force, dryRun bool) error {
	eff, err := cfg.Effective()
	if err != nil {
		return cmdutil.ExitWithError("loading config", err)
	}

	res, err := describe.Describe(c.Context(), cmdutil.ResolveModulePath(args), describe.Options{
		PropertiesPath: filepath.Join(eff.ResourcesDir, manifest.PropertiesFile),
		Incremental:    eff.Incremental,
		Force:          force,
		DryRun:         dryRun,
	})
	if err != nil {
		return cmdutil.ExitWithError("describe failed", err)
	}

	w := c.OutOrStdout()
	if res.Skipped {
		fmt.Fprintf(w, "Module %s is already registered (use --force to describe it again)\n",
			output.StyleNoun.Render(res.Module))
		return nil
	}

	for _, p := range res.Providers {
		for _, capability := range p.Descriptor.Capabilities {
			fmt.Fprintln(w, output.FormatBinding(capability, p.Descriptor.Provider))
		}
	}
	if !dryRun {
		fmt.Fprint(w, output.RenderTree(res.Module, descriptorStatuses(res)))
	}

	noun := "providers"
	if len(res.Providers) == 1 {
		noun = "provider"
	}
	fmt.Fprintln(w, output.FormatCheckmark(fmt.Sprintf("Described %s: %d %s",
		res.Module, len(res.Providers), noun)))
	return nil
}

// descriptorStatuses maps each descriptor path to written, unchanged or
// removed.
func descriptorStatuses(res *describe.Result) map[string]string {
	written := sets.New(res.Written...)
	out := make(map[string]string, len(res.Providers)+len(res.Removed))
	for _, p := range res.Providers {
		status := output.StatusUnchanged
		if written.Has(p.Name) {
			status = output.StatusWritten
		}
		out[manifest.DescriptorPath(p.Name)] = status
	}
	for _, name := range res.Removed {
		out[manifest.DescriptorPath(name)] = output.StatusRemoved
	}
	return out
}
