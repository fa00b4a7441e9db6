package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opmodel/capwire/internal/cmdtypes"
	"github.com/opmodel/capwire/internal/cmdutil"
	"github.com/opmodel/capwire/internal/output"
	"github.com/opmodel/capwire/internal/pipeline"
)

// NewBuildCmd creates the build command.
func NewBuildCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	var uf cmdutil.UnitFlags

	c := &cobra.Command{
		Use:   "build [unit...]",
		Short: "Wire capabilities and repackage units",
		Long: `Scan the input units, bind every wired variable to its provider and write
the repackaged units.

The first unit that contains a //capwire:host package receives the generated
bootstrap file. Units without wired variables or descriptors are copied byte
for byte. The module register and the binding lock are written to the
resources directory.

Arguments:
  unit    Input unit as path[=output]; a directory or a .zip/.jar archive

Examples:
  # Build the units listed in capwire.yaml
  capwire build

  # Build explicit units
  capwire build ./app ./lib/greeter.zip=dist/greeter.zip

  # Resolve wired variables lazily by default
  capwire build --default-lazy`,
		RunE: func(c *cobra.Command, args []string) error {
			return runBuild(c, args, cfg, &uf)
		},
	}

	uf.AddTo(c)

	return c
}

func runBuild(c *cobra.Command, args []string, cfg *cmdtypes.GlobalConfig, uf *cmdutil.UnitFlags) error {
	eff, err := cfg.Effective()
	if err != nil {
		return cmdutil.ExitWithError("loading config", err)
	}
	locs, err := uf.Locations(args, eff)
	if err != nil {
		return cmdtypes.NewExitError(err, cmdtypes.ExitValidationError)
	}

	var res *pipeline.Result
	err = output.RunWithSpinner(c.Context(), func(ctx context.Context) error {
		var buildErr error
		res, buildErr = pipeline.New(cmdutil.PipelineOptions(eff, locs)).Build(ctx)
		return buildErr
	}, output.WithTitle("Building units..."))

	w := c.OutOrStdout()
	if res != nil {
		cmdutil.PrintUnits(w, res.Units)
	}
	if err != nil {
		return cmdutil.ExitWithError("build failed", err)
	}

	for _, b := range res.Lock.Bindings {
		output.Debug("bound", "capability", b.Capability, "provider", b.Provider, "mode", b.Mode())
	}
	output.Info("lock written", "path", res.LockPath)
	fmt.Fprintln(w, output.FormatCheckmark(fmt.Sprintf("Built %d units: %d bindings, %d wired variables",
		len(res.Units), res.Bindings.Len(), len(res.Wired))))
	return nil
}
