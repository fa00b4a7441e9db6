package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opmodel/capwire/internal/cmdtypes"
	"github.com/opmodel/capwire/internal/cmdutil"
	"github.com/opmodel/capwire/internal/output"
	"github.com/opmodel/capwire/internal/pipeline"
	"github.com/opmodel/capwire/internal/report"
)

// NewInspectCmd creates the inspect command.
func NewInspectCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	var (
		uf cmdutil.UnitFlags
		of cmdutil.OutputFlags
	)

	c := &cobra.Command{
		Use:   "inspect [unit...]",
		Short: "Show the bindings a build would make",
		Long: `Run the build without writing anything and print the resulting binding lock:
every capability with its provider, and every wired variable with its
resolution mode.

Examples:
  # Inspect the units listed in capwire.yaml
  capwire inspect

  # Print the lock as YAML
  capwire inspect ./app ./lib -o yaml`,
		RunE: func(c *cobra.Command, args []string) error {
			return runInspect(c, args, cfg, &uf, &of)
		},
	}

	uf.AddTo(c)
	of.AddTo(c)

	return c
}

func runInspect(c *cobra.Command, args []string, cfg *cmdtypes.GlobalConfig, uf *cmdutil.UnitFlags, of *cmdutil.OutputFlags) error {
	format, ok := output.ParseFormat(of.Format)
	if !ok {
		return cmdtypes.NewExitError(
			fmt.Errorf("invalid output format %q (valid: %s)", of.Format, strings.Join(output.ValidFormats(), ", ")),
			cmdtypes.ExitGeneralError,
		)
	}

	res, err := inspectUnits(c, args, cfg, uf)
	if err != nil {
		return err
	}

	if cfg.Verbose {
		for _, u := range res.Units {
			output.Debug("unit planned", "unit", u.Name, "status", u.Status, "rewritten", u.Rewritten)
		}
	}
	return report.Write(c.OutOrStdout(), res.Lock, format)
}

// inspectUnits runs a dry build over the selected units.
func inspectUnits(c *cobra.Command, args []string, cfg *cmdtypes.GlobalConfig, uf *cmdutil.UnitFlags) (*pipeline.Result, error) {
	eff, err := cfg.Effective()
	if err != nil {
		return nil, cmdutil.ExitWithError("loading config", err)
	}
	locs, err := uf.Locations(args, eff)
	if err != nil {
		return nil, cmdtypes.NewExitError(err, cmdtypes.ExitValidationError)
	}

	var res *pipeline.Result
	err = output.RunWithSpinner(c.Context(), func(ctx context.Context) error {
		var inspectErr error
		res, inspectErr = pipeline.New(cmdutil.PipelineOptions(eff, locs)).Inspect(ctx)
		return inspectErr
	}, output.WithTitle("Scanning units..."))
	if err != nil {
		return nil, cmdutil.ExitWithError("inspect failed", err)
	}
	return res, nil
}
