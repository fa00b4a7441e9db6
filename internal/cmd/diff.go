package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opmodel/capwire/internal/cmdtypes"
	"github.com/opmodel/capwire/internal/cmdutil"
	"github.com/opmodel/capwire/internal/output"
	"github.com/opmodel/capwire/internal/report"
)

// errLocksDiffer is returned with --exit-code when the locks differ.
var errLocksDiffer = errors.New("binding locks differ")

// NewDiffCmd creates the diff command.
func NewDiffCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	var (
		uf           cmdutil.UnitFlags
		exitCodeFlag bool
	)

	c := &cobra.Command{
		Use:   "diff [old-lock] [new-lock]",
		Short: "Compare binding locks",
		Long: `Compare two binding lock files.

With no arguments the lock recorded in the resources directory is compared
against a fresh dry run over the selected units. With one argument that file
is compared against a fresh dry run.

Examples:
  # What would the next build change?
  capwire diff

  # Compare two recorded locks
  capwire diff old/capwire.lock.yaml build/capwire/capwire.lock.yaml

  # Fail in CI when the bindings changed
  capwire diff --exit-code`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return runDiff(c, args, cfg, &uf, exitCodeFlag)
		},
	}

	uf.AddTo(c)
	c.Flags().BoolVar(&exitCodeFlag, "exit-code", false,
		"Exit with status 1 when the locks differ")

	return c
}

func runDiff(c *cobra.Command, args []string, cfg *cmdtypes.GlobalConfig, uf *cmdutil.UnitFlags, exitCode bool) error {
	eff, err := cfg.Effective()
	if err != nil {
		return cmdutil.ExitWithError("loading config", err)
	}

	oldPath := filepath.Join(eff.ResourcesDir, report.LockFile)
	if len(args) > 0 {
		oldPath = args[0]
	}
	_, oldData, err := report.ReadLock(oldPath)
	if err != nil {
		return cmdutil.ExitWithError("reading lock", err)
	}

	var (
		newName string
		newData []byte
	)
	if len(args) == 2 {
		newName = args[1]
		if _, newData, err = report.ReadLock(newName); err != nil {
			return cmdutil.ExitWithError("reading lock", err)
		}
	} else {
		// Units come only from --unit or the config file; args name locks.
		res, err := inspectUnits(c, nil, cfg, uf)
		if err != nil {
			return err
		}
		newName = "dry run"
		if newData, err = res.Lock.Marshal(); err != nil {
			return fmt.Errorf("encoding lock: %w", err)
		}
	}

	out, err := report.Diff(oldData, newData, oldPath, newName, output.IsTTY())
	if err != nil {
		return cmdutil.ExitWithError("diff failed", err)
	}

	w := c.OutOrStdout()
	if out == "" {
		fmt.Fprintln(w, output.FormatCheckmark("No binding changes"))
		return nil
	}
	fmt.Fprintln(w, out)
	if exitCode {
		return &cmdtypes.ExitError{Err: errLocksDiffer, Code: cmdtypes.ExitGeneralError, Printed: true}
	}
	return nil
}
