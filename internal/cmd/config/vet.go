package config

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opmodel/capwire/internal/cmdtypes"
	"github.com/opmodel/capwire/internal/config"
)

// NewConfigVetCmd creates the config vet command.
func NewConfigVetCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "vet",
		Short: "Validate the capwire configuration file",
		Long: `Validate the capwire configuration file against the internal schema.

The command validates ./capwire.yaml by default.
Use --config flag to specify a different location.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runVet(c, cfg)
		},
	}
}

func runVet(c *cobra.Command, cfg *cmdtypes.GlobalConfig) error {
	path, err := configPath(cfg)
	if err != nil {
		return fmt.Errorf("expanding config path: %w", err)
	}

	exists, err := config.ConfigFileExists(path)
	if err != nil {
		return fmt.Errorf("checking config file: %w", err)
	}
	if !exists {
		return cmdtypes.NewExitError(
			fmt.Errorf("config file not found: %s", path),
			cmdtypes.ExitNotFound,
		)
	}

	validator, err := config.NewValidator()
	if err != nil {
		return fmt.Errorf("creating validator: %w", err)
	}

	if err := validator.ValidateFile(path); err != nil {
		var validationErrs config.ValidationErrors
		if errors.As(err, &validationErrs) {
			stderr := c.ErrOrStderr()
			fmt.Fprintln(stderr, "Error: config validation failed")
			fmt.Fprintf(stderr, "  File: %s\n\n", path)
			for _, e := range validationErrs {
				fmt.Fprintf(stderr, "  %s: %s\n", e.Field, e.Message)
			}
			exitErr := cmdtypes.NewExitError(err, cmdtypes.ExitValidationError)
			exitErr.Printed = true
			return exitErr
		}
		return cmdtypes.NewExitError(fmt.Errorf("validating config: %w", err), cmdtypes.ExitValidationError)
	}

	fmt.Fprintf(c.OutOrStdout(), "Config file is valid: %s\n", path)
	return nil
}
