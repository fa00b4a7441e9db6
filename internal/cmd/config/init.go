package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/opmodel/capwire/internal/cmdtypes"
	"github.com/opmodel/capwire/internal/config"
	"github.com/opmodel/capwire/internal/fsutil"
)

const configHeader = `# capwire configuration
# Flags override environment variables (CAPWIRE_*), which override this file.

`

// NewConfigInitCmd creates the config init command.
func NewConfigInitCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	var forceFlag bool

	c := &cobra.Command{
		Use:   "init",
		Short: "Create a new capwire configuration file",
		Long: `Create a new capwire configuration file with default values.

The configuration file is created at ./capwire.yaml by default.
Use --config flag to specify a different location.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runInit(c, cfg, forceFlag)
		},
	}

	c.Flags().BoolVarP(&forceFlag, "force", "f", false, "Overwrite existing config file")

	return c
}

func runInit(c *cobra.Command, cfg *cmdtypes.GlobalConfig, force bool) error {
	path, err := configPath(cfg)
	if err != nil {
		return fmt.Errorf("expanding config path: %w", err)
	}

	exists, err := config.ConfigFileExists(path)
	if err != nil {
		return fmt.Errorf("checking config file: %w", err)
	}
	if exists && !force {
		return cmdtypes.NewExitError(
			fmt.Errorf("config file already exists at %s (use --force to overwrite)", path),
			cmdtypes.ExitGeneralError,
		)
	}

	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append([]byte(configHeader), data...)

	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(c.OutOrStdout(), "Config file created: %s\n", path)
	return nil
}
