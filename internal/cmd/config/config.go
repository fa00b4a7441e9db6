// Package config provides CLI command implementations for the config command group.
package config

import (
	"github.com/spf13/cobra"

	"github.com/opmodel/capwire/internal/cmdtypes"
	"github.com/opmodel/capwire/internal/config"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  `Configuration management for the capwire CLI.`,
	}

	c.AddCommand(NewConfigInitCmd(cfg))
	c.AddCommand(NewConfigVetCmd(cfg))

	return c
}

// configPath returns the resolved --config path, falling back to the
// environment and the default when the root command did not run.
func configPath(cfg *cmdtypes.GlobalConfig) (string, error) {
	path := config.GetConfigFile()
	if cfg != nil && cfg.ConfigPath != "" {
		path = cfg.ConfigPath
	}
	return config.ExpandPath(path)
}
