// Package cmd provides CLI command implementations.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/opmodel/capwire/internal/cmd/config"
	"github.com/opmodel/capwire/internal/cmdtypes"
	cfgpkg "github.com/opmodel/capwire/internal/config"
	oerrors "github.com/opmodel/capwire/internal/errors"
	"github.com/opmodel/capwire/internal/output"
	"github.com/opmodel/capwire/internal/version"
)

// rootFlags holds the persistent flags shared by every command.
type rootFlags struct {
	config       string
	verbose      bool
	timestamps   bool
	resourcesDir string
	outputDir    string
	workers      int
	incremental  bool
	defaultLazy  bool
	debug        bool
}

// NewRootCmd creates the root command for the capwire CLI.
func NewRootCmd() *cobra.Command {
	var flags rootFlags
	cfg := &cmdtypes.GlobalConfig{}

	rootCmd := &cobra.Command{
		Use:   "capwire",
		Short: "Capability wiring for Go modules",
		Long: `capwire wires capabilities to providers across a set of Go modules.

It provides commands to:
  - Describe the providers a module declares (describe)
  - Bind wired variables to providers and repackage the units (build)
  - Show the bindings a build would make without writing (inspect)
  - Compare binding lock files (diff)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initializeGlobals(cmd, &flags, cfg)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Path to config file (env: CAPWIRE_CONFIG)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose output")
	pf.BoolVar(&flags.timestamps, "timestamps", true, "Show timestamps in log output")
	pf.StringVar(&flags.resourcesDir, "resources-dir", "", "Directory for the module register and lock file (env: CAPWIRE_RESOURCES_DIR)")
	pf.StringVar(&flags.outputDir, "output-dir", "", "Directory for repackaged units (env: CAPWIRE_OUTPUT_DIR)")
	pf.IntVar(&flags.workers, "workers", 0, "Units processed in parallel, 0 for GOMAXPROCS (env: CAPWIRE_WORKERS)")
	pf.BoolVar(&flags.incremental, "incremental", false, "Keep already registered modules (env: CAPWIRE_INCREMENTAL)")
	pf.BoolVar(&flags.defaultLazy, "default-lazy", false, "Resolve wired variables lazily unless they say otherwise (env: CAPWIRE_DEFAULT_LAZY)")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging (env: CAPWIRE_DEBUG)")

	rootCmd.AddCommand(NewBuildCmd(cfg))
	rootCmd.AddCommand(NewDescribeCmd(cfg))
	rootCmd.AddCommand(NewInspectCmd(cfg))
	rootCmd.AddCommand(NewDiffCmd(cfg))
	rootCmd.AddCommand(config.NewConfigCmd(cfg))
	rootCmd.AddCommand(NewVersionCmd(cfg))

	return rootCmd
}

// initializeGlobals loads and resolves configuration and sets up logging.
func initializeGlobals(cmd *cobra.Command, flags *rootFlags, cfg *cmdtypes.GlobalConfig) error {
	loader := cfgpkg.NewLoader()
	loaded, err := loader.Load(flags.config)
	if err != nil {
		// Don't fail here; config init and vet work without a loadable file.
		cfg.LoadErr = loadError(err)
	} else if err := validateLoaded(loaded); err != nil {
		cfg.LoadErr = fmt.Errorf("%w: %w", oerrors.ErrValidation, err)
	}

	changed := cmd.Flags().Changed
	fv := cfgpkg.FlagValues{
		ConfigFile:   flags.config,
		ResourcesDir: flags.resourcesDir,
		OutputDir:    flags.outputDir,
	}
	if changed("debug") {
		fv.Debug = &flags.debug
	}
	if changed("incremental") {
		fv.Incremental = &flags.incremental
	}
	if changed("default-lazy") {
		fv.DefaultLazy = &flags.defaultLazy
	}
	if changed("workers") {
		fv.Workers = &flags.workers
	}

	resolved := cfgpkg.Resolve(cfgpkg.ResolveOptions{Flags: fv, Config: loaded})
	cfg.Config = resolved.Config
	cfg.Resolved = resolved
	cfg.ConfigPath = resolved.ConfigPath.Value.(string)
	cfg.Verbose = flags.verbose || resolved.Config.Debug

	// Timestamps: flag (if explicitly set) > config > default (nil = true)
	logCfg := output.LogConfig{Verbose: cfg.Verbose}
	if changed("timestamps") {
		logCfg.Timestamps = output.BoolPtr(flags.timestamps)
	} else if loaded != nil && loaded.Log.Timestamps != nil {
		logCfg.Timestamps = loaded.Log.Timestamps
	}
	output.SetupLogging(logCfg)

	info := version.GetInfo()
	output.Debug("capwire started", "version", info.Version, "config", cfg.ConfigPath)
	if cfg.LoadErr != nil {
		output.Debug("config load error", "error", cfg.LoadErr)
	}
	cfgpkg.LogResolvedValues(resolved.Values)

	return nil
}

// loadError tags a config load failure with the sentinel its exit code
// derives from.
func loadError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", oerrors.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", oerrors.ErrValidation, err)
}

func validateLoaded(c *cfgpkg.Config) error {
	v, err := cfgpkg.NewValidator()
	if err != nil {
		return err
	}
	return v.Validate(c)
}
