package config

import (
	"os"
	"strconv"

	"github.com/opmodel/capwire/internal/output"
)

// ConfigSource indicates where a configuration value came from.
type ConfigSource string

const (
	// SourceFlag indicates value came from command-line flag.
	SourceFlag ConfigSource = "flag"
	// SourceEnv indicates value came from environment variable.
	SourceEnv ConfigSource = "env"
	// SourceConfig indicates value came from config file.
	SourceConfig ConfigSource = "config"
	// SourceDefault indicates value is the built-in default.
	SourceDefault ConfigSource = "default"
)

// ResolvedValue records one resolved setting and what it shadowed.
type ResolvedValue struct {
	Key      string
	Value    any
	Source   ConfigSource
	Shadowed map[ConfigSource]any
}

// FlagValues carries command-line overrides. Pointer fields are nil when the
// flag was not given.
type FlagValues struct {
	ConfigFile   string
	ResourcesDir string
	OutputDir    string
	Debug        *bool
	Incremental  *bool
	DefaultLazy  *bool
	Workers      *int
}

// ResolveOptions contains the inputs for Resolve.
type ResolveOptions struct {
	Flags  FlagValues
	Config *Config
}

// Resolved is the effective configuration plus the provenance of every
// scalar setting.
type Resolved struct {
	Config     *Config
	ConfigPath ResolvedValue
	Values     []ResolvedValue
}

// ResolveConfigPath resolves the config file path using precedence:
// (1) --config flag, (2) CAPWIRE_CONFIG env, (3) ./capwire.yaml default.
func ResolveConfigPath(flagValue string) ResolvedValue {
	rv := ResolvedValue{Key: "config", Shadowed: make(map[ConfigSource]any)}
	envValue := os.Getenv("CAPWIRE_CONFIG")

	switch {
	case flagValue != "":
		rv.Value, rv.Source = flagValue, SourceFlag
		if envValue != "" {
			rv.Shadowed[SourceEnv] = envValue
		}
		rv.Shadowed[SourceDefault] = DefaultConfigFile
	case envValue != "":
		rv.Value, rv.Source = envValue, SourceEnv
		rv.Shadowed[SourceDefault] = DefaultConfigFile
	default:
		rv.Value, rv.Source = DefaultConfigFile, SourceDefault
	}
	return rv
}

// Resolve applies flag > env > config > default precedence to the scalar
// settings and returns the effective configuration. List settings come from
// the config file (and viper's env binding) only.
func Resolve(opts ResolveOptions) *Resolved {
	base := opts.Config
	if base == nil {
		base = &Config{}
	}
	eff := base.WithDefaults()

	res := &Resolved{
		Config:     eff,
		ConfigPath: ResolveConfigPath(opts.Flags.ConfigFile),
	}

	rs := resolveString("resourcesDir", opts.Flags.ResourcesDir, "CAPWIRE_RESOURCES_DIR", base.ResourcesDir, DefaultResourcesDir)
	eff.ResourcesDir = rs.Value.(string)
	od := resolveString("outputDir", opts.Flags.OutputDir, "CAPWIRE_OUTPUT_DIR", base.OutputDir, DefaultOutputDir)
	eff.OutputDir = od.Value.(string)

	dbg := resolveBool("debug", opts.Flags.Debug, "CAPWIRE_DEBUG", base.Debug)
	eff.Debug = dbg.Value.(bool)
	inc := resolveBool("incremental", opts.Flags.Incremental, "CAPWIRE_INCREMENTAL", base.Incremental)
	eff.Incremental = inc.Value.(bool)
	lazy := resolveBool("defaultLazy", opts.Flags.DefaultLazy, "CAPWIRE_DEFAULT_LAZY", base.DefaultLazy)
	eff.DefaultLazy = lazy.Value.(bool)

	workers := ResolvedValue{Key: "workers", Value: base.Workers, Source: SourceDefault, Shadowed: make(map[ConfigSource]any)}
	if base.Workers != 0 {
		workers.Source = SourceConfig
	}
	if opts.Flags.Workers != nil {
		if base.Workers != 0 {
			workers.Shadowed[workers.Source] = base.Workers
		}
		workers.Value, workers.Source = *opts.Flags.Workers, SourceFlag
	}
	eff.Workers = workers.Value.(int)

	res.Values = []ResolvedValue{rs, od, dbg, inc, lazy, workers}
	return res
}

func resolveString(key, flagValue, envVar, configValue, defaultValue string) ResolvedValue {
	rv := ResolvedValue{Key: key, Shadowed: make(map[ConfigSource]any)}
	envValue := os.Getenv(envVar)

	switch {
	case flagValue != "":
		rv.Value, rv.Source = flagValue, SourceFlag
		if envValue != "" {
			rv.Shadowed[SourceEnv] = envValue
		} else if configValue != "" {
			rv.Shadowed[SourceConfig] = configValue
		}
	case envValue != "":
		rv.Value, rv.Source = envValue, SourceEnv
	case configValue != "":
		rv.Value, rv.Source = configValue, SourceConfig
	default:
		rv.Value, rv.Source = defaultValue, SourceDefault
	}
	return rv
}

func resolveBool(key string, flagValue *bool, envVar string, configValue bool) ResolvedValue {
	rv := ResolvedValue{Key: key, Shadowed: make(map[ConfigSource]any)}
	envValue, envErr := strconv.ParseBool(os.Getenv(envVar))
	envSet := envErr == nil

	switch {
	case flagValue != nil:
		rv.Value, rv.Source = *flagValue, SourceFlag
		if envSet {
			rv.Shadowed[SourceEnv] = envValue
		} else if configValue {
			rv.Shadowed[SourceConfig] = configValue
		}
	case envSet:
		rv.Value, rv.Source = envValue, SourceEnv
	case configValue:
		rv.Value, rv.Source = true, SourceConfig
	default:
		rv.Value, rv.Source = false, SourceDefault
	}
	return rv
}

// LogResolvedValues logs configuration resolution at DEBUG level.
func LogResolvedValues(values []ResolvedValue) {
	for _, v := range values {
		output.Debug("config value resolved",
			"key", v.Key,
			"value", v.Value,
			"source", v.Source,
		)
		for source, shadowed := range v.Shadowed {
			output.Debug("  shadowed by higher precedence",
				"key", v.Key,
				"shadowed_source", source,
				"shadowed_value", shadowed,
			)
		}
	}
}
