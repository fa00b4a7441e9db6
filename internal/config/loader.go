package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Environment variable prefix for capwire configuration.
const envPrefix = "CAPWIRE"

// Loader handles loading and merging configuration from multiple sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("debug", "CAPWIRE_DEBUG")
	_ = v.BindEnv("defaultLazy", "CAPWIRE_DEFAULT_LAZY")
	_ = v.BindEnv("incremental", "CAPWIRE_INCREMENTAL")
	_ = v.BindEnv("resourcesDir", "CAPWIRE_RESOURCES_DIR")
	_ = v.BindEnv("outputDir", "CAPWIRE_OUTPUT_DIR")
	_ = v.BindEnv("workers", "CAPWIRE_WORKERS")
	_ = v.BindEnv("packages.include", "CAPWIRE_PACKAGES_INCLUDE")
	_ = v.BindEnv("packages.exclude", "CAPWIRE_PACKAGES_EXCLUDE")
	_ = v.BindEnv("archives.include", "CAPWIRE_ARCHIVES_INCLUDE")
	_ = v.BindEnv("archives.exclude", "CAPWIRE_ARCHIVES_EXCLUDE")

	return &Loader{v: v}
}

// Load loads configuration from the given file path.
// If configFile is empty, it uses the default config file path and a missing
// file yields an empty configuration. An explicitly named file must exist.
// Environment variables take precedence over file values.
func (l *Loader) Load(configFile string) (*Config, error) {
	explicit := configFile != ""
	if !explicit {
		configFile = GetConfigFile()
	}

	expandedPath, err := ExpandPath(configFile)
	if err != nil {
		return nil, fmt.Errorf("expanding config path: %w", err)
	}

	if _, err := os.Stat(expandedPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if explicit {
			return nil, fmt.Errorf("config file %s: %w", expandedPath, err)
		}
	} else {
		l.v.SetConfigFile(expandedPath)
		l.v.SetConfigType("yaml")
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads configuration and applies defaults.
func (l *Loader) LoadWithDefaults(configFile string) (*Config, error) {
	cfg, err := l.Load(configFile)
	if err != nil {
		return nil, err
	}

	return cfg.WithDefaults(), nil
}

// ConfigFileUsed returns the file viper read, or "" when none was read.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// ConfigFileExists checks if the config file exists.
func ConfigFileExists(configFile string) (bool, error) {
	if configFile == "" {
		configFile = GetConfigFile()
	}

	expandedPath, err := ExpandPath(configFile)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(expandedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}
