// Package config provides configuration loading and management.
package config

// FilterConfig is an include/exclude pair.
type FilterConfig struct {
	// Include, when non-empty, is an allow-list.
	Include []string `json:"include,omitempty"`

	// Exclude is a deny-list applied when Include is empty.
	Exclude []string `json:"exclude,omitempty"`
}

// ScanConfig controls which unit entries are scanned.
type ScanConfig struct {
	// Ignore holds gitignore-style patterns for entries that are copied but
	// never scanned.
	Ignore []string `json:"ignore,omitempty"`
}

// UnitConfig names one input unit and, optionally, its output location.
type UnitConfig struct {
	Path   string `json:"path"`
	Output string `json:"output,omitempty"`
}

// LogConfig contains logging-related settings.
type LogConfig struct {
	// Timestamps controls whether timestamps are shown in log output.
	// Default: true. Override with --timestamps flag.
	Timestamps *bool `json:"timestamps,omitempty"`
}

// Config represents the capwire configuration.
// Loaded from capwire.yaml, validated against the embedded CUE schema.
type Config struct {
	// Debug enables debug logging.
	// Env: CAPWIRE_DEBUG
	Debug bool `json:"debug,omitempty"`

	// DefaultLazy is the resolution mode for wired vars whose directive does
	// not say.
	// Env: CAPWIRE_DEFAULT_LAZY
	DefaultLazy bool `json:"defaultLazy,omitempty"`

	// Incremental keeps already registered modules in the module-register
	// artifact instead of re-registering them.
	// Env: CAPWIRE_INCREMENTAL
	Incremental bool `json:"incremental,omitempty"`

	// ResourcesDir receives module-register.properties and the binding lock.
	// Env: CAPWIRE_RESOURCES_DIR, Default: build/capwire
	ResourcesDir string `json:"resourcesDir,omitempty"`

	// OutputDir receives repackaged units without an explicit output.
	// Env: CAPWIRE_OUTPUT_DIR, Default: build/capwire/out
	OutputDir string `json:"outputDir,omitempty"`

	// Workers bounds per-unit parallelism. Zero means GOMAXPROCS.
	// Env: CAPWIRE_WORKERS
	Workers int `json:"workers,omitempty"`

	// Packages filters scanned import paths.
	Packages FilterConfig `json:"packages,omitempty"`

	// Archives filters scanned archives by base name (regular expressions).
	Archives FilterConfig `json:"archives,omitempty"`

	// Scan holds entry-level scan settings.
	Scan ScanConfig `json:"scan,omitempty"`

	// Units lists the input units in presentation order.
	Units []UnitConfig `json:"units,omitempty"`

	// Log contains logging-related settings.
	Log LogConfig `json:"log,omitempty"`
}

// Default values.
const (
	DefaultResourcesDir = "build/capwire"
	DefaultOutputDir    = "build/capwire/out"
)

// DefaultScanIgnore lists entries that are never scanned: test data, vendored
// copies, directories the go tool ignores, and test files.
var DefaultScanIgnore = []string{
	"testdata/",
	"vendor/",
	"_*/",
	".*/",
	"*_test.go",
}

// DefaultConfig returns a Config with all default values populated.
// Used by `capwire config init` to generate the initial config file.
func DefaultConfig() *Config {
	return &Config{
		ResourcesDir: DefaultResourcesDir,
		OutputDir:    DefaultOutputDir,
		Scan: ScanConfig{
			Ignore: append([]string(nil), DefaultScanIgnore...),
		},
	}
}

// WithDefaults returns a copy of c with empty fields set to their defaults.
func (c *Config) WithDefaults() *Config {
	out := *c
	if out.ResourcesDir == "" {
		out.ResourcesDir = DefaultResourcesDir
	}
	if out.OutputDir == "" {
		out.OutputDir = DefaultOutputDir
	}
	if out.Scan.Ignore == nil {
		out.Scan.Ignore = append([]string(nil), DefaultScanIgnore...)
	}
	return &out
}
