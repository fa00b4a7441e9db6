package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findValue(t *testing.T, values []ResolvedValue, key string) ResolvedValue {
	t.Helper()
	for _, v := range values {
		if v.Key == key {
			return v
		}
	}
	require.Failf(t, "missing resolved value", "key %s", key)
	return ResolvedValue{}
}

func TestResolveConfigPath(t *testing.T) {
	t.Run("flag wins over env", func(t *testing.T) {
		t.Setenv("CAPWIRE_CONFIG", "/env.yaml")
		rv := ResolveConfigPath("/flag.yaml")
		assert.Equal(t, "/flag.yaml", rv.Value)
		assert.Equal(t, SourceFlag, rv.Source)
		assert.Equal(t, "/env.yaml", rv.Shadowed[SourceEnv])
	})

	t.Run("env wins over default", func(t *testing.T) {
		t.Setenv("CAPWIRE_CONFIG", "/env.yaml")
		rv := ResolveConfigPath("")
		assert.Equal(t, SourceEnv, rv.Source)
	})

	t.Run("default", func(t *testing.T) {
		t.Setenv("CAPWIRE_CONFIG", "")
		rv := ResolveConfigPath("")
		assert.Equal(t, DefaultConfigFile, rv.Value)
		assert.Equal(t, SourceDefault, rv.Source)
	})
}

func TestResolve(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("CAPWIRE_OUTPUT_DIR", "")
		t.Setenv("CAPWIRE_DEBUG", "")

		res := Resolve(ResolveOptions{})

		assert.Equal(t, DefaultOutputDir, res.Config.OutputDir)
		assert.Equal(t, SourceDefault, findValue(t, res.Values, "outputDir").Source)
		assert.False(t, res.Config.Debug)
	})

	t.Run("flag > env > config", func(t *testing.T) {
		t.Setenv("CAPWIRE_OUTPUT_DIR", "env-out")
		t.Setenv("CAPWIRE_RESOURCES_DIR", "env-res")

		res := Resolve(ResolveOptions{
			Flags:  FlagValues{OutputDir: "flag-out"},
			Config: &Config{OutputDir: "cfg-out", ResourcesDir: "cfg-res"},
		})

		out := findValue(t, res.Values, "outputDir")
		assert.Equal(t, "flag-out", res.Config.OutputDir)
		assert.Equal(t, SourceFlag, out.Source)
		assert.Equal(t, "env-out", out.Shadowed[SourceEnv])

		assert.Equal(t, "env-res", res.Config.ResourcesDir)
		assert.Equal(t, SourceEnv, findValue(t, res.Values, "resourcesDir").Source)
	})

	t.Run("bool flags", func(t *testing.T) {
		t.Setenv("CAPWIRE_DEFAULT_LAZY", "true")
		t.Setenv("CAPWIRE_INCREMENTAL", "")
		no := false

		res := Resolve(ResolveOptions{
			Flags:  FlagValues{DefaultLazy: &no},
			Config: &Config{Incremental: true},
		})

		assert.False(t, res.Config.DefaultLazy)
		assert.Equal(t, true, findValue(t, res.Values, "defaultLazy").Shadowed[SourceEnv])
		assert.True(t, res.Config.Incremental)
		assert.Equal(t, SourceConfig, findValue(t, res.Values, "incremental").Source)
	})

	t.Run("workers flag", func(t *testing.T) {
		four := 4
		res := Resolve(ResolveOptions{Flags: FlagValues{Workers: &four}, Config: &Config{Workers: 2}})
		w := findValue(t, res.Values, "workers")
		assert.Equal(t, 4, res.Config.Workers)
		assert.Equal(t, SourceFlag, w.Source)
		assert.Equal(t, 2, w.Shadowed[SourceConfig])
	})

	t.Run("list settings come from config", func(t *testing.T) {
		res := Resolve(ResolveOptions{Config: &Config{Packages: FilterConfig{Include: []string{"example.com/"}}}})
		assert.Equal(t, []string{"example.com/"}, res.Config.Packages.Include)
	})
}
