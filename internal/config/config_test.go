package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultResourcesDir, cfg.ResourcesDir)
	assert.Equal(t, DefaultOutputDir, cfg.OutputDir)
	assert.Equal(t, DefaultScanIgnore, cfg.Scan.Ignore)
	assert.False(t, cfg.DefaultLazy)
}

func TestWithDefaults(t *testing.T) {
	t.Run("fills empty fields", func(t *testing.T) {
		cfg := (&Config{}).WithDefaults()
		assert.Equal(t, DefaultResourcesDir, cfg.ResourcesDir)
		assert.Equal(t, DefaultOutputDir, cfg.OutputDir)
		assert.Equal(t, DefaultScanIgnore, cfg.Scan.Ignore)
	})

	t.Run("keeps explicit values and does not mutate receiver", func(t *testing.T) {
		orig := &Config{OutputDir: "out", Scan: ScanConfig{Ignore: []string{}}}
		cfg := orig.WithDefaults()
		assert.Equal(t, "out", cfg.OutputDir)
		assert.Empty(t, cfg.Scan.Ignore)
		assert.Empty(t, orig.ResourcesDir)
	})
}
