package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		cfg       *Config
		wantErr   bool
		wantField string
	}{
		{name: "default config is valid", cfg: DefaultConfig()},
		{name: "empty config is valid", cfg: &Config{}},
		{
			name: "full config is valid",
			cfg: &Config{
				Debug:    true,
				Workers:  8,
				Packages: FilterConfig{Include: []string{"example.com/"}},
				Archives: FilterConfig{Exclude: []string{"^R$"}},
				Units:    []UnitConfig{{Path: "./app", Output: "./out/app"}},
			},
		},
		{name: "negative workers", cfg: &Config{Workers: -1}, wantErr: true, wantField: "workers"},
		{name: "blank output dir", cfg: &Config{OutputDir: "   "}, wantErr: true, wantField: "outputDir"},
		{name: "unit without path", cfg: &Config{Units: []UnitConfig{{Output: "x"}}}, wantErr: true, wantField: "units"},
		{name: "invalid archive regex", cfg: &Config{Archives: FilterConfig{Include: []string{"("}}}, wantErr: true, wantField: "archives.include[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.cfg)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Contains(t, verrs.Error(), tt.wantField)
		})
	}
}

func TestValidator_ValidateFile(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "capwire.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 2000\n"), 0o644))

	err = v.ValidateFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}

func TestValidationErrors_Error(t *testing.T) {
	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
	errs := ValidationErrors{{Field: "workers", Message: "too large"}}
	assert.Contains(t, errs.Error(), "workers: too large")
}
