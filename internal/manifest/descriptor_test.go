package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/opmodel/capwire/internal/errors"
	"github.com/opmodel/capwire/internal/testutil"
)

func TestIsDescriptorPath(t *testing.T) {
	tests := map[string]bool{
		"capwire/registers/loud_LoudGreeter_register.yaml":     true,
		"capwire/registers/_register.yaml":                     false,
		"capwire/registers/loud.yaml":                          false,
		"capwire/registers/sub/loud_LoudGreeter_register.yaml": false,
		"pkg/capwire/registers/x_register.yaml":                false,
		"loud_register.yaml":                                   false,
	}
	for p, want := range tests {
		assert.Equal(t, want, IsDescriptorPath(p), p)
	}
}

func TestDescriptorNames(t *testing.T) {
	assert.Equal(t, "loud_LoudGreeter", DescriptorName("capwire/registers/loud_LoudGreeter_register.yaml"))
	assert.Equal(t, "capwire/registers/loud_LoudGreeter_register.yaml", DescriptorPath("loud_LoudGreeter"))
}

func TestDecodeAndEncode(t *testing.T) {
	d, err := Decode([]byte(testutil.LoudDescriptor))
	require.NoError(t, err)

	assert.Equal(t, "example.com/b/loud.LoudGreeter", d.Provider)
	require.NotNil(t, d.Factory)
	assert.Equal(t, "NewLoudGreeter", d.Factory.Func)
	assert.False(t, d.Factory.Error)
	assert.Equal(t, []string{"example.com/a/greeter.Greeter"}, d.Capabilities)
	assert.Equal(t, "example.com/b/loud", d.ProviderPackage())
	assert.Equal(t, "example.com/b/loud.NewLoudGreeter", d.FactoryBinary())

	out, err := d.Encode()
	require.NoError(t, err)
	assert.Equal(t, testutil.LoudDescriptor, string(out))
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode([]byte("provider: example.com/b/loud.LoudGreeter\nextra: 1\n"))
	require.Error(t, err)
}

func TestValidator(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "valid constructor provider", yaml: testutil.LoudDescriptor},
		{name: "valid type provider", yaml: testutil.QuietDescriptor},
		{
			name:    "missing provider",
			yaml:    "capabilities:\n  - example.com/a/greeter.Greeter\n",
			wantErr: "provider",
		},
		{
			name:    "missing capabilities",
			yaml:    "provider: example.com/b/loud.LoudGreeter\n",
			wantErr: "capabilities",
		},
		{
			name:    "empty capabilities",
			yaml:    "provider: example.com/b/loud.LoudGreeter\ncapabilities: []\n",
			wantErr: "capabilities",
		},
		{
			name:    "unexported provider",
			yaml:    "provider: example.com/b/loud.loudGreeter\ncapabilities:\n  - example.com/a/greeter.Greeter\n",
			wantErr: "provider",
		},
		{
			name:    "capability without package",
			yaml:    "provider: example.com/b/loud.LoudGreeter\ncapabilities:\n  - Greeter\n",
			wantErr: "capabilities",
		},
		{
			name:    "unexported factory",
			yaml:    "provider: example.com/b/loud.LoudGreeter\nfactory:\n  func: newLoud\ncapabilities:\n  - example.com/a/greeter.Greeter\n",
			wantErr: "factory",
		},
		{
			name:    "unknown field",
			yaml:    "provider: example.com/b/loud.LoudGreeter\nscope: singleton\ncapabilities:\n  - example.com/a/greeter.Greeter\n",
			wantErr: "scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := "example.com/b/capwire/registers/loud_LoudGreeter_register.yaml"
			d, err := v.Load(entry, []byte(tt.yaml))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, d)
				return
			}
			require.Error(t, err)
			var ide *InvalidDescriptorError
			require.ErrorAs(t, err, &ide)
			assert.Equal(t, entry, ide.Entry)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.ErrorIs(t, err, oerrors.ErrValidation)
		})
	}
}
