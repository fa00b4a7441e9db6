package scan

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opmodel/capwire/internal/config"
	oerrors "github.com/opmodel/capwire/internal/errors"
	"github.com/opmodel/capwire/internal/manifest"
	"github.com/opmodel/capwire/internal/testutil"
	"github.com/opmodel/capwire/internal/unit"
	"github.com/opmodel/capwire/internal/universe"
)

func collect(t *testing.T, paths ...string) *universe.Universe {
	t.Helper()
	var units []*unit.Unit
	for i, p := range paths {
		u, err := unit.Open(i, unit.Location{Path: p})
		require.NoError(t, err)
		units = append(units, u)
	}
	u, _, _, err := universe.Collect(context.Background(), units)
	require.NoError(t, err)
	t.Cleanup(func() { _ = u.Close() })
	return u
}

func scanGreeter(t *testing.T, consumer string, opts Options) (*Result, error) {
	t.Helper()
	m := testutil.WriteGreeterModules(t, t.TempDir(), consumer)
	u := collect(t, m.C, m.A, m.B, m.B2)
	return New(u, opts).Scan(context.Background())
}

func TestScan_RegistersAndWiredVars(t *testing.T) {
	res, err := scanGreeter(t, testutil.ConsumerSource, Options{Workers: 2})
	require.NoError(t, err)

	regs := res.Registers()
	require.Len(t, regs, 2)
	assert.Equal(t, "example.com/b/capwire/registers/loud_LoudGreeter_register.yaml", regs[0].Key)
	assert.Equal(t, "loud_LoudGreeter", regs[0].Name)
	assert.Equal(t, testutil.LoudModule, regs[0].Module)
	assert.Equal(t, "example.com/b/loud.LoudGreeter", regs[0].Descriptor.Provider)
	require.NotNil(t, regs[0].Descriptor.Factory)
	assert.Equal(t, "NewLoudGreeter", regs[0].Descriptor.Factory.Func)
	assert.Equal(t, "example.com/b2/quiet.QuietGreeter", regs[1].Descriptor.Provider)

	wired := res.Wired()
	require.Len(t, wired, 1)
	w := wired[0]
	assert.Equal(t, "G", w.Name)
	assert.Equal(t, "example.com/c/app.G", w.Var)
	assert.Equal(t, "example.com/c/app", w.ImportPath)
	assert.Equal(t, "greeter.Greeter", w.TypeExpr)
	assert.Equal(t, "example.com/a/greeter.Greeter", w.Capability)
	assert.False(t, w.Lazy)
	assert.False(t, w.Explicit)
	assert.False(t, w.Done)
	assert.Equal(t, "eager", w.Mode())
	assert.Equal(t, "app/app.go", w.Position().Filename)
}

func TestScan_FilesWithoutWiredVarsAreNotListed(t *testing.T) {
	res, err := scanGreeter(t, testutil.ConsumerSource, Options{})
	require.NoError(t, err)

	for _, ur := range res.Units {
		assert.True(t, ur.Scanned)
		for _, fr := range ur.Files {
			assert.Equal(t, "app/app.go", fr.File.Entry.Name)
			assert.True(t, fr.Pending())
		}
	}
}

func TestScan_Modes(t *testing.T) {
	tests := []struct {
		name         string
		consumer     string
		defaultLazy  bool
		wantLazy     bool
		wantExplicit bool
	}{
		{name: "default eager", consumer: testutil.ConsumerSource},
		{name: "default lazy", consumer: testutil.ConsumerSource, defaultLazy: true, wantLazy: true},
		{name: "explicit lazy", consumer: testutil.LazyConsumerSource, wantLazy: true, wantExplicit: true},
		{
			name:         "explicit eager overrides default",
			consumer:     "package app\n\nimport \"example.com/a/greeter\"\n\n//capwire:wire lazy=false\nvar G greeter.Greeter\n",
			defaultLazy:  true,
			wantExplicit: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := scanGreeter(t, tt.consumer, Options{DefaultLazy: tt.defaultLazy})
			require.NoError(t, err)
			wired := res.Wired()
			require.Len(t, wired, 1)
			assert.Equal(t, tt.wantLazy, wired[0].Lazy)
			assert.Equal(t, tt.wantExplicit, wired[0].Explicit)
		})
	}
}

func TestScan_GroupedVars(t *testing.T) {
	consumer := `package app

import "example.com/a/greeter"

var (
	//capwire:wire
	First, Second greeter.Greeter

	plain int
)
`
	res, err := scanGreeter(t, consumer, Options{})
	require.NoError(t, err)

	wired := res.Wired()
	require.Len(t, wired, 2)
	assert.Equal(t, "First", wired[0].Name)
	assert.Equal(t, 0, wired[0].Index)
	assert.Equal(t, "Second", wired[1].Name)
	assert.Equal(t, 1, wired[1].Index)
	assert.Same(t, wired[0].Spec, wired[1].Spec)
}

func TestScan_AlreadyWiredIsDone(t *testing.T) {
	consumer := `package app

import (
	"example.com/a/greeter"
	"example.com/c/wiring"
	"github.com/opmodel/capwire/pkg/capreg"
)

//capwire:wired lazy
var G greeter.Greeter = capreg.MustResolveLazy[greeter.Greeter](wiring.Registry)
`
	res, err := scanGreeter(t, consumer, Options{})
	require.NoError(t, err)

	wired := res.Wired()
	require.Len(t, wired, 1)
	assert.True(t, wired[0].Done)
	assert.True(t, wired[0].Lazy)
	assert.Equal(t, "example.com/a/greeter.Greeter", wired[0].Capability)
	assert.False(t, res.Units[0].Files[0].Pending())
}

func TestScan_AlreadyWiredModeFollowsInitializer(t *testing.T) {
	const consumer = `package app

import (
	"example.com/a/greeter"
	"example.com/c/wiring"
	"github.com/opmodel/capwire/pkg/capreg"
)

//capwire:wired
var G greeter.Greeter = capreg.%s[greeter.Greeter](wiring.Registry)
`
	tests := []struct {
		name        string
		call        string
		defaultLazy bool
		wantLazy    bool
	}{
		{name: "lazy call under eager default", call: "MustResolveLazy", wantLazy: true},
		{name: "eager call under lazy default", call: "MustResolve", defaultLazy: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := scanGreeter(t, fmt.Sprintf(consumer, tt.call), Options{DefaultLazy: tt.defaultLazy})
			require.NoError(t, err)
			wired := res.Wired()
			require.Len(t, wired, 1)
			assert.True(t, wired[0].Done)
			assert.Equal(t, tt.wantLazy, wired[0].Lazy)
		})
	}
}

func TestScan_WiringErrors(t *testing.T) {
	tests := []struct {
		name     string
		consumer string
		wantErr  string
	}{
		{
			name:     "no declared type",
			consumer: "package app\n\nimport \"example.com/a/greeter\"\n\n//capwire:wire\nvar G = greeter.Greeter(nil)\n",
			wantErr:  "no declared type",
		},
		{
			name:     "unnamed type",
			consumer: "package app\n\nimport \"example.com/a/greeter\"\n\n//capwire:wire\nvar G []greeter.Greeter\n",
			wantErr:  "is not a named type",
		},
		{
			name:     "unknown mode",
			consumer: "package app\n\nimport \"example.com/a/greeter\"\n\n//capwire:wire sometimes\nvar G greeter.Greeter\n",
			wantErr:  `unknown wire argument "sometimes"`,
		},
		{
			name:     "assigned in init",
			consumer: `package app

import "example.com/a/greeter"

//capwire:wire
var G greeter.Greeter

func init() {
	G = nil
}
`,
			wantErr: "assigned in init",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := scanGreeter(t, tt.consumer, Options{})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, oerrors.ErrValidation)
			assert.Contains(t, err.Error(), "example.com/c/app.G")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScan_InitShadowing(t *testing.T) {
	const consumer = `package app

import "example.com/a/greeter"

//capwire:wire
var G greeter.Greeter

func init() {
%s
}
`
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "short declaration", body: "\tG := 1\n\t_ = G"},
		{name: "local var", body: "\tvar G int\n\tG = 1\n\t_ = G"},
		{name: "closure parameter", body: "\tf := func(G int) { G = 2; _ = G }\n\tf(1)"},
		{name: "if init", body: "\tif G := 1; G > 0 {\n\t\tG = 2\n\t}"},
		{name: "range variable", body: "\tfor _, G := range []int{1} {\n\t\tG = 2\n\t\t_ = G\n\t}"},
		{name: "closure assigns wired var", body: "\tfunc() { G = nil }()", wantErr: true},
		{name: "assignment after inner scope ends", body: "\t{\n\t\tG := 1\n\t\t_ = G\n\t}\n\tG = nil", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scanGreeter(t, fmt.Sprintf(consumer, tt.body), Options{})
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "assigned in init")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestScan_InvalidDescriptor(t *testing.T) {
	root := t.TempDir()
	m := testutil.WriteGreeterModules(t, root, testutil.ConsumerSource)
	testutil.WriteFile(t, m.B, "capwire/registers/broken_register.yaml", "provider: example.com/b/loud.LoudGreeter\ncapabilities: []\n")

	u := collect(t, m.C, m.A, m.B)
	_, err := New(u, Options{}).Scan(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, oerrors.ErrValidation)
	assert.Contains(t, err.Error(), "broken_register.yaml")
}

func TestScan_PackageFilterSkipsWiredVars(t *testing.T) {
	m := testutil.WriteGreeterModules(t, t.TempDir(), testutil.ConsumerSource)
	u := collect(t, m.C, m.A, m.B)

	f, err := NewFilter(config.FilterConfig{Exclude: []string{"example.com/c/"}}, config.FilterConfig{}, nil)
	require.NoError(t, err)

	res, err := New(u, Options{Filter: f}).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Wired())
	assert.Len(t, res.Registers(), 1)
}

func TestScan_ArchiveFilter(t *testing.T) {
	root := t.TempDir()
	m := testutil.WriteGreeterModules(t, root, testutil.ConsumerSource)
	bZip := testutil.ZipDir(t, m.B, filepath.Join(root, "loud-v1.zip"), "example.com/b@v1.0.0/")
	u := collect(t, m.C, m.A, bZip)

	f, err := NewFilter(config.FilterConfig{}, config.FilterConfig{Exclude: []string{"^loud-"}}, nil)
	require.NoError(t, err)

	res, err := New(u, Options{Filter: f}).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Registers())

	for _, ur := range res.Units {
		assert.Equal(t, !ur.Unit.IsArchive(), ur.Scanned, ur.Unit.Name())
	}
}

func TestScan_Canceled(t *testing.T) {
	m := testutil.WriteGreeterModules(t, t.TempDir(), testutil.ConsumerSource)
	u := collect(t, m.C, m.A, m.B)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(u, Options{}).Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResult_RegistersDeduplicatesByKey(t *testing.T) {
	reg := func(key string) *Register {
		return &Register{Key: key, Descriptor: &manifest.Descriptor{Provider: key}}
	}
	res := &Result{Units: []*UnitResult{
		{Registers: []*Register{reg("m/b"), reg("m/a")}},
		{Registers: []*Register{reg("m/a")}},
	}}

	regs := res.Registers()
	require.Len(t, regs, 2)
	assert.Equal(t, "m/a", regs[0].Key)
	assert.Equal(t, "m/b", regs[1].Key)
}
