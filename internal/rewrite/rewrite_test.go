package rewrite

import (
	"context"
	"go/parser"
	"go/token"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/opmodel/capwire/internal/errors"
	"github.com/opmodel/capwire/internal/scan"
	"github.com/opmodel/capwire/internal/testutil"
	"github.com/opmodel/capwire/internal/unit"
	"github.com/opmodel/capwire/internal/universe"
)

type fixture struct {
	modules  testutil.GreeterModules
	universe *universe.Universe
	result   *scan.Result
}

func setup(t *testing.T, consumer string, extra map[string]string) fixture {
	t.Helper()
	m := testutil.WriteGreeterModules(t, t.TempDir(), consumer)
	for name, content := range extra {
		testutil.WriteFile(t, filepath.Dir(m.A), name, content)
	}

	var units []*unit.Unit
	for i, p := range []string{m.C, m.A, m.B} {
		u, err := unit.Open(i, unit.Location{Path: p})
		require.NoError(t, err)
		units = append(units, u)
	}
	u, _, _, err := universe.Collect(context.Background(), units)
	require.NoError(t, err)
	t.Cleanup(func() { _ = u.Close() })

	res, err := scan.New(u, scan.Options{}).Scan(context.Background())
	require.NoError(t, err)
	return fixture{modules: m, universe: u, result: res}
}

// consumerEdit rewrites the fixture and returns the new source of entry in the
// consumer unit.
func (f fixture) consumerEdit(t *testing.T, entry string) string {
	t.Helper()
	edits, err := New(f.universe).Rewrite(f.result)
	require.NoError(t, err)
	for un, e := range edits {
		if un.ModulePath == testutil.ConsumerModule {
			data, ok := e[entry]
			require.True(t, ok, "no edit for %s", entry)
			_, err := parser.ParseFile(token.NewFileSet(), entry, data, parser.ParseComments)
			require.NoError(t, err)
			return string(data)
		}
	}
	t.Fatalf("consumer unit was not rewritten")
	return ""
}

func TestRewrite_Eager(t *testing.T) {
	f := setup(t, testutil.ConsumerSource, nil)
	src := f.consumerEdit(t, "app/app.go")

	assert.Contains(t, src, "//capwire:wired\nvar G greeter.Greeter = capreg.MustResolve[greeter.Greeter](wiring.Registry)\n")
	assert.Contains(t, src, `"example.com/c/wiring"`)
	assert.Contains(t, src, `"github.com/opmodel/capwire/pkg/capreg"`)
	assert.Contains(t, src, "// G greets on behalf of the app.")
	assert.Contains(t, src, "func Hello(name string) string {")
	assert.NotContains(t, src, "//capwire:wire\n")
}

func TestRewrite_Lazy(t *testing.T) {
	f := setup(t, testutil.LazyConsumerSource, nil)
	src := f.consumerEdit(t, "app/app.go")

	assert.Contains(t, src, "//capwire:wired lazy\nvar G greeter.Greeter = capreg.MustResolveLazy[greeter.Greeter](wiring.Registry)\n")
}

func TestRewrite_ReplacesInitializer(t *testing.T) {
	consumer := "package app\n\nimport \"example.com/a/greeter\"\n\n//capwire:wire\nvar G greeter.Greeter = nil\n"
	f := setup(t, consumer, nil)
	src := f.consumerEdit(t, "app/app.go")

	assert.Contains(t, src, "var G greeter.Greeter = capreg.MustResolve[greeter.Greeter](wiring.Registry)\n")
	assert.NotContains(t, src, "= nil")
}

func TestRewrite_MultipleNames(t *testing.T) {
	consumer := "package app\n\nimport \"example.com/a/greeter\"\n\n//capwire:wire\nvar First, Second greeter.Greeter\n"
	f := setup(t, consumer, nil)
	src := f.consumerEdit(t, "app/app.go")

	call := "capreg.MustResolve[greeter.Greeter](wiring.Registry)"
	assert.Contains(t, src, "var First, Second greeter.Greeter = "+call+", "+call+"\n")
}

func TestRewrite_AvoidsNameConflicts(t *testing.T) {
	consumer := `package app

import "example.com/a/greeter"

var capreg = "taken"

//capwire:wire
var G greeter.Greeter
`
	extra := map[string]string{"c/app/names.go": "package app\n\nvar wiring = 1\n"}
	f := setup(t, consumer, extra)
	src := f.consumerEdit(t, "app/app.go")

	assert.Contains(t, src, `capreg2 "github.com/opmodel/capwire/pkg/capreg"`)
	assert.Contains(t, src, `wiring2 "example.com/c/wiring"`)
	assert.Contains(t, src, "capreg2.MustResolve[greeter.Greeter](wiring2.Registry)")
}

func TestRewrite_ReusesExistingImport(t *testing.T) {
	consumer := `package app

import (
	"example.com/a/greeter"
	w "example.com/c/wiring"
)

var _ = w.Registry

//capwire:wire
var G greeter.Greeter
`
	f := setup(t, consumer, nil)
	src := f.consumerEdit(t, "app/app.go")

	assert.Contains(t, src, "capreg.MustResolve[greeter.Greeter](w.Registry)")
	assert.NotContains(t, src, `	"example.com/c/wiring"`)
}

func TestRewrite_HostPackageUsesRegistryUnqualified(t *testing.T) {
	host := `// Package wiring hosts the capability registry.
//
//capwire:host
package wiring

import "example.com/a/greeter"

//capwire:wire
var Default greeter.Greeter
`
	f := setup(t, testutil.ConsumerSource, map[string]string{"c/wiring/wiring.go": host})
	src := f.consumerEdit(t, "wiring/wiring.go")

	assert.Contains(t, src, "var Default greeter.Greeter = capreg.MustResolve[greeter.Greeter](Registry)\n")
	assert.NotContains(t, src, `"example.com/c/wiring"`)
}

func TestRewrite_DoneFilesAreUntouched(t *testing.T) {
	consumer := `package app

import (
	"example.com/a/greeter"
	"example.com/c/wiring"
	"github.com/opmodel/capwire/pkg/capreg"
)

//capwire:wired
var G greeter.Greeter = capreg.MustResolve[greeter.Greeter](wiring.Registry)
`
	f := setup(t, consumer, nil)
	edits, err := New(f.universe).Rewrite(f.result)
	require.NoError(t, err)
	assert.Empty(t, edits)
}

func TestRewrite_DanglingCapability(t *testing.T) {
	tests := []struct {
		name     string
		consumer string
		wantErr  string
	}{
		{
			name:     "unresolved type",
			consumer: "package app\n\nimport \"fmt\"\n\n//capwire:wire\nvar S fmt.Stringer\n",
			wantErr:  "fmt.Stringer does not resolve",
		},
		{
			name:     "unmarked interface",
			consumer: "package app\n\nimport \"example.com/a/greeter\"\n\n//capwire:wire\nvar P greeter.Plain\n",
			wantErr:  "example.com/a/greeter.Plain is not an interface marked //capwire:capability",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extra := map[string]string{"a/greeter/plain.go": "package greeter\n\ntype Plain interface{ Do() }\n"}
			f := setup(t, tt.consumer, extra)

			_, err := New(f.universe).Rewrite(f.result)
			require.Error(t, err)
			assert.ErrorIs(t, err, oerrors.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
