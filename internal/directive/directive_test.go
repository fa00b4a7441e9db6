package directive

import (
	"go/ast"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantOK   bool
		wantName string
		wantArgs []string
	}{
		{name: "bare", text: "//capwire:capability", wantOK: true, wantName: Capability},
		{name: "with args", text: "//capwire:provider greeter.Greeter  clock.Clock", wantOK: true, wantName: Provider, wantArgs: []string{"greeter.Greeter", "clock.Clock"}},
		{name: "space after slashes", text: "// capwire:wire", wantOK: false},
		{name: "ordinary comment", text: "// Greeter greets.", wantOK: false},
		{name: "empty name", text: "//capwire:", wantOK: false},
		{name: "block comment", text: "/*capwire:wire*/", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := Parse(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantName, d.Name)
			assert.Equal(t, tt.wantArgs, d.Args)
		})
	}
}

func TestFind(t *testing.T) {
	cg := &ast.CommentGroup{List: []*ast.Comment{
		{Text: "// Greeter is used by the CLI."},
		{Text: "//capwire:wire lazy"},
	}}

	d, ok := Find(cg, Wire)
	require.True(t, ok)
	assert.Equal(t, []string{"lazy"}, d.Args)
	assert.Same(t, cg.List[1], d.Comment)
	assert.Equal(t, "//capwire:wire lazy", d.String())

	assert.False(t, Has(cg, Wired))
	assert.False(t, Has(nil, Wire))
}

func TestMode(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		def          bool
		wantLazy     bool
		wantExplicit bool
		wantErr      bool
	}{
		{name: "default eager", def: false, wantLazy: false},
		{name: "default lazy", def: true, wantLazy: true},
		{name: "lazy", args: []string{"lazy"}, wantLazy: true, wantExplicit: true},
		{name: "lazy=true", args: []string{"lazy=true"}, wantLazy: true, wantExplicit: true},
		{name: "lazy=false overrides default", args: []string{"lazy=false"}, def: true, wantLazy: false, wantExplicit: true},
		{name: "eager", args: []string{"eager"}, def: true, wantLazy: false, wantExplicit: true},
		{name: "bad bool", args: []string{"lazy=maybe"}, wantErr: true},
		{name: "unknown", args: []string{"fast"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Directive{Name: Wire, Args: tt.args}
			lazy, explicit, err := d.Mode(tt.def)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLazy, lazy)
			assert.Equal(t, tt.wantExplicit, explicit)
		})
	}
}
