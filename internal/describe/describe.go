// Package describe emits the register descriptors of a module from the
// //capwire:provider directives in its source, and records the module in the
// module-register artifact.
package describe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/capwire/internal/directive"
	"github.com/opmodel/capwire/internal/fsutil"
	"github.com/opmodel/capwire/internal/manifest"
	"github.com/opmodel/capwire/internal/output"
	"github.com/opmodel/capwire/internal/unit"
	"github.com/opmodel/capwire/internal/universe"
)

// Options configures Describe.
type Options struct {
	// Validator checks descriptors before they are written. Nil compiles a
	// new one.
	Validator *manifest.Validator

	// PropertiesPath is the module-register artifact. Empty skips reading and
	// recording it.
	PropertiesPath string

	// Incremental skips a module the artifact already records.
	Incremental bool

	// Force describes the module even when Incremental would skip it.
	Force bool

	// DryRun collects and validates descriptors without writing anything.
	DryRun bool
}

// Provider is one provider found in the module.
type Provider struct {
	// Name is the descriptor name, <package>_<Type>.
	Name       string
	Descriptor *manifest.Descriptor
	Position   token.Position
}

// Result is the outcome of describing one module.
type Result struct {
	Module string
	Dir    string

	// Skipped is set when incremental mode found the module recorded.
	Skipped   bool
	Providers []*Provider

	// Written and Removed name the descriptors created or changed, and the
	// stale ones deleted.
	Written []string
	Removed []string
}

// Describe writes one register descriptor per provider declared in the
// module rooted at dir and removes stale ones. Nothing is written when any
// provider directive is invalid.
func Describe(ctx context.Context, dir string, opts Options) (*Result, error) {
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err != nil {
		return nil, &ModuleRootError{Dir: dir, Reason: "no go.mod; describe runs at a module root"}
	}
	un, err := unit.Open(0, unit.Location{Path: dir})
	if err != nil {
		return nil, err
	}
	res := &Result{Module: un.ModulePath, Dir: un.Root}
	log := output.UnitLogger(un.Name())

	props := manifest.Properties{}
	if opts.PropertiesPath != "" {
		props, err = manifest.ReadProperties(opts.PropertiesPath)
		if err != nil {
			_ = un.Close()
			return nil, err
		}
		if opts.Incremental && !opts.Force && props.Has(un.ModulePath) {
			_ = un.Close()
			log.Debug("module already registered", "module", un.ModulePath)
			res.Skipped = true
			return res, nil
		}
	}

	u, err := universe.Index(ctx, []*unit.Unit{un})
	if err != nil {
		return nil, err
	}
	defer u.Close()

	v := opts.Validator
	if v == nil {
		if v, err = manifest.NewValidator(); err != nil {
			return nil, err
		}
	}

	c := &collector{
		universe:   u,
		byName:     make(map[string]*Provider),
		byProvider: make(map[string]*Provider),
	}
	for _, f := range u.Files(un) {
		c.file(f)
	}
	for _, p := range c.providers() {
		if err := v.Validate(manifest.DescriptorPath(p.Name), p.Descriptor); err != nil {
			c.errs = append(c.errs, err)
		}
	}
	if len(c.errs) > 0 {
		return nil, utilerrors.NewAggregate(c.errs)
	}
	res.Providers = c.providers()

	if opts.DryRun {
		return res, nil
	}
	res.Written, res.Removed, err = writeDescriptors(un.Root, res.Providers)
	if err != nil {
		return nil, err
	}
	if opts.PropertiesPath != "" {
		names := make([]string, len(res.Providers))
		for i, p := range res.Providers {
			names[i] = p.Name
		}
		props.Set(un.ModulePath, names)
		if err := manifest.WriteProperties(opts.PropertiesPath, props); err != nil {
			return nil, err
		}
	}

	log.Info("module described",
		"providers", len(res.Providers),
		"written", len(res.Written),
		"removed", len(res.Removed),
	)
	return res, nil
}

type collector struct {
	universe   *universe.Universe
	byName     map[string]*Provider
	byProvider map[string]*Provider
	errs       []error
}

func (c *collector) providers() []*Provider {
	out := make([]*Provider, 0, len(c.byName))
	for _, p := range c.byName {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *collector) file(f *universe.File) {
	for _, decl := range f.AST.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts := spec.(*ast.TypeSpec)
				doc := ts.Doc
				if doc == nil && len(d.Specs) == 1 {
					doc = d.Doc
				}
				if dv, ok := directive.Find(doc, directive.Provider); ok {
					c.typeProvider(f, ts, dv)
				}
			}
		case *ast.FuncDecl:
			if dv, ok := directive.Find(d.Doc, directive.Provider); ok {
				c.funcProvider(f, d, dv)
			}
		}
	}
}

func (c *collector) fail(f *universe.File, name *ast.Ident, format string, args ...any) {
	c.errs = append(c.errs, &DescriptorError{
		Decl:     f.ImportPath + "." + name.Name,
		Position: f.Position(name.Pos()),
		Reason:   fmt.Sprintf(format, args...),
	})
}

func (c *collector) typeProvider(f *universe.File, ts *ast.TypeSpec, dv directive.Directive) {
	switch {
	case !ts.Name.IsExported():
		c.fail(f, ts.Name, "is not exported")
		return
	case ts.TypeParams != nil && len(ts.TypeParams.List) > 0:
		c.fail(f, ts.Name, "is generic")
		return
	}
	if _, ok := ts.Type.(*ast.InterfaceType); ok {
		c.fail(f, ts.Name, "is an interface; providers are concrete types")
		return
	}
	caps, ok := c.capabilities(f, ts.Name, dv)
	if !ok {
		return
	}
	c.add(f, ts.Name, ts.Name.Name, &manifest.Descriptor{
		Provider:     f.ImportPath + "." + ts.Name.Name,
		Capabilities: caps,
	})
}

func (c *collector) funcProvider(f *universe.File, fd *ast.FuncDecl, dv directive.Directive) {
	switch {
	case fd.Recv != nil:
		c.fail(f, fd.Name, "methods cannot be providers")
		return
	case !fd.Name.IsExported():
		c.fail(f, fd.Name, "is not exported")
		return
	case fd.Type.TypeParams != nil && len(fd.Type.TypeParams.List) > 0:
		c.fail(f, fd.Name, "is generic")
		return
	case fd.Type.Params.NumFields() > 0:
		c.fail(f, fd.Name, "constructor takes parameters")
		return
	}

	var results []ast.Expr
	if fd.Type.Results != nil {
		for _, field := range fd.Type.Results.List {
			n := max(len(field.Names), 1)
			for range n {
				results = append(results, field.Type)
			}
		}
	}
	withErr := len(results) == 2 && isErrorIdent(results[1])
	if len(results) != 1 && !withErr {
		c.fail(f, fd.Name, "constructor must return T, *T or (T, error)")
		return
	}

	ret := results[0]
	if star, ok := ret.(*ast.StarExpr); ok {
		ret = star.X
	}
	id, ok := ret.(*ast.Ident)
	if !ok {
		c.fail(f, fd.Name, "constructor must return a type declared in package %s", f.ImportPath)
		return
	}
	obj, err := c.universe.Lookup(f.ImportPath + "." + id.Name)
	if err != nil || obj.Kind != universe.KindType {
		c.fail(f, fd.Name, "constructor must return a type declared in package %s", f.ImportPath)
		return
	}
	if !obj.Exported() {
		c.fail(f, fd.Name, "returns unexported type %s", id.Name)
		return
	}
	if _, ok := obj.Interface(); ok {
		c.fail(f, fd.Name, "returns interface %s; providers are concrete types", id.Name)
		return
	}

	caps, ok := c.capabilities(f, fd.Name, dv)
	if !ok {
		return
	}
	c.add(f, fd.Name, id.Name, &manifest.Descriptor{
		Provider:     obj.Binary,
		Factory:      &manifest.Factory{Func: fd.Name.Name, Error: withErr},
		Capabilities: caps,
	})
}

func isErrorIdent(e ast.Expr) bool {
	id, ok := e.(*ast.Ident)
	return ok && id.Name == "error"
}

// capabilities resolves the directive's arguments to binary names. An
// argument is a binary name, a name qualified by one of the file's imports,
// or a bare name of the file's own package.
func (c *collector) capabilities(f *universe.File, decl *ast.Ident, dv directive.Directive) ([]string, bool) {
	if len(dv.Args) == 0 {
		c.fail(f, decl, "directive names no capabilities")
		return nil, false
	}
	seen := sets.New[string]()
	var out []string
	ok := true
	for _, arg := range dv.Args {
		binary, err := c.resolve(f, arg)
		if err != nil {
			c.fail(f, decl, "%v", err)
			ok = false
			continue
		}
		if seen.Has(binary) {
			continue
		}
		seen.Insert(binary)
		out = append(out, binary)
	}
	return out, ok
}

func (c *collector) resolve(f *universe.File, arg string) (string, error) {
	var binary string
	switch {
	case strings.Contains(arg, "/"):
		_, name, ok := universe.SplitBinary(arg)
		if !ok || !token.IsIdentifier(name) {
			return "", fmt.Errorf("capability %s is not a binary name", arg)
		}
		binary = arg
	case strings.Contains(arg, "."):
		pkg, name, _ := strings.Cut(arg, ".")
		if !token.IsIdentifier(pkg) || !token.IsIdentifier(name) {
			return "", fmt.Errorf("capability %s is not a qualified name", arg)
		}
		imp, ok := universe.ImportByName(f.AST, pkg, c.universe.PackageName)
		if !ok {
			return "", fmt.Errorf("capability %s does not resolve: no import named %s", arg, pkg)
		}
		binary = imp + "." + name
	default:
		if !token.IsIdentifier(arg) {
			return "", fmt.Errorf("capability %s is not an identifier", arg)
		}
		binary = f.ImportPath + "." + arg
	}

	// Capabilities of this module are checked here; others are checked when
	// the application is built.
	pkg, _, _ := universe.SplitBinary(binary)
	if _, local := c.universe.Package(pkg); local {
		obj, err := c.universe.Lookup(binary)
		if err != nil {
			return "", fmt.Errorf("capability %s does not resolve", binary)
		}
		if !obj.IsCapability() {
			return "", fmt.Errorf("%s is not an interface marked //capwire:capability", binary)
		}
	}
	return binary, nil
}

func (c *collector) add(f *universe.File, decl *ast.Ident, typeName string, d *manifest.Descriptor) {
	if prev, ok := c.byProvider[d.Provider]; ok {
		c.fail(f, decl, "%s is already marked as a provider at %s", d.Provider, prev.Position)
		return
	}
	name := f.AST.Name.Name + "_" + typeName
	if prev, ok := c.byName[name]; ok {
		c.fail(f, decl, "descriptor name %s is already used by %s", name, prev.Descriptor.Provider)
		return
	}
	p := &Provider{Name: name, Descriptor: d, Position: f.Position(decl.Pos())}
	c.byName[name] = p
	c.byProvider[d.Provider] = p
}

// writeDescriptors writes the descriptors of providers under the module root
// and deletes every other descriptor in the reserved namespace. Files whose
// content is unchanged are left alone.
func writeDescriptors(root string, providers []*Provider) (written, removed []string, err error) {
	dir := filepath.Join(root, filepath.FromSlash(manifest.ReservedNamespace))
	keep := sets.New[string]()
	for _, p := range providers {
		data, err := p.Descriptor.Encode()
		if err != nil {
			return nil, nil, fmt.Errorf("encoding descriptor %s: %w", p.Name, err)
		}
		base := p.Name + manifest.DescriptorSuffix
		keep.Insert(base)
		path := filepath.Join(dir, base)
		if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, data) {
			continue
		}
		if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
			return nil, nil, err
		}
		written = append(written, p.Name)
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return written, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, e := range entries {
		modRel := manifest.ReservedNamespace + "/" + e.Name()
		if e.IsDir() || keep.Has(e.Name()) || !manifest.IsDescriptorPath(modRel) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return nil, nil, fmt.Errorf("removing stale descriptor: %w", err)
		}
		removed = append(removed, manifest.DescriptorName(modRel))
	}
	return written, removed, nil
}
