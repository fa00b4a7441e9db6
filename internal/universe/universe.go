// Package universe indexes every Go package of a set of units so that types
// and functions can be looked up by binary name ("importpath.Name") across
// all of them.
//
// The universe is the build's search path. It owns the units handed to
// Collect and Close releases them: open archives, parsed files and caches.
package universe

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/capwire/internal/directive"
	"github.com/opmodel/capwire/internal/output"
	"github.com/opmodel/capwire/internal/unit"
)

// File is one parsed Go source entry.
type File struct {
	Unit       *unit.Unit
	Entry      unit.Entry
	ImportPath string
	Src        []byte
	AST        *ast.File

	fset *token.FileSet
}

// Position returns the source position of pos.
func (f *File) Position(pos token.Pos) token.Position {
	p := f.fset.Position(pos)
	p.Filename = f.Entry.Name
	return p
}

// Source returns the source text spanning node.
func (f *File) Source(node ast.Node) string {
	tf := f.fset.File(node.Pos())
	if tf == nil {
		return ""
	}
	return string(f.Src[tf.Offset(node.Pos()):tf.Offset(node.End())])
}

// Offset returns the byte offset of pos in Src.
func (f *File) Offset(pos token.Pos) int {
	return f.fset.File(pos).Offset(pos)
}

// Package is every buildable file sharing one import path.
type Package struct {
	ImportPath string
	Name       string
	Unit       *unit.Unit
	Files      []*File
	Host       bool
}

// Dir returns the directory of the package's entries inside its unit.
func (p *Package) Dir() string {
	if len(p.Files) == 0 {
		return ""
	}
	return path.Dir(p.Files[0].Entry.Name)
}

// Imports returns the sorted import paths used by the package's files.
func (p *Package) Imports() []string {
	s := sets.New[string]()
	for _, f := range p.Files {
		for _, imp := range f.AST.Imports {
			s.Insert(importPath(imp))
		}
	}
	return sets.List(s)
}

// Names returns every package-level name declared by the package's files,
// except those in the excluded entry.
func (p *Package) Names(excludeEntry string) sets.Set[string] {
	names := sets.New[string]()
	for _, f := range p.Files {
		if f.Entry.Name == excludeEntry {
			continue
		}
		names.Insert(TopLevelNames(f.AST).UnsortedList()...)
	}
	return names
}

// TopLevelNames returns the package-level names declared in f.
func TopLevelNames(f *ast.File) sets.Set[string] {
	names := sets.New[string]()
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil {
				names.Insert(d.Name.Name)
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					names.Insert(s.Name.Name)
				case *ast.ValueSpec:
					for _, n := range s.Names {
						names.Insert(n.Name)
					}
				}
			}
		}
	}
	return names
}

// ObjectKind distinguishes type declarations from functions.
type ObjectKind int

const (
	// KindType is a type declaration.
	KindType ObjectKind = iota
	// KindFunc is a package-level function.
	KindFunc
)

// Object is a package-level type or function.
type Object struct {
	Kind    ObjectKind
	Binary  string
	Name    string
	Package *Package
	File    *File
	Doc     *ast.CommentGroup
	Type    *ast.TypeSpec
	Func    *ast.FuncDecl
}

// Exported reports whether the object's name is exported.
func (o *Object) Exported() bool {
	return ast.IsExported(o.Name)
}

// Interface returns the interface type of an interface declaration.
func (o *Object) Interface() (*ast.InterfaceType, bool) {
	if o.Kind != KindType {
		return nil, false
	}
	it, ok := o.Type.Type.(*ast.InterfaceType)
	return it, ok
}

// Generic reports whether the object declares type parameters.
func (o *Object) Generic() bool {
	switch o.Kind {
	case KindType:
		return o.Type.TypeParams != nil && len(o.Type.TypeParams.List) > 0
	case KindFunc:
		return o.Func.Type.TypeParams != nil && len(o.Func.Type.TypeParams.List) > 0
	}
	return false
}

// IsCapability reports whether the object is an interface marked
// //capwire:capability.
func (o *Object) IsCapability() bool {
	if _, ok := o.Interface(); !ok {
		return false
	}
	return directive.Has(o.Doc, directive.Capability)
}

// Option configures Collect.
type Option func(*options)

type options struct {
	workers int
}

// WithWorkers bounds the number of units parsed concurrently. Zero or less
// means unbounded.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// Universe is the cross-unit index.
type Universe struct {
	fset     *token.FileSet
	units    []*unit.Unit
	files    map[*unit.Unit][]*File
	packages map[string]*Package
	objects  map[string]*Object
	host     *Package

	closeOnce sync.Once
	closeErr  error
}

// Index parses every buildable Go file of units. Units are visited in scan
// order (archives first, then directories, each in input order). Index takes
// ownership of units and closes them if it fails.
func Index(ctx context.Context, units []*unit.Unit, opts ...Option) (*Universe, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	u := &Universe{
		fset:     token.NewFileSet(),
		units:    unit.Order(units),
		files:    make(map[*unit.Unit][]*File, len(units)),
		packages: make(map[string]*Package),
		objects:  make(map[string]*Object),
	}

	results := make([][]*File, len(u.units))
	g, gctx := errgroup.WithContext(ctx)
	if o.workers > 0 {
		g.SetLimit(o.workers)
	}
	for i, un := range u.units {
		g.Go(func() error {
			files, err := u.parseUnit(gctx, un)
			if err != nil {
				return err
			}
			results[i] = files
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = u.Close()
		return nil, err
	}

	for i, un := range u.units {
		u.files[un] = results[i]
		if err := u.add(un, results[i]); err != nil {
			_ = u.Close()
			return nil, err
		}
	}

	output.Debug("universe indexed",
		"units", len(u.units),
		"packages", len(u.packages),
		"objects", len(u.objects),
	)
	return u, nil
}

// Collect indexes units and partitions them into the unit hosting the
// registry package and every other unit, in scan order.
func Collect(ctx context.Context, units []*unit.Unit, opts ...Option) (*Universe, *unit.Unit, []*unit.Unit, error) {
	u, err := Index(ctx, units, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	var hosts []*Package
	for _, p := range u.Packages() {
		if p.Host {
			hosts = append(hosts, p)
		}
	}
	switch len(hosts) {
	case 0:
		_ = u.Close()
		return nil, nil, nil, &HostNotFoundError{Units: len(units)}
	case 1:
	default:
		names := make([]string, len(hosts))
		for i, h := range hosts {
			names[i] = h.ImportPath
		}
		_ = u.Close()
		return nil, nil, nil, &MultipleHostsError{Packages: names}
	}

	u.host = hosts[0]
	var others []*unit.Unit
	for _, un := range u.units {
		if un != u.host.Unit {
			others = append(others, un)
		}
	}
	output.Debug("registry host found", "package", u.host.ImportPath, "unit", u.host.Unit.Name())
	return u, u.host.Unit, others, nil
}

func (u *Universe) parseUnit(ctx context.Context, un *unit.Unit) ([]*File, error) {
	entries, err := un.Entries()
	if err != nil {
		return nil, err
	}
	var files []*File
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsGo() || unit.IgnoredByGoTool(e.ModRel) {
			continue
		}
		src, err := un.ReadEntry(e.Name)
		if err != nil {
			return nil, err
		}
		if !buildable(buildContext, e.Name, src) {
			continue
		}
		f, err := parser.ParseFile(u.fset, e.Name, src, parser.ParseComments|parser.SkipObjectResolution)
		if err != nil {
			return nil, &ParseError{Unit: un.Name(), Entry: e.Name, Err: err}
		}
		if strings.HasSuffix(f.Name.Name, "_test") {
			continue
		}
		files = append(files, &File{
			Unit:       un,
			Entry:      e,
			ImportPath: un.ImportPath(e),
			Src:        src,
			AST:        f,
			fset:       u.fset,
		})
	}
	return files, nil
}

func (u *Universe) add(un *unit.Unit, files []*File) error {
	for _, f := range files {
		pkg, ok := u.packages[f.ImportPath]
		if !ok {
			pkg = &Package{ImportPath: f.ImportPath, Name: f.AST.Name.Name, Unit: un}
			u.packages[f.ImportPath] = pkg
		} else if pkg.Unit != un {
			return &DuplicatePackageError{ImportPath: f.ImportPath, First: pkg.Unit.Name(), Second: un.Name()}
		}
		pkg.Files = append(pkg.Files, f)
		if directive.Has(f.AST.Doc, directive.Host) {
			pkg.Host = true
		}
		u.indexObjects(pkg, f)
	}
	return nil
}

func (u *Universe) indexObjects(pkg *Package, f *File) {
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
				u.addObject(&Object{
					Kind:    KindType,
					Binary:  pkg.ImportPath + "." + ts.Name.Name,
					Name:    ts.Name.Name,
					Package: pkg,
					File:    f,
					Doc:     doc,
					Type:    ts,
				})
			}
		case *ast.FuncDecl:
			if d.Recv != nil {
				continue
			}
			u.addObject(&Object{
				Kind:    KindFunc,
				Binary:  pkg.ImportPath + "." + d.Name.Name,
				Name:    d.Name.Name,
				Package: pkg,
				File:    f,
				Doc:     d.Doc,
				Func:    d,
			})
		}
	}
}

func (u *Universe) addObject(o *Object) {
	if _, exists := u.objects[o.Binary]; exists {
		return
	}
	u.objects[o.Binary] = o
}

// Fset returns the file set shared by every parsed file.
func (u *Universe) Fset() *token.FileSet {
	return u.fset
}

// Units returns the indexed units in scan order.
func (u *Universe) Units() []*unit.Unit {
	return u.units
}

// Host returns the registry host package. It is nil for universes built with
// Index.
func (u *Universe) Host() *Package {
	return u.host
}

// Files returns the buildable Go files of un in entry order.
func (u *Universe) Files(un *unit.Unit) []*File {
	return u.files[un]
}

// Package returns the package with the given import path.
func (u *Universe) Package(importPath string) (*Package, bool) {
	p, ok := u.packages[importPath]
	return p, ok
}

// Packages returns every package sorted by import path.
func (u *Universe) Packages() []*Package {
	out := make([]*Package, 0, len(u.packages))
	for _, p := range u.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImportPath < out[j].ImportPath })
	return out
}

// Lookup returns the type or function with the given binary name.
func (u *Universe) Lookup(binary string) (*Object, error) {
	if o, ok := u.objects[binary]; ok {
		return o, nil
	}
	return nil, &NotFoundError{Binary: binary}
}

// PackageName returns the declared name of the package at importPath, falling
// back to a guess from the path when the package is outside the universe.
func (u *Universe) PackageName(importPath string) string {
	if p, ok := u.packages[importPath]; ok {
		return p.Name
	}
	return GuessPackageName(importPath)
}

// ResolveType resolves a type expression written in f to a binary name.
func (u *Universe) ResolveType(f *File, expr ast.Expr) (string, bool) {
	return ResolveTypeExpr(f.ImportPath, f.AST, expr, u.PackageName)
}

// Close releases every unit and clears all caches. It is safe to call more
// than once.
func (u *Universe) Close() error {
	u.closeOnce.Do(func() {
		var errs []error
		for _, un := range u.units {
			if err := un.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		u.files = nil
		u.packages = nil
		u.objects = nil
		u.host = nil
		if len(errs) > 0 {
			u.closeErr = errs[0]
		}
	})
	return u.closeErr
}
