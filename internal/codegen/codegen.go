// Package codegen renders the bootstrap file of the registry host package.
//
// The bootstrap file declares the host's Registry, a binding table sorted by
// capability and, for every capability wired lazily, a proxy type that
// constructs the provider on its first method call.
package codegen

import (
	"bytes"
	_ "embed"
	"fmt"
	"go/ast"
	"go/format"
	"go/token"
	"path"
	"sort"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/capwire/internal/aggregate"
	"github.com/opmodel/capwire/internal/unit"
	"github.com/opmodel/capwire/internal/universe"
	"github.com/opmodel/capwire/pkg/capreg"
)

// BootstrapFile is the name of the generated file in the host package.
const BootstrapFile = "zz_capwire_bootstrap.go"

// RegistryVar is the generated registry variable.
const RegistryVar = "Registry"

//go:embed templates/bootstrap.go.tmpl
var bootstrapTemplate string

var tmpl = template.Must(template.New("bootstrap").Parse(bootstrapTemplate))

// reserved are the names the bootstrap file declares besides proxies.
var reserved = []string{RegistryVar, "bindings", "bootstrap"}

// locals are receiver and parameter names in generated functions. Import
// aliases must not be shadowed by them.
var locals = []string{"b", "binding", "err", "l", "p"}

// Output is a generated bootstrap file.
type Output struct {
	// Entry is the file's entry name in the host unit.
	Entry string
	Data  []byte

	// Replaced is set when the host unit already holds an entry of that name.
	Replaced bool
}

type fileData struct {
	Package  string
	Registry string
	Capreg   string
	Imports  []importData
	Bindings []bindingData
	Proxies  []proxyData
}

type importData struct {
	Alias string
	Path  string
}

type bindingData struct {
	Capability string
	Provider   string
	Construct  string
	Proxy      string
}

type proxyData struct {
	Name       string
	Ctor       string
	Capability string
	Methods    []methodData
}

type methodData struct {
	Name    string
	Params  string
	Results string
	Args    string
}

// generator holds the per-file naming state.
type generator struct {
	universe *universe.Universe
	host     *universe.Package
	entry    string

	taken   sets.Set[string]
	aliases map[string]string
}

// Generate renders the bootstrap file for bindings into the universe's host
// package. The output is deterministic for a given binding map.
func Generate(u *universe.Universe, bindings *aggregate.BindingMap) (*Output, error) {
	host := u.Host()
	if host == nil || len(host.Files) == 0 {
		return nil, &CodegenError{Reason: "no registry host package"}
	}

	g := &generator{
		universe: u,
		host:     host,
		entry:    path.Join(host.Dir(), BootstrapFile),
		aliases:  make(map[string]string),
	}
	g.taken = host.Names(g.entry)
	for _, name := range reserved {
		if g.taken.Has(name) {
			return nil, &CodegenError{Reason: fmt.Sprintf("host package %s already declares %s", host.ImportPath, name)}
		}
	}
	g.taken.Insert(reserved...)
	g.taken.Insert(locals...)

	data := fileData{
		Package:  host.Name,
		Registry: RegistryVar,
		Capreg:   g.alias(capreg.ImportPath, "capreg"),
	}

	var errs []error
	for _, b := range bindings.Bindings() {
		if b.CapabilityObject != nil && b.CapabilityObject.Generic() {
			errs = append(errs, &CodegenError{Capability: b.Capability, Reason: "generic capabilities cannot be bound"})
			continue
		}
		capType, err := g.typeName(b.Capability)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		row := bindingData{
			Capability: capType,
			Provider:   b.Provider,
			Proxy:      "nil",
		}
		if row.Construct, err = g.construct(b); err != nil {
			errs = append(errs, err)
			continue
		}
		if b.Lazy {
			proxy, err := g.proxy(b, capType)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			row.Proxy = proxy.Ctor
			data.Proxies = append(data.Proxies, proxy)
		}
		data.Bindings = append(data.Bindings, row)
	}
	if err := utilerrors.NewAggregate(errs); err != nil {
		return nil, err
	}

	for p, alias := range g.aliases {
		imp := importData{Path: p}
		if alias != g.universe.PackageName(p) {
			imp.Alias = alias
		}
		data.Imports = append(data.Imports, imp)
	}
	sort.Slice(data.Imports, func(i, j int) bool { return data.Imports[i].Path < data.Imports[j].Path })

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering bootstrap: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("formatting bootstrap: %w", err)
	}

	return &Output{Entry: g.entry, Data: src, Replaced: hasEntry(host.Unit, g.entry)}, nil
}

func hasEntry(u *unit.Unit, name string) bool {
	entries, err := u.Entries()
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

// alias returns the name the bootstrap file uses for the package at p,
// allocating one on first use. The host package is referred to unqualified.
func (g *generator) alias(p, want string) string {
	if p == g.host.ImportPath {
		return ""
	}
	if a, ok := g.aliases[p]; ok {
		return a
	}
	name := want
	for i := 2; g.taken.Has(name); i++ {
		name = fmt.Sprintf("%s%d", want, i)
	}
	g.taken.Insert(name)
	g.aliases[p] = name
	return name
}

// qualified renders name in the package at p as seen from the host.
func (g *generator) qualified(p, name string) string {
	if a := g.alias(p, g.universe.PackageName(p)); a != "" {
		return a + "." + name
	}
	return name
}

func (g *generator) typeName(binary string) (string, error) {
	p, name, ok := universe.SplitBinary(binary)
	if !ok {
		return "", &CodegenError{Capability: binary, Reason: "not a binary type name"}
	}
	return g.qualified(p, name), nil
}

// construct returns the body of a binding's factory wrapper.
func (g *generator) construct(b *aggregate.Binding) (string, error) {
	p, name, ok := universe.SplitBinary(b.Provider)
	if !ok {
		return "", &CodegenError{Capability: b.Capability, Reason: "provider " + b.Provider + " is not a binary type name"}
	}
	factory := b.Factory()
	switch {
	case factory == nil:
		return fmt.Sprintf("return &%s{}, nil", g.qualified(p, name)), nil
	case factory.Error:
		return fmt.Sprintf("return %s()", g.qualified(p, factory.Func)), nil
	default:
		return fmt.Sprintf("return %s(), nil", g.qualified(p, factory.Func)), nil
	}
}

// proxy builds the lazy proxy for a capability from its method set.
func (g *generator) proxy(b *aggregate.Binding, capType string) (proxyData, error) {
	obj := b.CapabilityObject
	if obj == nil {
		var err error
		if obj, err = g.universe.Lookup(b.Capability); err != nil {
			return proxyData{}, &CodegenError{Capability: b.Capability, Reason: "does not resolve"}
		}
	}
	if obj.Generic() {
		return proxyData{}, &CodegenError{Capability: b.Capability, Reason: "generic capabilities cannot be wired lazily"}
	}

	methods, err := g.methodSet(obj, sets.New[string]())
	if err != nil {
		return proxyData{}, err
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })

	base := lowerFirst(obj.Name) + "Proxy"
	name := base
	for i := 2; g.taken.Has(name); i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	g.taken.Insert(name)
	ctor := "new" + upperFirst(name)
	for i := 2; g.taken.Has(ctor); i++ {
		ctor = fmt.Sprintf("new%s%d", upperFirst(name), i)
	}
	g.taken.Insert(ctor)

	return proxyData{Name: name, Ctor: ctor, Capability: capType, Methods: methods}, nil
}

// methodSet collects the methods of an interface declaration, following
// embedded interfaces through the universe.
func (g *generator) methodSet(obj *universe.Object, visited sets.Set[string]) ([]methodData, error) {
	if visited.Has(obj.Binary) {
		return nil, nil
	}
	visited.Insert(obj.Binary)

	it, ok := obj.Interface()
	if !ok {
		return nil, &CodegenError{Capability: obj.Binary, Reason: "is not an interface"}
	}
	q := &qualifier{gen: g, file: obj.File, capability: obj.Binary}

	var methods []methodData
	seen := sets.New[string]()
	add := func(ms ...methodData) {
		for _, m := range ms {
			if !seen.Has(m.Name) {
				seen.Insert(m.Name)
				methods = append(methods, m)
			}
		}
	}

	for _, field := range it.Methods.List {
		if len(field.Names) > 0 {
			ft, ok := field.Type.(*ast.FuncType)
			if !ok {
				return nil, &CodegenError{Capability: obj.Binary, Reason: "unexpected interface element"}
			}
			for _, n := range field.Names {
				if !n.IsExported() {
					return nil, &CodegenError{Capability: obj.Binary, Reason: "method " + n.Name + " is unexported"}
				}
				m, err := q.method(n.Name, ft)
				if err != nil {
					return nil, err
				}
				add(m)
			}
			continue
		}

		if id, ok := field.Type.(*ast.Ident); ok && id.Name == "error" && !g.declares(obj.Package, "error") {
			add(methodData{Name: "Error", Results: "string"})
			continue
		}
		binary, ok := g.universe.ResolveType(obj.File, field.Type)
		if !ok {
			return nil, &CodegenError{Capability: obj.Binary, Reason: "embeds " + obj.File.Source(field.Type) + ", which is not an interface name"}
		}
		embedded, err := g.universe.Lookup(binary)
		if err != nil {
			return nil, &CodegenError{Capability: obj.Binary, Reason: "embeds " + binary + ", which is outside the scanned units"}
		}
		if embedded.Generic() {
			return nil, &CodegenError{Capability: obj.Binary, Reason: "embeds generic interface " + binary}
		}
		ms, err := g.methodSet(embedded, visited)
		if err != nil {
			return nil, err
		}
		add(ms...)
	}
	return methods, nil
}

func (g *generator) declares(pkg *universe.Package, name string) bool {
	return pkg.Names("").Has(name)
}

// qualifier rewrites type expressions written in a capability's file so they
// are valid in the host package.
type qualifier struct {
	gen        *generator
	file       *universe.File
	capability string
}

var predeclared = sets.New(
	"any", "bool", "byte", "comparable", "complex64", "complex128", "error",
	"float32", "float64", "int", "int8", "int16", "int32", "int64", "rune",
	"string", "uint", "uint8", "uint16", "uint32", "uint64", "uintptr",
)

func (q *qualifier) method(name string, ft *ast.FuncType) (methodData, error) {
	m := methodData{Name: name}

	var params, args []string
	if ft.Params != nil {
		for _, field := range ft.Params.List {
			typ, err := q.render(field.Type)
			if err != nil {
				return methodData{}, err
			}
			_, variadic := field.Type.(*ast.Ellipsis)
			n := max(len(field.Names), 1)
			for range n {
				arg := fmt.Sprintf("a%d", len(args))
				params = append(params, arg+" "+typ)
				if variadic {
					arg += "..."
				}
				args = append(args, arg)
			}
		}
	}
	m.Params = strings.Join(params, ", ")
	m.Args = strings.Join(args, ", ")

	if ft.Results != nil {
		var results []string
		for _, field := range ft.Results.List {
			typ, err := q.render(field.Type)
			if err != nil {
				return methodData{}, err
			}
			for range max(len(field.Names), 1) {
				results = append(results, typ)
			}
		}
		switch len(results) {
		case 0:
		case 1:
			m.Results = results[0]
		default:
			m.Results = "(" + strings.Join(results, ", ") + ")"
		}
	}
	return m, nil
}

// render returns the host-relative source of a type expression.
func (q *qualifier) render(expr ast.Expr) (string, error) {
	out, err := q.expr(expr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := format.Node(&buf, token.NewFileSet(), out); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (q *qualifier) fail(format string, args ...any) error {
	return &CodegenError{Capability: q.capability, Reason: fmt.Sprintf(format, args...)}
}

// expr returns a copy of e with every named type qualified for the host
// package. Only type expressions are accepted.
func (q *qualifier) expr(e ast.Expr) (ast.Expr, error) {
	switch t := e.(type) {
	case *ast.Ident:
		if predeclared.Has(t.Name) && !q.gen.declares(q.pkg(), t.Name) {
			return ast.NewIdent(t.Name), nil
		}
		if !ast.IsExported(t.Name) {
			return nil, q.fail("method signature uses unexported type %s", t.Name)
		}
		return q.selector(q.file.ImportPath, t.Name), nil

	case *ast.SelectorExpr:
		x, ok := t.X.(*ast.Ident)
		if !ok {
			return nil, q.fail("unsupported type %s", q.file.Source(t))
		}
		p, ok := universe.ImportByName(q.file.AST, x.Name, q.gen.universe.PackageName)
		if !ok {
			return nil, q.fail("unknown package %s", x.Name)
		}
		if !t.Sel.IsExported() {
			return nil, q.fail("method signature uses unexported type %s", q.file.Source(t))
		}
		return q.selector(p, t.Sel.Name), nil

	case *ast.StarExpr:
		x, err := q.expr(t.X)
		return &ast.StarExpr{X: x}, err

	case *ast.ParenExpr:
		return q.expr(t.X)

	case *ast.Ellipsis:
		elt, err := q.expr(t.Elt)
		return &ast.Ellipsis{Elt: elt}, err

	case *ast.ArrayType:
		if t.Len != nil {
			if _, ok := t.Len.(*ast.BasicLit); !ok {
				return nil, q.fail("array length %s is not a literal", q.file.Source(t.Len))
			}
		}
		elt, err := q.expr(t.Elt)
		return &ast.ArrayType{Len: t.Len, Elt: elt}, err

	case *ast.MapType:
		k, err := q.expr(t.Key)
		if err != nil {
			return nil, err
		}
		v, err := q.expr(t.Value)
		return &ast.MapType{Key: k, Value: v}, err

	case *ast.ChanType:
		v, err := q.expr(t.Value)
		return &ast.ChanType{Dir: t.Dir, Value: v, Begin: token.NoPos, Arrow: token.NoPos}, err

	case *ast.FuncType:
		if t.TypeParams != nil {
			return nil, q.fail("generic function type")
		}
		params, err := q.fields(t.Params)
		if err != nil {
			return nil, err
		}
		results, err := q.fields(t.Results)
		return &ast.FuncType{Params: params, Results: results}, err

	case *ast.StructType:
		fields, err := q.fields(t.Fields)
		return &ast.StructType{Fields: fields}, err

	case *ast.InterfaceType:
		methods, err := q.fields(t.Methods)
		return &ast.InterfaceType{Methods: methods}, err

	case *ast.IndexExpr:
		x, err := q.expr(t.X)
		if err != nil {
			return nil, err
		}
		idx, err := q.expr(t.Index)
		return &ast.IndexExpr{X: x, Index: idx}, err

	case *ast.IndexListExpr:
		x, err := q.expr(t.X)
		if err != nil {
			return nil, err
		}
		out := &ast.IndexListExpr{X: x}
		for _, i := range t.Indices {
			idx, err := q.expr(i)
			if err != nil {
				return nil, err
			}
			out.Indices = append(out.Indices, idx)
		}
		return out, nil
	}
	return nil, q.fail("unsupported type %s", q.file.Source(e))
}

// fields copies a field list, keeping names and qualifying types.
func (q *qualifier) fields(fl *ast.FieldList) (*ast.FieldList, error) {
	if fl == nil {
		return nil, nil
	}
	out := &ast.FieldList{}
	for _, f := range fl.List {
		typ, err := q.expr(f.Type)
		if err != nil {
			return nil, err
		}
		field := &ast.Field{Type: typ}
		for _, n := range f.Names {
			field.Names = append(field.Names, ast.NewIdent(n.Name))
		}
		out.List = append(out.List, field)
	}
	return out, nil
}

func (q *qualifier) pkg() *universe.Package {
	p, _ := q.gen.universe.Package(q.file.ImportPath)
	return p
}

func (q *qualifier) selector(p, name string) ast.Expr {
	alias := q.gen.alias(p, q.gen.universe.PackageName(p))
	if alias == "" {
		return ast.NewIdent(name)
	}
	return &ast.SelectorExpr{X: ast.NewIdent(alias), Sel: ast.NewIdent(name)}
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[n:]
}
