// Package scan finds register descriptors and wired variables in the units of
// a universe.
//
// Units are scanned concurrently. Each worker fills only its own result slot
// and the combined Result is assembled after every worker has returned.
package scan

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	"sort"

	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/capwire/internal/config"
	"github.com/opmodel/capwire/internal/directive"
	"github.com/opmodel/capwire/internal/manifest"
	"github.com/opmodel/capwire/internal/output"
	"github.com/opmodel/capwire/internal/unit"
	"github.com/opmodel/capwire/internal/universe"
)

// Options configures a Scanner.
type Options struct {
	// Filter selects scanned units and entries. Nil scans everything outside
	// DefaultExcludes.
	Filter *Filter

	// Validator checks descriptors. Nil compiles a new one.
	Validator *manifest.Validator

	// DefaultLazy is the mode of wire directives that do not name one.
	DefaultLazy bool

	// Workers bounds the number of units scanned at once. Zero or less means
	// unbounded.
	Workers int
}

// Register is a register descriptor found in a unit.
type Register struct {
	// Key identifies the descriptor across units: modulePath/modRel.
	Key string

	// Name is the descriptor file name without the suffix marker.
	Name string

	// Module is the module path of the unit holding the descriptor.
	Module     string
	Unit       *unit.Unit
	Entry      unit.Entry
	Descriptor *manifest.Descriptor
}

// WiredField is one package-level variable marked for wiring.
type WiredField struct {
	File      *universe.File
	Decl      *ast.GenDecl
	Spec      *ast.ValueSpec
	Directive directive.Directive

	// Index is the position of the variable among Spec.Names.
	Index int
	Name  string

	// Var is the variable's binary name.
	Var        string
	ImportPath string

	// TypeExpr is the declared type as written in source.
	TypeExpr string

	// Capability is the binary name TypeExpr resolves to.
	Capability string

	Lazy     bool
	Explicit bool

	// Done is set for variables a previous build already rewrote. They are
	// validated and reported but never rewritten again.
	Done bool
}

// Mode returns "lazy" or "eager".
func (w *WiredField) Mode() string {
	if w.Lazy {
		return "lazy"
	}
	return "eager"
}

// Position returns the source position of the variable.
func (w *WiredField) Position() token.Position {
	return w.File.Position(w.Spec.Names[w.Index].Pos())
}

// FileResult holds the wired variables of one file.
type FileResult struct {
	File  *universe.File
	Wired []*WiredField
}

// Pending reports whether any variable of the file still needs rewriting.
func (r *FileResult) Pending() bool {
	for _, w := range r.Wired {
		if !w.Done {
			return true
		}
	}
	return false
}

// UnitResult is the scan outcome of one unit.
type UnitResult struct {
	Unit *unit.Unit

	// Scanned is false for archives excluded by the archive filter.
	Scanned   bool
	Registers []*Register

	// Files lists only files that declare wired variables.
	Files []*FileResult
}

// Result is the scan outcome of every unit, in scan order.
type Result struct {
	Units []*UnitResult
}

// Registers returns every descriptor sorted by key. Descriptors sharing a key
// are reported once.
func (r *Result) Registers() []*Register {
	seen := make(map[string]bool)
	var out []*Register
	for _, ur := range r.Units {
		for _, reg := range ur.Registers {
			if seen[reg.Key] {
				continue
			}
			seen[reg.Key] = true
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Wired returns every wired variable in scan order.
func (r *Result) Wired() []*WiredField {
	var out []*WiredField
	for _, ur := range r.Units {
		for _, fr := range ur.Files {
			out = append(out, fr.Wired...)
		}
	}
	return out
}

// Unit returns the result for un.
func (r *Result) Unit(un *unit.Unit) (*UnitResult, bool) {
	for _, ur := range r.Units {
		if ur.Unit == un {
			return ur, true
		}
	}
	return nil, false
}

// Scanner scans the units of a universe.
type Scanner struct {
	universe *universe.Universe
	opts     Options
}

// New returns a Scanner over u.
func New(u *universe.Universe, opts Options) *Scanner {
	return &Scanner{universe: u, opts: opts}
}

// Scan scans every unit. Errors from all units are aggregated; the result is
// nil when any unit failed.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	if s.opts.Filter == nil {
		f, err := NewFilter(config.FilterConfig{}, config.FilterConfig{}, nil)
		if err != nil {
			return nil, err
		}
		s.opts.Filter = f
	}
	if s.opts.Validator == nil {
		v, err := manifest.NewValidator()
		if err != nil {
			return nil, err
		}
		s.opts.Validator = v
	}

	units := s.universe.Units()
	results := make([]*UnitResult, len(units))
	errs := make([][]error, len(units))

	var g errgroup.Group
	if s.opts.Workers > 0 {
		g.SetLimit(s.opts.Workers)
	}
	for i, un := range units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = s.scanUnit(un)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []error
	for _, e := range errs {
		all = append(all, e...)
	}
	if agg := utilerrors.NewAggregate(all); agg != nil {
		return nil, agg
	}
	return &Result{Units: results}, nil
}

func (s *Scanner) scanUnit(un *unit.Unit) (*UnitResult, []error) {
	log := output.UnitLogger(un.Name())
	res := &UnitResult{Unit: un}
	if !s.opts.Filter.Archive(un) {
		log.Debug("archive excluded from scan")
		return res, nil
	}
	res.Scanned = true

	var errs []error
	entries, err := un.Entries()
	if err != nil {
		return res, []error{err}
	}
	for _, e := range entries {
		if !manifest.IsDescriptorPath(e.ModRel) || s.opts.Filter.Ignored(e.ModRel) {
			continue
		}
		reg, err := s.loadRegister(un, e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		res.Registers = append(res.Registers, reg)
	}

	for _, f := range s.universe.Files(un) {
		if s.opts.Filter.Ignored(f.Entry.ModRel) || !s.opts.Filter.Namespace(f.ImportPath, f.Entry.ModRel) {
			continue
		}
		wired, ferrs := s.scanFile(f)
		errs = append(errs, ferrs...)
		if len(wired) > 0 {
			res.Files = append(res.Files, &FileResult{File: f, Wired: wired})
		}
	}

	log.Debug("unit scanned", "registers", len(res.Registers), "files", len(res.Files))
	return res, errs
}

func (s *Scanner) loadRegister(un *unit.Unit, e unit.Entry) (*Register, error) {
	data, err := un.ReadEntry(e.Name)
	if err != nil {
		return nil, err
	}
	d, err := s.opts.Validator.Load(un.Name()+"!"+e.Name, data)
	if err != nil {
		return nil, err
	}
	return &Register{
		Key:        un.ModulePath + "/" + e.ModRel,
		Name:       manifest.DescriptorName(e.ModRel),
		Module:     un.ModulePath,
		Unit:       un,
		Entry:      e,
		Descriptor: d,
	}, nil
}

// scanFile returns the wired variables declared in f.
func (s *Scanner) scanFile(f *universe.File) ([]*WiredField, []error) {
	var (
		wired []*WiredField
		errs  []error
	)
	for _, decl := range f.AST.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.VAR {
			continue
		}
		for _, spec := range gd.Specs {
			vs := spec.(*ast.ValueSpec)
			doc := vs.Doc
			if doc == nil && gd.Lparen == token.NoPos {
				doc = gd.Doc
			}
			d, done := directive.Find(doc, directive.Wired)
			if !done {
				if d, ok = directive.Find(doc, directive.Wire); !ok {
					continue
				}
			}
			fields, err := s.wiredFields(f, gd, vs, d, done)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			wired = append(wired, fields...)
		}
	}
	if len(wired) > 0 {
		errs = append(errs, s.checkInit(f, wired)...)
	}
	return wired, errs
}

func (s *Scanner) wiredFields(f *universe.File, gd *ast.GenDecl, vs *ast.ValueSpec, d directive.Directive, done bool) ([]*WiredField, error) {
	first := vs.Names[0]
	fail := func(format string, args ...any) error {
		return &WiringError{
			Var:      f.ImportPath + "." + first.Name,
			Position: f.Position(first.Pos()),
			Reason:   fmt.Sprintf(format, args...),
		}
	}

	if vs.Type == nil {
		return nil, fail("no declared type")
	}
	capability, ok := s.universe.ResolveType(f, vs.Type)
	if !ok {
		return nil, fail("type %s is not a named type", f.Source(vs.Type))
	}
	lazy, explicit, err := d.Mode(s.opts.DefaultLazy)
	if err != nil {
		return nil, fail("%v", err)
	}

	fields := make([]*WiredField, 0, len(vs.Names))
	for i, name := range vs.Names {
		if name.Name == "_" {
			return nil, fail("blank identifier cannot be wired")
		}
		// A rewritten var keeps the mode its initializer resolves with, so a
		// rebuild under a different default still generates its proxy.
		mode := lazy
		if done && i < len(vs.Values) {
			if l, ok := resolvedMode(vs.Values[i]); ok {
				mode = l
			}
		}
		fields = append(fields, &WiredField{
			File:       f,
			Decl:       gd,
			Spec:       vs,
			Directive:  d,
			Index:      i,
			Name:       name.Name,
			Var:        f.ImportPath + "." + name.Name,
			ImportPath: f.ImportPath,
			TypeExpr:   f.Source(vs.Type),
			Capability: capability,
			Lazy:       mode,
			Explicit:   explicit,
			Done:       done,
		})
	}
	return fields, nil
}

// resolvedMode reports whether v is a MustResolveLazy or MustResolve call.
func resolvedMode(v ast.Expr) (lazy, ok bool) {
	call, ok := v.(*ast.CallExpr)
	if !ok {
		return false, false
	}
	fun := call.Fun
	switch x := fun.(type) {
	case *ast.IndexExpr:
		fun = x.X
	case *ast.IndexListExpr:
		fun = x.X
	}
	var name string
	switch x := fun.(type) {
	case *ast.SelectorExpr:
		name = x.Sel.Name
	case *ast.Ident:
		name = x.Name
	}
	switch name {
	case "MustResolveLazy":
		return true, true
	case "MustResolve":
		return false, true
	}
	return false, false
}

// checkInit reports wired variables assigned by an init function anywhere in
// their package. Assignments to a local that shadows a wired name are allowed.
func (s *Scanner) checkInit(f *universe.File, wired []*WiredField) []error {
	byName := make(map[string]*WiredField, len(wired))
	for _, w := range wired {
		byName[w.Name] = w
	}

	pkg, ok := s.universe.Package(f.ImportPath)
	if !ok {
		return nil
	}
	var errs []error
	for _, pf := range pkg.Files {
		for _, decl := range pf.AST.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Recv != nil || fd.Name.Name != "init" || fd.Body == nil {
				continue
			}
			c := &initChecker{file: pf, byName: byName}
			c.block(fd.Body.List, sets.New[string]())
			errs = append(errs, c.errs...)
		}
	}
	return errs
}

// initChecker walks an init body tracking the names local declarations
// shadow.
type initChecker struct {
	file   *universe.File
	byName map[string]*WiredField
	errs   []error
}

func (c *initChecker) block(stmts []ast.Stmt, shadowed sets.Set[string]) {
	inner := shadowed.Clone()
	for _, st := range stmts {
		c.stmt(st, inner)
	}
}

func (c *initChecker) stmt(st ast.Stmt, shadowed sets.Set[string]) {
	switch s := st.(type) {
	case nil:
	case *ast.DeclStmt:
		gd, ok := s.Decl.(*ast.GenDecl)
		if !ok {
			return
		}
		for _, spec := range gd.Specs {
			switch sp := spec.(type) {
			case *ast.ValueSpec:
				for _, v := range sp.Values {
					c.expr(v, shadowed)
				}
				for _, name := range sp.Names {
					shadowed.Insert(name.Name)
				}
			case *ast.TypeSpec:
				shadowed.Insert(sp.Name.Name)
			}
		}
	case *ast.AssignStmt:
		for _, rhs := range s.Rhs {
			c.expr(rhs, shadowed)
		}
		for _, lhs := range s.Lhs {
			if s.Tok == token.DEFINE {
				if id, ok := lhs.(*ast.Ident); ok {
					shadowed.Insert(id.Name)
				}
				continue
			}
			c.target(lhs, s.Pos(), shadowed)
		}
	case *ast.BlockStmt:
		c.block(s.List, shadowed)
	case *ast.IfStmt:
		inner := shadowed.Clone()
		c.stmt(s.Init, inner)
		c.expr(s.Cond, inner)
		c.block(s.Body.List, inner)
		c.stmt(s.Else, inner)
	case *ast.ForStmt:
		inner := shadowed.Clone()
		c.stmt(s.Init, inner)
		c.expr(s.Cond, inner)
		c.stmt(s.Post, inner)
		c.block(s.Body.List, inner)
	case *ast.RangeStmt:
		c.expr(s.X, shadowed)
		inner := shadowed.Clone()
		for _, e := range []ast.Expr{s.Key, s.Value} {
			if e == nil {
				continue
			}
			if s.Tok == token.DEFINE {
				if id, ok := e.(*ast.Ident); ok {
					inner.Insert(id.Name)
				}
				continue
			}
			c.target(e, s.Pos(), inner)
		}
		c.block(s.Body.List, inner)
	case *ast.SwitchStmt:
		inner := shadowed.Clone()
		c.stmt(s.Init, inner)
		c.expr(s.Tag, inner)
		c.clauses(s.Body, inner)
	case *ast.TypeSwitchStmt:
		inner := shadowed.Clone()
		c.stmt(s.Init, inner)
		c.stmt(s.Assign, inner)
		c.clauses(s.Body, inner)
	case *ast.SelectStmt:
		c.clauses(s.Body, shadowed)
	case *ast.LabeledStmt:
		c.stmt(s.Stmt, shadowed)
	default:
		c.expr(st, shadowed)
	}
}

func (c *initChecker) clauses(body *ast.BlockStmt, shadowed sets.Set[string]) {
	for _, cl := range body.List {
		inner := shadowed.Clone()
		switch cc := cl.(type) {
		case *ast.CaseClause:
			for _, e := range cc.List {
				c.expr(e, inner)
			}
			c.block(cc.Body, inner)
		case *ast.CommClause:
			c.stmt(cc.Comm, inner)
			c.block(cc.Body, inner)
		}
	}
}

// expr visits the function literals inside n.
func (c *initChecker) expr(n ast.Node, shadowed sets.Set[string]) {
	if n == nil {
		return
	}
	ast.Inspect(n, func(n ast.Node) bool {
		fl, ok := n.(*ast.FuncLit)
		if !ok {
			return true
		}
		inner := shadowed.Clone()
		for _, fields := range []*ast.FieldList{fl.Type.Params, fl.Type.Results} {
			if fields == nil {
				continue
			}
			for _, field := range fields.List {
				for _, name := range field.Names {
					inner.Insert(name.Name)
				}
			}
		}
		c.block(fl.Body.List, inner)
		return false
	})
}

func (c *initChecker) target(e ast.Expr, pos token.Pos, shadowed sets.Set[string]) {
	id, ok := e.(*ast.Ident)
	if !ok {
		c.expr(e, shadowed)
		return
	}
	w, ok := c.byName[id.Name]
	if !ok || shadowed.Has(id.Name) {
		return
	}
	c.errs = append(c.errs, &WiringError{
		Var:      w.Var,
		Position: c.file.Position(pos),
		Reason:   "assigned in init; the registry initializes wired vars",
	})
}
