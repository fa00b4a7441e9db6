// Package rewrite initializes wired variables from the host registry.
//
// A wired variable
//
//	//capwire:wire
//	var G greeter.Greeter
//
// becomes
//
//	//capwire:wired
//	var G greeter.Greeter = capreg.MustResolve[greeter.Greeter](wiring.Registry)
//
// The directive rename marks the variable as done so later builds leave it
// alone.
package rewrite

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"sort"
	"strings"

	"golang.org/x/tools/go/ast/astutil"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/capwire/internal/directive"
	"github.com/opmodel/capwire/internal/output"
	"github.com/opmodel/capwire/internal/scan"
	"github.com/opmodel/capwire/internal/unit"
	"github.com/opmodel/capwire/internal/universe"
	"github.com/opmodel/capwire/pkg/capreg"
)

// RegistryVar is the name of the generated registry variable in the host
// package.
const RegistryVar = "Registry"

// Rewriter rewrites files with wired variables.
type Rewriter struct {
	universe *universe.Universe
	host     *universe.Package
}

// New returns a Rewriter for the universe's host package.
func New(u *universe.Universe) *Rewriter {
	return &Rewriter{universe: u, host: u.Host()}
}

// Edits maps entry names to rewritten contents for one unit.
type Edits map[string][]byte

// Rewrite rewrites every file of res with pending wired variables. Every
// wired variable, pending or not, is checked against the universe. Errors
// from all files are aggregated.
func (r *Rewriter) Rewrite(res *scan.Result) (map[*unit.Unit]Edits, error) {
	out := make(map[*unit.Unit]Edits)
	var errs []error
	for _, ur := range res.Units {
		for _, fr := range ur.Files {
			if err := r.Check(fr); err != nil {
				errs = append(errs, err)
				continue
			}
			if !fr.Pending() {
				continue
			}
			data, err := r.RewriteFile(fr)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if out[ur.Unit] == nil {
				out[ur.Unit] = make(Edits)
			}
			out[ur.Unit][fr.File.Entry.Name] = data
			output.UnitLogger(ur.Unit.Name()).Debug("rewrote wired vars", "file", fr.File.Entry.Name, "vars", len(fr.Wired))
		}
	}
	if err := utilerrors.NewAggregate(errs); err != nil {
		return nil, err
	}
	return out, nil
}

// Check verifies that every wired variable of fr is typed with an interface
// marked as a capability.
func (r *Rewriter) Check(fr *scan.FileResult) error {
	var errs []error
	for _, w := range fr.Wired {
		obj, err := r.universe.Lookup(w.Capability)
		if err != nil {
			errs = append(errs, dangling(w, "does not resolve"))
			continue
		}
		if !obj.IsCapability() {
			errs = append(errs, dangling(w, "is not an interface marked "+directive.Prefix+directive.Capability))
		}
	}
	return utilerrors.NewAggregate(errs)
}

func dangling(w *scan.WiredField, reason string) error {
	return &DanglingCapabilityError{
		Var:        w.Var,
		Capability: w.Capability,
		Position:   w.Position(),
		Reason:     reason,
	}
}

type splice struct {
	start, end int
	text       string
}

// RewriteFile returns the rewritten source of fr's file.
func (r *Rewriter) RewriteFile(fr *scan.FileResult) ([]byte, error) {
	f := fr.File
	if r.host == nil {
		return nil, fmt.Errorf("rewriting %s: universe has no registry host", f.Entry.Name)
	}
	inHost := f.ImportPath == r.host.ImportPath

	taken := r.takenNames(f)
	capregName := r.importName(f, capreg.ImportPath, "capreg", taken)
	registry := RegistryVar
	var hostName string
	if !inHost {
		hostName = r.importName(f, r.host.ImportPath, r.host.Name, taken)
		registry = hostName + "." + RegistryVar
	}

	var splices []splice
	seen := make(map[*ast.ValueSpec]bool)
	for _, w := range fr.Wired {
		if w.Done || seen[w.Spec] {
			continue
		}
		seen[w.Spec] = true
		splices = append(splices, r.specSplices(f, w, capregName, registry)...)
	}

	sort.Slice(splices, func(i, j int) bool { return splices[i].start > splices[j].start })
	src := append([]byte(nil), f.Src...)
	for _, s := range splices {
		src = append(src[:s.start], append([]byte(s.text), src[s.end:]...)...)
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, f.Entry.Name, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("reparsing rewritten %s: %w", f.Entry.Name, err)
	}
	addImport(fset, file, capregName, "capreg", capreg.ImportPath)
	if !inHost {
		addImport(fset, file, hostName, r.host.Name, r.host.ImportPath)
	}

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return nil, fmt.Errorf("formatting rewritten %s: %w", f.Entry.Name, err)
	}
	return buf.Bytes(), nil
}

// specSplices replaces the directive and the initializers of one var spec.
func (r *Rewriter) specSplices(f *universe.File, w *scan.WiredField, capregName, registry string) []splice {
	resolve := "MustResolve"
	if w.Lazy {
		resolve = "MustResolveLazy"
	}
	call := fmt.Sprintf("%s.%s[%s](%s)", capregName, resolve, w.TypeExpr, registry)
	calls := make([]string, len(w.Spec.Names))
	for i := range calls {
		calls[i] = call
	}

	assign := splice{
		start: f.Offset(w.Spec.Type.End()),
		text:  " = " + strings.Join(calls, ", "),
	}
	assign.end = assign.start
	if n := len(w.Spec.Values); n > 0 {
		assign.end = f.Offset(w.Spec.Values[n-1].End())
	}

	wired := directive.Directive{Name: directive.Wired, Args: w.Directive.Args}
	c := w.Directive.Comment
	return []splice{
		assign,
		{start: f.Offset(c.Slash), end: f.Offset(c.End()), text: wired.String()},
	}
}

// takenNames returns the names an added import must not shadow: the file's
// import names and every package-level name of its package.
func (r *Rewriter) takenNames(f *universe.File) sets.Set[string] {
	taken := sets.New[string]()
	for _, imp := range f.AST.Imports {
		taken.Insert(universe.ImportName(imp, r.universe.PackageName))
	}
	if pkg, ok := r.universe.Package(f.ImportPath); ok {
		taken = taken.Union(pkg.Names(""))
	} else {
		taken = taken.Union(universe.TopLevelNames(f.AST))
	}
	return taken
}

// importName returns the name under which f refers to path: the existing
// import's name, or want made unique against taken.
func (r *Rewriter) importName(f *universe.File, path, want string, taken sets.Set[string]) string {
	for _, imp := range f.AST.Imports {
		if imp.Path.Value != fmt.Sprintf("%q", path) {
			continue
		}
		if name := universe.ImportName(imp, r.universe.PackageName); name != "_" && name != "." {
			return name
		}
	}
	name := want
	for i := 2; taken.Has(name); i++ {
		name = fmt.Sprintf("%s%d", want, i)
	}
	taken.Insert(name)
	return name
}

func addImport(fset *token.FileSet, f *ast.File, name, pkgName, path string) {
	if name == pkgName {
		name = ""
	}
	astutil.AddNamedImport(fset, f, name, path)
}
