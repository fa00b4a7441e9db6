// Package aggregate folds register descriptors into a binding map and checks
// it against the universe and the wired variables.
package aggregate

import (
	"fmt"
	"go/ast"
	"sort"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/capwire/internal/manifest"
	"github.com/opmodel/capwire/internal/output"
	"github.com/opmodel/capwire/internal/scan"
	"github.com/opmodel/capwire/internal/universe"
)

// Binding binds one capability to its provider.
type Binding struct {
	// Capability and Provider are binary names.
	Capability string
	Provider   string

	// Register is the descriptor the binding came from.
	Register *scan.Register

	// Lazy is set when any wired variable resolves the capability lazily.
	Lazy bool

	// Resolved objects, set by Validate.
	CapabilityObject *universe.Object
	ProviderObject   *universe.Object
	FactoryObject    *universe.Object
}

// Factory returns the descriptor's factory, or nil when the provider is
// constructed as &T{}.
func (b *Binding) Factory() *manifest.Factory {
	return b.Register.Descriptor.Factory
}

// BindingMap maps capabilities to bindings. At most one provider is bound to
// a capability.
type BindingMap struct {
	bindings map[string]*Binding
}

// NewBindingMap returns an empty BindingMap.
func NewBindingMap() *BindingMap {
	return &BindingMap{bindings: make(map[string]*Binding)}
}

// Insert binds capability to the provider of reg. Binding the same provider
// again is a no-op; a distinct provider is a *DuplicateBindingError.
func (m *BindingMap) Insert(capability string, reg *scan.Register) error {
	provider := reg.Descriptor.Provider
	if existing, ok := m.bindings[capability]; ok {
		if existing.Provider == provider {
			return nil
		}
		return &DuplicateBindingError{
			Capability: capability,
			Provider:   provider,
			Existing:   existing.Provider,
		}
	}
	m.bindings[capability] = &Binding{Capability: capability, Provider: provider, Register: reg}
	return nil
}

// Get returns the binding for capability.
func (m *BindingMap) Get(capability string) (*Binding, bool) {
	b, ok := m.bindings[capability]
	return b, ok
}

// Len returns the number of bound capabilities.
func (m *BindingMap) Len() int {
	return len(m.bindings)
}

// Bindings returns every binding sorted by capability.
func (m *BindingMap) Bindings() []*Binding {
	out := make([]*Binding, 0, len(m.bindings))
	for _, b := range m.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Capability < out[j].Capability })
	return out
}

// Aggregate builds the binding map from the descriptors of res, in key
// order, and validates it.
func Aggregate(u *universe.Universe, res *scan.Result) (*BindingMap, error) {
	m := NewBindingMap()
	var errs []error
	for _, reg := range res.Registers() {
		for _, capability := range reg.Descriptor.Capabilities {
			if err := m.Insert(capability, reg); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return nil, utilerrors.NewAggregate(errs)
	}
	if err := Validate(u, m, res.Wired()); err != nil {
		return nil, err
	}
	output.Debug("bindings aggregated", "bindings", m.Len(), "wired", len(res.Wired()))
	return m, nil
}

// Validate resolves every binding in the universe, checks that every wired
// variable is bound and that no provider package imports a package that
// depends on the registry. It marks bindings resolved lazily.
func Validate(u *universe.Universe, m *BindingMap, wired []*scan.WiredField) error {
	var errs []error
	for _, b := range m.Bindings() {
		errs = append(errs, resolve(u, b)...)
	}

	dependents := sets.New[string]()
	if h := u.Host(); h != nil {
		dependents.Insert(h.ImportPath)
	}
	for _, w := range wired {
		dependents.Insert(w.ImportPath)
		b, ok := m.Get(w.Capability)
		if !ok {
			errs = append(errs, &BindingError{
				Capability: w.Capability,
				Reason:     fmt.Sprintf("wired by %s (%s) but no provider is bound", w.Var, w.Position()),
			})
			continue
		}
		if w.Lazy {
			b.Lazy = true
		}
	}

	checked := sets.New[string]()
	for _, b := range m.Bindings() {
		pkg := b.Register.Descriptor.ProviderPackage()
		if checked.Has(pkg) {
			continue
		}
		checked.Insert(pkg)
		if path := importPathTo(u, pkg, dependents); path != nil {
			errs = append(errs, &ImportCycleError{Provider: b.Provider, Path: path})
		}
	}
	return utilerrors.NewAggregate(errs)
}

func resolve(u *universe.Universe, b *Binding) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, &BindingError{
			Capability: b.Capability,
			Provider:   b.Provider,
			Reason:     fmt.Sprintf(format, args...),
		})
	}

	if obj, err := u.Lookup(b.Capability); err != nil {
		fail("capability does not resolve")
	} else if !obj.IsCapability() {
		fail("%s is not an interface marked as a capability", b.Capability)
	} else {
		b.CapabilityObject = obj
	}

	obj, err := u.Lookup(b.Provider)
	switch {
	case err != nil:
		fail("provider does not resolve")
		return errs
	case obj.Kind != universe.KindType:
		fail("provider is not a type")
		return errs
	case !obj.Exported():
		fail("provider is not exported")
	case obj.Generic():
		fail("provider is generic")
	}
	b.ProviderObject = obj

	factory := b.Factory()
	if factory == nil {
		if _, ok := obj.Type.Type.(*ast.StructType); !ok {
			fail("provider has no factory and is not a struct type")
		}
		return errs
	}

	fn, err := u.Lookup(b.Register.Descriptor.FactoryBinary())
	switch {
	case err != nil:
		fail("factory %s does not resolve", factory.Func)
		return errs
	case fn.Kind != universe.KindFunc:
		fail("factory %s is not a function", factory.Func)
		return errs
	case !fn.Exported():
		fail("factory %s is not exported", factory.Func)
	case fn.Generic():
		fail("factory %s is generic", factory.Func)
	}
	ft := fn.Func.Type
	if ft.Params.NumFields() > 0 {
		fail("factory %s takes parameters", factory.Func)
	}
	switch results := ft.Results.NumFields(); {
	case results == 1 && !factory.Error:
	case results == 2 && factory.Error && isError(ft.Results.List[len(ft.Results.List)-1].Type):
	default:
		fail("factory %s must return the provider, or the provider and an error as the descriptor says", factory.Func)
	}
	b.FactoryObject = fn
	return errs
}

func isError(expr ast.Expr) bool {
	id, ok := expr.(*ast.Ident)
	return ok && id.Name == "error"
}

// importPathTo searches the universe imports breadth-first from pkg and
// returns the import chain to the first package in targets, or nil.
func importPathTo(u *universe.Universe, pkg string, targets sets.Set[string]) []string {
	parent := map[string]string{pkg: ""}
	queue := []string{pkg}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if targets.Has(cur) {
			var path []string
			for p := cur; p != ""; p = parent[p] {
				path = append([]string{p}, path...)
			}
			return path
		}
		p, ok := u.Package(cur)
		if !ok {
			continue
		}
		for _, imp := range p.Imports() {
			if _, seen := parent[imp]; seen {
				continue
			}
			parent[imp] = cur
			queue = append(queue, imp)
		}
	}
	return nil
}
