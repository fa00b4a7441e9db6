package universe

import (
	"go/ast"
	"path"
	"strconv"
	"strings"
)

// NameFunc returns the package name declared at an import path.
type NameFunc func(importPath string) string

// ResolveTypeExpr resolves a named type expression written in file f of the
// package at importPath. It accepts a bare identifier (a type of the same
// package) or a selector through one of the file's imports.
func ResolveTypeExpr(importPath string, f *ast.File, expr ast.Expr, names NameFunc) (string, bool) {
	switch e := expr.(type) {
	case *ast.Ident:
		return importPath + "." + e.Name, true
	case *ast.SelectorExpr:
		x, ok := e.X.(*ast.Ident)
		if !ok {
			return "", false
		}
		imp, ok := ImportByName(f, x.Name, names)
		if !ok {
			return "", false
		}
		return imp + "." + e.Sel.Name, true
	case *ast.ParenExpr:
		return ResolveTypeExpr(importPath, f, e.X, names)
	}
	return "", false
}

// ImportByName returns the import path bound to name in f.
func ImportByName(f *ast.File, name string, names NameFunc) (string, bool) {
	for _, imp := range f.Imports {
		p := importPath(imp)
		if ImportName(imp, names) == name {
			return p, true
		}
	}
	return "", false
}

// ImportName returns the file-level name an import spec binds.
func ImportName(imp *ast.ImportSpec, names NameFunc) string {
	if imp.Name != nil {
		return imp.Name.Name
	}
	p := importPath(imp)
	if names != nil {
		return names(p)
	}
	return GuessPackageName(p)
}

// GuessPackageName derives a package name from an import path the way most
// packages are named: the last element, skipping a major version suffix and
// dropping a "go-" prefix and ".vN" suffix.
func GuessPackageName(importPath string) string {
	elem := path.Base(importPath)
	if isMajorVersion(elem) {
		elem = path.Base(path.Dir(importPath))
	}
	elem = strings.TrimPrefix(elem, "go-")
	if i := strings.Index(elem, ".v"); i > 0 {
		elem = elem[:i]
	}
	elem = strings.Map(func(r rune) rune {
		if r == '-' || r == '.' {
			return '_'
		}
		return r
	}, elem)
	return elem
}

// SplitBinary splits "importpath.Name" at the last dot after the last slash.
func SplitBinary(binary string) (pkg, name string, ok bool) {
	slash := strings.LastIndex(binary, "/")
	dot := strings.LastIndex(binary, ".")
	if dot <= slash || dot == len(binary)-1 {
		return "", "", false
	}
	return binary[:dot], binary[dot+1:], true
}

func isMajorVersion(elem string) bool {
	if len(elem) < 2 || elem[0] != 'v' {
		return false
	}
	_, err := strconv.Atoi(elem[1:])
	return err == nil
}

func importPath(imp *ast.ImportSpec) string {
	p, err := strconv.Unquote(imp.Path.Value)
	if err != nil {
		return imp.Path.Value
	}
	return p
}
