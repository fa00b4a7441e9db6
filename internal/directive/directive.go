// Package directive parses //capwire: comment directives.
//
// A directive is a line comment with no space after the slashes:
//
//	//capwire:capability
//	//capwire:provider greeter.Greeter
//	//capwire:wire lazy
//
// Directives are read from the doc comment of the declaration they mark.
package directive

import (
	"fmt"
	"go/ast"
	"strconv"
	"strings"
)

// Prefix starts every capwire directive.
const Prefix = "//capwire:"

// Directive names.
const (
	Capability = "capability"
	Provider   = "provider"
	Wire       = "wire"
	Wired      = "wired"
	Host       = "host"
)

// Directive is one parsed directive comment.
type Directive struct {
	Name    string
	Args    []string
	Comment *ast.Comment
}

// String renders the directive as it appears in source.
func (d Directive) String() string {
	if len(d.Args) == 0 {
		return Prefix + d.Name
	}
	return Prefix + d.Name + " " + strings.Join(d.Args, " ")
}

// Parse parses a single comment text. It reports false for comments that are
// not capwire directives.
func Parse(text string) (Directive, bool) {
	rest, ok := strings.CutPrefix(text, Prefix)
	if !ok {
		return Directive{}, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Directive{}, false
	}
	d := Directive{Name: fields[0]}
	if len(fields) > 1 {
		d.Args = fields[1:]
	}
	return d, true
}

// All returns every directive in cg, in source order.
func All(cg *ast.CommentGroup) []Directive {
	if cg == nil {
		return nil
	}
	var out []Directive
	for _, c := range cg.List {
		if d, ok := Parse(c.Text); ok {
			d.Comment = c
			out = append(out, d)
		}
	}
	return out
}

// Find returns the first directive named name in cg.
func Find(cg *ast.CommentGroup, name string) (Directive, bool) {
	for _, d := range All(cg) {
		if d.Name == name {
			return d, true
		}
	}
	return Directive{}, false
}

// Has reports whether cg carries a directive named name.
func Has(cg *ast.CommentGroup, name string) bool {
	_, ok := Find(cg, name)
	return ok
}

// Mode parses the resolution mode of a wire directive. explicit is false when
// the directive does not say, in which case lazy is def.
//
// Accepted arguments are "lazy", "eager", and "lazy=<bool>".
func (d Directive) Mode(def bool) (lazy, explicit bool, err error) {
	lazy = def
	for _, arg := range d.Args {
		switch {
		case arg == "lazy":
			lazy, explicit = true, true
		case arg == "eager":
			lazy, explicit = false, true
		case strings.HasPrefix(arg, "lazy="):
			v, perr := strconv.ParseBool(strings.TrimPrefix(arg, "lazy="))
			if perr != nil {
				return def, false, fmt.Errorf("invalid %s argument %q: %w", d.Name, arg, perr)
			}
			lazy, explicit = v, true
		default:
			return def, false, fmt.Errorf("unknown %s argument %q", d.Name, arg)
		}
	}
	return lazy, explicit, nil
}
