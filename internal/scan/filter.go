package scan

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/opmodel/capwire/internal/config"
	"github.com/opmodel/capwire/internal/manifest"
	"github.com/opmodel/capwire/internal/unit"
)

// DefaultExcludes are import path prefixes that are never scanned unless an
// include list is configured: platform and runtime packages, and capwire
// itself.
var DefaultExcludes = []string{
	"golang.org/x/",
	"google.golang.org/",
	"github.com/opmodel/capwire/",
	"cuelang.org/",
	"k8s.io/",
	"std/",
}

// Filter decides which units and entries are scanned. Entries that are not
// scanned are still copied to the output unchanged.
type Filter struct {
	include        []string
	exclude        []string
	archiveInclude []*regexp.Regexp
	archiveExclude []*regexp.Regexp
	ignore         *ignore.GitIgnore
}

// NewFilter builds a Filter from package, archive and ignore settings.
func NewFilter(packages, archives config.FilterConfig, ignorePatterns []string) (*Filter, error) {
	f := &Filter{
		include: append([]string(nil), packages.Include...),
		exclude: append(append([]string(nil), packages.Exclude...), DefaultExcludes...),
		ignore:  ignore.CompileIgnoreLines(ignorePatterns...),
	}
	var err error
	if f.archiveInclude, err = compileAll("archives.include", archives.Include); err != nil {
		return nil, err
	}
	if f.archiveExclude, err = compileAll("archives.exclude", archives.Exclude); err != nil {
		return nil, err
	}
	return f, nil
}

func compileAll(field string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid pattern %q: %w", field, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Namespace reports whether the package at importPath is scanned. modRel is
// the entry's module-root-relative path.
//
// The reserved descriptor namespace is always scanned. A non-empty include
// list is an allow-list of prefixes. Otherwise every prefix on the exclude
// list (configured plus DefaultExcludes) is skipped.
func (f *Filter) Namespace(importPath, modRel string) bool {
	if path.Dir(modRel) == manifest.ReservedNamespace {
		return true
	}
	if len(f.include) > 0 {
		return hasAnyPrefix(importPath, f.include)
	}
	return !hasAnyPrefix(importPath, f.exclude)
}

// Archive reports whether an archive unit is scanned, matching the include and
// exclude patterns against its base name without extension. Directory units
// are always scanned.
func (f *Filter) Archive(u *unit.Unit) bool {
	if !u.IsArchive() {
		return true
	}
	name := u.BaseName()
	if len(f.archiveInclude) > 0 && !matchAny(name, f.archiveInclude) {
		return false
	}
	return !matchAny(name, f.archiveExclude)
}

// Ignored reports whether a module-root-relative path matches an ignore
// pattern.
func (f *Filter) Ignored(modRel string) bool {
	return f.ignore.MatchesPath(modRel)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func matchAny(s string, res []*regexp.Regexp) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
