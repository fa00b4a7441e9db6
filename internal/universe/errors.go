package universe

import (
	"fmt"
	"strings"

	oerrors "github.com/opmodel/capwire/internal/errors"
)

// HostNotFoundError reports that no unit defines the registry host package.
type HostNotFoundError struct {
	Units int
}

func (e *HostNotFoundError) Error() string {
	return fmt.Sprintf("no registry host package found in %d unit(s): mark exactly one package clause with //capwire:host", e.Units)
}

func (e *HostNotFoundError) Unwrap() error { return oerrors.ErrConfiguration }

// MultipleHostsError reports more than one package marked as host.
type MultipleHostsError struct {
	Packages []string
}

func (e *MultipleHostsError) Error() string {
	return fmt.Sprintf("multiple registry host packages: %s", strings.Join(e.Packages, ", "))
}

func (e *MultipleHostsError) Unwrap() error { return oerrors.ErrConfiguration }

// DuplicatePackageError reports one import path provided by two units.
type DuplicatePackageError struct {
	ImportPath string
	First      string
	Second     string
}

func (e *DuplicatePackageError) Error() string {
	return fmt.Sprintf("package %s is provided by both %s and %s", e.ImportPath, e.First, e.Second)
}

func (e *DuplicatePackageError) Unwrap() error { return oerrors.ErrConfiguration }

// ParseError reports a Go file that does not parse.
type ParseError struct {
	Unit  string
	Entry string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unit %s: parsing %s: %v", e.Unit, e.Entry, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{oerrors.ErrValidation, e.Err} }

// NotFoundError reports a binary name that does not resolve.
type NotFoundError struct {
	Binary string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found in any unit", e.Binary)
}

func (e *NotFoundError) Unwrap() error { return oerrors.ErrNotFound }
