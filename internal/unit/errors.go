package unit

import (
	"fmt"

	oerrors "github.com/opmodel/capwire/internal/errors"
)

// OpenError reports a unit that could not be opened or read.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("opening unit %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() []error { return []error{oerrors.ErrIO, e.Err} }

// ModuleNotFoundError reports a unit with no go.mod and no module zip prefix.
type ModuleNotFoundError struct {
	Path string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("unit %s: no module information (missing go.mod)", e.Path)
}

func (e *ModuleNotFoundError) Unwrap() error { return oerrors.ErrIO }

// EntryNotFoundError reports a ReadEntry for a name the unit does not hold.
type EntryNotFoundError struct {
	Unit  string
	Entry string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("unit %s: no entry %s", e.Unit, e.Entry)
}

func (e *EntryNotFoundError) Unwrap() error { return oerrors.ErrNotFound }
