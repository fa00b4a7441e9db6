package repackage

import (
	"fmt"

	oerrors "github.com/opmodel/capwire/internal/errors"
)

// WriteError reports a unit whose output could not be written.
type WriteError struct {
	Unit   string
	Output string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing unit %s to %s: %v", e.Unit, e.Output, e.Err)
}

func (e *WriteError) Unwrap() []error { return []error{oerrors.ErrIO, e.Err} }
