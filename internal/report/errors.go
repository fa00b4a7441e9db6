package report

import (
	"fmt"

	oerrors "github.com/opmodel/capwire/internal/errors"
)

// LockError reports a lock file that cannot be decoded or was written by an
// incompatible version.
type LockError struct {
	Path   string
	Reason string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("lock file %s: %s", e.Path, e.Reason)
}

func (e *LockError) Unwrap() error { return oerrors.ErrValidation }

// LockNotFoundError reports a missing lock file.
type LockNotFoundError struct {
	Path string
}

func (e *LockNotFoundError) Error() string {
	return fmt.Sprintf("lock file %s does not exist; run capwire build first", e.Path)
}

func (e *LockNotFoundError) Unwrap() error { return oerrors.ErrNotFound }
