package errors

import "errors"

// Sentinel errors for known conditions.
var (
	// ErrValidation indicates a schema or descriptor validation failure.
	ErrValidation = errors.New("validation error")

	// ErrConfiguration indicates a fatal wiring configuration error: a missing
	// registry host, a duplicate binding or a dangling capability reference.
	ErrConfiguration = errors.New("configuration error")

	// ErrIO indicates an unreadable input unit or an unwritable output location.
	ErrIO = errors.New("i/o error")

	// ErrNotFound indicates a unit, module, or file was not found.
	ErrNotFound = errors.New("not found")
)

// Exit codes returned by the capwire CLI.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitValidationError indicates invalid configuration, descriptors, or wiring.
	ExitValidationError = 2

	// ExitIOError indicates a unit could not be read or written.
	ExitIOError = 3

	// ExitNotFound indicates a unit, module, or artifact was not found.
	ExitNotFound = 5
)
