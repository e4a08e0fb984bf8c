package exception

import (
	"errors"
	"fmt"
)

// ServiceLoadError is returned when the capability registry cannot resolve,
// instantiate or type-check an implementation. It is recoverable at the call
// site that requested the capability.
type ServiceLoadError struct {
	// Capability is the name of the requested capability.
	Capability string
	// Identifier is the implementation identifier that failed to load.
	Identifier string
	// Cause is the underlying failure, if any.
	Cause error
}

// NewServiceLoadError creates a ServiceLoadError.
func NewServiceLoadError(capability, identifier string, cause error) *ServiceLoadError {
	return &ServiceLoadError{Capability: capability, Identifier: identifier, Cause: cause}
}

// Error implements the error interface.
func (e *ServiceLoadError) Error() string {
	msg := fmt.Sprintf("could not load service %q for capability %s", e.Identifier, e.Capability)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *ServiceLoadError) Unwrap() error {
	return e.Cause
}

// IsServiceLoadError reports whether err carries a ServiceLoadError.
func IsServiceLoadError(err error) bool {
	var sle *ServiceLoadError
	return errors.As(err, &sle)
}

// FatalError is an unrecoverable engine condition. It must never be caught and
// continued; every layer returns it unchanged, even when it arrives wrapped.
type FatalError struct {
	Module  string
	Message string
	Cause   error
}

// NewFatalError creates a FatalError.
func NewFatalError(module, message string, cause error) *FatalError {
	return &FatalError{Module: module, Message: message, Cause: cause}
}

// NewFatalErrorf creates a FatalError with a formatted message and no cause.
func NewFatalErrorf(module, format string, a ...interface{}) *FatalError {
	return &FatalError{Module: module, Message: fmt.Sprintf(format, a...)}
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] fatal: %s: %v", e.Module, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] fatal: %s", e.Module, e.Message)
}

// Unwrap returns the cause.
func (e *FatalError) Unwrap() error {
	return e.Cause
}

// AsFatal extracts the outermost FatalError from err's chain.
func AsFatal(err error) (*FatalError, bool) {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	_, ok := AsFatal(err)
	return ok
}

// FromPanic converts a recovered panic value into an error.
// A panicking FatalError is returned as is.
func FromPanic(module string, r interface{}) error {
	switch v := r.(type) {
	case nil:
		return nil
	case *FatalError:
		return v
	case error:
		return v
	default:
		return NewBatchErrorf(module, "panic: %v", v)
	}
}
