package xroad

import "fmt"

// Error is the generic wrapper for X-Road operation failures. More
// specific failures use the dedicated types below; everything else is
// wrapped here so callers always see the original cause.
type Error struct {
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	switch {
	case e.Cause == nil:
		return e.Msg
	case e.Msg == "":
		return e.Cause.Error()
	default:
		return e.Msg + ": " + e.Cause.Error()
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// wrapErr wraps err in an *Error unless it is already one of the typed
// X-Road errors, so specific errors are never shadowed by the generic one.
func wrapErr(msg string, err error) error {
	switch err.(type) {
	case *Error, *TimeoutError, *FaultError, *ValidationError, *NotOpenAPIServiceError, *OpenAPIReadError:
		return err
	}
	return &Error{Msg: msg, Cause: err}
}

// TimeoutError reports a request that did not complete within its deadline.
type TimeoutError struct {
	Cause error
}

func (e *TimeoutError) Error() string {
	if e.Cause == nil {
		return "request timed out"
	}
	return "request timed out: " + e.Cause.Error()
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// FaultError reports a SOAP fault returned by the security server.
type FaultError struct {
	Fault string
}

func (e *FaultError) Error() string { return "soap fault: " + e.Fault }

// ValidationError reports invalid input detected before any network call,
// such as an identifier with the wrong number of parts.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NotOpenAPIServiceError reports a service that has no OpenAPI description.
type NotOpenAPIServiceError struct {
	Msg string
}

func (e *NotOpenAPIServiceError) Error() string { return e.Msg }

// OpenAPIReadError reports a producer security server that failed to read
// the service's OpenAPI description.
type OpenAPIReadError struct {
	Msg string
}

func (e *OpenAPIReadError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
