// Package errors defines the core's error taxonomy. Every error the
// core returns across a package boundary is one of these, so a host can
// switch on Code() without string-matching messages.
package errors

import "fmt"

// Code enumerates the error taxonomy.
type Code string

const (
	CodeNotFound            Code = "NotFound"
	CodeIntegrityError      Code = "IntegrityError"
	CodeUnsupportedFormat   Code = "UnsupportedFormat"
	CodeCorruptArchive      Code = "CorruptArchive"
	CodeBombDetected        Code = "BombDetected"
	CodeFilterConfigInvalid Code = "FilterConfigInvalid"
	CodeInvalidQuery        Code = "InvalidQuery"
	CodeInvalidRegex        Code = "InvalidRegex"
	CodeStorageError        Code = "StorageError"
	CodeCancelled           Code = "Cancelled"
	CodeInternal            Code = "Internal"
)

// Error is the concrete type every exported core error satisfies.
type Error struct {
	Code       Code
	Op         string // operation in progress, e.g. "cas.Write", "archive.Open"
	Context    string // free-form detail: path, hash, query fragment
	Underlying error
}

// New constructs an Error with no wrapped cause.
func New(code Code, op, context string) *Error {
	return &Error{Code: code, Op: op, Context: context}
}

// Wrap constructs an Error wrapping an underlying cause.
func Wrap(code Code, op, context string, err error) *Error {
	return &Error{Code: code, Op: op, Context: context, Underlying: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Context != "" {
		if e.Underlying != nil {
			return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Code, e.Context, e.Underlying)
		}
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Code, e.Context)
	}
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.Underlying }

// Is reports whether target shares this error's Code, so callers can do
// errors.Is(err, errors.New(CodeNotFound, "", "")) without matching Op/Context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the Code from err, or CodeInternal if err is not one of
// ours. Host code is expected to call this at the library boundary.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if as(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// as is a small local copy of errors.As's walk so this package does not
// need to import the stdlib errors package under an aliased name next to
// its own Error type.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
