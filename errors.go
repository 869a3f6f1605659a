package sectorsim

import "github.com/sectorsim/sectorsim/internal/simerrutil"

// Error, ErrorCode and the constructors below are thin aliases over
// internal/simerrutil so that internal/cachesim and internal/config (which
// root's System wires in) can raise the same structured error without
// importing the root package back.
type Error = simerrutil.Error
type ErrorCode = simerrutil.ErrorCode

const (
	CodeInvariantViolation = simerrutil.CodeInvariantViolation
	CodeConfigError        = simerrutil.CodeConfigError
	CodeTraceError         = simerrutil.CodeTraceError
	CodeNotReady           = simerrutil.CodeNotReady
)

// New creates a new structured error.
func New(op string, code ErrorCode, msg string) *Error {
	return simerrutil.New(op, code, msg)
}

// WithLevel creates a new structured error tagged with the cache level that
// raised it.
func WithLevel(op string, level int, code ErrorCode, msg string) *Error {
	return simerrutil.WithLevel(op, level, code, msg)
}

// Wrap wraps an existing error with sectorsim context, preserving its code
// if it is already a *Error.
func Wrap(op string, inner error) *Error {
	return simerrutil.Wrap(op, inner)
}

// IsCode checks whether err (or anything it wraps) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return simerrutil.IsCode(err, code)
}

// InvariantViolation panics with a *Error of CodeInvariantViolation (§7):
// there is no recovery path, only a diagnostic dump and an abort.
func InvariantViolation(op string, level int, dump string) {
	simerrutil.InvariantViolation(op, level, dump)
}
