// Package stepperctl is the public API: construction, lifecycle, the
// Command Surface verbs, and the typed errors and metrics the rest of the
// module reports through.
package stepperctl

import (
	"errors"
	"fmt"
)

// Code is a high-level error category drawn from the error taxonomy: what
// went wrong, independent of where it happened.
type Code string

const (
	CodeTransportLost    Code = "transport lost"
	CodeFrameMalformed   Code = "frame malformed"
	CodeQueueFull        Code = "queue full"
	CodeInvalidParameter Code = "invalid parameter"
	CodeNotIdle          Code = "not idle"
	CodeNak              Code = "nak"
	CodeResponseTimeout  Code = "response timeout"
	CodeMotorFault       Code = "motor fault"
)

// Error is a structured error carrying the operation that failed, its
// category, a human-readable message, and (when applicable) the underlying
// cause.
type Error struct {
	Op    string
	Code  Code
	Msg   string
	Inner error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("stepperctl: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("stepperctl: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is compares by category, so errors.Is(err, &Error{Code: CodeNak}) matches
// any NAK regardless of operation or message.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError creates a structured error with no wrapped cause.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapError wraps inner with stepperctl context, preserving its category if
// inner is already a *Error.
func WrapError(op string, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	if se, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: se.Code, Msg: se.Msg, Inner: se}
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error (at any wrapping depth) with the
// given category.
func IsCode(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
