package core

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error into one of the recovery classes the CLI exposes
// through its exit code. Errors are classified into kinds, not Go types;
// every kind has a stable sysexits code.
type Kind string

const (
	KindUsage       Kind = "usage"
	KindData        Kind = "data"
	KindNoInput     Kind = "no_input"
	KindUnavailable Kind = "unavailable"
	KindIO          Kind = "io"
	KindTemporary   Kind = "temporary"
	KindProtocol    Kind = "protocol"
	KindAuth        Kind = "auth"
	KindPermission  Kind = "permission"
	KindConfig      Kind = "config"
	KindCancelled   Kind = "cancelled"
	KindInternal    Kind = "internal"
)

// Sysexits values (sysexits.h). Where source documents drifted between two
// numbers for the same kind, the canonical number wins: I/O is 74, temporary
// failures are 75.
const (
	ExitOK          = 0
	ExitGeneral     = 1
	ExitUsage       = 64
	ExitData        = 65
	ExitNoInput     = 66
	ExitUnavailable = 69
	ExitInternal    = 70
	ExitProtocol    = 72
	ExitAuth        = 73
	ExitIO          = 74
	ExitTemporary   = 75
	ExitPermission  = 77
	ExitConfig      = 78
)

// ExitCode maps a kind to its process exit code.
func (k Kind) ExitCode() int {
	switch k {
	case KindUsage:
		return ExitUsage
	case KindData:
		return ExitData
	case KindNoInput:
		return ExitNoInput
	case KindUnavailable:
		return ExitUnavailable
	case KindIO:
		return ExitIO
	case KindTemporary, KindCancelled:
		return ExitTemporary
	case KindProtocol:
		return ExitProtocol
	case KindAuth:
		return ExitAuth
	case KindPermission:
		return ExitPermission
	case KindConfig:
		return ExitConfig
	case KindInternal:
		return ExitInternal
	default:
		return ExitGeneral
	}
}

// Error is the coded error carried across component boundaries. Code is one
// of the stable strings in codes.go; Details holds arbitrary structured
// context for the error envelope.
type Error struct {
	Kind    Kind           `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a coded error. Message supports Printf-style formatting.
func NewError(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a cause to a coded error.
func WrapError(kind Kind, code string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetails sets a detail entry, allocating the map on first use.
func (e *Error) WithDetails(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// AsError extracts a coded error from an error chain.
func AsError(err error) (*Error, bool) {
	var coded *Error
	if errors.As(err, &coded) {
		return coded, true
	}
	return nil, false
}

// ExitCodeFor resolves the process exit code for any error. Context
// cancellation maps to the temporary class, unclassified errors to the
// general failure code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	if coded, ok := AsError(err); ok {
		return coded.Kind.ExitCode()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ExitTemporary
	}
	return ExitGeneral
}

// CodeFor resolves the stable code string for any error.
func CodeFor(err error) string {
	if err == nil {
		return ""
	}
	if coded, ok := AsError(err); ok {
		return coded.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancelled
	}
	return CodeInternal
}
