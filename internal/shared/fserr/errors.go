// Package fserr defines the error taxonomy shared by the sandbox resolver,
// the file operation executor, the path lock table and the HTTP layer.
//
// Every failure that crosses a component boundary is an *Error carrying a
// Kind. Callers match on kinds with errors.Is against the sentinel values:
//
//	if errors.Is(err, fserr.ErrNotFound) {
//	    // 404
//	}
package fserr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Kind classifies a failure independently of its cause.
type Kind string

const (
	KindPathTraversal Kind = "PathTraversal"
	KindNotFound      Kind = "NotFound"
	KindNotADirectory Kind = "NotADirectory"
	KindIsADirectory  Kind = "IsADirectory"
	KindAlreadyExists Kind = "AlreadyExists"
	KindIOError       Kind = "IOError"
	KindShuttingDown  Kind = "ShuttingDown"
	KindConflict      Kind = "Conflict"
	KindCanceled      Kind = "Canceled"
	KindTooLarge      Kind = "TooLarge"
	KindInvalidRange  Kind = "InvalidRange"
	KindInvalidArg    Kind = "InvalidArgument"
)

// Sentinels for errors.Is. They carry no Op or Path.
var (
	ErrPathTraversal = &Error{Kind: KindPathTraversal}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrNotADirectory = &Error{Kind: KindNotADirectory}
	ErrIsADirectory  = &Error{Kind: KindIsADirectory}
	ErrAlreadyExists = &Error{Kind: KindAlreadyExists}
	ErrIOError       = &Error{Kind: KindIOError}
	ErrShuttingDown  = &Error{Kind: KindShuttingDown}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrCanceled      = &Error{Kind: KindCanceled}
	ErrTooLarge      = &Error{Kind: KindTooLarge}
	ErrInvalidRange  = &Error{Kind: KindInvalidRange}
	ErrInvalidArg    = &Error{Kind: KindInvalidArg}
)

// Error is a classified filesystem mediation failure.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// New creates a classified error.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Newf creates a classified error with a formatted cause.
func Newf(kind Kind, op, path, format string, args ...any) *Error {
	return New(kind, op, path, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + quote(e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of err, or "" for nil. Unclassified errors are
// reported as IOError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindIOError
}

// FromOS classifies an error returned by the os package. Errors that are
// already classified are returned unchanged.
func FromOS(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return New(KindCanceled, op, path, err)
	case errors.Is(err, fs.ErrNotExist):
		return New(KindNotFound, op, path, err)
	case errors.Is(err, fs.ErrExist):
		return New(KindAlreadyExists, op, path, err)
	case errors.Is(err, syscall.ENOTDIR):
		return New(KindNotADirectory, op, path, err)
	case errors.Is(err, syscall.EISDIR):
		return New(KindIsADirectory, op, path, err)
	case errors.Is(err, syscall.ELOOP):
		return New(KindPathTraversal, op, path, err)
	case isEscape(err):
		return New(KindPathTraversal, op, path, err)
	default:
		return New(KindIOError, op, path, err)
	}
}

// IsNoSpace reports whether err was caused by the device running out of
// space or quota.
func IsNoSpace(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT)
}

// isEscape matches the error os.Root returns when a path would leave it.
func isEscape(err error) bool {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err != nil && pe.Err.Error() == "path escapes from parent"
	}
	return false
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
