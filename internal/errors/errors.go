// Package errors provides the kind-tagged error type used across chatdesk.
// Every remote failure is converted into one of these kinds at the boundary
// of the operation that issued the call, so the presentation layer only
// ever sees *Error values.
package errors

import (
	"errors"
	"fmt"
)

// Op describes an operation, usually as "package.function".
type Op string

// Kind categorizes the type of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindThreadCreation
	KindSubmission
	KindStream
	KindTimeout
	KindAttachmentFetch
	KindRemote
	KindEmail
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration error"
	case KindThreadCreation:
		return "thread creation failed"
	case KindSubmission:
		return "submission failed"
	case KindStream:
		return "stream error"
	case KindTimeout:
		return "timeout"
	case KindAttachmentFetch:
		return "attachment fetch failed"
	case KindRemote:
		return "remote error"
	case KindEmail:
		return "email error"
	default:
		return "unknown error"
	}
}

// Error is the structured error type.
type Error struct {
	Op      Op     // Operation that failed
	Kind    Kind   // Category of error
	Err     error  // Underlying error
	Context string // Additional context
}

func (e *Error) Error() string {
	if e.Context != "" {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %s", e.Op, e.Context, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new Error. Arguments can be:
//   - Op: the operation name
//   - Kind: the error kind
//   - string: context message
//   - error: the underlying error
//
// When no underlying error is given the context string becomes the error.
// When the underlying error is itself an *Error without an explicit Kind
// argument, its kind is inherited.
func E(args ...any) error {
	e := &Error{}
	kindSet := false
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
			kindSet = true
		case string:
			e.Context = a
		case error:
			e.Err = a
		}
	}
	if e.Err == nil {
		e.Err = errors.New(e.Context)
		e.Context = ""
	}
	if !kindSet {
		var inner *Error
		if errors.As(e.Err, &inner) {
			e.Kind = inner.Kind
		}
	}
	return e
}

// Is reports whether err is of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of an error, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
