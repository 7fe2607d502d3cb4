// Package errs classifies failures into the handful of kinds the HTTP layer
// knows how to present: a missing record, a rejected input, a conflicting
// write, a store outage, or a missing session.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	Unknown Kind = iota
	NotFound
	Validation
	Conflict
	Store
	Auth
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case Store:
		return "store"
	case Auth:
		return "auth"
	}
	return "unknown"
}

// Error is a classified failure. Code is a dotted, log-friendly location
// such as "db.save_form.insert_question".
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause lets errors.Cause reach the underlying driver error.
func (e *Error) Cause() error { return e.Err }

// New creates a classified error without an underlying cause.
func New(kind Kind, code, msg string, args ...any) error {
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(msg, args...)}
}

// Wrap classifies err, attaching a stack trace to it. A nil err yields nil.
func Wrap(kind Kind, err error, code string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Err: errors.WithStack(err)}
}

func NotFoundf(code, msg string, args ...any) error {
	return New(NotFound, code, msg, args...)
}

func Validationf(code, msg string, args ...any) error {
	return New(Validation, code, msg, args...)
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the text safe to show to a user for err. Store and unknown
// failures never leak their cause.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Kind {
	case Store, Unknown:
		return "internal error"
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return errors.Cause(e.Err).Error()
	}
	return e.Kind.String()
}
