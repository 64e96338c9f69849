// Package mailerr defines the failure taxonomy surfaced to callers of the
// mail core. Every kind carries a stable code suitable for client-side
// localization; the original protocol or storage error is kept as the cause.
package mailerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnection
	KindAuthentication
	KindAccountLogin
	KindProtocol
	KindInvalidArgument
	KindConfiguration
)

// Code returns the stable identifier of k.
func (k Kind) Code() string {
	switch k {
	case KindConnection:
		return "connection_failed"
	case KindAuthentication:
		return "authentication_failed"
	case KindAccountLogin:
		return "account_login_failed"
	case KindProtocol:
		return "protocol_failed"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConfiguration:
		return "configuration_failed"
	default:
		return "unknown"
	}
}

func (k Kind) String() string {
	return k.Code()
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.Code())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind.Code(), e.Err)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Cause exposes the cause to errors.Cause.
func (e *Error) Cause() error {
	return e.Err
}

// New creates a classified error with a message as its cause.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// Wrap classifies err. A nil err stays nil; an already classified err keeps
// its kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Code returns the stable code of err, or "" for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	return KindOf(err).Code()
}

// AsLoginFailure folds connection, authentication and unclassified failures
// into the generic account-login failure, keeping the original as cause.
func AsLoginFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	switch KindOf(err) {
	case KindConnection, KindAuthentication, KindUnknown:
		return &Error{Kind: KindAccountLogin, Op: op, Err: err}
	}
	return err
}
