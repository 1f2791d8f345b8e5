package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies ledger failures so callers can branch on them.
type ErrorKind string

// Error kinds
const (
	KindValidation          ErrorKind = "validation"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindNotFound            ErrorKind = "not_found"
	KindConflict            ErrorKind = "conflict"
	KindForbidden           ErrorKind = "forbidden"
	KindConfiguration       ErrorKind = "configuration"
	KindInternal            ErrorKind = "internal"
)

// Error is the error type returned by every ledger component.
type Error struct {
	Kind ErrorKind
	Op   string // operation that failed, e.g. "wallet.UpdateBalance"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind. A sentinel with a message only matches itself.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Msg != "" {
		return e == t || (e.Kind == t.Kind && e.Msg == t.Msg)
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrConfiguration       = &Error{Kind: KindConfiguration}

	ErrAlreadySettled = &Error{Kind: KindConflict, Msg: "order already settled"}
)

// E builds an *Error with a formatted message.
func E(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to an underlying error.
func Wrap(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
