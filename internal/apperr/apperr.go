// Package apperr classifies failures of the ordering core so the transport layer can map them
// to status codes without parsing messages.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindForbidden    Kind = "FORBIDDEN"
	KindInvalidState Kind = "INVALID_STATE"
	KindInvalidInput Kind = "INVALID_INPUT"
	KindOverpayment  Kind = "OVERPAYMENT"
	KindInvalidToken Kind = "INVALID_TOKEN"
	KindConflict     Kind = "CONFLICT"
	KindInternal     Kind = "INTERNAL"
)

// Kind sentinels, usable with errors.Is against any *Error of that kind.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
	ErrOverpayment  = &Error{Kind: KindOverpayment}
	ErrInvalidToken = &Error{Kind: KindInvalidToken}
	ErrConflict     = &Error{Kind: KindConflict}
)

// Named input failures.
var (
	ErrEmptyOrder    = errors.New("order has no items")
	ErrEmptyOrderSet = errors.New("no orders to pay")
	ErrMixedTable    = errors.New("orders belong to different tables")
)

type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func NotFound(op, format string, args ...any) error {
	return New(KindNotFound, op, format, args...)
}

func Forbidden(op, format string, args ...any) error {
	return New(KindForbidden, op, format, args...)
}

func InvalidState(op, format string, args ...any) error {
	return New(KindInvalidState, op, format, args...)
}

func InvalidInput(op, format string, args ...any) error {
	return New(KindInvalidInput, op, format, args...)
}

func InvalidToken(op, format string, args ...any) error {
	return New(KindInvalidToken, op, format, args...)
}

func Conflict(op, format string, args ...any) error {
	return New(KindConflict, op, format, args...)
}

// KindOf reports the classification of err, KindInternal for anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
