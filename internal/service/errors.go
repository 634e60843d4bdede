package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bankline/complaints/internal/db"
	"github.com/bankline/complaints/internal/lock"
)

type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindInvalidTransition     Kind = "invalid_transition"
	KindNoAvailableEmployee   Kind = "no_available_employee"
	KindClassifierUnavailable Kind = "classifier_unavailable"
	KindStoreWriteFailure     Kind = "store_write_failure"
	KindConflict              Kind = "conflict"
	KindValidation            Kind = "validation"
	KindReadinessNotMet       Kind = "readiness_not_met"
)

// Error is the typed failure every lifecycle and assignment operation
// returns. Match it by kind with errors.Is against the Err* values below.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInvalidTransition     = &Error{Kind: KindInvalidTransition}
	ErrNoAvailableEmployee   = &Error{Kind: KindNoAvailableEmployee}
	ErrClassifierUnavailable = &Error{Kind: KindClassifierUnavailable}
	ErrStoreWriteFailure     = &Error{Kind: KindStoreWriteFailure}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrValidation            = &Error{Kind: KindValidation}
	ErrReadinessNotMet       = &Error{Kind: KindReadinessNotMet}
)

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

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// storeError classifies a failure coming out of the db or lock layers. Typed
// errors raised inside a transaction pass through untouched.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	switch {
	case errors.Is(err, db.ErrNotFound):
		return &Error{Kind: KindNotFound, Op: op, Msg: "record not found", Err: err}
	case errors.Is(err, db.ErrVersionConflict), errors.Is(err, lock.ErrNotAcquired):
		return &Error{Kind: KindConflict, Op: op, Msg: "complaint is being modified by another request", Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindStoreWriteFailure, Op: op, Msg: "outcome unknown, request abandoned", Err: err}
	}
	return &Error{Kind: KindStoreWriteFailure, Op: op, Msg: "store write failed", Err: err}
}
