package shared

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can branch on recoverability.
type Kind string

const (
	// KindConfiguration indicates a missing or inactive account or journal.
	KindConfiguration Kind = "CONFIGURATION"
	// KindDuplicatePosting indicates an entry already exists for the external reference.
	KindDuplicatePosting Kind = "DUPLICATE_POSTING"
	// KindInsufficientStock indicates an outgoing movement larger than the location quantity.
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	// KindUnbalancedEntry indicates debit and credit totals diverge.
	KindUnbalancedEntry Kind = "UNBALANCED_ENTRY"
	// KindIncompleteInventory indicates uncounted items block completion.
	KindIncompleteInventory Kind = "INCOMPLETE_INVENTORY"
	// KindValidation indicates malformed input.
	KindValidation Kind = "VALIDATION"
	// KindInvalidState indicates a forbidden lifecycle transition.
	KindInvalidState Kind = "INVALID_STATE"
	// KindNotFound indicates a referenced record does not exist.
	KindNotFound Kind = "NOT_FOUND"
	// KindConcurrentUpdate indicates a lost optimistic lock race.
	KindConcurrentUpdate Kind = "CONCURRENT_UPDATE"
)

// Error is the single error type raised by the accounting and stock core.
type Error struct {
	Kind   Kind
	Op     string
	Code   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, which lets the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Code == ""
}

var (
	// ErrConfiguration matches configuration failures.
	ErrConfiguration = &Error{Kind: KindConfiguration}
	// ErrDuplicatePosting matches duplicate posting failures.
	ErrDuplicatePosting = &Error{Kind: KindDuplicatePosting}
	// ErrInsufficientStock matches insufficient stock failures.
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	// ErrUnbalancedEntry matches unbalanced entry failures.
	ErrUnbalancedEntry = &Error{Kind: KindUnbalancedEntry}
	// ErrIncompleteInventory matches incomplete inventory failures.
	ErrIncompleteInventory = &Error{Kind: KindIncompleteInventory}
	// ErrValidation matches validation failures.
	ErrValidation = &Error{Kind: KindValidation}
	// ErrInvalidState matches invalid state transitions.
	ErrInvalidState = &Error{Kind: KindInvalidState}
	// ErrNotFound matches missing records.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrConcurrentUpdate matches optimistic lock failures.
	ErrConcurrentUpdate = &Error{Kind: KindConcurrentUpdate}
)

// E builds a kinded error. Detail accepts fmt verbs.
func E(kind Kind, op, code, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{Kind: kind, Op: op, Code: code, Detail: detail}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind carried by err, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the account, journal or location code attached to err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Retryable reports whether the same request may succeed when replayed unchanged.
func Retryable(err error) bool {
	return KindOf(err) == KindConcurrentUpdate
}
