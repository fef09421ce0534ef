// Package apperr defines the failure kinds shared by the stores, the transfer
// engine and the HTTP layer.
package apperr

import "errors"

var (
	// ErrNotFound indicates an account, wallet or ledger entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness rule was violated (duplicate username,
	// second wallet for a user, repeated idempotency key).
	ErrConflict = errors.New("conflict")

	// ErrInsufficientFunds occurs when a debit would leave a wallet below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrBadRequest covers business-rule rejections such as a self-transfer or
	// malformed input that slipped past request validation.
	ErrBadRequest = errors.New("bad request")

	// ErrUnavailable marks storage failures that are safe to retry as a whole
	// unit (serialization conflicts, deadlocks, lost connections).
	ErrUnavailable = errors.New("unavailable")

	// ErrUnauthenticated is returned when no credentials accompany a request.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidToken is returned when presented credentials fail verification.
	ErrInvalidToken = errors.New("invalid token")
)

var kinds = []error{
	ErrNotFound,
	ErrConflict,
	ErrInsufficientFunds,
	ErrBadRequest,
	ErrUnavailable,
	ErrUnauthenticated,
	ErrInvalidToken,
}

// Error pairs a failure kind with a short description of what was missing or
// rejected. It unwraps to the kind so callers can use errors.Is.
type Error struct {
	Kind    error
	Message string
	Err     error
}

// New builds an Error of the given kind.
func New(kind error, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds an Error of the given kind that also carries the underlying cause.
func Wrap(kind error, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// KindOf returns the failure kind carried by err, or nil when err is nil or
// does not belong to any known kind.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Message returns the description attached to err, falling back to err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// Retryable reports whether the whole atomic unit that produced err may be
// attempted again.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
