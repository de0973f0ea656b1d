// Package emailchange implements the email change verification workflow. A
// request walks pending -> old_email_verified -> new_email_verified ->
// completed, with cancellation and expiry reachable from every non-terminal
// state. All authoritative state lives in the database; every transition is a
// status-guarded update so concurrent calls can't both win.
package emailchange

import (
	"errors"
	"net/http"
)

// The reasons a transition attempt can be rejected. Handlers surface these
// verbatim because the remedial action differs for each of them (resend vs.
// restart vs. wait).
var (
	ErrAlreadyActive   = errors.New("an email change request is already in progress")
	ErrInvalidEmail    = errors.New("invalid email address provided")
	ErrNotFound        = errors.New("email change request not found")
	ErrInvalidState    = errors.New("request is not in the right state for this action")
	ErrOutOfOrder      = errors.New("the current email address must be verified first")
	ErrExpired         = errors.New("email change request expired")
	ErrCodeMismatch    = errors.New("verification code is invalid")
	ErrAlreadyTerminal = errors.New("email change request is already finished")
	ErrRateLimited     = errors.New("too many attempts, please wait before trying again")
)

var kinds = map[string]error{
	"already_active":   ErrAlreadyActive,
	"invalid_email":    ErrInvalidEmail,
	"not_found":        ErrNotFound,
	"invalid_state":    ErrInvalidState,
	"out_of_order":     ErrOutOfOrder,
	"expired":          ErrExpired,
	"code_mismatch":    ErrCodeMismatch,
	"already_terminal": ErrAlreadyTerminal,
	"rate_limited":     ErrRateLimited,
}

// KindOf returns the wire identifier for err, or "" if err is not part of
// the workflow taxonomy.
func KindOf(err error) string {
	for kind, e := range kinds {
		if errors.Is(err, e) {
			return kind
		}
	}
	return ""
}

// FromKind maps a wire identifier back to its sentinel error. Used by
// clients to rebuild typed errors from response bodies.
func FromKind(kind string) error {
	return kinds[kind]
}

// HTTPStatus returns the response code a handler should use for err.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrCodeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyActive),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrOutOfOrder),
		errors.Is(err, ErrAlreadyTerminal):
		return http.StatusConflict
	case errors.Is(err, ErrExpired):
		return http.StatusGone
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
