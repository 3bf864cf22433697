package apperr

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors for the failure classes the API distinguishes. Services
// wrap these with %w and handlers map them to HTTP statuses.
var (
	// ErrAccessDenied means the email is not on the allow-list. Resolved
	// before any backend call.
	ErrAccessDenied = errors.New("access denied")

	// ErrAuthFailure means the credential or account state was rejected.
	ErrAuthFailure = errors.New("authentication failed")

	// ErrPermissionDenied means the store rejected a read/write for the
	// authenticated caller.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConnectivity means the backend was unreachable or timed out.
	ErrConnectivity = errors.New("backend unreachable")

	// ErrNotFound means an expected record is absent. For optional records
	// (today's daily post) this is a valid empty state, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrValidation means the input was rejected before any network call.
	ErrValidation = errors.New("validation failed")

	// ErrTransient marks the known class of backend internal errors that a
	// bounded retry absorbs.
	ErrTransient = errors.New("transient backend error")
)

// Classify folds a database error into the taxonomy. Unrecognized errors are
// returned unchanged so the original cause stays visible in logs.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrConnectivity
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrConnectivity
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501": // insufficient_privilege
			return ErrPermissionDenied
		case pgErr.Code == "23505": // unique_violation
			// A pre-insert existence check can race with a concurrent
			// insert; the constraint is the authoritative answer and the
			// caller treats it like the sequential duplicate.
			return ErrValidation
		case strings.HasPrefix(pgErr.Code, "XX"): // internal_error class
			return ErrTransient
		case pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03":
			// admin_shutdown, crash_shutdown, cannot_connect_now
			return ErrTransient
		case strings.HasPrefix(pgErr.Code, "08"): // connection_exception class
			return ErrConnectivity
		}
	}
	if pgconn.Timeout(err) {
		return ErrConnectivity
	}
	return err
}

// Retryable reports whether err belongs to the class absorbed by the bounded
// retry loop.
func Retryable(err error) bool {
	return errors.Is(Classify(err), ErrTransient)
}
