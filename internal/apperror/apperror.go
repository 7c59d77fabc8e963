// Package apperror defines the application's error taxonomy.
//
// Services return these typed errors; HTTP handlers map them to status codes
// with errors.Is/errors.As. The sync/vault sentinels additionally drive
// behavior: transient sync errors are retried with backoff, terminal ones
// mark the link unusable, and vault errors fail the operation outright.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrIdentityConflict signals a data-integrity violation in the
	// provider/email mapping: a provider identity is already linked to a
	// different account than the one implied by email lookup. Never
	// auto-resolved — logged for manual review, fatal to the request.
	ErrIdentityConflict = errors.New("identity conflict")

	// ErrVault signals an encryption or decryption failure. The operation
	// requiring the token fails; the affected GitHub link is marked
	// unusable rather than retried indefinitely.
	ErrVault = errors.New("vault error")

	// ErrSyncTransient is a recoverable sync failure (network error, rate
	// limit). Retried with bounded exponential backoff, then degraded to a
	// non-blocking notification.
	ErrSyncTransient = errors.New("transient sync error")

	// ErrSyncTerminal is an unrecoverable sync failure (remote resource
	// gone, token revoked). The link goes terminal and is not retried
	// until the owner re-links GitHub.
	ErrSyncTerminal = errors.New("terminal sync error")
)

type AppError struct {
	Err     error  // sentinel from the list above
	Message string // human-readable error message
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource string, id any) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %v", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource string, id any) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %v", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// IdentityConflict wraps ErrIdentityConflict with the conflicting mapping.
// The message deliberately names our own rows, never raw provider payloads.
func IdentityConflict(provider, providerID string, accountID int64) *AppError {
	return &AppError{
		Err: ErrIdentityConflict,
		Message: fmt.Sprintf("provider identity %s:%s is already linked to account %d",
			provider, providerID, accountID),
	}
}

// Vault wraps ErrVault. The underlying crypto error is folded into the
// message; callers only ever branch on the sentinel.
func Vault(op string, err error) *AppError {
	return &AppError{
		Err:     ErrVault,
		Message: fmt.Sprintf("vault %s failed: %v", op, err),
	}
}

// SyncTransient marks err as retryable.
func SyncTransient(err error) *AppError {
	return &AppError{
		Err:     ErrSyncTransient,
		Message: fmt.Sprintf("github sync: %v", err),
	}
}

// SyncTerminal marks err as unrecoverable without a re-link.
func SyncTerminal(err error) *AppError {
	return &AppError{
		Err:     ErrSyncTerminal,
		Message: fmt.Sprintf("github sync: %v", err),
	}
}
