package xerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the identity subsystem. Handlers map these to
// HTTP statuses; services wrap them with context via fmt.Errorf("%w").
var (
	// ErrInvalidCredentials covers both "unknown identifier" and "wrong secret"
	// so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidSession covers refresh tokens that are unknown, revoked or expired.
	ErrInvalidSession = errors.New("session invalid or expired")
	// ErrInvalidChallenge covers MFA challenge ids that are unknown, consumed or expired.
	ErrInvalidChallenge = errors.New("mfa challenge invalid or expired")
	// ErrInvalidCode is returned when an MFA code does not verify for the chosen method.
	ErrInvalidCode = errors.New("invalid mfa code")
	// ErrForbidden is raised by the guard chain; the wrapping error carries the reason.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized is raised when re-verification of a password fails.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict is raised when a duplicate link request targets the same pair.
	ErrConflict = errors.New("conflict: resource already exists")
	// ErrNotFound is raised when a link, session or owner is absent.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidState is raised when a workflow precondition does not hold,
	// e.g. linking two accounts that are both already unified.
	ErrInvalidState = errors.New("invalid state for requested operation")
	// ErrInvalidInput is raised on malformed request payloads.
	ErrInvalidInput = errors.New("invalid input")
)

// Forbidden wraps ErrForbidden with the specific requirement that failed. The
// reason is safe to expose; it names the check, never a secret.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}
