// internal/domain/session/repository.go
package session

import (
	"context"
)

// Repository persists refresh sessions. Implementations must honor the
// transaction bound to the context so that rotation stays atomic. Rows are
// never deleted; revocation and expiry alone make a session inert.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	// FindByTokenHash returns the session for a token hash regardless of its
	// state; the caller decides how to treat revoked/expired rows.
	// xerrors.ErrNotFound when no row matches.
	FindByTokenHash(ctx context.Context, hash string) (*Session, error)
	FindByID(ctx context.Context, id string) (*Session, error)
	// RevokeByTokenHash revokes the still-active session holding the hash and
	// reports whether a row was actually flipped. Concurrent rotations of the
	// same token observe exactly one true here; the losers see false because
	// the row is already revoked.
	RevokeByTokenHash(ctx context.Context, hash string) (bool, error)
	// Revoke marks one session revoked by id. Idempotent.
	Revoke(ctx context.Context, id string) error
	// RevokeAllExcept revokes every active session of the owner except keepID.
	// Pass an empty keepID to revoke all of them.
	RevokeAllExcept(ctx context.Context, ownerID, keepID string) error
	// ListActiveByOwner returns the owner's non-revoked, non-expired sessions.
	ListActiveByOwner(ctx context.Context, ownerID string) ([]*Session, error)
}
