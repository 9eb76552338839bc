// internal/domain/session/entity.go
package session

import (
	"database/sql"
	"time"

	"identity-service/internal/domain/identity"
)

// Session is the durable record backing one refresh-token family. Rows are
// never deleted; revocation and expiry make them inert, the row stays for audit.
type Session struct {
	ID        string             `json:"id" db:"id"`
	OwnerID   string             `json:"owner_id" db:"owner_id"`
	OwnerKind identity.OwnerKind `json:"owner_kind" db:"owner_kind"`
	TokenHash string             `json:"-" db:"token_hash"`
	IssuedAt  time.Time          `json:"issued_at" db:"issued_at"`
	ExpiresAt time.Time          `json:"expires_at" db:"expires_at"`
	RevokedAt sql.NullTime       `json:"revoked_at" db:"revoked_at"`
	ClientIP  sql.NullString     `json:"client_ip" db:"client_ip"`
	UserAgent sql.NullString     `json:"user_agent" db:"user_agent"`
}

// Active reports whether the session can still be rotated at the given
// instant. The stored absolute expiry is authoritative; the TTL is never
// recomputed, so clock changes cannot resurrect an expired session.
func (s *Session) Active(now time.Time) bool {
	return !s.RevokedAt.Valid && now.Before(s.ExpiresAt)
}

// Summary is the caller-visible projection of a session for GET /sessions.
type Summary struct {
	ID        string    `json:"id"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}
