// internal/domain/link/entity.go
package link

import (
	"database/sql"
	"time"
)

// Status is the lifecycle state of an account link. Transitions only move
// forward: PENDING -> ACTIVE -> UNLINKED.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusUnlinked Status = "UNLINKED"
)

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusUnlinked
}

// AccountLink is a pending or completed merge between a primary and a linked
// account. At most one non-terminal link may exist per unordered owner pair.
type AccountLink struct {
	ID             string       `json:"id" db:"id"`
	PrimaryOwnerID string       `json:"primary_owner_id" db:"primary_owner_id"`
	LinkedOwnerID  string       `json:"linked_owner_id" db:"linked_owner_id"`
	ServiceID      string       `json:"service_id" db:"service_id"`
	Status         Status       `json:"status" db:"status"`
	LinkedAt       sql.NullTime `json:"linked_at" db:"linked_at"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// References reports whether the given owner is one of the link's two parties.
func (l *AccountLink) References(ownerID string) bool {
	return l.PrimaryOwnerID == ownerID || l.LinkedOwnerID == ownerID
}

// Counterpart returns the other party of the link relative to ownerID.
func (l *AccountLink) Counterpart(ownerID string) string {
	if l.PrimaryOwnerID == ownerID {
		return l.LinkedOwnerID
	}
	return l.PrimaryOwnerID
}

// Consent records one collected consent. The upsert key is
// (owner, type, country, scope): accepting the same consent twice updates the
// existing row instead of inserting a duplicate.
type Consent struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Type      string    `json:"type" db:"type"`
	Country   string    `json:"country" db:"country"`
	Scope     string    `json:"scope" db:"scope"`
	GrantedAt time.Time `json:"granted_at" db:"granted_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
