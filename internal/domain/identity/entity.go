// internal/domain/identity/entity.go
package identity

import (
	"database/sql"
	"time"
)

// OwnerKind distinguishes the principal populations that can hold sessions.
type OwnerKind string

const (
	KindUser     OwnerKind = "USER"
	KindAdmin    OwnerKind = "ADMIN"
	KindOperator OwnerKind = "OPERATOR"
)

func (k OwnerKind) IsValid() bool {
	switch k {
	case KindUser, KindAdmin, KindOperator:
		return true
	}
	return false
}

// AccountMode tells whether an owner acts alone or as a unified identity
// produced by an account link.
type AccountMode string

const (
	ModeService AccountMode = "SERVICE"
	ModeUnified AccountMode = "UNIFIED"
)

// MembershipStatus is the state of an owner's enrollment in one service.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "ACTIVE"
	MembershipSuspended MembershipStatus = "SUSPENDED"
)

// ServiceMembership records an owner's enrollment in a service together with
// the countries the owner consented to for that service.
type ServiceMembership struct {
	Service   string           `json:"service" db:"service"`
	Status    MembershipStatus `json:"status" db:"status"`
	Countries []string         `json:"countries" db:"countries"`
	JoinedAt  time.Time        `json:"joined_at" db:"joined_at"`
}

// Owner is the snapshot of an account as this subsystem sees it. The CRUD
// layer owns the record; the session subsystem reads it at mint time and flips
// its account mode during linking.
type Owner struct {
	ID            string                       `json:"id" db:"id"`
	Email         string                       `json:"email" db:"email"`
	EmailVerified bool                         `json:"email_verified" db:"email_verified"`
	PasswordHash  string                       `json:"-" db:"password_hash"`
	Kind          OwnerKind                    `json:"kind" db:"kind"`
	Mode          AccountMode                  `json:"mode" db:"mode"`
	Country       string                       `json:"country" db:"country"`
	MFAEnabled    bool                         `json:"mfa_enabled" db:"mfa_enabled"`
	Permissions   []string                     `json:"permissions"`
	Memberships   map[string]ServiceMembership `json:"memberships"`
	LastLoginAt   sql.NullTime                 `json:"last_login_at" db:"last_login_at"`
	CreatedAt     time.Time                    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time                    `json:"updated_at" db:"updated_at"`
}

// EarliestMembership returns the membership the owner joined first, used as
// the target service of a new account link. ok is false when the owner has no
// memberships at all.
func (o *Owner) EarliestMembership() (ServiceMembership, bool) {
	var earliest ServiceMembership
	found := false
	for _, m := range o.Memberships {
		if !found || m.JoinedAt.Before(earliest.JoinedAt) {
			earliest = m
			found = true
		}
	}
	return earliest, found
}
