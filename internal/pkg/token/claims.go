// internal/pkg/token/claims.go
package token

import (
	"strings"

	"identity-service/internal/domain/identity"

	"github.com/golang-jwt/jwt/v5"
)

// MembershipClaim is the per-service slice of an access token: enrollment
// status plus the countries the owner consented to.
type MembershipClaim struct {
	Status    identity.MembershipStatus `json:"status"`
	Countries []string                  `json:"countries,omitempty"`
}

// AccessClaims is the JWT payload of an access token. It is a snapshot taken
// at mint time; it goes stale the moment the owner record changes and is
// repaired at the next rotation, bounded by the access TTL.
type AccessClaims struct {
	jwt.RegisteredClaims
	Kind        identity.OwnerKind         `json:"kind"`
	Mode        identity.AccountMode       `json:"mode"`
	Country     string                     `json:"country,omitempty"`
	Permissions []string                   `json:"permissions,omitempty"`
	Memberships map[string]MembershipClaim `json:"memberships,omitempty"`
}

// OwnerID is the token subject.
func (c *AccessClaims) OwnerID() string {
	return c.Subject
}

// HasPermission applies the wildcard grammar: "*" grants everything,
// "resource:*" grants any action on the resource, otherwise the match is
// exact. Absence of a match is a denial.
func (c *AccessClaims) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == "*" || p == permission {
			return true
		}
		if resource, ok := strings.CutSuffix(p, ":*"); ok {
			if strings.HasPrefix(permission, resource+":") {
				return true
			}
		}
	}
	return false
}

// Membership returns the claim entry for a service slug.
func (c *AccessClaims) Membership(service string) (MembershipClaim, bool) {
	m, ok := c.Memberships[service]
	return m, ok
}
