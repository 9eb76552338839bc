// internal/pkg/token/manager.go
package token

import (
	"fmt"
	"time"

	"identity-service/internal/domain/identity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// Config is the signing surface: one shared secret and the two TTLs.
type Config struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Manager signs and verifies access tokens. Refresh tokens are opaque and
// never pass through here; see refresh.go.
type Manager struct {
	secret     []byte
	issuer     string
	audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("token manager requires a signing secret")
	}

	return &Manager{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, nil
}

// Sign mints an access token from a freshly loaded owner snapshot. Claims are
// always derived from the snapshot handed in, never copied from a previous
// token.
func (m *Manager) Sign(owner *identity.Owner) (string, *AccessClaims, error) {
	now := time.Now()

	memberships := make(map[string]MembershipClaim, len(owner.Memberships))
	for slug, ms := range owner.Memberships {
		memberships[slug] = MembershipClaim{
			Status:    ms.Status,
			Countries: append([]string(nil), ms.Countries...),
		}
	}

	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   owner.ID,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(m.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        ulid.Make().String(),
		},
		Kind:        owner.Kind,
		Mode:        owner.Mode,
		Country:     owner.Country,
		Permissions: append([]string(nil), owner.Permissions...),
		Memberships: memberships,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return signed, claims, nil
}

// Verify validates signature, expiry, issuer and audience and returns the
// embedded claims.
func (m *Manager) Verify(tokenString string) (*AccessClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := tok.Claims.(*AccessClaims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
