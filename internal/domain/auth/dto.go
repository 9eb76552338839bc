// internal/domain/auth/dto.go
package auth

import (
	"time"

	"identity-service/internal/domain/mfa"
)

// LoginRequest authenticates a principal by identifier and secret.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Secret     string `json:"secret" binding:"required"`
	IPAddress  string `json:"-"`
	UserAgent  string `json:"-"`
}

// TokenPair is one minted access/refresh pair.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LoginResponse carries either tokens or a pending MFA challenge, never both.
type LoginResponse struct {
	Tokens       *TokenPair     `json:"tokens,omitempty"`
	MFAChallenge *mfa.Challenge `json:"mfa_challenge,omitempty"`
}

// MFAVerifyRequest completes a challenge with a second-factor code.
type MFAVerifyRequest struct {
	ChallengeID string     `json:"challenge_id" binding:"required"`
	Code        string     `json:"code" binding:"required"`
	Method      mfa.Method `json:"method" binding:"required"`
	IPAddress   string     `json:"-"`
	UserAgent   string     `json:"-"`
}

// ChangePasswordRequest rotates the owner's credential after re-verifying the
// current one.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// RefreshRequest carries the opaque refresh token when the cookie is absent.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest revokes the session behind the refresh token. Idempotent.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}
