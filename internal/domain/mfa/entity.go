// internal/domain/mfa/entity.go
package mfa

import "time"

// Method names a second-factor verification mechanism.
type Method string

const (
	MethodTOTP       Method = "totp"
	MethodBackupCode Method = "backup_code"
)

func (m Method) IsValid() bool {
	return m == MethodTOTP || m == MethodBackupCode
}

// Challenge correlates a successful first-factor login with a pending
// second-factor verification. It lives only in the challenge store and is
// consumed exactly once by a successful verification.
type Challenge struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Methods   []Method  `json:"available_methods"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
