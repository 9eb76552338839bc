// internal/pkg/mfa/backup.go
package mfa

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashBackupCode derives the storable hash of a backup code. Codes are
// normalized before hashing so formatting differences ("abcd-1234" vs
// "ABCD1234") do not defeat lookup.
func HashBackupCode(code string) string {
	normalized := strings.ToLower(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(code)))
	h := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(h[:])
}
