// internal/pkg/mfa/totp.go
package mfa

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	totpDigits = 6
	totpPeriod = 30
	// totpSkew accepts one step either side of the current window to absorb
	// clock drift between the server and the authenticator.
	totpSkew = 1
)

// VerifyTOTP checks a 6-digit RFC 6238 code against the secret within the
// accepted window. A malformed code is a plain mismatch, not an error.
func VerifyTOTP(secret []byte, code string, now time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != totpDigits || !isNumeric(trimmed) {
		return false, nil
	}

	if len(secret) == 0 {
		return false, errors.New("empty totp secret")
	}

	for step := -totpSkew; step <= totpSkew; step++ {
		at := now.Add(time.Duration(step) * totpPeriod * time.Second)
		if at.Unix() < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(GenerateTOTP(secret, at)), []byte(trimmed)) == 1 {
			return true, nil
		}
	}

	return false, nil
}

// GenerateTOTP returns the code for the window containing now.
func GenerateTOTP(secret []byte, now time.Time) string {
	return hotpCode(secret, now.Unix()/totpPeriod)
}

func hotpCode(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	return fmt.Sprintf("%0*d", totpDigits, bin%1000000)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
