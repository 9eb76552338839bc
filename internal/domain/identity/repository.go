// internal/domain/identity/repository.go
package identity

import "context"

// Repository loads owner snapshots and applies the narrow mutations this
// subsystem is allowed to make on owner records.
type Repository interface {
	// FindByEmail returns the owner with the given email, memberships and
	// permissions loaded. xerrors.ErrNotFound when absent.
	FindByEmail(ctx context.Context, email string) (*Owner, error)
	// FindByID returns the owner with memberships and permissions loaded.
	FindByID(ctx context.Context, id string) (*Owner, error)
	// FindByVerifiedEmail lists owners sharing a verified email, excluding one id.
	// Used for link-candidate discovery.
	FindByVerifiedEmail(ctx context.Context, email, excludeID string) ([]*Owner, error)
	// UpdateLastLogin stamps a successful first-factor login.
	UpdateLastLogin(ctx context.Context, id string) error
	// UpdatePasswordHash replaces the owner's credential hash.
	// xerrors.ErrNotFound when no owner matches.
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	// SetMode flips an owner between SERVICE and UNIFIED. Runs inside the
	// linking transactions.
	SetMode(ctx context.Context, id string, mode AccountMode) error
	// BackupCodeHashes returns the owner's unused backup-code hashes.
	BackupCodeHashes(ctx context.Context, ownerID string) ([]string, error)
	// ConsumeBackupCode marks one backup code used; returns false when the
	// hash does not match an unused code.
	ConsumeBackupCode(ctx context.Context, ownerID, hash string) (bool, error)
	// TOTPSecret returns the owner's enrolled TOTP secret.
	TOTPSecret(ctx context.Context, ownerID string) ([]byte, error)
}
