// internal/repository/postgres/owner_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"identity-service/internal/domain/identity"
	xerrors "identity-service/internal/pkg/errors"

	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OwnerRepository struct {
	db     *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

func NewOwnerRepository(db *pgxpool.Pool, getter *trmpgx.CtxGetter) *OwnerRepository {
	return &OwnerRepository{db: db, getter: getter}
}

// conn resolves the transaction bound to the context, falling back to the pool.
func (r *OwnerRepository) conn(ctx context.Context) trmpgx.Tr {
	return r.getter.DefaultTrOrDB(ctx, r.db)
}

const ownerColumns = `
	id, email, email_verified, password_hash, kind, mode, country,
	mfa_enabled, last_login_at, created_at, updated_at
`

// FindByEmail retrieves an owner by email with memberships and permissions loaded.
func (r *OwnerRepository) FindByEmail(ctx context.Context, email string) (*identity.Owner, error) {
	query := `
		SELECT ` + ownerColumns + `
		FROM owners
		WHERE LOWER(email) = LOWER($1)
	`

	return r.scanOwner(ctx, query, email)
}

// FindByID retrieves an owner by id with memberships and permissions loaded.
func (r *OwnerRepository) FindByID(ctx context.Context, id string) (*identity.Owner, error) {
	query := `
		SELECT ` + ownerColumns + `
		FROM owners
		WHERE id = $1
	`

	return r.scanOwner(ctx, query, id)
}

func (r *OwnerRepository) scanOwner(ctx context.Context, query string, arg any) (*identity.Owner, error) {
	var owner identity.Owner
	err := r.conn(ctx).QueryRow(ctx, query, arg).Scan(
		&owner.ID, &owner.Email, &owner.EmailVerified, &owner.PasswordHash,
		&owner.Kind, &owner.Mode, &owner.Country, &owner.MFAEnabled,
		&owner.LastLoginAt, &owner.CreatedAt, &owner.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find owner: %w", err)
	}

	if owner.Memberships, err = r.memberships(ctx, owner.ID); err != nil {
		return nil, err
	}
	if owner.Permissions, err = r.permissions(ctx, owner.ID); err != nil {
		return nil, err
	}

	return &owner, nil
}

// FindByVerifiedEmail lists owners holding the same verified email, excluding one id.
func (r *OwnerRepository) FindByVerifiedEmail(ctx context.Context, email, excludeID string) ([]*identity.Owner, error) {
	query := `
		SELECT ` + ownerColumns + `
		FROM owners
		WHERE LOWER(email) = LOWER($1) AND email_verified = TRUE AND id <> $2
		ORDER BY created_at
	`

	rows, err := r.conn(ctx).Query(ctx, query, email, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners by email: %w", err)
	}
	defer rows.Close()

	var owners []*identity.Owner
	for rows.Next() {
		var owner identity.Owner
		if err := rows.Scan(
			&owner.ID, &owner.Email, &owner.EmailVerified, &owner.PasswordHash,
			&owner.Kind, &owner.Mode, &owner.Country, &owner.MFAEnabled,
			&owner.LastLoginAt, &owner.CreatedAt, &owner.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, &owner)
	}

	return owners, rows.Err()
}

func (r *OwnerRepository) memberships(ctx context.Context, ownerID string) (map[string]identity.ServiceMembership, error) {
	query := `
		SELECT service, status, countries, joined_at
		FROM service_memberships
		WHERE owner_id = $1
	`

	rows, err := r.conn(ctx).Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	defer rows.Close()

	memberships := make(map[string]identity.ServiceMembership)
	for rows.Next() {
		var m identity.ServiceMembership
		if err := rows.Scan(&m.Service, &m.Status, &m.Countries, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships[m.Service] = m
	}

	return memberships, rows.Err()
}

func (r *OwnerRepository) permissions(ctx context.Context, ownerID string) ([]string, error) {
	query := `
		SELECT permission
		FROM owner_permissions
		WHERE owner_id = $1
	`

	rows, err := r.conn(ctx).Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	defer rows.Close()

	var permissions []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, p)
	}

	return permissions, rows.Err()
}

// UpdateLastLogin stamps a successful first-factor login.
func (r *OwnerRepository) UpdateLastLogin(ctx context.Context, id string) error {
	query := `UPDATE owners SET last_login_at = $1, updated_at = $1 WHERE id = $2`
	_, err := r.conn(ctx).Exec(ctx, query, time.Now(), id)
	return err
}

// UpdatePasswordHash replaces the owner's credential hash.
func (r *OwnerRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	query := `UPDATE owners SET password_hash = $1, updated_at = $2 WHERE id = $3`

	result, err := r.conn(ctx).Exec(ctx, query, hash, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// SetMode flips an owner's account mode. Runs inside the linking transactions.
func (r *OwnerRepository) SetMode(ctx context.Context, id string, mode identity.AccountMode) error {
	query := `UPDATE owners SET mode = $1, updated_at = $2 WHERE id = $3`

	result, err := r.conn(ctx).Exec(ctx, query, mode, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set account mode: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// TOTPSecret returns the owner's enrolled TOTP secret.
func (r *OwnerRepository) TOTPSecret(ctx context.Context, ownerID string) ([]byte, error) {
	query := `SELECT totp_secret FROM owners WHERE id = $1 AND totp_secret IS NOT NULL`

	var secret []byte
	err := r.conn(ctx).QueryRow(ctx, query, ownerID).Scan(&secret)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load totp secret: %w", err)
	}

	return secret, nil
}

// BackupCodeHashes returns the owner's unused backup-code hashes.
func (r *OwnerRepository) BackupCodeHashes(ctx context.Context, ownerID string) ([]string, error) {
	query := `
		SELECT code_hash
		FROM backup_codes
		WHERE owner_id = $1 AND used_at IS NULL
	`

	rows, err := r.conn(ctx).Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup codes: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan backup code: %w", err)
		}
		hashes = append(hashes, h)
	}

	return hashes, rows.Err()
}

// ConsumeBackupCode marks one backup code used. The WHERE used_at IS NULL
// predicate makes consumption single-use under concurrency: the second caller
// matches zero rows.
func (r *OwnerRepository) ConsumeBackupCode(ctx context.Context, ownerID, hash string) (bool, error) {
	query := `
		UPDATE backup_codes
		SET used_at = $1
		WHERE owner_id = $2 AND code_hash = $3 AND used_at IS NULL
	`

	result, err := r.conn(ctx).Exec(ctx, query, time.Now(), ownerID, hash)
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}

	return result.RowsAffected() > 0, nil
}
