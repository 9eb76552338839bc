// internal/repository/postgres/session_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"identity-service/internal/domain/session"
	xerrors "identity-service/internal/pkg/errors"

	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	db     *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

func NewSessionRepository(db *pgxpool.Pool, getter *trmpgx.CtxGetter) *SessionRepository {
	return &SessionRepository{db: db, getter: getter}
}

func (r *SessionRepository) conn(ctx context.Context) trmpgx.Tr {
	return r.getter.DefaultTrOrDB(ctx, r.db)
}

const sessionColumns = `
	id, owner_id, owner_kind, token_hash, issued_at, expires_at,
	revoked_at, client_ip, user_agent
`

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.conn(ctx).Exec(ctx, query,
		s.ID, s.OwnerID, s.OwnerKind, s.TokenHash, s.IssuedAt, s.ExpiresAt,
		s.RevokedAt, s.ClientIP, s.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// FindByTokenHash returns the session row whatever its state; callers decide
// how to treat expired or revoked rows.
func (r *SessionRepository) FindByTokenHash(ctx context.Context, hash string) (*session.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE token_hash = $1
	`

	return r.scanSession(ctx, query, hash)
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*session.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE id = $1
	`

	return r.scanSession(ctx, query, id)
}

func (r *SessionRepository) scanSession(ctx context.Context, query string, arg any) (*session.Session, error) {
	var s session.Session
	err := r.conn(ctx).QueryRow(ctx, query, arg).Scan(
		&s.ID, &s.OwnerID, &s.OwnerKind, &s.TokenHash, &s.IssuedAt, &s.ExpiresAt,
		&s.RevokedAt, &s.ClientIP, &s.UserAgent,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return &s, nil
}

// RevokeByTokenHash revokes the session only if it is still active. Under a
// concurrent rotation race exactly one caller sees true.
func (r *SessionRepository) RevokeByTokenHash(ctx context.Context, hash string) (bool, error) {
	query := `
		UPDATE sessions
		SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()
	`

	result, err := r.conn(ctx).Exec(ctx, query, hash)
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// Revoke marks a session revoked by id. Revoking twice is a no-op.
func (r *SessionRepository) Revoke(ctx context.Context, id string) error {
	query := `
		UPDATE sessions
		SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL
	`

	if _, err := r.conn(ctx).Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	return nil
}

// RevokeAllExcept revokes every active session of the owner apart from keepID.
func (r *SessionRepository) RevokeAllExcept(ctx context.Context, ownerID, keepID string) error {
	query := `
		UPDATE sessions
		SET revoked_at = now()
		WHERE owner_id = $1 AND id <> $2 AND revoked_at IS NULL
	`

	if _, err := r.conn(ctx).Exec(ctx, query, ownerID, keepID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	return nil
}

func (r *SessionRepository) ListActiveByOwner(ctx context.Context, ownerID string) ([]*session.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE owner_id = $1 AND revoked_at IS NULL AND expires_at > now()
		ORDER BY issued_at DESC
	`

	rows, err := r.conn(ctx).Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		var s session.Session
		if err := rows.Scan(
			&s.ID, &s.OwnerID, &s.OwnerKind, &s.TokenHash, &s.IssuedAt, &s.ExpiresAt,
			&s.RevokedAt, &s.ClientIP, &s.UserAgent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}
