// internal/repository/postgres/link_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"identity-service/internal/domain/link"
	xerrors "identity-service/internal/pkg/errors"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type LinkRepository struct {
	db     *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

func NewLinkRepository(db *pgxpool.Pool, getter *trmpgx.CtxGetter) *LinkRepository {
	return &LinkRepository{db: db, getter: getter}
}

func (r *LinkRepository) conn(ctx context.Context) trmpgx.Tr {
	return r.getter.DefaultTrOrDB(ctx, r.db)
}

var linkColumns = []string{
	"id", "primary_owner_id", "linked_owner_id", "service_id",
	"status", "linked_at", "created_at",
}

func (r *LinkRepository) Create(ctx context.Context, l *link.AccountLink) error {
	query, args, err := psql.Insert("account_links").
		Columns(linkColumns...).
		Values(l.ID, l.PrimaryOwnerID, l.LinkedOwnerID, l.ServiceID, l.Status, l.LinkedAt, l.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build link insert: %w", err)
	}

	if _, err := r.conn(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

func (r *LinkRepository) FindByID(ctx context.Context, id string) (*link.AccountLink, error) {
	query, args, err := psql.Select(linkColumns...).
		From("account_links").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build link query: %w", err)
	}

	return r.scanLink(ctx, query, args)
}

// FindNonTerminalByPair looks up a PENDING or ACTIVE link between the two
// owners in either direction.
func (r *LinkRepository) FindNonTerminalByPair(ctx context.Context, ownerA, ownerB string) (*link.AccountLink, error) {
	query, args, err := psql.Select(linkColumns...).
		From("account_links").
		Where(sq.Or{
			sq.And{sq.Eq{"primary_owner_id": ownerA}, sq.Eq{"linked_owner_id": ownerB}},
			sq.And{sq.Eq{"primary_owner_id": ownerB}, sq.Eq{"linked_owner_id": ownerA}},
		}).
		Where(sq.Eq{"status": []link.Status{link.StatusPending, link.StatusActive}}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build link query: %w", err)
	}

	return r.scanLink(ctx, query, args)
}

func (r *LinkRepository) scanLink(ctx context.Context, query string, args []any) (*link.AccountLink, error) {
	var l link.AccountLink
	err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(
		&l.ID, &l.PrimaryOwnerID, &l.LinkedOwnerID, &l.ServiceID,
		&l.Status, &l.LinkedAt, &l.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find link: %w", err)
	}

	return &l, nil
}

// Activate flips a PENDING link to ACTIVE. The status predicate keeps a
// concurrent accept from activating the same link twice.
func (r *LinkRepository) Activate(ctx context.Context, id string) (bool, error) {
	query, args, err := psql.Update("account_links").
		Set("status", link.StatusActive).
		Set("linked_at", time.Now()).
		Where(sq.Eq{"id": id, "status": link.StatusPending}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build link update: %w", err)
	}

	result, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to activate link: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// MarkUnlinked flips an ACTIVE link to UNLINKED.
func (r *LinkRepository) MarkUnlinked(ctx context.Context, id string) (bool, error) {
	query, args, err := psql.Update("account_links").
		Set("status", link.StatusUnlinked).
		Where(sq.Eq{"id": id, "status": link.StatusActive}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build link update: %w", err)
	}

	result, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to unlink: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *LinkRepository) CountActiveForOwner(ctx context.Context, ownerID string) (int, error) {
	query, args, err := psql.Select("COUNT(*)").
		From("account_links").
		Where(sq.Eq{"status": link.StatusActive}).
		Where(sq.Or{
			sq.Eq{"primary_owner_id": ownerID},
			sq.Eq{"linked_owner_id": ownerID},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build link count: %w", err)
	}

	var count int
	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}

	return count, nil
}

func (r *LinkRepository) ListForOwner(ctx context.Context, ownerID string) ([]*link.AccountLink, error) {
	query, args, err := psql.Select(linkColumns...).
		From("account_links").
		Where(sq.Eq{"status": []link.Status{link.StatusPending, link.StatusActive}}).
		Where(sq.Or{
			sq.Eq{"primary_owner_id": ownerID},
			sq.Eq{"linked_owner_id": ownerID},
		}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build link query: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*link.AccountLink
	for rows.Next() {
		var l link.AccountLink
		if err := rows.Scan(
			&l.ID, &l.PrimaryOwnerID, &l.LinkedOwnerID, &l.ServiceID,
			&l.Status, &l.LinkedAt, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, &l)
	}

	return links, rows.Err()
}

// UpsertConsent inserts the consent or refreshes the timestamp on the row
// matching the (owner, type, country, scope) key.
func (r *LinkRepository) UpsertConsent(ctx context.Context, c *link.Consent) error {
	query, args, err := psql.Insert("consents").
		Columns("id", "owner_id", "type", "country", "scope", "granted_at", "updated_at").
		Values(c.ID, c.OwnerID, c.Type, c.Country, c.Scope, c.GrantedAt, c.UpdatedAt).
		Suffix(`ON CONFLICT (owner_id, type, country, scope)
			DO UPDATE SET updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build consent upsert: %w", err)
	}

	if _, err := r.conn(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert consent: %w", err)
	}

	return nil
}

func (r *LinkRepository) ConsentsForOwner(ctx context.Context, ownerID string) ([]*link.Consent, error) {
	query, args, err := psql.Select("id", "owner_id", "type", "country", "scope", "granted_at", "updated_at").
		From("consents").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("granted_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build consent query: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	defer rows.Close()

	var consents []*link.Consent
	for rows.Next() {
		var c link.Consent
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Type, &c.Country, &c.Scope, &c.GrantedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		consents = append(consents, &c)
	}

	return consents, rows.Err()
}
