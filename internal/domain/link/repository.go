// internal/domain/link/repository.go
package link

import "context"

// Repository persists account links and consent records. Mutating methods
// honor the transaction bound to the context.
type Repository interface {
	Create(ctx context.Context, l *AccountLink) error
	FindByID(ctx context.Context, id string) (*AccountLink, error)
	// FindNonTerminalByPair looks up a PENDING or ACTIVE link for the
	// unordered owner pair. xerrors.ErrNotFound when none exists.
	FindNonTerminalByPair(ctx context.Context, ownerA, ownerB string) (*AccountLink, error)
	// Activate flips a PENDING link to ACTIVE and stamps linked_at. Returns
	// false when the row is no longer PENDING.
	Activate(ctx context.Context, id string) (bool, error)
	// MarkUnlinked flips an ACTIVE link to UNLINKED. Returns false when the
	// row is no longer ACTIVE.
	MarkUnlinked(ctx context.Context, id string) (bool, error)
	// CountActiveForOwner counts ACTIVE links referencing the owner on either
	// side. Reads inside the calling transaction so unlink reversion cannot
	// race a concurrent link change.
	CountActiveForOwner(ctx context.Context, ownerID string) (int, error)
	// ListForOwner returns non-terminal links referencing the owner.
	ListForOwner(ctx context.Context, ownerID string) ([]*AccountLink, error)
	// UpsertConsent inserts the consent or updates the row matching the
	// (owner, type, country, scope) key.
	UpsertConsent(ctx context.Context, c *Consent) error
	// ConsentsForOwner lists an owner's consents.
	ConsentsForOwner(ctx context.Context, ownerID string) ([]*Consent, error)
}
