// internal/service/linking/linking.go
package linking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	authdto "identity-service/internal/domain/auth"
	"identity-service/internal/domain/identity"
	"identity-service/internal/domain/link"
	xerrors "identity-service/internal/pkg/errors"

	"github.com/avito-tech/go-transaction-manager/trm/v2"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer mints a fresh pair from a live owner snapshot. Satisfied by the
// auth service.
type TokenIssuer interface {
	IssueFor(ctx context.Context, ownerID, ip, userAgent string) (*authdto.TokenPair, error)
}

// AcceptResult carries the fresh pairs minted for both parties after a link
// activates. Each party's pair reflects the merged memberships.
type AcceptResult struct {
	Link           *link.AccountLink  `json:"link"`
	AcceptorTokens *authdto.TokenPair `json:"tokens"`
}

type LinkingService struct {
	owners    identity.Repository
	links     link.Repository
	issuer    TokenIssuer
	txManager trm.Manager
	logger    *zap.Logger
}

func NewLinkingService(
	owners identity.Repository,
	links link.Repository,
	issuer TokenIssuer,
	txManager trm.Manager,
	logger *zap.Logger,
) *LinkingService {
	return &LinkingService{
		owners:    owners,
		links:     links,
		issuer:    issuer,
		txManager: txManager,
		logger:    logger,
	}
}

// RequestLink opens a PENDING link from the requester toward another owner.
// The link targets the service the linked owner joined first.
func (s *LinkingService) RequestLink(ctx context.Context, requesterID, linkedOwnerID string) (*link.AccountLink, error) {
	if requesterID == linkedOwnerID {
		return nil, xerrors.ErrInvalidInput
	}

	requester, err := s.owners.FindByID(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	linked, err := s.owners.FindByID(ctx, linkedOwnerID)
	if err != nil {
		return nil, err
	}

	// Two already-unified identities have nothing left to merge.
	if requester.Mode == identity.ModeUnified && linked.Mode == identity.ModeUnified {
		return nil, xerrors.ErrInvalidState
	}

	if existing, err := s.links.FindNonTerminalByPair(ctx, requesterID, linkedOwnerID); err == nil {
		s.logger.Info("link request rejected, pair already linked",
			zap.String("link_id", existing.ID),
			zap.String("status", string(existing.Status)),
		)
		return nil, xerrors.ErrConflict
	} else if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	membership, ok := linked.EarliestMembership()
	if !ok {
		return nil, xerrors.ErrInvalidState
	}

	l := &link.AccountLink{
		ID:             ulid.Make().String(),
		PrimaryOwnerID: requesterID,
		LinkedOwnerID:  linkedOwnerID,
		ServiceID:      membership.Service,
		Status:         link.StatusPending,
		CreatedAt:      time.Now(),
	}
	if err := s.links.Create(ctx, l); err != nil {
		return nil, err
	}

	s.logger.Info("link requested",
		zap.String("link_id", l.ID),
		zap.String("primary_owner_id", requesterID),
		zap.String("linked_owner_id", linkedOwnerID),
	)
	return l, nil
}

// AcceptLink completes the workflow from the linked party's side. Consent
// upserts, link activation and both mode flips commit in one transaction; the
// fresh pair is minted only after the commit so its claims read the activated
// link.
func (s *LinkingService) AcceptLink(ctx context.Context, ownerID, ip, userAgent string, req link.AcceptLinkRequest) (*AcceptResult, error) {
	l, err := s.links.FindByID(ctx, req.LinkID)
	if err != nil {
		return nil, err
	}
	// Only a PENDING link owned by the caller is acceptable; anything else
	// reads as not found.
	if l.LinkedOwnerID != ownerID || l.Status != link.StatusPending {
		return nil, xerrors.ErrNotFound
	}

	acceptor, err := s.owners.FindByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acceptor.PasswordHash), []byte(req.Password)); err != nil {
		return nil, xerrors.ErrInvalidCredentials
	}

	now := time.Now()
	err = s.txManager.Do(ctx, func(txCtx context.Context) error {
		for _, c := range req.Consents {
			consent := &link.Consent{
				ID:        ulid.Make().String(),
				OwnerID:   ownerID,
				Type:      c.Type,
				Country:   c.Country,
				Scope:     c.Scope,
				GrantedAt: now,
				UpdatedAt: now,
			}
			if err := s.links.UpsertConsent(txCtx, consent); err != nil {
				return err
			}
		}

		activated, err := s.links.Activate(txCtx, l.ID)
		if err != nil {
			return err
		}
		if !activated {
			return xerrors.ErrInvalidState
		}

		if err := s.owners.SetMode(txCtx, l.PrimaryOwnerID, identity.ModeUnified); err != nil {
			return err
		}
		return s.owners.SetMode(txCtx, l.LinkedOwnerID, identity.ModeUnified)
	})
	if err != nil {
		return nil, err
	}

	tokens, err := s.issuer.IssueFor(ctx, ownerID, ip, userAgent)
	if err != nil {
		return nil, err
	}

	activated, err := s.links.FindByID(ctx, l.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("link activated",
		zap.String("link_id", l.ID),
		zap.String("primary_owner_id", l.PrimaryOwnerID),
		zap.String("linked_owner_id", l.LinkedOwnerID),
	)
	return &AcceptResult{Link: activated, AcceptorTokens: tokens}, nil
}

// Unlink tears one ACTIVE link down. Either party may unlink. Each party whose
// last active link this was reverts to SERVICE mode; the count is read inside
// the same transaction as the flip so a racing link change cannot be missed.
func (s *LinkingService) Unlink(ctx context.Context, ownerID, linkID string) error {
	l, err := s.links.FindByID(ctx, linkID)
	if err != nil {
		return err
	}
	if !l.References(ownerID) {
		return xerrors.ErrNotFound
	}

	err = s.txManager.Do(ctx, func(txCtx context.Context) error {
		unlinked, err := s.links.MarkUnlinked(txCtx, linkID)
		if err != nil {
			return err
		}
		if !unlinked {
			return xerrors.ErrInvalidState
		}

		for _, party := range []string{l.PrimaryOwnerID, l.LinkedOwnerID} {
			remaining, err := s.links.CountActiveForOwner(txCtx, party)
			if err != nil {
				return err
			}
			if remaining == 0 {
				if err := s.owners.SetMode(txCtx, party, identity.ModeService); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("link removed",
		zap.String("link_id", linkID),
		zap.String("requested_by", ownerID),
	)
	return nil
}

// LinkedAccounts lists the owner's non-terminal links as seen from their side.
func (s *LinkingService) LinkedAccounts(ctx context.Context, ownerID string) ([]*link.LinkedAccount, error) {
	links, err := s.links.ListForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	accounts := make([]*link.LinkedAccount, 0, len(links))
	for _, l := range links {
		counterpartID := l.Counterpart(ownerID)
		counterpart, err := s.owners.FindByID(ctx, counterpartID)
		if err != nil {
			return nil, fmt.Errorf("failed to load linked owner: %w", err)
		}

		entry := &link.LinkedAccount{
			LinkID:      l.ID,
			OwnerID:     counterpartID,
			MaskedEmail: maskEmail(counterpart.Email),
			ServiceID:   l.ServiceID,
			Status:      l.Status,
		}
		if l.LinkedAt.Valid {
			at := l.LinkedAt.Time
			entry.LinkedAt = &at
		}
		accounts = append(accounts, entry)
	}

	return accounts, nil
}

// Candidates discovers other owners holding the owner's verified email.
func (s *LinkingService) Candidates(ctx context.Context, ownerID string) ([]*link.Candidate, error) {
	owner, err := s.owners.FindByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !owner.EmailVerified {
		return nil, nil
	}

	matches, err := s.owners.FindByVerifiedEmail(ctx, owner.Email, ownerID)
	if err != nil {
		return nil, err
	}

	candidates := make([]*link.Candidate, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, &link.Candidate{
			OwnerID:     m.ID,
			MaskedEmail: maskEmail(m.Email),
			Mode:        string(m.Mode),
		})
	}

	return candidates, nil
}

// maskEmail keeps the first and last character of the local part and redacts
// the middle: "someone@example.com" becomes "s*****e@example.com".
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || len(local) <= 2 {
		return email
	}

	return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + "@" + domain
}
