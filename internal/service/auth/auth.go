// internal/service/auth/auth.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	authdto "identity-service/internal/domain/auth"
	"identity-service/internal/domain/identity"
	"identity-service/internal/domain/link"
	mfadomain "identity-service/internal/domain/mfa"
	"identity-service/internal/domain/session"
	xerrors "identity-service/internal/pkg/errors"
	"identity-service/internal/pkg/mfa"
	"identity-service/internal/pkg/token"

	"github.com/avito-tech/go-transaction-manager/trm/v2"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash keeps the bcrypt cost of a lookup miss identical to a real
// comparison.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// ChallengeStore is the slice of the MFA challenge store this service needs.
type ChallengeStore interface {
	Create(ctx context.Context, ownerID string, methods []mfadomain.Method) (*mfadomain.Challenge, error)
	Get(ctx context.Context, id string) (*mfadomain.Challenge, error)
	Consume(ctx context.Context, id string) (*mfadomain.Challenge, error)
}

type AuthService struct {
	owners     identity.Repository
	sessions   session.Repository
	links      link.Repository
	challenges ChallengeStore
	tokens     *token.Manager
	txManager  trm.Manager
	logger     *zap.Logger
}

func NewAuthService(
	owners identity.Repository,
	sessions session.Repository,
	links link.Repository,
	challenges ChallengeStore,
	tokens *token.Manager,
	txManager trm.Manager,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		owners:     owners,
		sessions:   sessions,
		links:      links,
		challenges: challenges,
		tokens:     tokens,
		txManager:  txManager,
		logger:     logger,
	}
}

// Login verifies the first factor. Owners with MFA enabled get a pending
// challenge instead of tokens; credential failures collapse into one error so
// the response cannot reveal whether the identifier exists.
func (s *AuthService) Login(ctx context.Context, req authdto.LoginRequest) (*authdto.LoginResponse, error) {
	owner, err := s.owners.FindByEmail(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			// Burn a comparison anyway so lookup misses cost the same.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Secret))
			return nil, xerrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up owner: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(owner.PasswordHash), []byte(req.Secret)); err != nil {
		return nil, xerrors.ErrInvalidCredentials
	}

	if err := s.owners.UpdateLastLogin(ctx, owner.ID); err != nil {
		s.logger.Warn("failed to stamp last login", zap.String("owner_id", owner.ID), zap.Error(err))
	}

	if owner.MFAEnabled {
		challenge, err := s.challenges.Create(ctx, owner.ID, []mfadomain.Method{
			mfadomain.MethodTOTP, mfadomain.MethodBackupCode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create mfa challenge: %w", err)
		}

		s.logger.Info("mfa challenge issued",
			zap.String("owner_id", owner.ID),
			zap.String("challenge_id", challenge.ID),
		)
		return &authdto.LoginResponse{MFAChallenge: challenge}, nil
	}

	pair, err := s.issuePair(ctx, owner, req.IPAddress, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login succeeded", zap.String("owner_id", owner.ID))
	return &authdto.LoginResponse{Tokens: pair}, nil
}

// VerifyMFA completes a pending challenge. The challenge is read first and
// only consumed after the code verifies, so a wrong code leaves it usable for
// another attempt within its TTL.
func (s *AuthService) VerifyMFA(ctx context.Context, req authdto.MFAVerifyRequest) (*authdto.TokenPair, error) {
	if !req.Method.IsValid() {
		return nil, xerrors.ErrInvalidInput
	}

	challenge, err := s.challenges.Get(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}

	ok, err := s.verifySecondFactor(ctx, challenge.OwnerID, req.Method, req.Code)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("mfa code rejected",
			zap.String("challenge_id", req.ChallengeID),
			zap.String("method", string(req.Method)),
		)
		return nil, xerrors.ErrInvalidCode
	}

	// Success path only: GETDEL makes the challenge single-use, so a replay of
	// the same id races to exactly one winner.
	if _, err := s.challenges.Consume(ctx, req.ChallengeID); err != nil {
		return nil, err
	}

	owner, err := s.owners.FindByID(ctx, challenge.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}

	pair, err := s.issuePair(ctx, owner, req.IPAddress, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.logger.Info("mfa verification succeeded", zap.String("owner_id", owner.ID))
	return pair, nil
}

func (s *AuthService) verifySecondFactor(ctx context.Context, ownerID string, method mfadomain.Method, code string) (bool, error) {
	switch method {
	case mfadomain.MethodTOTP:
		secret, err := s.owners.TOTPSecret(ctx, ownerID)
		if err != nil {
			if errors.Is(err, xerrors.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return mfa.VerifyTOTP(secret, code, time.Now())

	case mfadomain.MethodBackupCode:
		return s.owners.ConsumeBackupCode(ctx, ownerID, mfa.HashBackupCode(code))

	default:
		return false, xerrors.ErrInvalidInput
	}
}

// Rotate exchanges a refresh token for a fresh pair. The presented session is
// revoked and replaced inside one transaction; of N concurrent presentations
// of the same token exactly one succeeds, the rest see ErrInvalidSession
// because the conditional revoke already happened.
func (s *AuthService) Rotate(ctx context.Context, refreshToken, ip, userAgent string) (*authdto.TokenPair, error) {
	hash := token.HashRefreshToken(refreshToken)

	current, err := s.sessions.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.ErrInvalidSession
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if !current.Active(time.Now()) {
		return nil, xerrors.ErrInvalidSession
	}

	owner, err := s.owners.FindByID(ctx, current.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}

	var pair *authdto.TokenPair
	err = s.txManager.Do(ctx, func(txCtx context.Context) error {
		won, err := s.sessions.RevokeByTokenHash(txCtx, hash)
		if err != nil {
			return err
		}
		if !won {
			return xerrors.ErrInvalidSession
		}

		pair, err = s.issuePair(txCtx, owner, ip, userAgent)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session rotated", zap.String("owner_id", owner.ID))
	return pair, nil
}

// Revoke invalidates the session behind a refresh token. Unknown or already
// revoked tokens succeed silently; logout is idempotent.
func (s *AuthService) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	if _, err := s.sessions.RevokeByTokenHash(ctx, token.HashRefreshToken(refreshToken)); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	return nil
}

// ChangePassword replaces the owner's credential after re-verifying the
// current one. Existing sessions stay alive; the new secret applies from the
// next login.
func (s *AuthService) ChangePassword(ctx context.Context, ownerID, currentPassword, newPassword string) error {
	owner, err := s.owners.FindByID(ctx, ownerID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(owner.PasswordHash), []byte(currentPassword)); err != nil {
		return xerrors.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.owners.UpdatePasswordHash(ctx, owner.ID, string(hash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("password changed", zap.String("owner_id", owner.ID))
	return nil
}

// Sessions lists the owner's active sessions; the presented refresh token, when
// given, marks which summary belongs to the presenting client.
func (s *AuthService) Sessions(ctx context.Context, ownerID, refreshToken string) ([]*session.Summary, error) {
	active, err := s.sessions.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*session.Summary, 0, len(active))
	for _, sess := range active {
		summaries = append(summaries, &session.Summary{
			ID:        sess.ID,
			ClientIP:  sess.ClientIP.String,
			UserAgent: sess.UserAgent.String,
			IssuedAt:  sess.IssuedAt,
			ExpiresAt: sess.ExpiresAt,
			Current:   refreshToken != "" && token.VerifyRefreshToken(refreshToken, sess.TokenHash),
		})
	}

	return summaries, nil
}

// RevokeSession kills one of the owner's sessions by id. A session id that
// belongs to someone else reads as not found.
func (s *AuthService) RevokeSession(ctx context.Context, ownerID, sessionID string) error {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.OwnerID != ownerID {
		return xerrors.ErrNotFound
	}

	return s.sessions.Revoke(ctx, sessionID)
}

// RevokeOtherSessions kills every session of the owner except the one behind
// the presented refresh token.
func (s *AuthService) RevokeOtherSessions(ctx context.Context, ownerID, refreshToken string) error {
	keepID := ""
	if refreshToken != "" {
		current, err := s.sessions.FindByTokenHash(ctx, token.HashRefreshToken(refreshToken))
		if err == nil && current.OwnerID == ownerID {
			keepID = current.ID
		}
	}

	return s.sessions.RevokeAllExcept(ctx, ownerID, keepID)
}

// IssueFor mints a fresh pair for the owner from a newly loaded snapshot.
// Used after linking completes so both parties leave with unified claims.
func (s *AuthService) IssueFor(ctx context.Context, ownerID, ip, userAgent string) (*authdto.TokenPair, error) {
	owner, err := s.owners.FindByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}

	return s.issuePair(ctx, owner, ip, userAgent)
}

// issuePair mints an access token from the owner snapshot and opens the
// session row backing the refresh token. UNIFIED owners get merged claims.
func (s *AuthService) issuePair(ctx context.Context, owner *identity.Owner, ip, userAgent string) (*authdto.TokenPair, error) {
	snapshot := owner
	if owner.Mode == identity.ModeUnified {
		merged, err := s.mergedSnapshot(ctx, owner)
		if err != nil {
			return nil, err
		}
		snapshot = merged
	}

	access, claims, err := s.tokens.Sign(snapshot)
	if err != nil {
		return nil, err
	}

	refresh, err := token.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := time.Now()
	sess := &session.Session{
		ID:        ulid.Make().String(),
		OwnerID:   owner.ID,
		OwnerKind: owner.Kind,
		TokenHash: token.HashRefreshToken(refresh),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.tokens.RefreshTTL),
	}
	if ip != "" {
		sess.ClientIP.String, sess.ClientIP.Valid = ip, true
	}
	if userAgent != "" {
		sess.UserAgent.String, sess.UserAgent.Valid = userAgent, true
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	return &authdto.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.tokens.AccessTTL.Seconds()),
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

// mergedSnapshot unions the ACTIVE memberships of every owner reachable over
// the owner's ACTIVE links into one snapshot. The union is computed from the
// live link rows at mint time; an unlink is reflected in the very next mint.
func (s *AuthService) mergedSnapshot(ctx context.Context, owner *identity.Owner) (*identity.Owner, error) {
	links, err := s.links.ListForOwner(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	merged := *owner
	merged.Memberships = make(map[string]identity.ServiceMembership, len(owner.Memberships))
	for slug, m := range owner.Memberships {
		if m.Status == identity.MembershipActive {
			merged.Memberships[slug] = m
		}
	}

	for _, l := range links {
		if l.Status != link.StatusActive {
			continue
		}
		counterpart, err := s.owners.FindByID(ctx, l.Counterpart(owner.ID))
		if err != nil {
			return nil, fmt.Errorf("failed to load linked owner: %w", err)
		}
		for slug, m := range counterpart.Memberships {
			if m.Status != identity.MembershipActive {
				continue
			}
			if own, exists := merged.Memberships[slug]; exists {
				own.Countries = mergeCountries(own.Countries, m.Countries)
				merged.Memberships[slug] = own
				continue
			}
			merged.Memberships[slug] = m
		}
	}

	return &merged, nil
}

// mergeCountries unions two consented country lists, keeping the first
// occurrence order and dropping duplicates.
func mergeCountries(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, c := range append(append([]string{}, a...), b...) {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
