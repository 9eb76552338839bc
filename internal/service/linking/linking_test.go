// internal/service/linking/linking_test.go
package linking

import (
	"context"
	"sync"
	"testing"
	"time"

	authdto "identity-service/internal/domain/auth"
	"identity-service/internal/domain/identity"
	"identity-service/internal/domain/link"
	xerrors "identity-service/internal/pkg/errors"

	"github.com/avito-tech/go-transaction-manager/trm/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct horse battery staple"

type passthroughTxManager struct{}

func (passthroughTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (passthroughTxManager) DoWithSettings(ctx context.Context, _ trm.Settings, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type stubIssuer struct {
	issued []string
}

func (s *stubIssuer) IssueFor(_ context.Context, ownerID, _, _ string) (*authdto.TokenPair, error) {
	s.issued = append(s.issued, ownerID)
	return &authdto.TokenPair{AccessToken: "access-" + ownerID, RefreshToken: "refresh-" + ownerID}, nil
}

type memOwnerRepo struct {
	mu     sync.Mutex
	owners map[string]*identity.Owner
}

func (r *memOwnerRepo) FindByEmail(_ context.Context, email string) (*identity.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.owners {
		if o.Email == email {
			return o, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *memOwnerRepo) FindByID(_ context.Context, id string) (*identity.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.owners[id]; ok {
		return o, nil
	}
	return nil, xerrors.ErrNotFound
}

func (r *memOwnerRepo) FindByVerifiedEmail(_ context.Context, email, excludeID string) ([]*identity.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*identity.Owner
	for _, o := range r.owners {
		if o.Email == email && o.EmailVerified && o.ID != excludeID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memOwnerRepo) UpdateLastLogin(context.Context, string) error { return nil }

func (r *memOwnerRepo) UpdatePasswordHash(context.Context, string, string) error { return nil }

func (r *memOwnerRepo) SetMode(_ context.Context, id string, mode identity.AccountMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.owners[id]; ok {
		o.Mode = mode
		return nil
	}
	return xerrors.ErrNotFound
}

func (r *memOwnerRepo) BackupCodeHashes(context.Context, string) ([]string, error) {
	return nil, nil
}

func (r *memOwnerRepo) ConsumeBackupCode(context.Context, string, string) (bool, error) {
	return false, nil
}

func (r *memOwnerRepo) TOTPSecret(context.Context, string) ([]byte, error) {
	return nil, xerrors.ErrNotFound
}

type memLinkRepo struct {
	mu       sync.Mutex
	links    map[string]*link.AccountLink
	consents map[string]*link.Consent
}

func newMemLinkRepo() *memLinkRepo {
	return &memLinkRepo{
		links:    make(map[string]*link.AccountLink),
		consents: make(map[string]*link.Consent),
	}
}

func (r *memLinkRepo) Create(_ context.Context, l *link.AccountLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *l
	r.links[l.ID] = &copied
	return nil
}

func (r *memLinkRepo) FindByID(_ context.Context, id string) (*link.AccountLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.links[id]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, xerrors.ErrNotFound
}

func (r *memLinkRepo) FindNonTerminalByPair(_ context.Context, ownerA, ownerB string) (*link.AccountLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.Status.Terminal() {
			continue
		}
		if (l.PrimaryOwnerID == ownerA && l.LinkedOwnerID == ownerB) ||
			(l.PrimaryOwnerID == ownerB && l.LinkedOwnerID == ownerA) {
			copied := *l
			return &copied, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *memLinkRepo) Activate(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.Status != link.StatusPending {
		return false, nil
	}
	l.Status = link.StatusActive
	l.LinkedAt.Time, l.LinkedAt.Valid = time.Now(), true
	return true, nil
}

func (r *memLinkRepo) MarkUnlinked(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.Status != link.StatusActive {
		return false, nil
	}
	l.Status = link.StatusUnlinked
	return true, nil
}

func (r *memLinkRepo) CountActiveForOwner(_ context.Context, ownerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, l := range r.links {
		if l.Status == link.StatusActive && l.References(ownerID) {
			count++
		}
	}
	return count, nil
}

func (r *memLinkRepo) ListForOwner(_ context.Context, ownerID string) ([]*link.AccountLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*link.AccountLink
	for _, l := range r.links {
		if !l.Status.Terminal() && l.References(ownerID) {
			copied := *l
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memLinkRepo) UpsertConsent(_ context.Context, c *link.Consent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := c.OwnerID + "|" + c.Type + "|" + c.Country + "|" + c.Scope
	if existing, ok := r.consents[key]; ok {
		existing.UpdatedAt = c.UpdatedAt
		return nil
	}
	copied := *c
	r.consents[key] = &copied
	return nil
}

func (r *memLinkRepo) ConsentsForOwner(_ context.Context, ownerID string) ([]*link.Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*link.Consent
	for _, c := range r.consents {
		if c.OwnerID == ownerID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func makeOwner(t *testing.T, id, email string, services ...string) *identity.Owner {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	memberships := make(map[string]identity.ServiceMembership, len(services))
	for i, svc := range services {
		memberships[svc] = identity.ServiceMembership{
			Service:  svc,
			Status:   identity.MembershipActive,
			JoinedAt: time.Now().Add(-time.Duration(len(services)-i) * 24 * time.Hour),
		}
	}

	return &identity.Owner{
		ID:            id,
		Email:         email,
		EmailVerified: true,
		PasswordHash:  string(hash),
		Kind:          identity.KindUser,
		Mode:          identity.ModeService,
		Memberships:   memberships,
	}
}

type fixture struct {
	svc    *LinkingService
	owners *memOwnerRepo
	links  *memLinkRepo
	issuer *stubIssuer
}

func newFixture(t *testing.T, owners ...*identity.Owner) *fixture {
	t.Helper()

	repo := &memOwnerRepo{owners: make(map[string]*identity.Owner)}
	for _, o := range owners {
		repo.owners[o.ID] = o
	}

	f := &fixture{
		owners: repo,
		links:  newMemLinkRepo(),
		issuer: &stubIssuer{},
	}
	f.svc = NewLinkingService(repo, f.links, f.issuer, passthroughTxManager{}, zap.NewNop())
	return f
}

func TestRequestLinkCreatesPending(t *testing.T) {
	f := newFixture(t,
		makeOwner(t, "owner-a", "a@example.com", "girok"),
		makeOwner(t, "owner-b", "b@example.com", "legacy", "billing"),
	)

	l, err := f.svc.RequestLink(context.Background(), "owner-a", "owner-b")
	require.NoError(t, err)
	require.Equal(t, link.StatusPending, l.Status)
	require.Equal(t, "owner-a", l.PrimaryOwnerID)
	require.Equal(t, "owner-b", l.LinkedOwnerID)
	// The link targets the service the linked owner joined first.
	require.Equal(t, "legacy", l.ServiceID)
}

func TestRequestLinkRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("self link", func(t *testing.T) {
		f := newFixture(t, makeOwner(t, "owner-a", "a@example.com", "girok"))
		_, err := f.svc.RequestLink(ctx, "owner-a", "owner-a")
		require.ErrorIs(t, err, xerrors.ErrInvalidInput)
	})

	t.Run("unknown target", func(t *testing.T) {
		f := newFixture(t, makeOwner(t, "owner-a", "a@example.com", "girok"))
		_, err := f.svc.RequestLink(ctx, "owner-a", "owner-missing")
		require.ErrorIs(t, err, xerrors.ErrNotFound)
	})

	t.Run("both already unified", func(t *testing.T) {
		a := makeOwner(t, "owner-a", "a@example.com", "girok")
		b := makeOwner(t, "owner-b", "b@example.com", "billing")
		a.Mode, b.Mode = identity.ModeUnified, identity.ModeUnified

		f := newFixture(t, a, b)
		_, err := f.svc.RequestLink(ctx, "owner-a", "owner-b")
		require.ErrorIs(t, err, xerrors.ErrInvalidState)
	})

	t.Run("duplicate pair either direction", func(t *testing.T) {
		f := newFixture(t,
			makeOwner(t, "owner-a", "a@example.com", "girok"),
			makeOwner(t, "owner-b", "b@example.com", "billing"),
		)

		_, err := f.svc.RequestLink(ctx, "owner-a", "owner-b")
		require.NoError(t, err)

		_, err = f.svc.RequestLink(ctx, "owner-a", "owner-b")
		require.ErrorIs(t, err, xerrors.ErrConflict)
		_, err = f.svc.RequestLink(ctx, "owner-b", "owner-a")
		require.ErrorIs(t, err, xerrors.ErrConflict)
	})
}

func TestAcceptLinkActivatesAndUnifies(t *testing.T) {
	f := newFixture(t,
		makeOwner(t, "owner-a", "a@example.com", "girok"),
		makeOwner(t, "owner-b", "b@example.com", "billing"),
	)
	ctx := context.Background()

	pending, err := f.svc.RequestLink(ctx, "owner-a", "owner-b")
	require.NoError(t, err)

	result, err := f.svc.AcceptLink(ctx, "owner-b", "", "", link.AcceptLinkRequest{
		LinkID:   pending.ID,
		Password: testPassword,
		Consents: []link.ConsentInput{
			{Type: "data_sharing", Country: "KR", Scope: "billing"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, link.StatusActive, result.Link.Status)
	require.True(t, result.Link.LinkedAt.Valid)
	require.NotNil(t, result.AcceptorTokens)
	require.Equal(t, []string{"owner-b"}, f.issuer.issued)

	// Both parties flip to UNIFIED.
	a, _ := f.owners.FindByID(ctx, "owner-a")
	b, _ := f.owners.FindByID(ctx, "owner-b")
	require.Equal(t, identity.ModeUnified, a.Mode)
	require.Equal(t, identity.ModeUnified, b.Mode)

	consents, err := f.links.ConsentsForOwner(ctx, "owner-b")
	require.NoError(t, err)
	require.Len(t, consents, 1)
}

func TestAcceptLinkRejections(t *testing.T) {
	f := newFixture(t,
		makeOwner(t, "owner-a", "a@example.com", "girok"),
		makeOwner(t, "owner-b", "b@example.com", "billing"),
	)
	ctx := context.Background()

	pending, err := f.svc.RequestLink(ctx, "owner-a", "owner-b")
	require.NoError(t, err)

	// Only the linked party may accept.
	_, err = f.svc.AcceptLink(ctx, "owner-a", "", "", link.AcceptLinkRequest{
		LinkID:   pending.ID,
		Password: testPassword,
	})
	require.ErrorIs(t, err, xerrors.ErrNotFound)

	// The password re-verification gates acceptance.
	_, err = f.svc.AcceptLink(ctx, "owner-b", "", "", link.AcceptLinkRequest{
		LinkID:   pending.ID,
		Password: "wrong",
	})
	require.ErrorIs(t, err, xerrors.ErrInvalidCredentials)

	// Once the link left PENDING a second accept reads as not found. The
	// caller cannot tell an already-accepted link from a nonexistent one.
	_, err = f.svc.AcceptLink(ctx, "owner-b", "", "", link.AcceptLinkRequest{
		LinkID:   pending.ID,
		Password: testPassword,
	})
	require.NoError(t, err)
	_, err = f.svc.AcceptLink(ctx, "owner-b", "", "", link.AcceptLinkRequest{
		LinkID:   pending.ID,
		Password: testPassword,
	})
	require.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestConsentUpsertIsIdempotent(t *testing.T) {
	f := newFixture(t,
		makeOwner(t, "owner-a", "a@example.com", "girok"),
		makeOwner(t, "owner-b", "b@example.com", "billing"),
		makeOwner(t, "owner-c", "c@example.com", "legacy"),
	)
	ctx := context.Background()

	consents := []link.ConsentInput{
		{Type: "data_sharing", Country: "KR", Scope: "billing"},
	}

	first, err := f.svc.RequestLink(ctx, "owner-a", "owner-b")
	require.NoError(t, err)
	_, err = f.svc.AcceptLink(ctx, "owner-b", "", "", link.AcceptLinkRequest{
		LinkID: first.ID, Password: testPassword, Consents: consents,
	})
	require.NoError(t, err)

	// The same consent accepted again through a second link updates in place.
	second, err := f.svc.RequestLink(ctx, "owner-c", "owner-b")
	require.NoError(t, err)
	_, err = f.svc.AcceptLink(ctx, "owner-b", "", "", link.AcceptLinkRequest{
		LinkID: second.ID, Password: testPassword, Consents: consents,
	})
	require.NoError(t, err)

	stored, err := f.links.ConsentsForOwner(ctx, "owner-b")
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestUnlinkRevertsModeOnlyWithoutRemainingLinks(t *testing.T) {
	f := newFixture(t,
		makeOwner(t, "owner-a", "a@example.com", "girok"),
		makeOwner(t, "owner-b", "b@example.com", "billing"),
		makeOwner(t, "owner-c", "c@example.com", "legacy"),
	)
	ctx := context.Background()

	// owner-a holds two active links, owner-b and owner-c one each.
	ab, err := f.svc.RequestLink(ctx, "owner-a", "owner-b")
	require.NoError(t, err)
	_, err = f.svc.AcceptLink(ctx, "owner-b", "", "", link.AcceptLinkRequest{LinkID: ab.ID, Password: testPassword})
	require.NoError(t, err)

	ac, err := f.svc.RequestLink(ctx, "owner-a", "owner-c")
	require.NoError(t, err)
	_, err = f.svc.AcceptLink(ctx, "owner-c", "", "", link.AcceptLinkRequest{LinkID: ac.ID, Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, f.svc.Unlink(ctx, "owner-b", ab.ID))

	// owner-b lost its only link and reverts; owner-a still has one and stays.
	a, _ := f.owners.FindByID(ctx, "owner-a")
	b, _ := f.owners.FindByID(ctx, "owner-b")
	require.Equal(t, identity.ModeUnified, a.Mode)
	require.Equal(t, identity.ModeService, b.Mode)

	// The pair can link again after the unlink.
	_, err = f.svc.RequestLink(ctx, "owner-b", "owner-a")
	require.NoError(t, err)
}

func TestUnlinkRejections(t *testing.T) {
	f := newFixture(t,
		makeOwner(t, "owner-a", "a@example.com", "girok"),
		makeOwner(t, "owner-b", "b@example.com", "billing"),
		makeOwner(t, "owner-c", "c@example.com", "legacy"),
	)
	ctx := context.Background()

	pending, err := f.svc.RequestLink(ctx, "owner-a", "owner-b")
	require.NoError(t, err)

	// Outsiders cannot unlink.
	err = f.svc.Unlink(ctx, "owner-c", pending.ID)
	require.ErrorIs(t, err, xerrors.ErrNotFound)

	// A pending link cannot be unlinked; it never activated.
	err = f.svc.Unlink(ctx, "owner-a", pending.ID)
	require.ErrorIs(t, err, xerrors.ErrInvalidState)
}

func TestLinkedAccountsMasksEmails(t *testing.T) {
	f := newFixture(t,
		makeOwner(t, "owner-a", "someone@example.com", "girok"),
		makeOwner(t, "owner-b", "other.person@example.com", "billing"),
	)
	ctx := context.Background()

	pending, err := f.svc.RequestLink(ctx, "owner-a", "owner-b")
	require.NoError(t, err)
	_, err = f.svc.AcceptLink(ctx, "owner-b", "", "", link.AcceptLinkRequest{LinkID: pending.ID, Password: testPassword})
	require.NoError(t, err)

	fromA, err := f.svc.LinkedAccounts(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, fromA, 1)
	require.Equal(t, "owner-b", fromA[0].OwnerID)
	require.Equal(t, "o**********n@example.com", fromA[0].MaskedEmail)
	require.NotNil(t, fromA[0].LinkedAt)

	fromB, err := f.svc.LinkedAccounts(ctx, "owner-b")
	require.NoError(t, err)
	require.Len(t, fromB, 1)
	require.Equal(t, "owner-a", fromB[0].OwnerID)
	require.Equal(t, "s*****e@example.com", fromB[0].MaskedEmail)
}

func TestCandidatesFindsSameVerifiedEmail(t *testing.T) {
	a := makeOwner(t, "owner-a", "someone@example.com", "girok")
	b := makeOwner(t, "owner-b", "someone@example.com", "billing")
	c := makeOwner(t, "owner-c", "someone@example.com", "legacy")
	c.EmailVerified = false
	d := makeOwner(t, "owner-d", "other@example.com", "girok")

	f := newFixture(t, a, b, c, d)

	candidates, err := f.svc.Candidates(context.Background(), "owner-a")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "owner-b", candidates[0].OwnerID)
	require.Equal(t, "s*****e@example.com", candidates[0].MaskedEmail)
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"someone@example.com", "s*****e@example.com"},
		{"ab@example.com", "ab@example.com"},
		{"a@example.com", "a@example.com"},
		{"not-an-email", "not-an-email"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, maskEmail(tt.in))
	}
}
