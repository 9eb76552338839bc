// internal/service/auth/fakes_test.go
package auth

import (
	"context"
	"sync"
	"time"

	"identity-service/internal/domain/identity"
	"identity-service/internal/domain/link"
	"identity-service/internal/domain/session"
	xerrors "identity-service/internal/pkg/errors"

	"github.com/avito-tech/go-transaction-manager/trm/v2"
)

// fakeTxManager runs the function in-place. The fakes below are mutex-guarded
// maps, so there is no transaction to bind.
type fakeTxManager struct{}

func (fakeTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (fakeTxManager) DoWithSettings(ctx context.Context, _ trm.Settings, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeOwnerRepo struct {
	mu          sync.Mutex
	owners      map[string]*identity.Owner
	totpSecrets map[string][]byte
	backupCodes map[string]map[string]bool // owner -> hash -> used
}

func newFakeOwnerRepo(owners ...*identity.Owner) *fakeOwnerRepo {
	r := &fakeOwnerRepo{
		owners:      make(map[string]*identity.Owner),
		totpSecrets: make(map[string][]byte),
		backupCodes: make(map[string]map[string]bool),
	}
	for _, o := range owners {
		r.owners[o.ID] = o
	}
	return r
}

func (r *fakeOwnerRepo) FindByEmail(_ context.Context, email string) (*identity.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.owners {
		if o.Email == email {
			return o, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *fakeOwnerRepo) FindByID(_ context.Context, id string) (*identity.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.owners[id]; ok {
		return o, nil
	}
	return nil, xerrors.ErrNotFound
}

func (r *fakeOwnerRepo) FindByVerifiedEmail(_ context.Context, email, excludeID string) ([]*identity.Owner, error) {
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

func (r *fakeOwnerRepo) UpdateLastLogin(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.owners[id]; ok {
		o.LastLoginAt.Time, o.LastLoginAt.Valid = time.Now(), true
		return nil
	}
	return xerrors.ErrNotFound
}

func (r *fakeOwnerRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.owners[id]; ok {
		o.PasswordHash = hash
		return nil
	}
	return xerrors.ErrNotFound
}

func (r *fakeOwnerRepo) SetMode(_ context.Context, id string, mode identity.AccountMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.owners[id]; ok {
		o.Mode = mode
		return nil
	}
	return xerrors.ErrNotFound
}

func (r *fakeOwnerRepo) BackupCodeHashes(_ context.Context, ownerID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for hash, used := range r.backupCodes[ownerID] {
		if !used {
			out = append(out, hash)
		}
	}
	return out, nil
}

func (r *fakeOwnerRepo) ConsumeBackupCode(_ context.Context, ownerID, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := r.backupCodes[ownerID]
	if used, ok := codes[hash]; ok && !used {
		codes[hash] = true
		return true, nil
	}
	return false, nil
}

func (r *fakeOwnerRepo) TOTPSecret(_ context.Context, ownerID string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if secret, ok := r.totpSecrets[ownerID]; ok {
		return secret, nil
	}
	return nil, xerrors.ErrNotFound
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*session.Session // by id
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*session.Session)}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.sessions[s.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) FindByTokenHash(_ context.Context, hash string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.TokenHash == hash {
			copied := *s
			return &copied, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *fakeSessionRepo) FindByID(_ context.Context, id string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, xerrors.ErrNotFound
}

func (r *fakeSessionRepo) RevokeByTokenHash(_ context.Context, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, s := range r.sessions {
		if s.TokenHash == hash && s.Active(now) {
			s.RevokedAt.Time, s.RevokedAt.Valid = now, true
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeSessionRepo) Revoke(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && !s.RevokedAt.Valid {
		s.RevokedAt.Time, s.RevokedAt.Valid = time.Now(), true
	}
	return nil
}

func (r *fakeSessionRepo) RevokeAllExcept(_ context.Context, ownerID, keepID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, s := range r.sessions {
		if s.OwnerID == ownerID && s.ID != keepID && !s.RevokedAt.Valid {
			s.RevokedAt.Time, s.RevokedAt.Valid = now, true
		}
	}
	return nil
}

func (r *fakeSessionRepo) ListActiveByOwner(_ context.Context, ownerID string) ([]*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []*session.Session
	for _, s := range r.sessions {
		if s.OwnerID == ownerID && s.Active(now) {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) activeCount(ownerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	count := 0
	for _, s := range r.sessions {
		if s.OwnerID == ownerID && s.Active(now) {
			count++
		}
	}
	return count
}

type fakeLinkRepo struct {
	mu       sync.Mutex
	links    map[string]*link.AccountLink
	consents map[string]*link.Consent // by owner|type|country|scope
}

func newFakeLinkRepo(links ...*link.AccountLink) *fakeLinkRepo {
	r := &fakeLinkRepo{
		links:    make(map[string]*link.AccountLink),
		consents: make(map[string]*link.Consent),
	}
	for _, l := range links {
		r.links[l.ID] = l
	}
	return r
}

func (r *fakeLinkRepo) Create(_ context.Context, l *link.AccountLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *l
	r.links[l.ID] = &copied
	return nil
}

func (r *fakeLinkRepo) FindByID(_ context.Context, id string) (*link.AccountLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.links[id]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, xerrors.ErrNotFound
}

func (r *fakeLinkRepo) FindNonTerminalByPair(_ context.Context, ownerA, ownerB string) (*link.AccountLink, error) {
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

func (r *fakeLinkRepo) Activate(_ context.Context, id string) (bool, error) {
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

func (r *fakeLinkRepo) MarkUnlinked(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.Status != link.StatusActive {
		return false, nil
	}
	l.Status = link.StatusUnlinked
	return true, nil
}

func (r *fakeLinkRepo) CountActiveForOwner(_ context.Context, ownerID string) (int, error) {
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

func (r *fakeLinkRepo) ListForOwner(_ context.Context, ownerID string) ([]*link.AccountLink, error) {
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

func (r *fakeLinkRepo) UpsertConsent(_ context.Context, c *link.Consent) error {
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

func (r *fakeLinkRepo) ConsentsForOwner(_ context.Context, ownerID string) ([]*link.Consent, error) {
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
