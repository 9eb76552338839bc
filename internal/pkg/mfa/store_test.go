// internal/pkg/mfa/store_test.go
package mfa

import (
	"context"
	"testing"
	"time"

	"identity-service/internal/domain/mfa"
	xerrors "identity-service/internal/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client, 5*time.Minute), mr
}

func TestChallengeLifecycle(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	challenge, err := store.Create(ctx, "owner-1", []mfa.Method{mfa.MethodTOTP, mfa.MethodBackupCode})
	require.NoError(t, err)
	require.NotEmpty(t, challenge.ID)
	require.Equal(t, "owner-1", challenge.OwnerID)

	loaded, err := store.Get(ctx, challenge.ID)
	require.NoError(t, err)
	require.Equal(t, "owner-1", loaded.OwnerID)
	require.Equal(t, []mfa.Method{mfa.MethodTOTP, mfa.MethodBackupCode}, loaded.Methods)

	// Get does not consume; a second read still succeeds.
	_, err = store.Get(ctx, challenge.ID)
	require.NoError(t, err)

	consumed, err := store.Consume(ctx, challenge.ID)
	require.NoError(t, err)
	require.Equal(t, "owner-1", consumed.OwnerID)

	// Consumption is single-use: the id is gone afterwards.
	_, err = store.Consume(ctx, challenge.ID)
	require.ErrorIs(t, err, xerrors.ErrInvalidChallenge)
	_, err = store.Get(ctx, challenge.ID)
	require.ErrorIs(t, err, xerrors.ErrInvalidChallenge)
}

func TestChallengeUnknownID(t *testing.T) {
	store, _ := testStore(t)

	_, err := store.Get(context.Background(), "no-such-challenge")
	require.ErrorIs(t, err, xerrors.ErrInvalidChallenge)
}

func TestChallengeExpires(t *testing.T) {
	store, mr := testStore(t)
	ctx := context.Background()

	challenge, err := store.Create(ctx, "owner-1", []mfa.Method{mfa.MethodTOTP})
	require.NoError(t, err)

	mr.FastForward(6 * time.Minute)

	_, err = store.Get(ctx, challenge.ID)
	require.ErrorIs(t, err, xerrors.ErrInvalidChallenge)
}
