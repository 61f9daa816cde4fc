package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sess, err := New(time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, sess))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)

	// mutations are not visible until saved
	got.State = StateRegister
	got.ConsumeCode("abc123")

	again, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, StateLogin, again.State)
	require.Empty(t, again.ConsumedCodes)

	require.NoError(t, store.Save(ctx, got))

	again, err = store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, StateRegister, again.State)
	require.False(t, again.ConsumeCode("abc123"))

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Get(ctx, sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, store.Delete(ctx, sess.ID), ErrSessionNotFound)
	require.ErrorIs(t, store.Save(ctx, sess), ErrSessionNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	expired, err := New(-time.Minute)
	require.NoError(t, err)
	live, err := New(time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, expired))
	require.NoError(t, store.Create(ctx, live))

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, store.Len())

	require.NoError(t, store.Create(ctx, expired))
	_, err = store.Get(ctx, expired.ID)
	require.ErrorIs(t, err, ErrSessionExpired)
}
