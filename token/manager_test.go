package token_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smartpc-cloud/desktop-auth/credstore/storefake"
	"github.com/smartpc-cloud/desktop-auth/token"
)

func newTestManager(t *testing.T, options ...token.ManagerOption) (*token.Manager, *storefake.FakeStore) {
	t.Helper()
	store := storefake.NewFakeStore()
	manager, err := token.NewManager(store, options...)
	require.NoError(t, err)
	return manager, store
}

func fixedNow(t *testing.T, now time.Time) {
	t.Helper()
	token.NowTimeFunc = func() time.Time { return now }
	t.Cleanup(func() { token.NowTimeFunc = time.Now })
}

func TestManager_StoreThenRead(t *testing.T) {
	manager, store := newTestManager(t)

	err := manager.StoreTokens(token.TokenSet{IDToken: "abc", AccessToken: "at", RefreshToken: "rt"})
	require.NoError(t, err)

	stored, ok := manager.StoredToken()
	require.True(t, ok)
	require.Equal(t, "abc", stored)
	require.True(t, manager.IsAuthenticated())

	accessToken, ok := manager.AccessToken()
	require.True(t, ok)
	require.Equal(t, "at", accessToken)

	refreshToken, ok := manager.RefreshToken()
	require.True(t, ok)
	require.Equal(t, "rt", refreshToken)

	require.True(t, store.Exists(token.KeyTokenExpiry))
}

func TestManager_ExpiredMarkerPurgesSession(t *testing.T) {
	manager, store := newTestManager(t)

	past := time.Now().UTC().Add(-time.Hour)
	store.Set(token.KeyIDToken, "abc")
	store.Set(token.KeyAccessToken, "at")
	store.Set(token.KeyRefreshToken, "rt")
	store.Set(token.KeyTokenExpiry, strconv.FormatInt(past.Unix(), 10))

	_, ok := manager.StoredToken()
	require.False(t, ok)
	require.False(t, manager.IsAuthenticated())

	// The expired session must be fully purged.
	require.False(t, store.Exists(token.KeyIDToken))
	require.False(t, store.Exists(token.KeyRefreshToken))
	require.False(t, store.Exists(token.KeyTokenExpiry))
}

func TestManager_MalformedMarkerPurgesSession(t *testing.T) {
	manager, store := newTestManager(t)

	store.Set(token.KeyIDToken, "abc")
	store.Set(token.KeyTokenExpiry, "not-a-timestamp")

	_, ok := manager.StoredToken()
	require.False(t, ok)
	require.False(t, store.Exists(token.KeyIDToken))
}

func TestManager_MarkerWriteFailureRollsBack(t *testing.T) {
	manager, store := newTestManager(t)
	store.FailSet(token.KeyTokenExpiry)

	err := manager.StoreTokens(token.TokenSet{IDToken: "abc", AccessToken: "at", RefreshToken: "rt"})
	require.Error(t, err)

	// No token may remain without a bounding expiry marker.
	require.False(t, store.Exists(token.KeyIDToken))
	require.False(t, store.Exists(token.KeyAccessToken))
	require.False(t, store.Exists(token.KeyRefreshToken))
}

func TestManager_RefreshKeepsStoredRefreshToken(t *testing.T) {
	manager, _ := newTestManager(t)

	require.NoError(t, manager.StoreTokens(token.TokenSet{IDToken: "abc", RefreshToken: "rt-original"}))

	// The refresh grant does not return a refresh token.
	require.NoError(t, manager.StoreTokens(token.TokenSet{IDToken: "def", AccessToken: "at-2"}))

	refreshToken, ok := manager.RefreshToken()
	require.True(t, ok)
	require.Equal(t, "rt-original", refreshToken)

	stored, ok := manager.StoredToken()
	require.True(t, ok)
	require.Equal(t, "def", stored)
}

func TestManager_ClaimExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fixedNow(t, now)

	t.Run("future exp claim keeps the token readable", func(t *testing.T) {
		manager, store := newTestManager(t, token.WithClaimExpiry())

		raw := makeIDToken(t, map[string]any{"sub": "user-1", "exp": now.Add(time.Hour).Unix()})
		require.NoError(t, manager.StoreTokens(token.TokenSet{IDToken: raw}))

		marker, ok := store.Get(token.KeyTokenExpiry)
		require.True(t, ok)
		require.Equal(t, strconv.FormatInt(now.Add(time.Hour).Unix(), 10), marker)

		_, ok = manager.StoredToken()
		require.True(t, ok)
	})

	t.Run("past exp claim expires the session immediately", func(t *testing.T) {
		manager, _ := newTestManager(t, token.WithClaimExpiry())

		raw := makeIDToken(t, map[string]any{"sub": "user-1", "exp": now.Add(-time.Hour).Unix()})
		require.NoError(t, manager.StoreTokens(token.TokenSet{IDToken: raw}))

		_, ok := manager.StoredToken()
		require.False(t, ok)
	})

	t.Run("unreadable exp claim falls back to the fixed window", func(t *testing.T) {
		manager, store := newTestManager(t, token.WithClaimExpiry())

		require.NoError(t, manager.StoreTokens(token.TokenSet{IDToken: "abc"}))

		marker, ok := store.Get(token.KeyTokenExpiry)
		require.True(t, ok)
		require.Equal(t, strconv.FormatInt(now.Add(token.DefaultValidityWindow).Unix(), 10), marker)
	})
}

func TestManager_Clear(t *testing.T) {
	t.Run("clears every session key", func(t *testing.T) {
		manager, store := newTestManager(t)
		require.NoError(t, manager.StoreTokens(token.TokenSet{IDToken: "abc", AccessToken: "at", RefreshToken: "rt"}))

		require.NoError(t, manager.Clear())
		require.False(t, store.Exists(token.KeyIDToken))
		require.False(t, store.Exists(token.KeyAccessToken))
		require.False(t, store.Exists(token.KeyRefreshToken))
		require.False(t, store.Exists(token.KeyTokenExpiry))
	})

	t.Run("clearing an empty session succeeds", func(t *testing.T) {
		manager, _ := newTestManager(t)
		require.NoError(t, manager.Clear())
	})

	t.Run("removal failure propagates", func(t *testing.T) {
		manager, store := newTestManager(t)
		require.NoError(t, manager.StoreTokens(token.TokenSet{IDToken: "abc"}))
		store.FailRemove(token.KeyIDToken)

		require.Error(t, manager.Clear())
	})
}

func TestManager_Identity(t *testing.T) {
	manager, _ := newTestManager(t)

	manager.StoreIdentity("user-1", "john.doe@example.com")

	userID, ok := manager.UserID()
	require.True(t, ok)
	require.Equal(t, "user-1", userID)

	email, ok := manager.UserEmail()
	require.True(t, ok)
	require.Equal(t, "john.doe@example.com", email)
}
