// Package token tracks the lifecycle of the locally stored authentication
// tokens: persistence through the encrypted credential store, expiry-marker
// tracking and purge-on-expiry.
package token

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/smartpc-cloud/desktop-auth/credstore"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// DefaultValidityWindow is the fixed local validity window recorded with a
// stored token. The provider's real token lifetime is independent of this
// marker; opt into WithClaimExpiry to track the token's own exp claim.
const DefaultValidityWindow = 24 * time.Hour

// TokenSet carries the tokens returned by one successful provider exchange.
type TokenSet struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
}

// Manager wraps the credential store with session semantics: a token is
// only ever returned while its expiry marker is in the future, and an
// expired session is purged on first read.
type Manager struct {
	store       credstore.Store
	validity    time.Duration
	claimExpiry bool
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithValidityWindow overrides the fixed local validity window.
func WithValidityWindow(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.validity = d
	}
}

// WithClaimExpiry makes the manager record the ID token's own exp claim as
// the expiry marker instead of the fixed local window, when the claim is
// readable.
func WithClaimExpiry() ManagerOption {
	return func(m *Manager) {
		m.claimExpiry = true
	}
}

// NewManager initialises a Manager over the given store.
func NewManager(store credstore.Store, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] store is required")
	}
	m := &Manager{
		store:    store,
		validity: DefaultValidityWindow,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// StoreTokens persists the token set and records a fresh expiry marker. The
// refresh token is only overwritten when the set carries one, so a refresh
// grant (which does not rotate it) keeps the stored value. The marker is
// written last; if it cannot be written the token keys from this call are
// rolled back so a reader never sees a token without a bounding marker.
func (m *Manager) StoreTokens(ts TokenSet) error {
	if ts.IDToken == "" {
		return errors.New("[Manager.StoreTokens] id token is required")
	}

	expiry := NowTimeFunc().UTC().Add(m.validity)
	if m.claimExpiry {
		if claimed, ok := expiryClaim(ts.IDToken); ok {
			expiry = claimed
		}
	}

	written := make([]string, 0, 4)
	rollback := func() {
		for _, key := range written {
			m.store.Remove(key)
		}
	}

	write := func(key, value string) error {
		if !m.store.Set(key, value) {
			rollback()
			return errors.Errorf("[Manager.StoreTokens] failed to store %s", key)
		}
		written = append(written, key)
		return nil
	}

	if err := write(KeyIDToken, ts.IDToken); err != nil {
		return err
	}
	if ts.AccessToken != "" {
		if err := write(KeyAccessToken, ts.AccessToken); err != nil {
			return err
		}
	}
	if ts.RefreshToken != "" {
		if err := write(KeyRefreshToken, ts.RefreshToken); err != nil {
			return err
		}
	}
	if err := write(KeyTokenExpiry, strconv.FormatInt(expiry.Unix(), 10)); err != nil {
		return err
	}
	return nil
}

// StoredToken returns the stored ID token. A past (or unreadable) expiry
// marker purges the session and reports absent: read-path failures fail
// safe toward requiring re-authentication.
func (m *Manager) StoredToken() (string, bool) {
	if marker, ok := m.store.Get(KeyTokenExpiry); ok {
		expiry, err := strconv.ParseInt(marker, 10, 64)
		if err != nil || NowTimeFunc().UTC().After(time.Unix(expiry, 0).UTC()) {
			m.purge()
			return "", false
		}
	}
	tokenValue, ok := m.store.Get(KeyIDToken)
	if !ok || tokenValue == "" {
		return "", false
	}
	return tokenValue, true
}

// AccessToken returns the stored access token without expiry gating.
func (m *Manager) AccessToken() (string, bool) {
	return m.store.Get(KeyAccessToken)
}

// RefreshToken returns the stored refresh token. It survives ID-token
// expiry so the session can be re-established via the refresh grant.
func (m *Manager) RefreshToken() (string, bool) {
	return m.store.Get(KeyRefreshToken)
}

// IsAuthenticated reports whether a non-expired token is stored.
func (m *Manager) IsAuthenticated() bool {
	tokenValue, ok := m.StoredToken()
	return ok && tokenValue != ""
}

// StoreIdentity persists the resolved user id and email. Best-effort:
// failures are logged, callers are not failed over identity bookkeeping.
func (m *Manager) StoreIdentity(userID, email string) {
	if userID != "" && !m.store.Set(KeyUserID, userID) {
		log.Warn().Msg("token: failed to store user id")
	}
	if email != "" && !m.store.Set(KeyUserEmail, email) {
		log.Warn().Msg("token: failed to store user email")
	}
}

// UserID returns the stored subject claim of the signed-in user.
func (m *Manager) UserID() (string, bool) {
	return m.store.Get(KeyUserID)
}

// UserEmail returns the stored email of the signed-in user.
func (m *Manager) UserEmail() (string, bool) {
	return m.store.Get(KeyUserEmail)
}

// Clear removes the token, refresh token, access token and expiry keys.
// Idempotent: clearing an empty session succeeds. A store failure on any
// key propagates as an error (write-path integrity failure).
func (m *Manager) Clear() error {
	failed := make([]string, 0, 4)
	for _, key := range []string{KeyIDToken, KeyAccessToken, KeyRefreshToken, KeyTokenExpiry} {
		if !m.store.Remove(key) {
			failed = append(failed, key)
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("[Manager.Clear] failed to remove %v", failed)
	}
	return nil
}

// purge is the expiry path of Clear: best-effort, errors logged only.
func (m *Manager) purge() {
	if err := m.Clear(); err != nil {
		log.Err(err).Msg("token: failed to purge expired session")
	}
}
