package oauthflow_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smartpc-cloud/desktop-auth/credstore/storefake"
	"github.com/smartpc-cloud/desktop-auth/oauthflow"
	"github.com/smartpc-cloud/desktop-auth/token"
)

const (
	testClientID    = "client-1"
	testRedirectURI = "https://auth.smartpc.cloud/embedded/callback"
)

type tokenEndpoint struct {
	server  *httptest.Server
	idToken string
	calls   atomic.Int64
}

// newTokenEndpoint stands in for the provider's token endpoint, returning a
// fixed token triple for any authorization_code grant.
func newTokenEndpoint(t *testing.T) *tokenEndpoint {
	t.Helper()

	te := &tokenEndpoint{
		idToken: makeIDToken(t, map[string]any{"sub": "user-1", "email": "john.doe@example.com"}),
	}
	te.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		te.calls.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		require.Equal(t, testClientID, r.Form.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"access-1","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-1","id_token":%q}`, te.idToken)
	}))
	t.Cleanup(te.server.Close)
	return te
}

func makeIDToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func testConfig(tokenURL string) oauthflow.Config {
	return oauthflow.Config{
		ClientID:     testClientID,
		AuthorizeURL: "https://auth.smartpc.cloud/oauth2/authorize",
		TokenURL:     tokenURL,
	}
}

func newEmbedded(t *testing.T, te *tokenEndpoint, options ...oauthflow.FlowOption) (*oauthflow.EmbeddedFlow, *token.Manager) {
	t.Helper()

	tokens, err := token.NewManager(storefake.NewFakeStore())
	require.NoError(t, err)

	options = append(options, oauthflow.WithHTTPClient(te.server.Client()))
	flow, err := oauthflow.NewEmbeddedFlow(testConfig(te.server.URL), testRedirectURI, tokens, options...)
	require.NoError(t, err)
	return flow, tokens
}

// stateOf pulls the CSRF state out of the flow's own authorize URL.
func stateOf(t *testing.T, authorizeURL string) string {
	t.Helper()
	parsed, err := url.Parse(authorizeURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestAuthorizeURL(t *testing.T) {
	te := newTokenEndpoint(t)
	flow, _ := newEmbedded(t, te)

	t.Run("carries the registered parameters", func(t *testing.T) {
		parsed, err := url.Parse(flow.AuthorizeURL(oauthflow.ProviderGoogle))
		require.NoError(t, err)

		query := parsed.Query()
		require.Equal(t, testClientID, query.Get("client_id"))
		require.Equal(t, "code", query.Get("response_type"))
		require.Equal(t, testRedirectURI, query.Get("redirect_uri"))
		require.Equal(t, "openid email profile", query.Get("scope"))
		require.Equal(t, "Google", query.Get("identity_provider"))
		require.NotEmpty(t, query.Get("state"))
	})

	t.Run("facebook is supported", func(t *testing.T) {
		parsed, err := url.Parse(flow.AuthorizeURL(oauthflow.ProviderFacebook))
		require.NoError(t, err)
		require.Equal(t, "Facebook", parsed.Query().Get("identity_provider"))
	})

	t.Run("unknown provider panics", func(t *testing.T) {
		require.Panics(t, func() {
			flow.AuthorizeURL(oauthflow.Provider("GitHub"))
		})
	})
}

func TestEmbeddedFlow(t *testing.T) {
	t.Run("intercepts only the callback URI", func(t *testing.T) {
		te := newTokenEndpoint(t)
		flow, _ := newEmbedded(t, te)

		require.False(t, flow.InterceptNavigation("https://auth.smartpc.cloud/oauth2/authorize?foo=1"))
		require.False(t, flow.InterceptNavigation("https://example.com/callback"))
		require.False(t, flow.InterceptNavigation("::not-a-url"))
		require.True(t, flow.InterceptNavigation(testRedirectURI+"?code=abc&state=whatever"))
	})

	t.Run("success exchanges the code and persists tokens", func(t *testing.T) {
		te := newTokenEndpoint(t)
		flow, tokens := newEmbedded(t, te)
		state := stateOf(t, flow.AuthorizeURL(oauthflow.ProviderGoogle))

		require.True(t, flow.InterceptNavigation(fmt.Sprintf("%s?code=code-1&state=%s", testRedirectURI, state)))

		result := flow.Wait(context.Background())
		require.True(t, result.Success)
		require.Equal(t, te.idToken, result.IDToken)
		require.Equal(t, "access-1", result.AccessToken)
		require.Equal(t, "refresh-1", result.RefreshToken)
		require.EqualValues(t, 1, te.calls.Load())

		stored, ok := tokens.StoredToken()
		require.True(t, ok)
		require.Equal(t, te.idToken, stored)
	})

	t.Run("provider error terminates without a token exchange", func(t *testing.T) {
		te := newTokenEndpoint(t)
		flow, tokens := newEmbedded(t, te)

		require.True(t, flow.InterceptNavigation(testRedirectURI+"?error=access_denied&error_description=User+cancelled"))

		result := flow.Wait(context.Background())
		require.False(t, result.Success)
		require.Equal(t, "User cancelled", result.Error)
		require.Zero(t, te.calls.Load())
		require.False(t, tokens.IsAuthenticated())
	})

	t.Run("state mismatch is rejected", func(t *testing.T) {
		te := newTokenEndpoint(t)
		flow, _ := newEmbedded(t, te)

		require.True(t, flow.InterceptNavigation(testRedirectURI+"?code=code-1&state=forged"))

		result := flow.Wait(context.Background())
		require.False(t, result.Success)
		require.Equal(t, "state mismatch in callback", result.Error)
		require.Zero(t, te.calls.Load())
	})

	t.Run("times out when no callback arrives", func(t *testing.T) {
		te := newTokenEndpoint(t)
		flow, _ := newEmbedded(t, te, oauthflow.WithTimeout(50*time.Millisecond))

		result := flow.Wait(context.Background())
		require.False(t, result.Success)
		require.Equal(t, "timed out waiting for sign-in", result.Error)
	})

	t.Run("second interception is ignored", func(t *testing.T) {
		te := newTokenEndpoint(t)
		flow, _ := newEmbedded(t, te)
		state := stateOf(t, flow.AuthorizeURL(oauthflow.ProviderGoogle))

		require.True(t, flow.InterceptNavigation(fmt.Sprintf("%s?code=code-1&state=%s", testRedirectURI, state)))
		require.True(t, flow.InterceptNavigation(testRedirectURI+"?code=code-2&state=forged"))

		result := flow.Wait(context.Background())
		require.True(t, result.Success)
		require.EqualValues(t, 1, te.calls.Load())
	})
}
