// Package oauthflow drives the authorization-code exchange against the
// provider's hosted authorize/token endpoint pair. Two strategies observe
// the redirect: BrowserFlow (system browser plus loopback listener) and
// EmbeddedFlow (embedded web surface with navigation interception). URL
// building, code exchange and token persistence are shared.
package oauthflow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/smartpc-cloud/desktop-auth/token"
)

// Provider identifies one of the supported social identity providers.
type Provider string

const (
	ProviderGoogle   Provider = "Google"
	ProviderFacebook Provider = "Facebook"
)

// DefaultScopes are requested when the config names none.
var DefaultScopes = []string{oidc.ScopeOpenID, "email", "profile"}

// Config carries the fixed client id and endpoint pair registered with the
// provider. Injected at construction rather than read from globals.
type Config struct {
	ClientID     string
	AuthorizeURL string
	TokenURL     string
	IssuerURL    string // required only with WithIDTokenVerification
	Scopes       []string
}

// Validate checks the required configuration values.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("[Config.Validate] client id is required")
	}
	if c.AuthorizeURL == "" {
		return errors.New("[Config.Validate] authorize URL is required")
	}
	if c.TokenURL == "" {
		return errors.New("[Config.Validate] token URL is required")
	}
	return nil
}

// Result is the terminal state of one authorization-code flow.
type Result struct {
	Success      bool
	Error        string
	IDToken      string
	AccessToken  string
	RefreshToken string
}

type settings struct {
	httpClient    *http.Client
	openURL       func(string) error
	timeout       time.Duration
	verifyIDToken bool
}

// FlowOption configures a flow at construction.
type FlowOption func(*settings)

// WithHTTPClient overrides the HTTP client used for the token endpoint and
// OIDC discovery (primarily for testing).
func WithHTTPClient(httpClient *http.Client) FlowOption {
	return func(s *settings) {
		s.httpClient = httpClient
	}
}

// WithOpenURL overrides how the browser flow presents the authorize URL.
func WithOpenURL(openURL func(string) error) FlowOption {
	return func(s *settings) {
		s.openURL = openURL
	}
}

// WithTimeout overrides the embedded flow's overall wait ceiling.
func WithTimeout(d time.Duration) FlowOption {
	return func(s *settings) {
		s.timeout = d
	}
}

// WithIDTokenVerification verifies the returned ID token against the
// issuer's published keys before persisting it. Requires Config.IssuerURL.
func WithIDTokenVerification() FlowOption {
	return func(s *settings) {
		s.verifyIDToken = true
	}
}

func applyOptions(options []FlowOption) settings {
	var s settings
	for _, opt := range options {
		opt(&s)
	}
	return s
}

// core is the strategy-independent half of a flow: authorize-URL building,
// code exchange and token persistence.
type core struct {
	cfg           Config
	oauth         oauth2.Config
	tokens        *token.Manager
	httpClient    *http.Client
	verifyIDToken bool
	state         string
}

func newCore(cfg Config, redirectURI string, tokens *token.Manager, s settings) (*core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "[oauthflow] invalid config")
	}
	if tokens == nil {
		return nil, errors.New("[oauthflow] token manager is required")
	}
	if s.verifyIDToken && cfg.IssuerURL == "" {
		return nil, errors.New("[oauthflow] issuer URL is required for ID token verification")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	return &core{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizeURL,
				TokenURL: cfg.TokenURL,
				// Public client: the client id travels in the form body,
				// never in a Basic auth header.
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: redirectURI,
			Scopes:      scopes,
		},
		tokens:        tokens,
		httpClient:    s.httpClient,
		verifyIDToken: s.verifyIDToken,
		state:         uuid.New().String(),
	}, nil
}

// authorizeURL builds the provider authorize URL. An unsupported provider
// is a caller programming error and panics.
func (c *core) authorizeURL(provider Provider) string {
	switch provider {
	case ProviderGoogle, ProviderFacebook:
	default:
		panic(fmt.Sprintf("oauthflow: unsupported identity provider %q", provider))
	}
	return c.oauth.AuthCodeURL(c.state, oauth2.SetAuthURLParam("identity_provider", string(provider)))
}

// resolveCallback terminates the flow from the observed redirect query. A
// provider error short-circuits before any token-endpoint call.
func (c *core) resolveCallback(ctx context.Context, query url.Values) Result {
	if errCode := query.Get("error"); errCode != "" {
		description := query.Get("error_description")
		if description == "" {
			description = errCode
		}
		return Result{Error: description}
	}
	if query.Get("state") != c.state {
		return Result{Error: "state mismatch in callback"}
	}
	code := query.Get("code")
	if code == "" {
		return Result{Error: "callback carried neither code nor error"}
	}
	return c.exchange(ctx, code)
}

// exchange posts the authorization_code grant and persists the returned
// tokens through the lifecycle manager.
func (c *core) exchange(ctx context.Context, code string) Result {
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	oauthToken, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			message := retrieveErr.ErrorCode
			if retrieveErr.ErrorDescription != "" {
				message = retrieveErr.ErrorDescription
			}
			return Result{Error: message}
		}
		log.Err(err).Msg("oauthflow: code exchange failed")
		return Result{Error: "token exchange failed"}
	}

	rawIDToken, _ := oauthToken.Extra("id_token").(string)
	if rawIDToken == "" {
		return Result{Error: "no id_token in token response"}
	}

	if c.verifyIDToken {
		if err := c.verify(ctx, rawIDToken); err != nil {
			log.Err(err).Msg("oauthflow: ID token verification failed")
			return Result{Error: "ID token verification failed"}
		}
	}

	if err := c.tokens.StoreTokens(token.TokenSet{
		IDToken:      rawIDToken,
		AccessToken:  oauthToken.AccessToken,
		RefreshToken: oauthToken.RefreshToken,
	}); err != nil {
		log.Err(err).Msg("oauthflow: failed to persist tokens")
		return Result{Error: "failed to store credentials"}
	}

	if sub, ok := token.Claim(rawIDToken, "sub"); ok {
		email, _ := token.Claim(rawIDToken, "email")
		c.tokens.StoreIdentity(sub, email)
	}

	return Result{
		Success:      true,
		IDToken:      rawIDToken,
		AccessToken:  oauthToken.AccessToken,
		RefreshToken: oauthToken.RefreshToken,
	}
}

func (c *core) verify(ctx context.Context, rawIDToken string) error {
	if c.httpClient != nil {
		ctx = oidc.ClientContext(ctx, c.httpClient)
	}
	provider, err := oidc.NewProvider(ctx, c.cfg.IssuerURL)
	if err != nil {
		return errors.Wrap(err, "[core.verify] oidc.NewProvider")
	}
	_, err = provider.Verifier(&oidc.Config{ClientID: c.oauth.ClientID}).Verify(ctx, rawIDToken)
	return errors.Wrap(err, "[core.verify] Verify")
}
