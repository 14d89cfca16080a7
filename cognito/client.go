// Package cognito implements the client side of the identity provider's
// password-grant and challenge-response protocol: sign-in, sign-up,
// confirmation, MFA completion, password reset, token refresh, attribute
// retrieval and password change. Successful exchanges hand their tokens to
// the token lifecycle manager; no raw transport error crosses into callers.
package cognito

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/smartpc-cloud/desktop-auth/token"
)

const (
	amzJSONContentType = "application/x-amz-json-1.1"
	targetPrefix       = "AWSCognitoIdentityProviderService."
)

const (
	targetInitiateAuth           = "InitiateAuth"
	targetRespondToAuthChallenge = "RespondToAuthChallenge"
	targetSignUp                 = "SignUp"
	targetConfirmSignUp          = "ConfirmSignUp"
	targetResendConfirmationCode = "ResendConfirmationCode"
	targetForgotPassword         = "ForgotPassword"
	targetConfirmForgotPassword  = "ConfirmForgotPassword"
	targetGetUser                = "GetUser"
	targetChangePassword         = "ChangePassword"
)

const (
	flowUserPassword = "USER_PASSWORD_AUTH"
	flowRefreshToken = "REFRESH_TOKEN_AUTH"
)

const defaultRole = "user"

// Config carries the provider endpoint and app client id. Injected at
// construction rather than read from globals.
type Config struct {
	Endpoint string // e.g. https://cognito-idp.eu-west-1.amazonaws.com/
	ClientID string
}

// Validate checks the required configuration values.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("[Config.Validate] endpoint is required")
	}
	if c.ClientID == "" {
		return errors.New("[Config.Validate] client id is required")
	}
	return nil
}

// Client talks to the remote identity provider.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     *token.Manager
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client (primarily for testing).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New initialises a Client with the given configuration and token manager.
func New(cfg Config, tokens *token.Manager, options ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "[cognito.New] invalid config")
	}
	if tokens == nil {
		return nil, errors.New("[cognito.New] token manager is required")
	}

	client := &Client{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		tokens:     tokens,
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// SignIn initiates a password-grant exchange. Challenge responses are routed
// as alternate outcomes (RequiresMFA / RequiresNewPassword), never errors.
func (c *Client) SignIn(ctx context.Context, email, password string) AuthResult {
	var out authResponse
	err := c.call(ctx, targetInitiateAuth, initiateAuthRequest{
		AuthFlow: flowUserPassword,
		ClientID: c.cfg.ClientID,
		AuthParameters: map[string]string{
			paramUsername: email,
			paramPassword: password,
		},
	}, &out)
	if err != nil {
		var providerErr *Error
		if errors.As(err, &providerErr) && providerErr.Type == errTypeUserNotConfirmed {
			return AuthResult{
				RequiresEmailVerification: true,
				Error:                     "Please verify your email address before signing in",
				ErrorKind:                 KindCredentials,
			}
		}
		return failureResult(err, map[string]string{
			errTypeNotAuthorized: "Invalid email or password",
			errTypeUserNotFound:  "User not found",
		})
	}

	switch out.ChallengeName {
	case challengeSoftwareTokenMFA:
		return AuthResult{RequiresMFA: true, MFAType: MFATypeTOTP, Session: out.Session}
	case challengeEmailOTP:
		return AuthResult{RequiresMFA: true, MFAType: MFATypeEmail, Session: out.Session}
	case challengeNewPasswordRequired:
		return AuthResult{RequiresNewPassword: true, Session: out.Session}
	}
	return c.completeAuth(out.AuthenticationResult)
}

// SignUp registers a new identity with the default "user" role.
// RequiresEmailVerification mirrors the provider's confirmation state.
func (c *Client) SignUp(ctx context.Context, email, password, firstName string) AuthResult {
	var out signUpResponse
	err := c.call(ctx, targetSignUp, signUpRequest{
		ClientID: c.cfg.ClientID,
		Username: email,
		Password: password,
		UserAttributes: []attribute{
			{Name: "email", Value: email},
			{Name: "given_name", Value: firstName},
			{Name: "custom:role", Value: defaultRole},
		},
	}, &out)
	if err != nil {
		return failureResult(err, map[string]string{
			errTypeUsernameExists: "An account with this email already exists",
		})
	}
	return AuthResult{Success: true, RequiresEmailVerification: !out.UserConfirmed}
}

// ConfirmSignUp completes email verification with the out-of-band code.
func (c *Client) ConfirmSignUp(ctx context.Context, email, code string) AuthResult {
	err := c.call(ctx, targetConfirmSignUp, confirmSignUpRequest{
		ClientID:         c.cfg.ClientID,
		Username:         email,
		ConfirmationCode: code,
	}, nil)
	if err != nil {
		return failureResult(err, map[string]string{
			errTypeCodeMismatch: "Invalid verification code",
			errTypeExpiredCode:  "Verification code has expired",
		})
	}
	return AuthResult{Success: true}
}

// ResendConfirmationCode requests a fresh verification code for an
// unconfirmed account.
func (c *Client) ResendConfirmationCode(ctx context.Context, email string) bool {
	if err := c.call(ctx, targetResendConfirmationCode, resendConfirmationCodeRequest{
		ClientID: c.cfg.ClientID,
		Username: email,
	}, nil); err != nil {
		log.Err(err).Msg("cognito: failed to resend confirmation code")
		return false
	}
	return true
}

// ConfirmMFATOTP completes a pending authenticator-app MFA challenge using
// the session returned by SignIn.
func (c *Client) ConfirmMFATOTP(ctx context.Context, code, session, username string) AuthResult {
	return c.respondToMFAChallenge(ctx, challengeSoftwareTokenMFA, paramSoftwareMFACode,
		code, session, username, "Invalid authenticator code")
}

// ConfirmMFAEmail completes a pending email-code MFA challenge using the
// session returned by SignIn.
func (c *Client) ConfirmMFAEmail(ctx context.Context, code, session, username string) AuthResult {
	return c.respondToMFAChallenge(ctx, challengeEmailOTP, paramEmailOTPCode,
		code, session, username, "Invalid email code")
}

// NewPasswordChallenge completes a NEW_PASSWORD_REQUIRED challenge using the
// session returned by SignIn.
func (c *Client) NewPasswordChallenge(ctx context.Context, newPassword, session, username string) AuthResult {
	var out authResponse
	err := c.call(ctx, targetRespondToAuthChallenge, respondToChallengeRequest{
		ChallengeName: challengeNewPasswordRequired,
		ClientID:      c.cfg.ClientID,
		Session:       session,
		ChallengeResponses: map[string]string{
			paramUsername:    username,
			paramNewPassword: newPassword,
		},
	}, &out)
	if err != nil {
		return failureResult(err, map[string]string{
			errTypeNotAuthorized: "The sign-in session has expired, please sign in again",
		})
	}
	return c.completeAuth(out.AuthenticationResult)
}

// ForgotPassword initiates the password-reset code flow.
func (c *Client) ForgotPassword(ctx context.Context, email string) AuthResult {
	err := c.call(ctx, targetForgotPassword, forgotPasswordRequest{
		ClientID: c.cfg.ClientID,
		Username: email,
	}, nil)
	if err != nil {
		return failureResult(err, map[string]string{
			errTypeUserNotFound: "User not found",
		})
	}
	return AuthResult{Success: true}
}

// ConfirmForgotPassword completes the password-reset flow with the
// out-of-band code.
func (c *Client) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) AuthResult {
	err := c.call(ctx, targetConfirmForgotPassword, confirmForgotPasswordRequest{
		ClientID:         c.cfg.ClientID,
		Username:         email,
		ConfirmationCode: code,
		Password:         newPassword,
	}, nil)
	if err != nil {
		return failureResult(err, map[string]string{
			errTypeUserNotFound: "User not found",
			errTypeCodeMismatch: "Invalid reset code",
			errTypeExpiredCode:  "Reset code has expired",
		})
	}
	return AuthResult{Success: true}
}

// SignOut removes the stored tokens. Best-effort: a partial removal is
// logged but never fails the caller.
func (c *Client) SignOut() {
	if err := c.tokens.Clear(); err != nil {
		log.Err(err).Msg("cognito: sign-out could not remove all stored tokens")
	}
}

// RefreshTokens exchanges a refresh token for a new id+access token pair.
// The provider does not rotate the refresh token in this flow, so the
// stored one is kept.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) AuthResult {
	var out authResponse
	err := c.call(ctx, targetInitiateAuth, initiateAuthRequest{
		AuthFlow: flowRefreshToken,
		ClientID: c.cfg.ClientID,
		AuthParameters: map[string]string{
			paramRefreshToken: refreshToken,
		},
	}, &out)
	if err != nil {
		return failureResult(err, map[string]string{
			errTypeNotAuthorized: "Session expired, please sign in again",
		})
	}
	return c.completeAuth(out.AuthenticationResult)
}

// GetUser projects the provider's attribute set for a live access token
// into a User. Absent on any failure.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, bool) {
	var out getUserResponse
	if err := c.call(ctx, targetGetUser, getUserRequest{AccessToken: accessToken}, &out); err != nil {
		log.Err(err).Msg("cognito: failed to fetch user attributes")
		return nil, false
	}

	user := &User{Role: defaultRole}
	for _, attr := range out.UserAttributes {
		switch attr.Name {
		case "sub":
			user.ID = attr.Value
		case "email":
			user.Email = attr.Value
		case "given_name":
			user.FirstName = attr.Value
		case "custom:role":
			if attr.Value != "" {
				user.Role = attr.Value
			}
		case "custom:owner_id":
			user.OwnerID = attr.Value
		}
	}
	return user, true
}

// ChangePassword changes the password of the signed-in user. A missing
// stored access token is a local precondition failure: no network call is
// made. Current-password mismatch and policy violations are distinguished
// in logs but both surface as false.
func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) bool {
	accessToken, ok := c.tokens.AccessToken()
	if !ok || accessToken == "" {
		log.Debug().Msg("cognito: change password requested without a stored access token")
		return false
	}

	err := c.call(ctx, targetChangePassword, changePasswordRequest{
		AccessToken:      accessToken,
		PreviousPassword: currentPassword,
		ProposedPassword: newPassword,
	}, nil)
	if err == nil {
		return true
	}

	var providerErr *Error
	if errors.As(err, &providerErr) {
		switch providerErr.Type {
		case errTypeNotAuthorized:
			log.Debug().Msg("cognito: current password mismatch")
		case errTypeInvalidPassword:
			log.Debug().Msg("cognito: new password rejected by policy")
		default:
			log.Err(err).Msg("cognito: change password failed")
		}
	} else {
		log.Err(err).Msg("cognito: change password failed")
	}
	return false
}

// respondToMFAChallenge completes a pending MFA challenge. The code
// parameter name differs per channel and must match the challenge.
func (c *Client) respondToMFAChallenge(ctx context.Context, challengeName, codeParam, code, session, username, mismatchMessage string) AuthResult {
	var out authResponse
	err := c.call(ctx, targetRespondToAuthChallenge, respondToChallengeRequest{
		ChallengeName: challengeName,
		ClientID:      c.cfg.ClientID,
		Session:       session,
		ChallengeResponses: map[string]string{
			paramUsername: username,
			codeParam:     code,
		},
	}, &out)
	if err != nil {
		return failureResult(err, map[string]string{
			errTypeCodeMismatch:  mismatchMessage,
			errTypeExpiredCode:   "The code has expired, please sign in again",
			errTypeNotAuthorized: "The sign-in session has expired, please sign in again",
		})
	}
	return c.completeAuth(out.AuthenticationResult)
}

// completeAuth persists the tokens and the identity claims resolved from
// the ID token, then reports success with the token triple.
func (c *Client) completeAuth(result *authenticationResult) AuthResult {
	if result == nil || result.IDToken == "" {
		return AuthResult{Error: "provider returned no tokens", ErrorKind: KindTransport}
	}

	if err := c.tokens.StoreTokens(token.TokenSet{
		IDToken:      result.IDToken,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}); err != nil {
		log.Err(err).Msg("cognito: failed to persist tokens")
		return AuthResult{Error: "failed to store credentials", ErrorKind: KindTransport}
	}

	sub, _ := token.Claim(result.IDToken, "sub")
	email, _ := token.Claim(result.IDToken, "email")
	c.tokens.StoreIdentity(sub, email)

	return AuthResult{
		Success:      true,
		IDToken:      result.IDToken,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}
}

// call performs one provider RPC. Provider error bodies become classified
// *Error values; transport failures become KindTransport errors.
func (c *Client) call(ctx context.Context, target string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "[Client.call] json.Marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: KindTransport, Message: err.Error()}
	}
	req.Header.Set("Content-Type", amzJSONContentType)
	req.Header.Set("X-Amz-Target", targetPrefix+target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransport, Message: err.Error()}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var providerErr struct {
			Type    string `json:"__type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(respBody, &providerErr); err != nil || providerErr.Type == "" {
			return &Error{Kind: KindTransport, Message: fmt.Sprintf("provider returned status %d", resp.StatusCode)}
		}
		return &Error{Kind: kindForType(providerErr.Type), Type: providerErr.Type, Message: providerErr.Message}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &Error{Kind: KindTransport, Message: "malformed provider response"}
		}
	}
	return nil
}

// failureResult converts a call error into an AuthResult, substituting
// user-facing messages for known provider error types. Transport failures
// are logged; credential failures are not.
func failureResult(err error, messages map[string]string) AuthResult {
	var providerErr *Error
	if !errors.As(err, &providerErr) {
		providerErr = &Error{Kind: KindTransport, Message: err.Error()}
	}

	message := providerErr.Message
	if text, ok := messages[providerErr.Type]; ok {
		message = text
	}
	if providerErr.Kind == KindTransport {
		log.Err(err).Msg("cognito: provider call failed")
		if message == "" {
			message = "authentication service unavailable"
		}
	}
	return AuthResult{Error: message, ErrorKind: providerErr.Kind}
}
