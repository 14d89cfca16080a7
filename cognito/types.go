package cognito

// MFAType identifies the second-factor channel a pending challenge expects.
type MFAType string

const (
	MFATypeTOTP  MFAType = "TOTP"
	MFATypeEmail MFAType = "EMAIL"
)

// ErrorKind classifies a failed authentication step so callers can
// distinguish retryable transport failures from permanent credential or
// policy failures.
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindCredentials  ErrorKind = "credentials"
	KindPolicy       ErrorKind = "policy"
	KindTransport    ErrorKind = "transport"
	KindPrecondition ErrorKind = "precondition"
)

// AuthResult describes the outcome of one authentication step. At most one
// of Success, RequiresMFA, RequiresNewPassword and RequiresEmailVerification
// drives the caller's next action. Session is populated whenever a challenge
// is pending and must be threaded unchanged into the completing call.
type AuthResult struct {
	Success   bool
	Error     string
	ErrorKind ErrorKind

	IDToken      string
	AccessToken  string
	RefreshToken string

	RequiresMFA               bool
	MFAType                   MFAType
	RequiresNewPassword       bool
	RequiresEmailVerification bool
	Session                   string
}

// User is the resolved identity projection of the provider's user
// attributes. It is derived per request and never persisted as a whole.
type User struct {
	ID        string // subject claim
	Email     string
	FirstName string
	Role      string // defaults to "user"
	OwnerID   string // set for team-scoped accounts
}

// Provider wire types (x-amz-json-1.1).

type attribute struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type initiateAuthRequest struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

type respondToChallengeRequest struct {
	ChallengeName      string            `json:"ChallengeName"`
	ClientID           string            `json:"ClientId"`
	Session            string            `json:"Session"`
	ChallengeResponses map[string]string `json:"ChallengeResponses"`
}

type authenticationResult struct {
	IDToken      string `json:"IdToken"`
	AccessToken  string `json:"AccessToken"`
	RefreshToken string `json:"RefreshToken"`
	ExpiresIn    int    `json:"ExpiresIn"`
	TokenType    string `json:"TokenType"`
}

type authResponse struct {
	AuthenticationResult *authenticationResult `json:"AuthenticationResult"`
	ChallengeName        string                `json:"ChallengeName"`
	Session              string                `json:"Session"`
	ChallengeParameters  map[string]string     `json:"ChallengeParameters"`
}

type signUpRequest struct {
	ClientID       string      `json:"ClientId"`
	Username       string      `json:"Username"`
	Password       string      `json:"Password"`
	UserAttributes []attribute `json:"UserAttributes"`
}

type signUpResponse struct {
	UserConfirmed bool   `json:"UserConfirmed"`
	UserSub       string `json:"UserSub"`
}

type confirmSignUpRequest struct {
	ClientID         string `json:"ClientId"`
	Username         string `json:"Username"`
	ConfirmationCode string `json:"ConfirmationCode"`
}

type resendConfirmationCodeRequest struct {
	ClientID string `json:"ClientId"`
	Username string `json:"Username"`
}

type forgotPasswordRequest struct {
	ClientID string `json:"ClientId"`
	Username string `json:"Username"`
}

type confirmForgotPasswordRequest struct {
	ClientID         string `json:"ClientId"`
	Username         string `json:"Username"`
	ConfirmationCode string `json:"ConfirmationCode"`
	Password         string `json:"Password"`
}

type getUserRequest struct {
	AccessToken string `json:"AccessToken"`
}

type getUserResponse struct {
	Username       string      `json:"Username"`
	UserAttributes []attribute `json:"UserAttributes"`
}

type changePasswordRequest struct {
	AccessToken      string `json:"AccessToken"`
	PreviousPassword string `json:"PreviousPassword"`
	ProposedPassword string `json:"ProposedPassword"`
}
