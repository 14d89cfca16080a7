package cognito

import "fmt"

// Challenge names the provider can return mid sign-in.
const (
	challengeSoftwareTokenMFA    = "SOFTWARE_TOKEN_MFA"
	challengeEmailOTP            = "EMAIL_OTP"
	challengeNewPasswordRequired = "NEW_PASSWORD_REQUIRED"
)

// Challenge-response parameter names. The code parameter differs per
// channel; mixing them up is a protocol error, not a business error.
const (
	paramUsername        = "USERNAME"
	paramPassword        = "PASSWORD"
	paramRefreshToken    = "REFRESH_TOKEN"
	paramNewPassword     = "NEW_PASSWORD"
	paramSoftwareMFACode = "SOFTWARE_TOKEN_MFA_CODE"
	paramEmailOTPCode    = "EMAIL_OTP_CODE"
)

// Provider error types surfaced in the __type field of an error body.
const (
	errTypeNotAuthorized    = "NotAuthorizedException"
	errTypeUserNotFound     = "UserNotFoundException"
	errTypeUserNotConfirmed = "UserNotConfirmedException"
	errTypeUsernameExists   = "UsernameExistsException"
	errTypeInvalidPassword  = "InvalidPasswordException"
	errTypeCodeMismatch     = "CodeMismatchException"
	errTypeExpiredCode      = "ExpiredCodeException"
	errTypeInvalidParameter = "InvalidParameterException"
	errTypeLimitExceeded    = "LimitExceededException"
)

// Error is a classified provider or transport failure.
type Error struct {
	Kind    ErrorKind
	Type    string // provider error type, empty for transport failures
	Message string
}

func (e *Error) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("cognito: %s", e.Message)
	}
	return fmt.Sprintf("cognito: %s: %s", e.Type, e.Message)
}

func kindForType(errType string) ErrorKind {
	switch errType {
	case errTypeNotAuthorized, errTypeUserNotFound, errTypeUserNotConfirmed:
		return KindCredentials
	case errTypeUsernameExists, errTypeInvalidPassword, errTypeCodeMismatch,
		errTypeExpiredCode, errTypeInvalidParameter:
		return KindPolicy
	}
	return KindTransport
}
