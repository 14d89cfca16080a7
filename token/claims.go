package token

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claim extracts the named string claim from the payload segment of a JWT
// without verifying its signature. It exists only to read claims from a
// token the identity provider itself just returned in a successful exchange;
// it must never be used to authenticate untrusted input. Malformed input
// yields absent, never a panic.
func Claim(rawToken, name string) (string, bool) {
	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return "", false
	}
	value, ok := claims[name].(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// expiryClaim reads the token's own exp claim. Same trust caveat as Claim.
func expiryClaim(rawToken string) (time.Time, bool) {
	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, ok := claims["exp"].(float64)
	if !ok || exp <= 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(exp), 0).UTC(), true
}
