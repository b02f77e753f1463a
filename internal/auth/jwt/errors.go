package jwt

import "errors"

// Sentinel errors for token verification. Each maps to a distinct
// failure kind; callers treat all of them as an authentication failure
// and never surface the underlying parser detail to clients.
var (
	// ErrTokenMalformed indicates that the token cannot be parsed.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenExpired indicates that the token has expired.
	ErrTokenExpired = errors.New("token has expired")

	// ErrBadSignature indicates that the token signature does not verify.
	ErrBadSignature = errors.New("token signature is invalid")

	// ErrUnsupportedToken indicates an unsupported token format or
	// signing algorithm.
	ErrUnsupportedToken = errors.New("token format is unsupported")

	// ErrInvalidIssuer indicates that the token issuer does not match
	// the configured issuer.
	ErrInvalidIssuer = errors.New("token issuer is invalid")

	// ErrEmptyToken indicates that the token is empty.
	ErrEmptyToken = errors.New("token is empty")
)

// IsExpired checks if an error indicates token expiration.
func IsExpired(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}
