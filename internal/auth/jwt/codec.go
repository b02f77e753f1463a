// Package jwt implements the gateway's identity token codec. Tokens are
// HMAC-SHA256 signed and carry the subject (user ID), email, role,
// issuer, issued-at, and expiry claims. Signature and expiry are
// verifiable without any lookup; revocation is a separate concern.
package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// minSecretLength is the minimum signing secret length in bytes.
const minSecretLength = 32

// Claims are the verified fields carried by an identity token.
type Claims struct {
	UserID    int64
	Email     string
	Role      string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// tokenClaims is the wire representation of the claims.
type tokenClaims struct {
	jwtlib.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Config holds codec settings.
type Config struct {
	// Secret is the shared HMAC signing key.
	Secret string

	// Issuer is stamped into every issued token and required on verify.
	Issuer string

	// TTL is the token lifetime.
	TTL time.Duration
}

// Codec signs and verifies identity tokens. It holds no mutable state
// and is safe for unlimited concurrent use.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption is a functional option for the codec.
type CodecOption func(*Codec)

// WithClock sets the time source, used by tests for deterministic
// issuance and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a new token codec. Key misconfiguration fails here,
// at startup, never per request.
func NewCodec(cfg Config, opts ...CodecOption) (*Codec, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretLength)
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("token TTL must be positive")
	}

	c := &Codec{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue builds and signs a token for the given identity.
func (c *Codec) Issue(userID int64, email, role string) (string, error) {
	now := c.now()

	claims := tokenClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(c.ttl)),
		},
		Email: email,
		Role:  role,
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses the token and checks signature, issuer, and expiry.
// Failures map to the package sentinel errors; all are non-fatal.
func (c *Codec) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	parsed := &tokenClaims{}
	_, err := jwtlib.ParseWithClaims(token, parsed,
		func(*jwtlib.Token) (any, error) { return c.secret, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(c.issuer),
		jwtlib.WithTimeFunc(c.now),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return nil, mapParseError(err)
	}

	userID, err := strconv.ParseInt(parsed.Subject, 10, 64)
	if err != nil {
		return nil, ErrTokenMalformed
	}

	claims := &Claims{
		UserID: userID,
		Email:  parsed.Email,
		Role:   parsed.Role,
		Issuer: parsed.Issuer,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}

	return claims, nil
}

// mapParseError maps parser errors to the package sentinel errors.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwtlib.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwtlib.ErrTokenInvalidIssuer):
		return ErrInvalidIssuer
	case errors.Is(err, jwtlib.ErrTokenUnverifiable):
		return ErrUnsupportedToken
	case errors.Is(err, jwtlib.ErrTokenMalformed):
		return ErrTokenMalformed
	default:
		return ErrTokenMalformed
	}
}
