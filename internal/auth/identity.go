// Package auth implements token-based authentication for the gateway:
// credential verification against the user service, token issuance and
// revocation, and the middleware enforcing identity and roles on
// proxied routes.
package auth

import (
	"context"
	"strconv"
)

// Role is a user role carried in token claims.
type Role string

const (
	// RoleClient is the default role assigned at registration.
	RoleClient Role = "CLIENT"

	// RoleAdmin grants access to administrative routes.
	RoleAdmin Role = "ADMIN"
)

// Identity headers injected on requests forwarded to backends. Inbound
// values on these headers are stripped before the gateway sets its own.
const (
	HeaderUserID        = "X-User-Id"
	HeaderUserEmail     = "X-User-Email"
	HeaderUserRole      = "X-User-Role"
	HeaderRequestOrigin = "X-Request-Origin"

	// OriginGateway marks a request as issued or forwarded by the
	// gateway, so backends can reject direct traffic.
	OriginGateway = "Gateway"
)

// Identity is the authenticated caller derived from a verified token.
type Identity struct {
	UserID int64
	Email  string
	Role   Role
}

// UserIDString returns the user ID formatted for the identity header.
func (id Identity) UserIDString() string {
	return strconv.FormatInt(id.UserID, 10)
}

type identityKey struct{}

// ContextWithIdentity returns a context carrying the authenticated
// identity.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
