package auth

import (
	"errors"
	"net/http"

	"github.com/shoply/gateway/internal/auth/jwt"
	"github.com/shoply/gateway/internal/auth/revocation"
	"github.com/shoply/gateway/internal/observability"
	"github.com/shoply/gateway/internal/util"
)

// Authenticator builds the identity middleware from the token codec and
// the revocation store.
type Authenticator struct {
	codec   *jwt.Codec
	store   revocation.Store
	logger  observability.Logger
	metrics *observability.Metrics
}

// AuthenticatorOption is a functional option for the authenticator.
type AuthenticatorOption func(*Authenticator)

// WithAuthenticatorLogger sets the logger.
func WithAuthenticatorLogger(logger observability.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// WithAuthenticatorMetrics sets the metrics recorder.
func WithAuthenticatorMetrics(m *observability.Metrics) AuthenticatorOption {
	return func(a *Authenticator) {
		a.metrics = m
	}
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(codec *jwt.Codec, store revocation.Store, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		codec:  codec,
		store:  store,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Required returns middleware rejecting requests without a valid,
// non-revoked bearer token with 401. On success the identity is placed
// in the request context and on the trusted identity headers.
func (a *Authenticator) Required() func(http.Handler) http.Handler {
	return a.middleware(true)
}

// Optional returns middleware that authenticates when a valid token is
// present but lets unauthenticated requests through. A token that fails
// verification or has been revoked is treated the same as no token.
func (a *Authenticator) Optional() func(http.Handler) http.Handler {
	return a.middleware(false)
}

func (a *Authenticator) middleware(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				a.reject(w, r, next, required, "missing_token")
				return
			}

			claims, err := a.codec.Verify(token)
			if err != nil {
				a.logVerifyFailure(r, err)
				a.reject(w, r, next, required, verifyFailureReason(err))
				return
			}

			revoked, err := a.store.IsBlacklisted(r.Context(), token)
			if err != nil {
				// Store outages must not lock every caller out; fall
				// back to the token's own expiry.
				a.logger.Error("revocation check failed", observability.Error(err))
				revoked = false
			}
			if revoked {
				a.reject(w, r, next, required, "revoked_token")
				return
			}

			id := Identity{
				UserID: claims.UserID,
				Email:  claims.Email,
				Role:   Role(claims.Role),
			}
			r = r.WithContext(ContextWithIdentity(r.Context(), id))
			r.Header.Set(HeaderUserID, id.UserIDString())
			r.Header.Set(HeaderUserEmail, id.Email)
			r.Header.Set(HeaderUserRole, string(id.Role))

			next.ServeHTTP(w, r)
		})
	}
}

// reject terminates required chains with 401 and passes optional chains
// through unauthenticated.
func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, next http.Handler, required bool, reason string) {
	if !required {
		next.ServeHTTP(w, r)
		return
	}
	if a.metrics != nil {
		a.metrics.RecordAuthFailure(reason)
	}
	util.WriteError(w, http.StatusUnauthorized, "Invalid or missing authentication token.")
}

func (a *Authenticator) logVerifyFailure(r *http.Request, err error) {
	a.logger.Debug("token verification failed",
		observability.String("path", r.URL.Path),
		observability.Error(err),
	)
}

func verifyFailureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired_token"
	case errors.Is(err, jwt.ErrBadSignature):
		return "bad_signature"
	default:
		return "invalid_token"
	}
}

// RequireRole returns middleware enforcing that the authenticated
// identity carries the given role. It must run after the identity
// middleware; a chain without one yields 403, never a panic.
func RequireRole(role Role, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok || id.Role != role {
				if metrics != nil {
					metrics.RecordAuthFailure("forbidden")
				}
				util.WriteError(w, http.StatusForbidden, "Access denied. "+string(role)+" role required.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
