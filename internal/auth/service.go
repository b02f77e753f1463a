package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/shoply/gateway/internal/auth/jwt"
	"github.com/shoply/gateway/internal/auth/revocation"
	"github.com/shoply/gateway/internal/backend"
	"github.com/shoply/gateway/internal/circuitbreaker"
	"github.com/shoply/gateway/internal/observability"
)

// Service errors surfaced to the HTTP layer.
var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords
	// alike, so responses do not reveal which one failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken is returned when registration hits an existing
	// email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrValidation is wrapped around input validation failures.
	ErrValidation = errors.New("validation failed")
)

// UnavailableError is returned when the user service cannot serve an
// operation, either because its circuit is open or because the call
// itself failed. Message is the operation-specific fallback text.
type UnavailableError struct {
	Message string
	cause   error
}

func (e *UnavailableError) Error() string {
	return e.Message
}

func (e *UnavailableError) Unwrap() error {
	return e.cause
}

// LoginResult is the successful login payload.
type LoginResult struct {
	Token     string `json:"token"`
	UserID    int64  `json:"userId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ExpiresIn int64  `json:"expiresIn"`
}

// Service implements the gateway-local authentication operations:
// login, logout, registration and profile lookup. Calls to the user
// service are wrapped in per-operation circuit breakers.
type Service struct {
	users    *backend.UserClient
	codec    *jwt.Codec
	store    revocation.Store
	breakers *circuitbreaker.Registry
	logger   observability.Logger
}

// ServiceOption is a functional option for the service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(logger observability.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates the authentication service.
func NewService(users *backend.UserClient, codec *jwt.Codec, store revocation.Store, breakers *circuitbreaker.Registry, opts ...ServiceOption) *Service {
	s := &Service{
		users:    users,
		codec:    codec,
		store:    store,
		breakers: breakers,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BreakerClassifier reports whether an error from the user service
// counts as a breaker success. Business-rule rejections are successes:
// the backend answered, it just said no.
func BreakerClassifier(err error) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, backend.ErrNotFound) || errors.Is(err, backend.ErrConflict)
}

// Login verifies the credentials against the user service, issues a
// token and records it in the revocation store.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	var user *backend.User
	err := s.breakers.Get("login").Execute(ctx, func() error {
		var callErr error
		user, callErr = s.users.GetByEmail(ctx, email)
		return callErr
	})
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrNotFound):
		return nil, ErrInvalidCredentials
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return nil, s.unavailable("Authentication service is currently unavailable, please try again later.", err)
	default:
		s.logger.Error("login backend call failed", observability.Error(err))
		return nil, s.unavailable("Authentication service is currently unavailable, please try again later.", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.codec.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	if err := s.store.Record(ctx, token, user.ID, user.Email, user.Role); err != nil {
		// The token is still valid on its own; losing the audit entry
		// is not a login failure.
		s.logger.Warn("record issued token", observability.Error(err))
	}

	s.logger.Info("user logged in",
		observability.Int64("user_id", user.ID),
		observability.String("email", user.Email),
	)

	return &LoginResult{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		ExpiresIn: int64(s.codec.TTL().Seconds()),
	}, nil
}

// Logout blacklists the given token. Tokens the store has never seen
// are a silent success, so logout is idempotent.
func (s *Service) Logout(ctx context.Context, token string) error {
	found, err := s.store.Blacklist(ctx, token)
	if err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	if !found {
		s.logger.Debug("logout for unknown token")
	}
	return nil
}

// Register creates a new user profile through the user service. The
// password is bcrypt-hashed before it leaves the gateway and the role
// defaults to CLIENT. The returned profile never carries a password.
func (s *Service) Register(ctx context.Context, user *backend.User) (*backend.User, error) {
	if err := validateRegistration(user); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user.Password = string(hashed)
	if user.Role == "" {
		user.Role = string(RoleClient)
	}

	var created *backend.User
	err = s.breakers.Get("register").Execute(ctx, func() error {
		var callErr error
		created, callErr = s.users.Create(ctx, user)
		return callErr
	})
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrConflict):
		return nil, ErrEmailTaken
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return nil, s.unavailable("Registration service is currently unavailable, please try again later.", err)
	default:
		s.logger.Error("register backend call failed", observability.Error(err))
		return nil, s.unavailable("Registration service is currently unavailable, please try again later.", err)
	}

	created.Password = ""

	s.logger.Info("user registered",
		observability.Int64("user_id", created.ID),
		observability.String("email", created.Email),
	)

	return created, nil
}

// Me fetches the caller's profile from the user service. The returned
// profile never carries a password.
func (s *Service) Me(ctx context.Context, id Identity) (*backend.User, error) {
	var user *backend.User
	err := s.breakers.Get("me").Execute(ctx, func() error {
		var callErr error
		user, callErr = s.users.GetByID(ctx, id.UserID)
		return callErr
	})
	switch {
	case err == nil:
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return nil, s.unavailable("User service is currently unavailable, please try again later.", err)
	default:
		s.logger.Error("profile backend call failed", observability.Error(err))
		return nil, s.unavailable("User service is currently unavailable, please try again later.", err)
	}

	user.Password = ""
	return user, nil
}

func (s *Service) unavailable(message string, cause error) error {
	return &UnavailableError{Message: message, cause: cause}
}

func validateRegistration(user *backend.User) error {
	switch {
	case user == nil:
		return fmt.Errorf("%w: empty body", ErrValidation)
	case strings.TrimSpace(user.Email) == "":
		return fmt.Errorf("%w: email is required", ErrValidation)
	case !strings.Contains(user.Email, "@"):
		return fmt.Errorf("%w: email is not valid", ErrValidation)
	case user.Password == "":
		return fmt.Errorf("%w: password is required", ErrValidation)
	case len(user.Password) < 8:
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	case strings.TrimSpace(user.FirstName) == "":
		return fmt.Errorf("%w: firstName is required", ErrValidation)
	case strings.TrimSpace(user.LastName) == "":
		return fmt.Errorf("%w: lastName is required", ErrValidation)
	}
	return nil
}
