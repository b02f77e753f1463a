package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shoply/gateway/internal/observability"
	"github.com/shoply/gateway/internal/util"
)

// Sentinel errors for user-service business outcomes. These are not
// availability failures and must never trip the circuit breaker.
var (
	// ErrNotFound indicates that no user matches the lookup.
	ErrNotFound = errors.New("user not found")

	// ErrConflict indicates that the email is already registered.
	ErrConflict = errors.New("email already registered")
)

// User is the user-service representation of an account. The password
// field carries the stored hash and is never echoed back to clients.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role"`
}

// UserClient calls the user-service CRUD endpoints the gateway fronts:
// credential lookup by email, profile creation, and profile lookup by id.
type UserClient struct {
	baseURL    string
	httpClient *http.Client
	logger     observability.Logger
}

// UserClientOption is a functional option for the user client.
type UserClientOption func(*UserClient)

// WithUserClientLogger sets the logger for the client.
func WithUserClientLogger(logger observability.Logger) UserClientOption {
	return func(c *UserClient) {
		c.logger = logger
	}
}

// WithUserClientHTTPClient sets the underlying HTTP client.
func WithUserClientHTTPClient(client *http.Client) UserClientOption {
	return func(c *UserClient) {
		c.httpClient = client
	}
}

// NewUserClient creates a client for the user service.
func NewUserClient(baseURL string, timeout time.Duration, opts ...UserClientOption) *UserClient {
	c := &UserClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetByEmail fetches a user by email, including the stored password hash.
func (c *UserClient) GetByEmail(ctx context.Context, email string) (*User, error) {
	path := "/api/v1/users/email/" + url.PathEscape(email)
	return c.doUser(ctx, http.MethodGet, path, nil)
}

// GetByID fetches a user by id.
func (c *UserClient) GetByID(ctx context.Context, id int64) (*User, error) {
	path := fmt.Sprintf("/api/v1/users/%d", id)
	return c.doUser(ctx, http.MethodGet, path, nil)
}

// Create creates a new user profile. The password must already be hashed.
func (c *UserClient) Create(ctx context.Context, user *User) (*User, error) {
	return c.doUser(ctx, http.MethodPost, "/api/v1/users", user)
}

// doUser performs a JSON request and decodes a user response.
func (c *UserClient) doUser(ctx context.Context, method, path string, body any) (*User, error) {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Origin", "Gateway")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user service request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return nil, ErrConflict
	case resp.StatusCode >= 500:
		return nil, util.NewServerError(resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("user service returned status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	return &user, nil
}
