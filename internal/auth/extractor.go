package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrNoToken is returned when a request carries no bearer token.
var ErrNoToken = errors.New("no bearer token in request")

const bearerPrefix = "Bearer "

// BearerToken extracts the bearer token from the Authorization header.
// It returns ErrNoToken when the header is absent or does not use the
// Bearer scheme.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNoToken
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrNoToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}
