package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shoply/gateway/internal/backend"
	"github.com/shoply/gateway/internal/observability"
	"github.com/shoply/gateway/internal/util"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Handlers exposes the gateway-local authentication endpoints.
type Handlers struct {
	service *Service
	auth    *Authenticator
	logger  observability.Logger
}

// NewHandlers creates the authentication handlers.
func NewHandlers(service *Service, auth *Authenticator, logger observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handlers{service: service, auth: auth, logger: logger}
}

// Register mounts the endpoints on the mux. Logout and profile lookup
// require a valid token; login and registration are public.
func (h *Handlers) Register(mux *http.ServeMux) {
	required := h.auth.Required()
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("POST /auth/register", h.register)
	mux.Handle("POST /auth/logout", required(http.HandlerFunc(h.logout)))
	mux.Handle("GET /auth/me", required(http.HandlerFunc(h.me)))
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "Request body is not valid JSON.")
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, err, "Invalid email or password")
		return
	}

	util.WriteJSON(w, http.StatusOK, result)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	token, err := BearerToken(r)
	if err != nil {
		// The identity middleware already ran, so this cannot happen
		// short of a misconfigured chain.
		util.WriteError(w, http.StatusUnauthorized, "Invalid or missing authentication token.")
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		h.logger.Error("logout failed", observability.Error(err))
		util.WriteError(w, http.StatusInternalServerError, "Logout failed, please try again.")
		return
	}

	util.WriteJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var user backend.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		util.WriteError(w, http.StatusBadRequest, "Request body is not valid JSON.")
		return
	}

	created, err := h.service.Register(r.Context(), &user)
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}

	util.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		util.WriteError(w, http.StatusUnauthorized, "Invalid or missing authentication token.")
		return
	}

	profile, err := h.service.Me(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}

	util.WriteJSON(w, http.StatusOK, profile)
}

// writeServiceError maps service errors onto the response taxonomy.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, credentialsMessage string) {
	var unavailable *UnavailableError
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		util.WriteError(w, http.StatusUnauthorized, credentialsMessage)
	case errors.Is(err, ErrEmailTaken):
		util.WriteError(w, http.StatusConflict, "Email is already registered.")
	case errors.Is(err, ErrValidation):
		util.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unavailable):
		util.WriteError(w, http.StatusServiceUnavailable, unavailable.Message)
	default:
		h.logger.Error("auth operation failed", observability.Error(err))
		util.WriteError(w, http.StatusInternalServerError, "Internal server error.")
	}
}
