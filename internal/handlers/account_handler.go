package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	authmw "github.com/kubeusers/backend/internal/auth/middleware"
	"github.com/kubeusers/backend/internal/models"
	"go.uber.org/zap"
)

// AccountService is the interface that wraps methods for account business logic.
type AccountService interface {
	// Method Register validates and stores a new account, then starts namespace provisioning for it.
	//
	// "req" parameter contains username, email, password and an optional role.
	//
	// If the request is invalid, models.ErrValidation will be matched by the returned error.
	// If username or email is taken, models.ErrDuplicateUsername or models.ErrDuplicateEmail will be returned.
	Register(ctx context.Context, req *models.RegisterRequest) error
	// Method Login verifies credentials and returns an access token with the account summary.
	//
	// "req" parameter contains username and password.
	//
	// If the username is unknown or the password is wrong, models.ErrInvalidCredentials will be returned together with "nil" value.
	// If the account is deactivated, models.ErrAccountDeactivated will be returned together with "nil" value.
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
	// Method ListAccounts retrieves the public projection of all accounts.
	//
	// If some error occurs, the error will be returned together with "nil" value.
	ListAccounts(ctx context.Context) ([]models.AccountListItem, error)
	// Method SetAccountActive activates or deactivates an account.
	//
	// "actor" parameter is the username of the administrator performing the change.
	// "username" parameter identifies the target account.
	// "active" parameter is the new status.
	//
	// If the account does not exist, models.ErrAccountNotFound will be returned.
	SetAccountActive(ctx context.Context, actor, username string, active bool) error
}

// AccountHandler handles account HTTP requests
type AccountHandler struct {
	BaseHandler
	service AccountService
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(svc AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		BaseHandler: BaseHandler{Logger: logger},
		service:     svc,
	}
}

// RegisterRoutes registers account routes. requireAdmin guards the administrative ones.
// Note: This assumes the router is already scoped to /api
func (h *AccountHandler) RegisterRoutes(r chi.Router, requireAdmin func(http.Handler) http.Handler) {
	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/register", h.Register)
		r.Get("/users", h.ListUsers)
		r.Patch("/users/{username}/status", h.SetStatus)
	})
}

// Register handles POST /api/register
// @Summary Register a new account
// @Description Create an account. The namespace user-<username> is provisioned in the background.
// @Tags accounts
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body models.RegisterRequest true "Account data"
// @Success 201 {object} map[string]string "User created successfully"
// @Failure 400 {object} map[string]string "Missing field or duplicate username/email"
// @Failure 401 {object} map[string]string "Missing or invalid token"
// @Failure 403 {object} map[string]string "Caller is not an active administrator"
// @Failure 404 {object} map[string]string "Caller account not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /register [post]
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.service.Register(r.Context(), &req); err != nil {
		h.RespondServiceError(w, err, "failed to register account")
		return
	}

	h.RespondJSON(w, http.StatusCreated, map[string]string{"message": "User created successfully"})
}

// Login handles POST /api/login
// @Summary Log in
// @Description Exchange username and password for an access token
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Failure 403 {object} map[string]string "Account is deactivated"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /login [post]
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), &req)
	if err != nil {
		h.RespondServiceError(w, err, "failed to log in")
		return
	}

	h.RespondJSON(w, http.StatusOK, resp)
}

// ListUsers handles GET /api/users
// @Summary List accounts
// @Tags accounts
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} models.AccountListItem
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /users [get]
func (h *AccountHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.RespondServiceError(w, err, "failed to list accounts")
		return
	}

	h.RespondJSON(w, http.StatusOK, accounts)
}

// SetStatus handles PATCH /api/users/{username}/status
// @Summary Activate or deactivate an account
// @Description Takes effect on the account's next request, including tokens already issued.
// @Tags accounts
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param username path string true "Username"
// @Param request body models.SetActiveRequest true "New status"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /users/{username}/status [patch]
func (h *AccountHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req models.SetActiveRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		h.RespondError(w, http.StatusBadRequest, "is_active is required")
		return
	}

	actor, ok := authmw.AccountFromContext(r.Context())
	if !ok {
		h.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.service.SetAccountActive(r.Context(), actor.Username, username, *req.IsActive); err != nil {
		h.RespondServiceError(w, err, "failed to change account status")
		return
	}

	message := "User deactivated successfully"
	if *req.IsActive {
		message = "User activated successfully"
	}
	h.RespondJSON(w, http.StatusOK, map[string]string{"message": message})
}
