// Package middleware enforces authentication and role membership on protected routes
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/kubeusers/backend/internal/auth/token"
	"github.com/kubeusers/backend/internal/models"
	"go.uber.org/zap"
)

type contextKey string

const accountKey contextKey = "account"

// Denial reasons reported to GuardObserver
const (
	DenialUnauthenticated = "unauthenticated"
	DenialNotFound        = "account_not_found"
	DenialDeactivated     = "deactivated"
	DenialRole            = "role"
	DenialError           = "error"
)

// TokenValidator is the interface that wraps access token validation.
type TokenValidator interface {
	// Method ValidateAccessToken validates a token and returns its subject (the username).
	//
	// If the token is expired, malformed or invalid, the error will be returned together with an empty string.
	ValidateAccessToken(tokenString string) (string, error)
}

// AccountFinder is the interface that wraps the account lookup used on every protected request.
type AccountFinder interface {
	// Method FindByUsername retrieves an account by username.
	//
	// If the account does not exist, models.ErrAccountNotFound will be returned together with "nil" value.
	FindByUsername(ctx context.Context, username string) (*models.Account, error)
}

// GuardObserver receives the reason of every rejected request
type GuardObserver interface {
	ObserveGuardDenial(reason string)
}

// Guard resolves the current account from a bearer token and checks it on every request.
// It keeps no state between requests, so deactivation takes effect on the next request.
type Guard struct {
	tokens   TokenValidator
	accounts AccountFinder
	logger   *zap.Logger
	observer GuardObserver
}

// NewGuard creates a new guard. observer may be nil.
func NewGuard(tokens TokenValidator, accounts AccountFinder, logger *zap.Logger, observer GuardObserver) *Guard {
	return &Guard{
		tokens:   tokens,
		accounts: accounts,
		logger:   logger,
		observer: observer,
	}
}

// Require authenticates the request and admits it only if the account is active and its role is
// one of roles. The account is then available through AccountFromContext.
func (g *Guard) Require(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				g.deny(w, http.StatusUnauthorized, DenialUnauthenticated, "Authentication required")
				return
			}

			username, err := g.tokens.ValidateAccessToken(tokenString)
			if err != nil {
				message := "Invalid token"
				if errors.Is(err, token.ErrTokenExpired) {
					message = "Token has expired"
				}
				g.deny(w, http.StatusUnauthorized, DenialUnauthenticated, message)
				return
			}

			account, err := g.accounts.FindByUsername(r.Context(), username)
			if errors.Is(err, models.ErrAccountNotFound) {
				g.deny(w, http.StatusNotFound, DenialNotFound, "User not found")
				return
			}
			if err != nil {
				g.logger.Error("failed to load current account", zap.Error(err), zap.String("username", username))
				g.deny(w, http.StatusInternalServerError, DenialError, "Internal server error")
				return
			}

			if !account.IsActive {
				g.deny(w, http.StatusForbidden, DenialDeactivated, "User account is deactivated")
				return
			}

			if !slices.Contains(roles, account.Role) {
				g.deny(w, http.StatusForbidden, DenialRole, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAccount(r.Context(), account)))
		})
	}
}

// AccountFromContext returns the account admitted by Guard.Require
func AccountFromContext(ctx context.Context) (*models.Account, bool) {
	account, ok := ctx.Value(accountKey).(*models.Account)
	return account, ok
}

// ContextWithAccount stores account the way Guard.Require does
func ContextWithAccount(ctx context.Context, account *models.Account) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

func (g *Guard) deny(w http.ResponseWriter, status int, reason, message string) {
	if g.observer != nil {
		g.observer.ObserveGuardDenial(reason)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		g.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
