// Package middleware provides HTTP middleware for the LODO API.
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lodomap/lodo/internal/auth"
	"github.com/lodomap/lodo/internal/models"
	"github.com/rs/zerolog"
)

// UserStore resolves token owners against the database.
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ContextKey is the type for context keys used by this package.
type ContextKey string

// UserContextKey is the context key for the authenticated user.
const UserContextKey ContextKey = "user"

// Authenticator validates bearer tokens for the management API. A static
// bootstrap token may be configured for initial setup; it authenticates as a
// synthetic admin before any account exists.
type Authenticator struct {
	staticAdminToken string
	tokens           auth.TokenStore
	users            UserStore
	logger           zerolog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(staticAdminToken string, tokens auth.TokenStore, users UserStore, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		staticAdminToken: staticAdminToken,
		tokens:           tokens,
		users:            users,
		logger:           logger.With().Str("component", "auth_middleware").Logger(),
	}
}

// RequireAuth returns a middleware that rejects requests without a valid
// bearer token.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			a.logger.Debug().Str("path", c.Request.URL.Path).Msg("missing bearer token")
			abortError(c, http.StatusUnauthorized, "auth_error", "authentication required")
			return
		}

		user, err := a.resolve(c.Request.Context(), token)
		if err != nil {
			a.logger.Debug().Str("path", c.Request.URL.Path).Msg("invalid bearer token")
			abortError(c, http.StatusUnauthorized, "auth_error", "invalid or expired token")
			return
		}

		c.Set(string(UserContextKey), user)

		a.logger.Debug().
			Str("user_id", user.ID.String()).
			Str("path", c.Request.URL.Path).
			Msg("authenticated request")

		c.Next()
	}
}

// RequireAdmin returns a middleware that rejects authenticated non-admin
// users. Must run after RequireAuth.
func (a *Authenticator) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := GetUser(c)
		if user == nil {
			abortError(c, http.StatusUnauthorized, "auth_error", "authentication required")
			return
		}
		if !user.IsAdmin() {
			a.logger.Warn().
				Str("user_id", user.ID.String()).
				Str("path", c.Request.URL.Path).
				Msg("non-admin user denied")
			abortError(c, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		c.Next()
	}
}

func (a *Authenticator) resolve(ctx context.Context, token string) (*models.User, error) {
	if a.staticAdminToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(a.staticAdminToken)) == 1 {
		return &models.User{
			ID:    uuid.Nil,
			Email: "bootstrap@localhost",
			Name:  "Bootstrap admin",
			Role:  models.UserRoleAdmin,
		}, nil
	}

	if !auth.IsValidTokenFormat(token) {
		return nil, auth.ErrTokenNotFound
	}

	userID, err := a.tokens.Lookup(ctx, auth.HashToken(token))
	if err != nil {
		return nil, err
	}

	return a.users.GetUserByID(ctx, userID)
}

// ExtractBearerToken returns the token from an Authorization header, or ""
// if the header is not a bearer credential.
func ExtractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetUser retrieves the authenticated user from the Gin context. Returns nil
// if no user is authenticated.
func GetUser(c *gin.Context) *models.User {
	value, exists := c.Get(string(UserContextKey))
	if !exists {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// ActorName returns a log-friendly identity for audit trails.
func ActorName(c *gin.Context) string {
	user := GetUser(c)
	if user == nil {
		return "anonymous"
	}
	return user.Email
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}
