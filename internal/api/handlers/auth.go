package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lodomap/lodo/internal/api/middleware"
	"github.com/lodomap/lodo/internal/auth"
	"github.com/lodomap/lodo/internal/directory"
	"github.com/lodomap/lodo/internal/models"
	"github.com/rs/zerolog"
)

// AccountStore defines the persistence operations for accounts.
type AccountStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	CountUsers(ctx context.Context) (int, error)
}

// AuthHandler handles registration, login and session introspection.
type AuthHandler struct {
	store  AccountStore
	tokens auth.TokenStore
	logger zerolog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(store AccountStore, tokens auth.TokenStore, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		store:  store,
		tokens: tokens,
		logger: logger.With().Str("component", "auth_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the unauthenticated auth routes.
func (h *AuthHandler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
}

// RegisterPrivateRoutes registers routes that require a valid token.
func (h *AuthHandler) RegisterPrivateRoutes(r *gin.RouterGroup) {
	r.GET("/auth/me", h.Me)
	r.POST("/auth/logout", h.Logout)
}

// Register creates a new account. The very first account becomes the admin;
// later registrations get the unprivileged role until promoted.
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decodeJSON(c, &req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		respondBadRequest(c, "a valid email is required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	role := models.UserRoleUser
	count, err := h.store.CountUsers(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	if count == 0 {
		role = models.UserRoleAdmin
	}

	user := models.NewUser(req.Email, hash, strings.TrimSpace(req.Name), role)
	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.logger.Info().Str("user_id", user.ID.String()).Str("role", string(user.Role)).Msg("user registered")
	c.JSON(http.StatusCreated, user)
}

// Login verifies credentials and issues a bearer token.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(c, &req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	user, err := h.store.GetUserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		// Same response for unknown email and wrong password.
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": string(directory.KindAuth), "message": "invalid credentials"}})
		return
	}

	token, err := auth.GenerateToken()
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	if err := h.tokens.Save(c.Request.Context(), auth.HashToken(token), user.ID, auth.DefaultTokenTTL); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.logger.Info().Str("user_id", user.ID.String()).Msg("user logged in")
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresIn": int(auth.DefaultTokenTTL.Seconds()),
		"user":      user,
	})
}

// Me returns the authenticated account.
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.GetUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": string(directory.KindAuth), "message": "authentication required"}})
		return
	}
	c.JSON(http.StatusOK, user)
}

// Logout revokes the presented token.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.ExtractBearerToken(c.GetHeader("Authorization"))
	if token != "" && auth.IsValidTokenFormat(token) {
		if err := h.tokens.Revoke(c.Request.Context(), auth.HashToken(token)); err != nil {
			h.logger.Warn().Err(err).Msg("failed to revoke token")
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
