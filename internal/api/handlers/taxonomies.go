package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lodomap/lodo/internal/models"
	"github.com/rs/zerolog"
)

// TaxonomyStore defines the persistence operations for taxonomy management.
type TaxonomyStore interface {
	ListTaxonomies(ctx context.Context) ([]models.Taxonomy, error)
	CreateTaxonomy(ctx context.Context, t *models.Taxonomy) error
	DeactivateTaxonomy(ctx context.Context, category, value string) error
}

// TaxonomyCacheInvalidator is notified after taxonomy writes so validation
// caches reload.
type TaxonomyCacheInvalidator interface {
	InvalidateTaxonomyCache()
}

// TaxonomiesHandler handles taxonomy endpoints.
type TaxonomiesHandler struct {
	store  TaxonomyStore
	caches TaxonomyCacheInvalidator
	logger zerolog.Logger
}

// NewTaxonomiesHandler creates a TaxonomiesHandler. caches may be nil.
func NewTaxonomiesHandler(store TaxonomyStore, caches TaxonomyCacheInvalidator, logger zerolog.Logger) *TaxonomiesHandler {
	return &TaxonomiesHandler{
		store:  store,
		caches: caches,
		logger: logger.With().Str("component", "taxonomies_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the read-only taxonomy routes.
func (h *TaxonomiesHandler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/taxonomies", h.ListGrouped)
}

// RegisterAdminRoutes registers the management routes on an authenticated
// group.
func (h *TaxonomiesHandler) RegisterAdminRoutes(r *gin.RouterGroup) {
	tax := r.Group("/taxonomies")
	{
		tax.GET("", h.List)
		tax.POST("", h.Create)
		tax.DELETE("/:category/:value", h.Deactivate)
	}
}

// ListGrouped returns active taxonomy values bucketed by category.
// GET /api/v1/public/taxonomies
func (h *TaxonomiesHandler) ListGrouped(c *gin.Context) {
	items, err := h.store.ListTaxonomies(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.GroupTaxonomies(items))
}

// List returns the raw taxonomy rows for the admin console.
// GET /api/v1/taxonomies
func (h *TaxonomiesHandler) List(c *gin.Context) {
	items, err := h.store.ListTaxonomies(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"taxonomies": items, "count": len(items)})
}

// Create adds a new taxonomy value.
// POST /api/v1/taxonomies
func (h *TaxonomiesHandler) Create(c *gin.Context) {
	var req struct {
		Category  string `json:"category"`
		Value     string `json:"value"`
		Label     string `json:"label"`
		SortOrder int    `json:"sortOrder"`
	}
	if err := decodeJSON(c, &req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	req.Category = strings.TrimSpace(req.Category)
	req.Value = strings.TrimSpace(req.Value)
	if req.Category == "" || req.Value == "" {
		respondBadRequest(c, "category and value are required")
		return
	}

	tax := &models.Taxonomy{
		Category:  req.Category,
		Value:     req.Value,
		Label:     strings.TrimSpace(req.Label),
		SortOrder: req.SortOrder,
	}
	if err := h.store.CreateTaxonomy(c.Request.Context(), tax); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.invalidate()
	h.logger.Info().Str("category", tax.Category).Str("value", tax.Value).Msg("taxonomy created")
	c.JSON(http.StatusCreated, tax)
}

// Deactivate retires a taxonomy value. Records that already carry the value
// keep it.
// DELETE /api/v1/taxonomies/:category/:value
func (h *TaxonomiesHandler) Deactivate(c *gin.Context) {
	category := c.Param("category")
	value := c.Param("value")

	if err := h.store.DeactivateTaxonomy(c.Request.Context(), category, value); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.invalidate()
	h.logger.Info().Str("category", category).Str("value", value).Msg("taxonomy deactivated")
	c.JSON(http.StatusOK, gin.H{"message": "taxonomy deactivated"})
}

func (h *TaxonomiesHandler) invalidate() {
	if h.caches != nil {
		h.caches.InvalidateTaxonomyCache()
	}
}
