package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lodomap/lodo/internal/models"
	"github.com/rs/zerolog"
)

// PublicDirectory is the read-only service surface of the public site.
type PublicDirectory interface {
	List(ctx context.Context, filter models.OrganizationFilter) ([]*models.Organization, error)
	GetPublished(ctx context.Context, id string) (*models.Organization, error)
	Aggregate(ctx context.Context, filter models.OrganizationFilter) (*models.AggregateSet, error)
}

// PublicHandler serves the unauthenticated directory endpoints. Every query
// is pinned to PUBLISHED records and internal fields are stripped from
// responses.
type PublicHandler struct {
	service PublicDirectory
	logger  zerolog.Logger
}

// NewPublicHandler creates a PublicHandler.
func NewPublicHandler(service PublicDirectory, logger zerolog.Logger) *PublicHandler {
	return &PublicHandler{
		service: service,
		logger:  logger.With().Str("component", "public_handler").Logger(),
	}
}

// RegisterRoutes registers the public routes.
func (h *PublicHandler) RegisterRoutes(r *gin.RouterGroup) {
	orgs := r.Group("/organizations")
	{
		orgs.GET("", h.List)
		orgs.GET("/aggregates", h.Aggregates)
		orgs.GET("/:id", h.Get)
	}
}

// List returns published organizations matching the filters.
// GET /api/v1/public/organizations
func (h *PublicHandler) List(c *gin.Context) {
	filter, err := parseOrganizationFilter(c, false)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	filter.Status = models.StatusPublished

	orgs, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	public := make([]*models.Organization, len(orgs))
	for i, org := range orgs {
		public[i] = org.PublicView()
	}

	c.JSON(http.StatusOK, gin.H{"organizations": public, "count": len(public)})
}

// Get returns one published organization.
// GET /api/v1/public/organizations/:id
func (h *PublicHandler) Get(c *gin.Context) {
	org, err := h.service.GetPublished(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, org.PublicView())
}

// Aggregates returns facet distributions over the published set.
// GET /api/v1/public/organizations/aggregates
func (h *PublicHandler) Aggregates(c *gin.Context) {
	filter, err := parseOrganizationFilter(c, false)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	filter.Status = models.StatusPublished

	agg, err := h.service.Aggregate(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, agg)
}
