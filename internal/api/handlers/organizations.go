package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lodomap/lodo/internal/api/middleware"
	"github.com/lodomap/lodo/internal/models"
	"github.com/rs/zerolog"
)

// maxRequestBody bounds JSON payload size for writes.
const maxRequestBody = 1 << 20 // 1 MiB

// DirectoryService is the service surface the organization console uses.
type DirectoryService interface {
	Create(ctx context.Context, org *models.Organization, actor string) error
	Get(ctx context.Context, id string) (*models.Organization, error)
	Update(ctx context.Context, id string, merge func(org *models.Organization) error, actor string) (*models.Organization, error)
	Delete(ctx context.Context, id string, force bool, actor string) error
	List(ctx context.Context, filter models.OrganizationFilter) ([]*models.Organization, error)
	Aggregate(ctx context.Context, filter models.OrganizationFilter) (*models.AggregateSet, error)
	SubmitForReview(ctx context.Context, id, actor string) (*models.Organization, error)
	Publish(ctx context.Context, id, actor string) (*models.Organization, error)
	Archive(ctx context.Context, id, actor string) (*models.Organization, error)
	SetCoordinates(ctx context.Context, id string, lat, lng float64, actor string) (*models.Organization, error)
	SetLogoURL(ctx context.Context, id, url, actor string) (*models.Organization, error)
}

// Geocoder resolves an address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, city, region, country string) (lat, lng float64, err error)
}

// LogoStorage stores uploaded logo images and returns their public URL.
type LogoStorage interface {
	UploadLogo(ctx context.Context, orgID, contentType string, body io.Reader, size int64) (string, error)
}

// AuditReader lists the audit trail of an entity.
type AuditReader interface {
	ListAuditEvents(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditEvent, error)
}

// OrganizationsHandler handles the admin organization console endpoints.
type OrganizationsHandler struct {
	service  DirectoryService
	geocoder Geocoder
	logos    LogoStorage
	audits   AuditReader
	logger   zerolog.Logger
}

// NewOrganizationsHandler creates an OrganizationsHandler. geocoder and
// logos may be nil when the backing services are not configured; their
// endpoints then report the feature as unavailable.
func NewOrganizationsHandler(service DirectoryService, geocoder Geocoder, logos LogoStorage, audits AuditReader, logger zerolog.Logger) *OrganizationsHandler {
	return &OrganizationsHandler{
		service:  service,
		geocoder: geocoder,
		logos:    logos,
		audits:   audits,
		logger:   logger.With().Str("component", "organizations_handler").Logger(),
	}
}

// RegisterRoutes registers the console routes on an authenticated group.
func (h *OrganizationsHandler) RegisterRoutes(r *gin.RouterGroup) {
	orgs := r.Group("/organizations")
	{
		orgs.GET("", h.List)
		orgs.POST("", h.Create)
		orgs.GET("/aggregates", h.Aggregates)
		orgs.GET("/:id", h.Get)
		orgs.PUT("/:id", h.Update)
		orgs.DELETE("/:id", h.Delete)
		orgs.POST("/:id/submit-review", h.SubmitForReview)
		orgs.POST("/:id/publish", h.Publish)
		orgs.POST("/:id/archive", h.Archive)
		orgs.PUT("/:id/coordinates", h.SetCoordinates)
		orgs.POST("/:id/geocode", h.Geocode)
		orgs.POST("/:id/logo", h.UploadLogo)
		orgs.GET("/:id/audit", h.AuditTrail)
	}
}

// List returns organizations in any lifecycle state.
// GET /api/v1/organizations
func (h *OrganizationsHandler) List(c *gin.Context) {
	filter, err := parseOrganizationFilter(c, true)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	orgs, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"organizations": orgs, "count": len(orgs)})
}

// Create registers a new organization as DRAFT.
// POST /api/v1/organizations
func (h *OrganizationsHandler) Create(c *gin.Context) {
	var org models.Organization
	if err := decodeJSON(c, &org); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	if err := h.service.Create(c.Request.Context(), &org, middleware.ActorName(c)); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, &org)
}

// Get returns one organization in any lifecycle state.
// GET /api/v1/organizations/:id
func (h *OrganizationsHandler) Get(c *gin.Context) {
	org, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// Update merges the payload into the record. Fields absent from the payload
// keep their stored value; status is never writable here.
// PUT /api/v1/organizations/:id
func (h *OrganizationsHandler) Update(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
	if err != nil {
		respondBadRequest(c, "failed to read request body")
		return
	}
	if !json.Valid(body) {
		respondBadRequest(c, "invalid JSON payload")
		return
	}

	org, err := h.service.Update(c.Request.Context(), c.Param("id"), func(org *models.Organization) error {
		return json.Unmarshal(body, org)
	}, middleware.ActorName(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, org)
}

// Delete removes a record. A PUBLISHED record is archived instead unless
// force=true is passed.
// DELETE /api/v1/organizations/:id?force=true
func (h *OrganizationsHandler) Delete(c *gin.Context) {
	force := false
	if raw := c.Query("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondBadRequest(c, "invalid force parameter")
			return
		}
		force = parsed
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), force, middleware.ActorName(c)); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "organization deleted"})
}

// Aggregates returns facet distributions over any lifecycle state.
// GET /api/v1/organizations/aggregates
func (h *OrganizationsHandler) Aggregates(c *gin.Context) {
	filter, err := parseOrganizationFilter(c, true)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	agg, err := h.service.Aggregate(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, agg)
}

// SubmitForReview moves a record to IN_REVIEW.
// POST /api/v1/organizations/:id/submit-review
func (h *OrganizationsHandler) SubmitForReview(c *gin.Context) {
	h.lifecycle(c, h.service.SubmitForReview)
}

// Publish moves a reviewed record to PUBLISHED.
// POST /api/v1/organizations/:id/publish
func (h *OrganizationsHandler) Publish(c *gin.Context) {
	h.lifecycle(c, h.service.Publish)
}

// Archive withdraws a published record.
// POST /api/v1/organizations/:id/archive
func (h *OrganizationsHandler) Archive(c *gin.Context) {
	h.lifecycle(c, h.service.Archive)
}

func (h *OrganizationsHandler) lifecycle(c *gin.Context, op func(ctx context.Context, id, actor string) (*models.Organization, error)) {
	org, err := op(c.Request.Context(), c.Param("id"), middleware.ActorName(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// SetCoordinates stores a manually picked coordinate pair.
// PUT /api/v1/organizations/:id/coordinates
func (h *OrganizationsHandler) SetCoordinates(c *gin.Context) {
	var req struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := decodeJSON(c, &req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	if req.Lat == nil || req.Lng == nil {
		respondBadRequest(c, "lat and lng are required")
		return
	}

	org, err := h.service.SetCoordinates(c.Request.Context(), c.Param("id"), *req.Lat, *req.Lng, middleware.ActorName(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// Geocode resolves the record's address and stores the coordinates.
// POST /api/v1/organizations/:id/geocode
func (h *OrganizationsHandler) Geocode(c *gin.Context) {
	if h.geocoder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"code": "internal_error", "message": "geocoding is not configured"}})
		return
	}

	id := c.Param("id")
	org, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	lat, lng, err := h.geocoder.Geocode(c.Request.Context(), org.City, org.Region, org.Country)
	if err != nil {
		h.logger.Warn().Err(err).Str("org_id", id).Msg("geocoding failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"code": "internal_error", "message": "geocoding failed"}})
		return
	}

	updated, err := h.service.SetCoordinates(c.Request.Context(), id, lat, lng, middleware.ActorName(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// UploadLogo stores a logo image and records its URL on the organization.
// POST /api/v1/organizations/:id/logo
func (h *OrganizationsHandler) UploadLogo(c *gin.Context) {
	if h.logos == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"code": "internal_error", "message": "logo storage is not configured"}})
		return
	}

	id := c.Param("id")
	if _, err := h.service.Get(c.Request.Context(), id); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	file, header, err := c.Request.FormFile("logo")
	if err != nil {
		respondBadRequest(c, "logo file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	switch contentType {
	case "image/png", "image/jpeg", "image/svg+xml", "image/webp":
	default:
		respondBadRequest(c, "unsupported logo content type")
		return
	}

	url, err := h.logos.UploadLogo(c.Request.Context(), id, contentType, file, header.Size)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", id).Msg("logo upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"code": "internal_error", "message": "logo upload failed"}})
		return
	}

	org, err := h.service.SetLogoURL(c.Request.Context(), id, url, middleware.ActorName(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// AuditTrail returns the record's audit events, newest first.
// GET /api/v1/organizations/:id/audit
func (h *OrganizationsHandler) AuditTrail(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondBadRequest(c, "invalid limit")
			return
		}
		limit = parsed
	}

	events, err := h.audits.ListAuditEvents(c.Request.Context(), "organization", c.Param("id"), limit)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// decodeJSON strictly decodes a bounded JSON request body.
func decodeJSON(c *gin.Context, dest any) error {
	decoder := json.NewDecoder(io.LimitReader(c.Request.Body, maxRequestBody))
	return decoder.Decode(dest)
}
