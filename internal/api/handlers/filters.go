package handlers

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lodomap/lodo/internal/models"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// parseOrganizationFilter reads the shared listing query parameters. The
// status parameter is only honored when allowStatus is set; public listings
// pin PUBLISHED regardless of input.
func parseOrganizationFilter(c *gin.Context, allowStatus bool) (models.OrganizationFilter, error) {
	filter := models.OrganizationFilter{
		Query:            c.Query("q"),
		Country:          c.Query("country"),
		SectorPrimary:    c.Query("sectorPrimary"),
		OrganizationType: c.Query("organizationType"),
		Stage:            c.Query("stage"),
		OutcomeStatus:    c.Query("outcomeStatus"),
		Limit:            defaultListLimit,
	}

	if allowStatus {
		if status := c.Query("status"); status != "" {
			if !models.ValidStatus(models.OrganizationStatus(status)) {
				return filter, fmt.Errorf("invalid status %q", status)
			}
			filter.Status = models.OrganizationStatus(status)
		}
	}

	if raw := c.Query("onlyMappable"); raw != "" {
		mappable, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid onlyMappable %q", raw)
		}
		filter.OnlyMappable = mappable
	}

	if raw := c.Query("bbox"); raw != "" {
		bbox, err := models.ParseBoundingBox(raw)
		if err != nil {
			return filter, err
		}
		filter.BBox = bbox
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}

	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, fmt.Errorf("invalid offset %q", raw)
		}
		filter.Offset = offset
	}

	return filter, nil
}
