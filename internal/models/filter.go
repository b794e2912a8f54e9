package models

import (
	"fmt"
	"strconv"
	"strings"
)

// FacetField identifies a filterable field for which value distributions are
// computed.
type FacetField string

const (
	FacetCountry          FacetField = "country"
	FacetSectorPrimary    FacetField = "sectorPrimary"
	FacetOrganizationType FacetField = "organizationType"
	FacetStage            FacetField = "stage"
	FacetOutcomeStatus    FacetField = "outcomeStatus"
)

// FacetFields lists every facet in response order.
var FacetFields = []FacetField{
	FacetCountry,
	FacetSectorPrimary,
	FacetOrganizationType,
	FacetStage,
	FacetOutcomeStatus,
}

// FacetCount pairs one distinct facet value with the number of matching
// records.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// AggregateSet groups the facet distributions for all filterable fields.
type AggregateSet struct {
	Countries         []FacetCount `json:"countries"`
	SectorsPrimary    []FacetCount `json:"sectorsPrimary"`
	OrganizationTypes []FacetCount `json:"organizationTypes"`
	Stages            []FacetCount `json:"stages"`
	OutcomeStatuses   []FacetCount `json:"outcomeStatuses"`
}

// BoundingBox is a geographic viewport constraint.
type BoundingBox struct {
	MinLat float64
	MinLng float64
	MaxLat float64
	MaxLng float64
}

// ParseBoundingBox parses "minLat,minLng,maxLat,maxLng".
func ParseBoundingBox(s string) (*BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must have 4 comma-separated coordinates, got %d", len(parts))
	}
	coords := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate %q", p)
		}
		coords[i] = v
	}
	return &BoundingBox{MinLat: coords[0], MinLng: coords[1], MaxLat: coords[2], MaxLng: coords[3]}, nil
}

// OrganizationFilter is the request-scoped filter set applied to listings and
// aggregations. Empty fields impose no constraint; all set fields combine
// with logical AND.
type OrganizationFilter struct {
	Query            string
	Country          string
	SectorPrimary    string
	OrganizationType string
	Stage            string
	OutcomeStatus    string
	Status           OrganizationStatus
	OnlyMappable     bool
	BBox             *BoundingBox
	Limit            int
	Offset           int
}

// WithoutFacet returns a copy of the filter with the given facet's own
// constraint dropped. Counting a facet's distribution under its own filter
// would collapse every other option to zero, so the facet engine excludes it.
func (f OrganizationFilter) WithoutFacet(facet FacetField) OrganizationFilter {
	switch facet {
	case FacetCountry:
		f.Country = ""
	case FacetSectorPrimary:
		f.SectorPrimary = ""
	case FacetOrganizationType:
		f.OrganizationType = ""
	case FacetStage:
		f.Stage = ""
	case FacetOutcomeStatus:
		f.OutcomeStatus = ""
	}
	return f
}
