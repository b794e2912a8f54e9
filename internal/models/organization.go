// Package models defines the domain models for LODO.
package models

import (
	"fmt"
	"strings"
	"time"
)

// OrganizationStatus represents the publish lifecycle state of a record.
type OrganizationStatus string

const (
	// StatusDraft is the initial state of every created record.
	StatusDraft OrganizationStatus = "DRAFT"
	// StatusInReview marks a record submitted for editorial review.
	StatusInReview OrganizationStatus = "IN_REVIEW"
	// StatusPublished marks a record visible on the public map.
	StatusPublished OrganizationStatus = "PUBLISHED"
	// StatusArchived marks a record withdrawn from the public map.
	StatusArchived OrganizationStatus = "ARCHIVED"
)

// ValidStatus reports whether s is one of the four lifecycle states.
func ValidStatus(s OrganizationStatus) bool {
	switch s {
	case StatusDraft, StatusInReview, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// MinPublishDescriptionLen is the minimum description length required to
// transition a record into PUBLISHED.
const MinPublishDescriptionLen = 20

// Organization is the single directory entity: one mapped organization.
type Organization struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Description      *string            `json:"description,omitempty"`
	OrganizationType string             `json:"organizationType"`
	SectorPrimary    string             `json:"sectorPrimary"`
	SectorSecondary  *string            `json:"sectorSecondary,omitempty"`
	Stage            *string            `json:"stage,omitempty"`
	OutcomeStatus    *string            `json:"outcomeStatus,omitempty"`
	Country          string             `json:"country"`
	Region           string             `json:"region"`
	City             string             `json:"city"`
	Lat              *float64           `json:"lat,omitempty"`
	Lng              *float64           `json:"lng,omitempty"`
	Website          *string            `json:"website,omitempty"`
	LinkedInURL      *string            `json:"linkedinUrl,omitempty"`
	InstagramURL     *string            `json:"instagramUrl,omitempty"`
	LogoURL          *string            `json:"logoUrl,omitempty"`
	ContactEmail     *string            `json:"contactEmail,omitempty"`
	ContactPhone     *string            `json:"contactPhone,omitempty"`
	YearFounded      *int               `json:"yearFounded,omitempty"`
	Tags             []string           `json:"tags,omitempty"`
	Technology       []string           `json:"technology,omitempty"`
	ImpactArea       []string           `json:"impactArea,omitempty"`
	Badge            []string           `json:"badge,omitempty"`
	Notes            *string            `json:"notes,omitempty"`
	Status           OrganizationStatus `json:"status"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// Mappable reports whether the record carries a complete coordinate pair.
func (o *Organization) Mappable() bool {
	return o.Lat != nil && o.Lng != nil
}

// PublicView returns a copy with admin-only fields stripped.
func (o *Organization) PublicView() *Organization {
	pub := *o
	pub.Notes = nil
	return &pub
}

// requiredFields maps field names to accessors, in validation order.
var requiredFields = []struct {
	name string
	get  func(*Organization) string
}{
	{"id", func(o *Organization) string { return o.ID }},
	{"name", func(o *Organization) string { return o.Name }},
	{"organizationType", func(o *Organization) string { return o.OrganizationType }},
	{"sectorPrimary", func(o *Organization) string { return o.SectorPrimary }},
	{"country", func(o *Organization) string { return o.Country }},
	{"region", func(o *Organization) string { return o.Region }},
	{"city", func(o *Organization) string { return o.City }},
}

// Normalize trims all string fields, collapses empty optionals to nil and
// validates the field-level invariants that hold in every lifecycle state.
func (o *Organization) Normalize() error {
	o.ID = strings.TrimSpace(o.ID)
	o.Name = strings.TrimSpace(o.Name)
	o.OrganizationType = strings.TrimSpace(o.OrganizationType)
	o.SectorPrimary = strings.TrimSpace(o.SectorPrimary)
	o.Country = strings.TrimSpace(o.Country)
	o.Region = strings.TrimSpace(o.Region)
	o.City = strings.TrimSpace(o.City)

	o.Description = normalizeOptional(o.Description)
	o.SectorSecondary = normalizeOptional(o.SectorSecondary)
	o.Stage = normalizeOptional(o.Stage)
	o.OutcomeStatus = normalizeOptional(o.OutcomeStatus)
	o.Website = normalizeOptional(o.Website)
	o.LinkedInURL = normalizeOptional(o.LinkedInURL)
	o.InstagramURL = normalizeOptional(o.InstagramURL)
	o.LogoURL = normalizeOptional(o.LogoURL)
	o.ContactEmail = normalizeOptional(o.ContactEmail)
	o.ContactPhone = normalizeOptional(o.ContactPhone)
	o.Notes = normalizeOptional(o.Notes)

	o.Tags = normalizeSet(o.Tags)
	o.Technology = normalizeSet(o.Technology)
	o.ImpactArea = normalizeSet(o.ImpactArea)
	o.Badge = normalizeSet(o.Badge)

	for _, f := range requiredFields {
		if f.get(o) == "" {
			return fmt.Errorf("%s is required", f.name)
		}
	}

	if (o.Lat == nil) != (o.Lng == nil) {
		return fmt.Errorf("lat and lng must both be set or both be empty")
	}

	if o.YearFounded != nil {
		year := *o.YearFounded
		maxYear := time.Now().Year()
		if year < 1800 || year > maxYear {
			return fmt.Errorf("yearFounded must be between 1800 and %d", maxYear)
		}
	}

	return nil
}

// ValidateForPublish checks the preconditions for the IN_REVIEW -> PUBLISHED
// transition. Field-level invariants are assumed to already hold.
func (o *Organization) ValidateForPublish() error {
	for _, f := range requiredFields {
		if f.get(o) == "" {
			return fmt.Errorf("%s is required to publish", f.name)
		}
	}
	if o.Description == nil || len(*o.Description) < MinPublishDescriptionLen {
		return fmt.Errorf("description must be at least %d characters to publish", MinPublishDescriptionLen)
	}
	return nil
}

func normalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// normalizeSet trims entries and drops empties and duplicates while keeping
// insertion order for display.
func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
