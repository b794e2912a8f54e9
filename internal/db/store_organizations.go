package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lodomap/lodo/internal/directory"
	"github.com/lodomap/lodo/internal/models"
)

const organizationColumns = `id, name, description, organization_type, sector_primary,
	sector_secondary, stage, outcome_status, country, region, city, lat, lng,
	website, linkedin_url, instagram_url, logo_url, contact_email, contact_phone,
	year_founded, tags, technology, impact_area, badge, notes, status, created_at, updated_at`

// facetColumns maps facet fields to their backing columns. Only fields listed
// here may be interpolated into facet SQL.
var facetColumns = map[models.FacetField]string{
	models.FacetCountry:          "country",
	models.FacetSectorPrimary:    "sector_primary",
	models.FacetOrganizationType: "organization_type",
	models.FacetStage:            "stage",
	models.FacetOutcomeStatus:    "outcome_status",
}

// CreateOrganization inserts a new record.
func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO organizations (
			id, name, name_fold, description, organization_type, sector_primary,
			sector_secondary, stage, outcome_status, country, region, city, lat, lng,
			website, linkedin_url, instagram_url, logo_url, contact_email, contact_phone,
			year_founded, tags, technology, impact_area, badge, notes, status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29
		)`,
		org.ID, org.Name, models.Fold(org.Name), org.Description, org.OrganizationType,
		org.SectorPrimary, org.SectorSecondary, org.Stage, org.OutcomeStatus,
		org.Country, org.Region, org.City, org.Lat, org.Lng,
		org.Website, org.LinkedInURL, org.InstagramURL, org.LogoURL,
		org.ContactEmail, org.ContactPhone, org.YearFounded,
		marshalSet(org.Tags), marshalSet(org.Technology), marshalSet(org.ImpactArea),
		marshalSet(org.Badge), org.Notes, org.Status, org.CreatedAt, org.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return directory.NewConflict("organization %q already exists", org.ID)
		}
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

// GetOrganizationByID fetches one record by id.
func (s *Store) GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	row := s.db.Pool.QueryRow(ctx,
		"SELECT "+organizationColumns+" FROM organizations WHERE id = $1", id)

	org, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.NewNotFound("organization %q not found", id)
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return org, nil
}

// UpdateOrganization persists all mutable fields of an existing record.
func (s *Store) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE organizations SET
			name = $2, name_fold = $3, description = $4, organization_type = $5,
			sector_primary = $6, sector_secondary = $7, stage = $8, outcome_status = $9,
			country = $10, region = $11, city = $12, lat = $13, lng = $14,
			website = $15, linkedin_url = $16, instagram_url = $17, logo_url = $18,
			contact_email = $19, contact_phone = $20, year_founded = $21,
			tags = $22, technology = $23, impact_area = $24, badge = $25,
			notes = $26, status = $27, updated_at = $28
		WHERE id = $1`,
		org.ID, org.Name, models.Fold(org.Name), org.Description, org.OrganizationType,
		org.SectorPrimary, org.SectorSecondary, org.Stage, org.OutcomeStatus,
		org.Country, org.Region, org.City, org.Lat, org.Lng,
		org.Website, org.LinkedInURL, org.InstagramURL, org.LogoURL,
		org.ContactEmail, org.ContactPhone, org.YearFounded,
		marshalSet(org.Tags), marshalSet(org.Technology), marshalSet(org.ImpactArea),
		marshalSet(org.Badge), org.Notes, org.Status, org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return directory.NewNotFound("organization %q not found", org.ID)
	}
	return nil
}

// UpdateOrganizationStatus changes only the lifecycle state and bumps
// updated_at, returning the stored timestamp so responses carry the exact
// value the row holds. All other fields survive unchanged.
func (s *Store) UpdateOrganizationStatus(ctx context.Context, id string, status models.OrganizationStatus) (time.Time, error) {
	var updatedAt time.Time
	err := s.db.Pool.QueryRow(ctx,
		"UPDATE organizations SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at",
		id, status,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, directory.NewNotFound("organization %q not found", id)
		}
		return time.Time{}, fmt.Errorf("update organization status: %w", err)
	}
	return updatedAt, nil
}

// DeleteOrganization permanently removes a record.
func (s *Store) DeleteOrganization(ctx context.Context, id string) error {
	tag, err := s.db.Pool.Exec(ctx, "DELETE FROM organizations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return directory.NewNotFound("organization %q not found", id)
	}
	return nil
}

// ListOrganizations returns records matching the filter, most recently
// updated first.
func (s *Store) ListOrganizations(ctx context.Context, filter models.OrganizationFilter) ([]*models.Organization, error) {
	where, args := buildWhere(filter)

	query := "SELECT " + organizationColumns + " FROM organizations" + where +
		" ORDER BY updated_at DESC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	orgs := []*models.Organization{}
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// CountOrganizations returns the number of records matching the filter.
func (s *Store) CountOrganizations(ctx context.Context, filter models.OrganizationFilter) (int, error) {
	where, args := buildWhere(filter)
	var count int
	err := s.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM organizations"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count organizations: %w", err)
	}
	return count, nil
}

// CountOrganizationsByStatus returns record counts grouped by lifecycle state.
func (s *Store) CountOrganizationsByStatus(ctx context.Context) (map[models.OrganizationStatus]int, error) {
	rows, err := s.db.Pool.Query(ctx, "SELECT status, COUNT(*) FROM organizations GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count organizations by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.OrganizationStatus]int)
	for rows.Next() {
		var status models.OrganizationStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// CountFacet computes the value distribution of one facet under the filter.
// Empty and NULL values are omitted; results order by count descending with
// value ascending as the tiebreaker so the ordering is deterministic.
func (s *Store) CountFacet(ctx context.Context, filter models.OrganizationFilter, facet models.FacetField) ([]models.FacetCount, error) {
	column, ok := facetColumns[facet]
	if !ok {
		return nil, fmt.Errorf("unknown facet field %q", facet)
	}

	where, args := buildWhere(filter)
	if where == "" {
		where = " WHERE "
	} else {
		where += " AND "
	}
	where += column + " IS NOT NULL AND " + column + " <> ''"

	query := fmt.Sprintf(
		"SELECT %s, COUNT(*) FROM organizations%s GROUP BY %s ORDER BY COUNT(*) DESC, %s ASC",
		column, where, column, column,
	)

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count facet %s: %w", facet, err)
	}
	defer rows.Close()

	counts := []models.FacetCount{}
	for rows.Next() {
		var fc models.FacetCount
		if err := rows.Scan(&fc.Value, &fc.Count); err != nil {
			return nil, fmt.Errorf("scan facet count: %w", err)
		}
		counts = append(counts, fc)
	}
	return counts, rows.Err()
}

// ListOrganizationsMissingCoordinates returns published records without a
// coordinate pair, oldest update first, for the geocoding backfill. Unpublished
// records are left alone until an editor touches them.
func (s *Store) ListOrganizationsMissingCoordinates(ctx context.Context, limit int) ([]*models.Organization, error) {
	rows, err := s.db.Pool.Query(ctx,
		"SELECT "+organizationColumns+` FROM organizations
		WHERE status = $1 AND lat IS NULL AND lng IS NULL
		ORDER BY updated_at ASC LIMIT $2`, models.StatusPublished, limit)
	if err != nil {
		return nil, fmt.Errorf("list organizations missing coordinates: %w", err)
	}
	defer rows.Close()

	orgs := []*models.Organization{}
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// buildWhere translates a filter into a WHERE clause with positional args.
func buildWhere(filter models.OrganizationFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Country != "" {
		add("country = $%d", filter.Country)
	}
	if filter.SectorPrimary != "" {
		add("sector_primary = $%d", filter.SectorPrimary)
	}
	if filter.OrganizationType != "" {
		add("organization_type = $%d", filter.OrganizationType)
	}
	if filter.Stage != "" {
		add("stage = $%d", filter.Stage)
	}
	if filter.OutcomeStatus != "" {
		add("outcome_status = $%d", filter.OutcomeStatus)
	}
	if filter.Query != "" {
		// Free-text search spans name (accent-folded) and the location and
		// description columns.
		args = append(args, "%"+models.Fold(filter.Query)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(name_fold LIKE $%d OR LOWER(city) LIKE $%d OR LOWER(region) LIKE $%d"+
				" OR LOWER(country) LIKE $%d OR LOWER(COALESCE(description, '')) LIKE $%d)",
			n, n, n, n, n))
	}
	if filter.OnlyMappable {
		conds = append(conds, "lat IS NOT NULL AND lng IS NOT NULL")
	}
	if filter.BBox != nil {
		add("lat >= $%d", filter.BBox.MinLat)
		add("lat <= $%d", filter.BBox.MaxLat)
		add("lng >= $%d", filter.BBox.MinLng)
		add("lng <= $%d", filter.BBox.MaxLng)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (*models.Organization, error) {
	var org models.Organization
	var tags, technology, impactArea, badge []byte

	err := row.Scan(
		&org.ID, &org.Name, &org.Description, &org.OrganizationType, &org.SectorPrimary,
		&org.SectorSecondary, &org.Stage, &org.OutcomeStatus, &org.Country, &org.Region,
		&org.City, &org.Lat, &org.Lng, &org.Website, &org.LinkedInURL, &org.InstagramURL,
		&org.LogoURL, &org.ContactEmail, &org.ContactPhone, &org.YearFounded,
		&tags, &technology, &impactArea, &badge, &org.Notes, &org.Status,
		&org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, set := range []struct {
		raw  []byte
		dest *[]string
	}{
		{tags, &org.Tags},
		{technology, &org.Technology},
		{impactArea, &org.ImpactArea},
		{badge, &org.Badge},
	} {
		if len(set.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(set.raw, set.dest); err != nil {
			return nil, fmt.Errorf("decode set field: %w", err)
		}
	}

	return &org, nil
}

// marshalSet encodes a string set for a JSONB column, mapping nil to an empty
// array rather than SQL NULL.
func marshalSet(values []string) []byte {
	if len(values) == 0 {
		return []byte("[]")
	}
	data, _ := json.Marshal(values)
	return data
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
