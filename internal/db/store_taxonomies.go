package db

import (
	"context"
	"fmt"

	"github.com/lodomap/lodo/internal/directory"
	"github.com/lodomap/lodo/internal/models"
)

// ListTaxonomies returns all active taxonomy rows ordered for display.
func (s *Store) ListTaxonomies(ctx context.Context) ([]models.Taxonomy, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, category, value, label, sort_order, is_active
		FROM taxonomies
		WHERE is_active = TRUE
		ORDER BY category ASC, sort_order ASC, value ASC`)
	if err != nil {
		return nil, fmt.Errorf("list taxonomies: %w", err)
	}
	defer rows.Close()

	items := []models.Taxonomy{}
	for rows.Next() {
		var t models.Taxonomy
		if err := rows.Scan(&t.ID, &t.Category, &t.Value, &t.Label, &t.SortOrder, &t.IsActive); err != nil {
			return nil, fmt.Errorf("scan taxonomy: %w", err)
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// CreateTaxonomy inserts a new taxonomy value.
func (s *Store) CreateTaxonomy(ctx context.Context, t *models.Taxonomy) error {
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO taxonomies (category, value, label, sort_order, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id`,
		t.Category, t.Value, t.Label, t.SortOrder,
	).Scan(&t.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return directory.NewConflict("taxonomy %s/%s already exists", t.Category, t.Value)
		}
		return fmt.Errorf("insert taxonomy: %w", err)
	}
	t.IsActive = true
	return nil
}

// DeactivateTaxonomy soft-deletes a taxonomy value. Existing records keep the
// value; it only stops being offered and validated for new writes.
func (s *Store) DeactivateTaxonomy(ctx context.Context, category, value string) error {
	tag, err := s.db.Pool.Exec(ctx,
		"UPDATE taxonomies SET is_active = FALSE WHERE category = $1 AND value = $2",
		category, value,
	)
	if err != nil {
		return fmt.Errorf("deactivate taxonomy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return directory.NewNotFound("taxonomy %s/%s not found", category, value)
	}
	return nil
}

// UpsertTaxonomy inserts a taxonomy value or reactivates and relabels an
// existing one. Used by the seed loader.
func (s *Store) UpsertTaxonomy(ctx context.Context, t *models.Taxonomy) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO taxonomies (category, value, label, sort_order, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (category, value) DO UPDATE
		SET label = EXCLUDED.label, sort_order = EXCLUDED.sort_order, is_active = TRUE`,
		t.Category, t.Value, t.Label, t.SortOrder,
	)
	if err != nil {
		return fmt.Errorf("upsert taxonomy: %w", err)
	}
	return nil
}
