// Package taxonomy loads the built-in classification catalogue into the
// database. The catalogue is a starting point; admins extend it at runtime.
package taxonomy

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/lodomap/lodo/internal/models"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed seeds.yaml
var seedsYAML []byte

type seedCatalogue struct {
	Categories []struct {
		Category string `yaml:"category"`
		Values   []struct {
			Value string `yaml:"value"`
			Label string `yaml:"label"`
		} `yaml:"values"`
	} `yaml:"categories"`
}

// SeedStore is the subset of the database store the seeder needs.
type SeedStore interface {
	UpsertTaxonomy(ctx context.Context, t *models.Taxonomy) error
}

// ParseSeeds decodes the embedded catalogue into taxonomy rows.
func ParseSeeds() ([]models.Taxonomy, error) {
	var catalogue seedCatalogue
	if err := yaml.Unmarshal(seedsYAML, &catalogue); err != nil {
		return nil, fmt.Errorf("parse taxonomy seeds: %w", err)
	}

	var items []models.Taxonomy
	for _, cat := range catalogue.Categories {
		if cat.Category == "" {
			return nil, fmt.Errorf("taxonomy seed with empty category")
		}
		for i, v := range cat.Values {
			if v.Value == "" {
				return nil, fmt.Errorf("taxonomy seed %s has an empty value", cat.Category)
			}
			items = append(items, models.Taxonomy{
				Category:  cat.Category,
				Value:     v.Value,
				Label:     v.Label,
				SortOrder: i,
				IsActive:  true,
			})
		}
	}
	return items, nil
}

// Seed upserts the built-in catalogue. Existing rows keep their id; labels
// and ordering follow the catalogue, admin-added rows are left alone.
func Seed(ctx context.Context, store SeedStore, logger zerolog.Logger) error {
	items, err := ParseSeeds()
	if err != nil {
		return err
	}

	for i := range items {
		if err := store.UpsertTaxonomy(ctx, &items[i]); err != nil {
			return fmt.Errorf("seed taxonomy %s/%s: %w", items[i].Category, items[i].Value, err)
		}
	}

	logger.Info().Int("count", len(items)).Msg("taxonomy catalogue seeded")
	return nil
}
