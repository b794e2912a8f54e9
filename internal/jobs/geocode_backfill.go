// Package jobs runs scheduled background work for the directory.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/lodomap/lodo/internal/geocoding"
	"github.com/lodomap/lodo/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// backfillBatchSize caps how many records one run attempts to geocode.
const backfillBatchSize = 25

// BackfillStore lists records still missing coordinates.
type BackfillStore interface {
	ListOrganizationsMissingCoordinates(ctx context.Context, limit int) ([]*models.Organization, error)
}

// CoordinateWriter persists resolved coordinates.
type CoordinateWriter interface {
	SetCoordinates(ctx context.Context, id string, lat, lng float64, actor string) (*models.Organization, error)
}

// Geocoder resolves an address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, city, region, country string) (lat, lng float64, err error)
}

// GeocodeBackfill periodically resolves coordinates for published records
// that still lack them.
type GeocodeBackfill struct {
	store    BackfillStore
	writer   CoordinateWriter
	geocoder Geocoder
	cron     *cron.Cron
	logger   zerolog.Logger
}

// NewGeocodeBackfill creates the backfill job.
func NewGeocodeBackfill(store BackfillStore, writer CoordinateWriter, geocoder Geocoder, logger zerolog.Logger) *GeocodeBackfill {
	return &GeocodeBackfill{
		store:    store,
		writer:   writer,
		geocoder: geocoder,
		logger:   logger.With().Str("component", "geocode_backfill").Logger(),
	}
}

// Start schedules the job with the given cron spec (e.g. "@every 1h").
func (j *GeocodeBackfill) Start(spec string) error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(spec, j.run); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info().Str("schedule", spec).Msg("geocode backfill scheduled")
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (j *GeocodeBackfill) Stop() {
	if j.cron != nil {
		ctx := j.cron.Stop()
		<-ctx.Done()
	}
}

func (j *GeocodeBackfill) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	resolved, failed, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("geocode backfill pass failed")
		return
	}
	if resolved > 0 || failed > 0 {
		j.logger.Info().Int("resolved", resolved).Int("failed", failed).Msg("geocode backfill pass finished")
	}
}

// RunOnce performs one backfill pass and reports how many records were
// resolved. Per-record failures are counted, not fatal.
func (j *GeocodeBackfill) RunOnce(ctx context.Context) (resolved, failed int, err error) {
	orgs, err := j.store.ListOrganizationsMissingCoordinates(ctx, backfillBatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, org := range orgs {
		if ctx.Err() != nil {
			return resolved, failed, ctx.Err()
		}

		lat, lng, err := j.geocoder.Geocode(ctx, org.City, org.Region, org.Country)
		if err != nil {
			if errors.Is(err, geocoding.ErrNoResult) {
				j.logger.Debug().Str("org_id", org.ID).Msg("no geocoding result")
			} else {
				j.logger.Warn().Err(err).Str("org_id", org.ID).Msg("geocoding failed")
			}
			failed++
			continue
		}

		if _, err := j.writer.SetCoordinates(ctx, org.ID, lat, lng, "geocode-backfill"); err != nil {
			j.logger.Warn().Err(err).Str("org_id", org.ID).Msg("failed to store coordinates")
			failed++
			continue
		}
		resolved++
	}

	return resolved, failed, nil
}
