// Package metrics exposes Prometheus metrics for the directory.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/lodomap/lodo/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// Store defines the queries backing the exported metrics.
type Store interface {
	CountOrganizationsByStatus(ctx context.Context) (map[models.OrganizationStatus]int, error)
	CountOrganizations(ctx context.Context, filter models.OrganizationFilter) (int, error)
}

// collectTimeout bounds each scrape's database work.
const collectTimeout = 5 * time.Second

// Collector exports directory gauges. Counts are cached briefly so frequent
// scrapes do not hammer the database.
type Collector struct {
	store  Store
	logger zerolog.Logger

	orgsByStatusDesc *prometheus.Desc
	mappableDesc     *prometheus.Desc

	mu            sync.Mutex
	lastCollected time.Time
	cacheExpiry   time.Duration
	cachedCounts  map[models.OrganizationStatus]int
	cachedMapped  int
}

// NewCollector creates a Collector.
func NewCollector(store Store, logger zerolog.Logger) *Collector {
	return &Collector{
		store:       store,
		logger:      logger.With().Str("component", "metrics").Logger(),
		cacheExpiry: 15 * time.Second,
		orgsByStatusDesc: prometheus.NewDesc(
			"lodo_organizations_total",
			"Number of organization records by lifecycle status.",
			[]string{"status"}, nil,
		),
		mappableDesc: prometheus.NewDesc(
			"lodo_organizations_mappable_total",
			"Number of published organizations with coordinates.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.orgsByStatusDesc
	ch <- c.mappableDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counts, mappable := c.counts()

	for _, status := range []models.OrganizationStatus{
		models.StatusDraft, models.StatusInReview, models.StatusPublished, models.StatusArchived,
	} {
		ch <- prometheus.MustNewConstMetric(
			c.orgsByStatusDesc, prometheus.GaugeValue,
			float64(counts[status]), string(status),
		)
	}
	ch <- prometheus.MustNewConstMetric(c.mappableDesc, prometheus.GaugeValue, float64(mappable))
}

func (c *Collector) counts() (map[models.OrganizationStatus]int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cachedCounts != nil && time.Since(c.lastCollected) < c.cacheExpiry {
		return c.cachedCounts, c.cachedMapped
	}

	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	counts, err := c.store.CountOrganizationsByStatus(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to collect status counts")
		return c.cachedCounts, c.cachedMapped
	}

	mappable, err := c.store.CountOrganizations(ctx, models.OrganizationFilter{
		Status:       models.StatusPublished,
		OnlyMappable: true,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to collect mappable count")
		mappable = c.cachedMapped
	}

	c.cachedCounts = counts
	c.cachedMapped = mappable
	c.lastCollected = time.Now()
	return counts, mappable
}

// NewRegistry creates a registry with runtime collectors and the directory
// collector registered.
func NewRegistry(collector *Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collector,
	)
	return registry
}
