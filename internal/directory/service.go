package directory

import (
	"context"
	"sync"
	"time"

	"github.com/lodomap/lodo/internal/models"
	"github.com/rs/zerolog"
)

// Store defines the persistence operations the directory service needs.
type Store interface {
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error)
	UpdateOrganization(ctx context.Context, org *models.Organization) error
	// UpdateOrganizationStatus changes only the lifecycle state and returns
	// the stored updated_at timestamp.
	UpdateOrganizationStatus(ctx context.Context, id string, status models.OrganizationStatus) (time.Time, error)
	DeleteOrganization(ctx context.Context, id string) error
	ListOrganizations(ctx context.Context, filter models.OrganizationFilter) ([]*models.Organization, error)
	CountFacet(ctx context.Context, filter models.OrganizationFilter, facet models.FacetField) ([]models.FacetCount, error)
	// WithOrganizationLock runs fn while holding an exclusive per-id lock so
	// that read-modify-write cycles on the same record never interleave.
	WithOrganizationLock(ctx context.Context, id string, fn func(ctx context.Context) error) error
	ListTaxonomies(ctx context.Context) ([]models.Taxonomy, error)
	CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error
}

// Broadcaster fans audit events out to connected admin consoles.
type Broadcaster interface {
	BroadcastAudit(event *models.AuditEvent)
}

// taxonomyCacheTTL bounds how stale the validation lookup table may be.
const taxonomyCacheTTL = 60 * time.Second

// Service owns the organization lifecycle and query semantics. All status
// transitions are validated here, server-side, regardless of what any client
// offered as an affordance.
type Service struct {
	store  Store
	logger zerolog.Logger
	feed   Broadcaster

	taxMu        sync.RWMutex
	taxCache     map[string]map[string]bool
	taxCacheTime time.Time
}

// NewService creates a directory Service.
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "directory").Logger(),
	}
}

// SetBroadcaster attaches an optional activity feed.
func (s *Service) SetBroadcaster(feed Broadcaster) {
	s.feed = feed
}

// Create registers a new organization. Records always enter the lifecycle as
// DRAFT; a client-supplied status is ignored.
func (s *Service) Create(ctx context.Context, org *models.Organization, actor string) error {
	org.Status = models.StatusDraft
	now := time.Now().UTC()
	org.CreatedAt = now
	org.UpdatedAt = now

	if err := org.Normalize(); err != nil {
		return NewValidation("%s", err.Error())
	}
	if err := s.validateTaxonomies(ctx, org); err != nil {
		return err
	}

	if err := s.store.CreateOrganization(ctx, org); err != nil {
		return err
	}

	s.audit(ctx, models.NewOrganizationAudit(org.ID, models.AuditActionCreate, "", models.StatusDraft, actor))
	s.logger.Info().Str("org_id", org.ID).Msg("organization created")
	return nil
}

// Get returns a record in any lifecycle state.
func (s *Service) Get(ctx context.Context, id string) (*models.Organization, error) {
	return s.store.GetOrganizationByID(ctx, id)
}

// GetPublished returns a record only if it is publicly visible.
func (s *Service) GetPublished(ctx context.Context, id string) (*models.Organization, error) {
	org, err := s.store.GetOrganizationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org.Status != models.StatusPublished {
		return nil, NewNotFound("organization %q not found", id)
	}
	return org, nil
}

// Update merges the caller-provided fields into the existing record and
// re-validates. Status is never writable through Update; lifecycle calls own
// it. The merge runs under the record's write lock so concurrent updates to
// the same id cannot interleave partial merges.
func (s *Service) Update(ctx context.Context, id string, merge func(org *models.Organization) error, actor string) (*models.Organization, error) {
	var updated *models.Organization
	err := s.store.WithOrganizationLock(ctx, id, func(ctx context.Context) error {
		existing, err := s.store.GetOrganizationByID(ctx, id)
		if err != nil {
			return err
		}

		org := *existing
		if err := merge(&org); err != nil {
			return NewValidation("%s", err.Error())
		}

		// Immutable and lifecycle-owned fields survive any merge payload.
		org.ID = existing.ID
		org.Status = existing.Status
		org.CreatedAt = existing.CreatedAt
		org.UpdatedAt = time.Now().UTC()

		if err := org.Normalize(); err != nil {
			return NewValidation("%s", err.Error())
		}
		if err := s.validateTaxonomies(ctx, &org); err != nil {
			return err
		}

		if err := s.store.UpdateOrganization(ctx, &org); err != nil {
			return err
		}
		updated = &org
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, models.NewOrganizationAudit(id, models.AuditActionUpdate, updated.Status, updated.Status, actor))
	return updated, nil
}

// SubmitForReview moves a record to IN_REVIEW. Legal from every state except
// IN_REVIEW itself; re-review of PUBLISHED or ARCHIVED records changes only
// status and updatedAt.
func (s *Service) SubmitForReview(ctx context.Context, id, actor string) (*models.Organization, error) {
	return s.transition(ctx, id, models.AuditActionReview, models.StatusInReview, func(org *models.Organization) error {
		if org.Status == models.StatusInReview {
			return NewValidation("organization %q is already in review", id)
		}
		return nil
	}, actor)
}

// Publish moves a record from IN_REVIEW to PUBLISHED after the publish
// checklist passes. On failure the status is left untouched.
func (s *Service) Publish(ctx context.Context, id, actor string) (*models.Organization, error) {
	return s.transition(ctx, id, models.AuditActionPublish, models.StatusPublished, func(org *models.Organization) error {
		if org.Status != models.StatusInReview {
			return NewValidation("organization must be IN_REVIEW to publish (current: %s)", org.Status)
		}
		if err := org.ValidateForPublish(); err != nil {
			return NewValidation("%s", err.Error())
		}
		return nil
	}, actor)
}

// Archive withdraws a PUBLISHED record from public view.
func (s *Service) Archive(ctx context.Context, id, actor string) (*models.Organization, error) {
	return s.transition(ctx, id, models.AuditActionArchive, models.StatusArchived, func(org *models.Organization) error {
		if org.Status != models.StatusPublished {
			return NewValidation("only published organizations can be archived (current: %s)", org.Status)
		}
		return nil
	}, actor)
}

// Delete removes a record, except that a PUBLISHED record without force is
// never destroyed: it is demoted to ARCHIVED and the caller receives a
// published_blocked error so a second, explicit force call is required to
// truly erase it.
func (s *Service) Delete(ctx context.Context, id string, force bool, actor string) error {
	return s.store.WithOrganizationLock(ctx, id, func(ctx context.Context) error {
		org, err := s.store.GetOrganizationByID(ctx, id)
		if err != nil {
			return err
		}

		if org.Status == models.StatusPublished && !force {
			if _, err := s.store.UpdateOrganizationStatus(ctx, id, models.StatusArchived); err != nil {
				return err
			}
			s.audit(ctx, models.NewOrganizationAudit(id, models.AuditActionArchive, models.StatusPublished, models.StatusArchived, actor))
			return NewPublishedBlocked(id)
		}

		if err := s.store.DeleteOrganization(ctx, id); err != nil {
			return err
		}
		s.audit(ctx, models.NewOrganizationAudit(id, models.AuditActionDelete, org.Status, "", actor))
		s.logger.Info().Str("org_id", id).Bool("force", force).Msg("organization deleted")
		return nil
	})
}

// List returns records matching the filter, newest update first.
func (s *Service) List(ctx context.Context, filter models.OrganizationFilter) ([]*models.Organization, error) {
	return s.store.ListOrganizations(ctx, filter)
}

// Aggregate computes the five facet distributions for the filter set. Each
// facet is counted over the result set of all other filters (self-exclusion)
// so that selecting a value never hides its sibling options. The five
// sub-queries are independent read-only passes and run in parallel.
func (s *Service) Aggregate(ctx context.Context, filter models.OrganizationFilter) (*models.AggregateSet, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(map[models.FacetField][]models.FacetCount, len(models.FacetFields))
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	for _, facet := range models.FacetFields {
		wg.Add(1)
		go func(facet models.FacetField) {
			defer wg.Done()
			counts, err := s.store.CountFacet(ctx, filter.WithoutFacet(facet), facet)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			results[facet] = counts
		}(facet)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	return &models.AggregateSet{
		Countries:         emptyNotNil(results[models.FacetCountry]),
		SectorsPrimary:    emptyNotNil(results[models.FacetSectorPrimary]),
		OrganizationTypes: emptyNotNil(results[models.FacetOrganizationType]),
		Stages:            emptyNotNil(results[models.FacetStage]),
		OutcomeStatuses:   emptyNotNil(results[models.FacetOutcomeStatus]),
	}, nil
}

// SetCoordinates stores a coordinate pair on the record.
func (s *Service) SetCoordinates(ctx context.Context, id string, lat, lng float64, actor string) (*models.Organization, error) {
	return s.Update(ctx, id, func(org *models.Organization) error {
		org.Lat = &lat
		org.Lng = &lng
		return nil
	}, actor)
}

// SetLogoURL records the uploaded logo location.
func (s *Service) SetLogoURL(ctx context.Context, id, url, actor string) (*models.Organization, error) {
	return s.Update(ctx, id, func(org *models.Organization) error {
		org.LogoURL = &url
		return nil
	}, actor)
}

// transition applies a validated status change under the record's write
// lock. check inspects the current record and returns a classified error to
// refuse the transition.
func (s *Service) transition(ctx context.Context, id string, action models.AuditAction, to models.OrganizationStatus, check func(org *models.Organization) error, actor string) (*models.Organization, error) {
	var result *models.Organization
	err := s.store.WithOrganizationLock(ctx, id, func(ctx context.Context) error {
		org, err := s.store.GetOrganizationByID(ctx, id)
		if err != nil {
			return err
		}
		if err := check(org); err != nil {
			return err
		}

		from := org.Status
		updatedAt, err := s.store.UpdateOrganizationStatus(ctx, id, to)
		if err != nil {
			return err
		}

		org.Status = to
		org.UpdatedAt = updatedAt
		result = org

		s.audit(ctx, models.NewOrganizationAudit(id, action, from, to, actor))
		s.logger.Info().
			Str("org_id", id).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("lifecycle transition")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// audit persists and broadcasts an event. Audit failures are logged, never
// propagated: the mutation they describe has already happened.
func (s *Service) audit(ctx context.Context, event *models.AuditEvent) {
	if err := s.store.CreateAuditEvent(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("entity_id", event.EntityID).Msg("failed to write audit event")
	}
	if s.feed != nil {
		s.feed.BroadcastAudit(event)
	}
}

// validateTaxonomies checks classification fields against the runtime
// taxonomy table. Categories with no entries accept any value, which keeps
// the lists open; tags are always free-form.
func (s *Service) validateTaxonomies(ctx context.Context, org *models.Organization) error {
	grouped, err := s.taxonomyLookup(ctx)
	if err != nil {
		return err
	}

	singles := []struct {
		category string
		value    string
	}{
		{"organizationType", org.OrganizationType},
		{"sectorPrimary", org.SectorPrimary},
		{"sectorSecondary", deref(org.SectorSecondary)},
		{"stage", deref(org.Stage)},
		{"outcomeStatus", deref(org.OutcomeStatus)},
	}
	for _, f := range singles {
		if f.value == "" {
			continue
		}
		valid := grouped[f.category]
		if valid == nil {
			continue
		}
		if !valid[f.value] {
			return NewValidation("invalid %s: %q", f.category, f.value)
		}
	}

	multis := []struct {
		category string
		values   []string
	}{
		{"technology", org.Technology},
		{"impactArea", org.ImpactArea},
		{"badge", org.Badge},
	}
	for _, f := range multis {
		valid := grouped[f.category]
		if valid == nil {
			continue
		}
		for _, v := range f.values {
			if !valid[v] {
				return NewValidation("invalid %s: %q", f.category, v)
			}
		}
	}

	return nil
}

// taxonomyLookup returns the category -> value set table, refreshed at most
// once per taxonomyCacheTTL.
func (s *Service) taxonomyLookup(ctx context.Context) (map[string]map[string]bool, error) {
	s.taxMu.RLock()
	if s.taxCache != nil && time.Since(s.taxCacheTime) < taxonomyCacheTTL {
		cached := s.taxCache
		s.taxMu.RUnlock()
		return cached, nil
	}
	s.taxMu.RUnlock()

	items, err := s.store.ListTaxonomies(ctx)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string]map[string]bool)
	for _, t := range items {
		if grouped[t.Category] == nil {
			grouped[t.Category] = make(map[string]bool)
		}
		grouped[t.Category][t.Value] = true
	}

	s.taxMu.Lock()
	s.taxCache = grouped
	s.taxCacheTime = time.Now()
	s.taxMu.Unlock()

	return grouped, nil
}

// InvalidateTaxonomyCache forces the next validation to reload the table.
// Called after admin taxonomy writes.
func (s *Service) InvalidateTaxonomyCache() {
	s.taxMu.Lock()
	s.taxCache = nil
	s.taxMu.Unlock()
}

func emptyNotNil(counts []models.FacetCount) []models.FacetCount {
	if counts == nil {
		return []models.FacetCount{}
	}
	return counts
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
