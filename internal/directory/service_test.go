package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lodomap/lodo/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store for service tests. The per-id lock is a
// plain mutex map, which is enough to exercise the lock path.
type fakeStore struct {
	mu         sync.Mutex
	orgs       map[string]*models.Organization
	taxonomies []models.Taxonomy
	audits     []*models.AuditEvent

	listTaxonomiesCalls int
	failCountFacet      bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{orgs: make(map[string]*models.Organization)}
}

func (f *fakeStore) CreateOrganization(_ context.Context, org *models.Organization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orgs[org.ID]; ok {
		return NewConflict("organization %q already exists", org.ID)
	}
	clone := *org
	f.orgs[org.ID] = &clone
	return nil
}

func (f *fakeStore) GetOrganizationByID(_ context.Context, id string) (*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[id]
	if !ok {
		return nil, NewNotFound("organization %q not found", id)
	}
	clone := *org
	return &clone, nil
}

func (f *fakeStore) UpdateOrganization(_ context.Context, org *models.Organization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orgs[org.ID]; !ok {
		return NewNotFound("organization %q not found", org.ID)
	}
	clone := *org
	f.orgs[org.ID] = &clone
	return nil
}

func (f *fakeStore) UpdateOrganizationStatus(_ context.Context, id string, status models.OrganizationStatus) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[id]
	if !ok {
		return time.Time{}, NewNotFound("organization %q not found", id)
	}
	org.Status = status
	org.UpdatedAt = time.Now().UTC()
	return org.UpdatedAt, nil
}

func (f *fakeStore) DeleteOrganization(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orgs[id]; !ok {
		return NewNotFound("organization %q not found", id)
	}
	delete(f.orgs, id)
	return nil
}

func (f *fakeStore) ListOrganizations(_ context.Context, filter models.OrganizationFilter) ([]*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Organization
	for _, org := range f.orgs {
		if matches(org, filter) {
			clone := *org
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) CountFacet(_ context.Context, filter models.OrganizationFilter, facet models.FacetField) ([]models.FacetCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCountFacet {
		return nil, NewConflict("facet backend down")
	}
	tally := make(map[string]int)
	for _, org := range f.orgs {
		if !matches(org, filter) {
			continue
		}
		value := facetValue(org, facet)
		if value == "" {
			continue
		}
		tally[value]++
	}
	var counts []models.FacetCount
	for value, count := range tally {
		counts = append(counts, models.FacetCount{Value: value, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Value < counts[j].Value
	})
	return counts, nil
}

func (f *fakeStore) WithOrganizationLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeStore) ListTaxonomies(_ context.Context) ([]models.Taxonomy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listTaxonomiesCalls++
	return f.taxonomies, nil
}

func (f *fakeStore) CreateAuditEvent(_ context.Context, event *models.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, event)
	return nil
}

func matches(org *models.Organization, filter models.OrganizationFilter) bool {
	if filter.Status != "" && org.Status != filter.Status {
		return false
	}
	if filter.Country != "" && org.Country != filter.Country {
		return false
	}
	if filter.SectorPrimary != "" && org.SectorPrimary != filter.SectorPrimary {
		return false
	}
	if filter.OrganizationType != "" && org.OrganizationType != filter.OrganizationType {
		return false
	}
	if filter.Stage != "" && (org.Stage == nil || *org.Stage != filter.Stage) {
		return false
	}
	if filter.OutcomeStatus != "" && (org.OutcomeStatus == nil || *org.OutcomeStatus != filter.OutcomeStatus) {
		return false
	}
	if filter.Query != "" && !queryMatches(org, filter.Query) {
		return false
	}
	if filter.OnlyMappable && !org.Mappable() {
		return false
	}
	return true
}

// queryMatches mirrors the store's free-text predicate: name plus the
// location and description columns, case- and accent-insensitively.
func queryMatches(org *models.Organization, query string) bool {
	needle := models.Fold(query)
	haystacks := []string{org.Name, org.City, org.Region, org.Country}
	if org.Description != nil {
		haystacks = append(haystacks, *org.Description)
	}
	for _, h := range haystacks {
		if strings.Contains(models.Fold(h), needle) {
			return true
		}
	}
	return false
}

func facetValue(org *models.Organization, facet models.FacetField) string {
	switch facet {
	case models.FacetCountry:
		return org.Country
	case models.FacetSectorPrimary:
		return org.SectorPrimary
	case models.FacetOrganizationType:
		return org.OrganizationType
	case models.FacetStage:
		if org.Stage != nil {
			return *org.Stage
		}
	case models.FacetOutcomeStatus:
		if org.OutcomeStatus != nil {
			return *org.OutcomeStatus
		}
	}
	return ""
}

func newTestService(store *fakeStore) *Service {
	return NewService(store, zerolog.Nop())
}

func strPtr(s string) *string { return &s }

func validOrg(id string) *models.Organization {
	return &models.Organization{
		ID:               id,
		Name:             "Org " + id,
		OrganizationType: "ngo",
		SectorPrimary:    "education",
		Country:          "Portugal",
		Region:           "Lisboa",
		City:             "Lisbon",
	}
}

func mustCreate(t *testing.T, svc *Service, org *models.Organization) {
	t.Helper()
	require.NoError(t, svc.Create(context.Background(), org, "tester"))
}

func mustStatus(t *testing.T, store *fakeStore, id string, status models.OrganizationStatus) {
	t.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	store.orgs[id].Status = status
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("forces DRAFT regardless of payload", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)

		org := validOrg("org-1")
		org.Status = models.StatusPublished
		mustCreate(t, svc, org)

		got, err := svc.Get(ctx, "org-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusDraft, got.Status)
	})

	t.Run("rejects missing required field", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		org := validOrg("org-2")
		org.Country = "   "
		err := svc.Create(ctx, org, "tester")
		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("rejects half a coordinate pair", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		org := validOrg("org-3")
		lat := 38.7
		org.Lat = &lat
		err := svc.Create(ctx, org, "tester")
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("duplicate id is a conflict", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		mustCreate(t, svc, validOrg("org-4"))
		err := svc.Create(ctx, validOrg("org-4"), "tester")
		assert.Equal(t, KindConflict, KindOf(err))
	})

	t.Run("records a CREATE audit event", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)
		mustCreate(t, svc, validOrg("org-5"))
		require.Len(t, store.audits, 1)
		assert.Equal(t, models.AuditActionCreate, store.audits[0].Action)
		assert.Equal(t, "org-5", store.audits[0].EntityID)
	})
}

func TestTaxonomyValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("known category rejects unknown value", func(t *testing.T) {
		store := newFakeStore()
		store.taxonomies = []models.Taxonomy{{Category: "stage", Value: "seed"}}
		svc := newTestService(store)

		org := validOrg("org-1")
		org.Stage = strPtr("hypergrowth")
		err := svc.Create(ctx, org, "tester")
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("empty category accepts any value", func(t *testing.T) {
		store := newFakeStore()
		store.taxonomies = []models.Taxonomy{{Category: "stage", Value: "seed"}}
		svc := newTestService(store)

		org := validOrg("org-2")
		org.OrganizationType = "anything-goes"
		assert.NoError(t, svc.Create(ctx, org, "tester"))
	})

	t.Run("tags are never validated", func(t *testing.T) {
		store := newFakeStore()
		store.taxonomies = []models.Taxonomy{{Category: "tags", Value: "only-this"}}
		svc := newTestService(store)

		org := validOrg("org-3")
		org.Tags = []string{"free", "form"}
		assert.NoError(t, svc.Create(ctx, org, "tester"))
	})

	t.Run("lookup table is cached", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)
		mustCreate(t, svc, validOrg("a"))
		mustCreate(t, svc, validOrg("b"))
		assert.Equal(t, 1, store.listTaxonomiesCalls)

		svc.InvalidateTaxonomyCache()
		mustCreate(t, svc, validOrg("c"))
		assert.Equal(t, 2, store.listTaxonomiesCalls)
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("merges fields and preserves status", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)
		mustCreate(t, svc, validOrg("org-1"))
		mustStatus(t, store, "org-1", models.StatusPublished)

		updated, err := svc.Update(ctx, "org-1", func(org *models.Organization) error {
			org.Name = "Renamed"
			org.Status = models.StatusArchived
			return nil
		}, "tester")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Name)
		assert.Equal(t, models.StatusPublished, updated.Status)
	})

	t.Run("validation failure leaves the record untouched", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)
		mustCreate(t, svc, validOrg("org-2"))

		_, err := svc.Update(ctx, "org-2", func(org *models.Organization) error {
			org.Name = ""
			return nil
		}, "tester")
		assert.Equal(t, KindValidation, KindOf(err))

		got, err := svc.Get(ctx, "org-2")
		require.NoError(t, err)
		assert.Equal(t, "Org org-2", got.Name)
	})

	t.Run("missing id is not found", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		_, err := svc.Update(ctx, "nope", func(org *models.Organization) error { return nil }, "tester")
		assert.Equal(t, KindNotFound, KindOf(err))
	})
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, status models.OrganizationStatus, mutate func(*models.Organization)) (*Service, *fakeStore) {
		store := newFakeStore()
		svc := newTestService(store)
		org := validOrg("org-1")
		if mutate != nil {
			mutate(org)
		}
		mustCreate(t, svc, org)
		if status != models.StatusDraft {
			mustStatus(t, store, "org-1", status)
		}
		return svc, store
	}

	t.Run("submit from draft", func(t *testing.T) {
		svc, _ := setup(t, models.StatusDraft, nil)
		org, err := svc.SubmitForReview(ctx, "org-1", "tester")
		require.NoError(t, err)
		assert.Equal(t, models.StatusInReview, org.Status)
	})

	t.Run("submit is rejected while already in review", func(t *testing.T) {
		svc, _ := setup(t, models.StatusInReview, nil)
		_, err := svc.SubmitForReview(ctx, "org-1", "tester")
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("submit from published re-reviews", func(t *testing.T) {
		svc, _ := setup(t, models.StatusPublished, nil)
		org, err := svc.SubmitForReview(ctx, "org-1", "tester")
		require.NoError(t, err)
		assert.Equal(t, models.StatusInReview, org.Status)
	})

	t.Run("publish requires in review", func(t *testing.T) {
		svc, _ := setup(t, models.StatusDraft, nil)
		_, err := svc.Publish(ctx, "org-1", "tester")
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("publish requires a long enough description", func(t *testing.T) {
		svc, store := setup(t, models.StatusInReview, func(org *models.Organization) {
			org.Description = strPtr("too short")
		})
		_, err := svc.Publish(ctx, "org-1", "tester")
		assert.Equal(t, KindValidation, KindOf(err))

		// Failed publish must not move the record.
		got, err2 := svc.Get(ctx, "org-1")
		require.NoError(t, err2)
		assert.Equal(t, models.StatusInReview, got.Status)
		_ = store
	})

	t.Run("publish succeeds with checklist satisfied", func(t *testing.T) {
		svc, store := setup(t, models.StatusInReview, func(org *models.Organization) {
			org.Description = strPtr("a sufficiently descriptive paragraph")
		})
		org, err := svc.Publish(ctx, "org-1", "tester")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPublished, org.Status)

		var actions []models.AuditAction
		for _, e := range store.audits {
			actions = append(actions, e.Action)
		}
		assert.Contains(t, actions, models.AuditActionPublish)
	})

	t.Run("archive requires published", func(t *testing.T) {
		svc, _ := setup(t, models.StatusDraft, nil)
		_, err := svc.Archive(ctx, "org-1", "tester")
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("archive from published", func(t *testing.T) {
		svc, _ := setup(t, models.StatusPublished, nil)
		org, err := svc.Archive(ctx, "org-1", "tester")
		require.NoError(t, err)
		assert.Equal(t, models.StatusArchived, org.Status)
	})

	t.Run("transition reports the stored timestamp", func(t *testing.T) {
		svc, store := setup(t, models.StatusDraft, nil)
		org, err := svc.SubmitForReview(ctx, "org-1", "tester")
		require.NoError(t, err)

		store.mu.Lock()
		stored := store.orgs["org-1"].UpdatedAt
		store.mu.Unlock()
		assert.Equal(t, stored, org.UpdatedAt)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("draft deletes outright", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)
		mustCreate(t, svc, validOrg("org-1"))

		require.NoError(t, svc.Delete(ctx, "org-1", false, "tester"))
		_, err := svc.Get(ctx, "org-1")
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("published without force archives instead", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)
		mustCreate(t, svc, validOrg("org-2"))
		mustStatus(t, store, "org-2", models.StatusPublished)

		err := svc.Delete(ctx, "org-2", false, "tester")
		require.Error(t, err)
		assert.Equal(t, KindPublishedBlocked, KindOf(err))

		got, err := svc.Get(ctx, "org-2")
		require.NoError(t, err)
		assert.Equal(t, models.StatusArchived, got.Status)
	})

	t.Run("published with force deletes", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)
		mustCreate(t, svc, validOrg("org-3"))
		mustStatus(t, store, "org-3", models.StatusPublished)

		require.NoError(t, svc.Delete(ctx, "org-3", true, "tester"))
		_, err := svc.Get(ctx, "org-3")
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("archived deletes without force", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)
		mustCreate(t, svc, validOrg("org-4"))
		mustStatus(t, store, "org-4", models.StatusArchived)

		require.NoError(t, svc.Delete(ctx, "org-4", false, "tester"))
	})
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) (*Service, *fakeStore) {
		store := newFakeStore()
		svc := newTestService(store)
		rows := []struct {
			id, country, sector string
		}{
			{"a", "Portugal", "education"},
			{"b", "Portugal", "energy"},
			{"c", "Spain", "energy"},
		}
		for _, r := range rows {
			org := validOrg(r.id)
			org.Country = r.country
			org.SectorPrimary = r.sector
			mustCreate(t, svc, org)
			mustStatus(t, store, r.id, models.StatusPublished)
		}
		return svc, store
	}

	t.Run("unfiltered counts every value", func(t *testing.T) {
		svc, _ := seed(t)
		agg, err := svc.Aggregate(ctx, models.OrganizationFilter{Status: models.StatusPublished})
		require.NoError(t, err)
		assert.Equal(t, []models.FacetCount{{Value: "Portugal", Count: 2}, {Value: "Spain", Count: 1}}, agg.Countries)
		assert.Equal(t, []models.FacetCount{{Value: "energy", Count: 2}, {Value: "education", Count: 1}}, agg.SectorsPrimary)
	})

	t.Run("facet excludes its own filter", func(t *testing.T) {
		svc, _ := seed(t)
		agg, err := svc.Aggregate(ctx, models.OrganizationFilter{
			Status:  models.StatusPublished,
			Country: "Portugal",
		})
		require.NoError(t, err)
		// Countries keeps both options despite the country filter.
		assert.Len(t, agg.Countries, 2)
		// Sector counts only see the Portugal subset.
		assert.Equal(t, []models.FacetCount{{Value: "education", Count: 1}, {Value: "energy", Count: 1}}, agg.SectorsPrimary)
	})

	t.Run("empty result uses empty lists", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		agg, err := svc.Aggregate(ctx, models.OrganizationFilter{Status: models.StatusPublished})
		require.NoError(t, err)
		assert.NotNil(t, agg.Countries)
		assert.Empty(t, agg.Countries)
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		store := newFakeStore()
		store.failCountFacet = true
		svc := newTestService(store)
		_, err := svc.Aggregate(ctx, models.OrganizationFilter{})
		assert.Error(t, err)
	})
}

func TestListQuery(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	lisbon := validOrg("org-1")
	porto := validOrg("org-2")
	porto.City = "Porto"
	porto.Region = "Norte"
	braga := validOrg("org-3")
	braga.City = "Braga"
	braga.Region = "Norte"
	braga.Description = strPtr("Community solar cooperative")
	for _, org := range []*models.Organization{lisbon, porto, braga} {
		mustCreate(t, svc, org)
	}

	ids := func(orgs []*models.Organization) []string {
		var out []string
		for _, org := range orgs {
			out = append(out, org.ID)
		}
		return out
	}

	t.Run("matches city terms", func(t *testing.T) {
		orgs, err := svc.List(ctx, models.OrganizationFilter{Query: "porto"})
		require.NoError(t, err)
		assert.Equal(t, []string{"org-2"}, ids(orgs))
	})

	t.Run("matches country terms", func(t *testing.T) {
		orgs, err := svc.List(ctx, models.OrganizationFilter{Query: "portugal"})
		require.NoError(t, err)
		assert.Equal(t, []string{"org-1", "org-2", "org-3"}, ids(orgs))
	})

	t.Run("matches description terms", func(t *testing.T) {
		orgs, err := svc.List(ctx, models.OrganizationFilter{Query: "solar"})
		require.NoError(t, err)
		assert.Equal(t, []string{"org-3"}, ids(orgs))
	})

	t.Run("still matches names", func(t *testing.T) {
		orgs, err := svc.List(ctx, models.OrganizationFilter{Query: "Org org-1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"org-1"}, ids(orgs))
	})
}

func TestGetPublished(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	mustCreate(t, svc, validOrg("org-1"))

	t.Run("hides non-published records", func(t *testing.T) {
		_, err := svc.GetPublished(ctx, "org-1")
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("returns published records", func(t *testing.T) {
		mustStatus(t, store, "org-1", models.StatusPublished)
		org, err := svc.GetPublished(ctx, "org-1")
		require.NoError(t, err)
		assert.Equal(t, "org-1", org.ID)
	})
}
