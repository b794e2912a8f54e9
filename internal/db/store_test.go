//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/lodomap/lodo/internal/directory"
	"github.com/lodomap/lodo/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *DB

func TestMain(m *testing.M) {
	if !dockerAvailable() {
		fmt.Println("Docker is not available, skipping integration tests")
		os.Exit(0)
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("lodo_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to get connection string: %v", err)
	}

	logger := zerolog.New(zerolog.NewConsoleWriter())
	cfg := DefaultConfig(connStr)
	cfg.MaxConns = 5
	cfg.MinConns = 1

	testDB, err = New(ctx, cfg, logger)
	if err != nil {
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := testDB.Migrate(ctx); err != nil {
		testDB.Close()
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to run migrations: %v", err)
	}

	code := m.Run()

	testDB.Close()
	pgContainer.Terminate(ctx)

	os.Exit(code)
}

// dockerAvailable returns true if a Docker daemon is reachable.
func dockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupTestStore returns a store over the shared test database after
// cleaning all tables.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	_, err := testDB.Pool.Exec(ctx, `
		DO $$ DECLARE r RECORD;
		BEGIN
			FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename != 'schema_migrations') LOOP
				EXECUTE 'TRUNCATE TABLE ' || quote_ident(r.tablename) || ' CASCADE';
			END LOOP;
		END $$;
	`)
	require.NoError(t, err)
	return NewStore(testDB, zerolog.Nop())
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

// testOrg builds a valid organization with defaults overridable per field.
func testOrg(id string, mutate func(*models.Organization)) *models.Organization {
	now := time.Now().UTC().Truncate(time.Microsecond)
	org := &models.Organization{
		ID:               id,
		Name:             "Org " + id,
		OrganizationType: "ngo",
		SectorPrimary:    "education",
		Country:          "Portugal",
		Region:           "Lisboa",
		City:             "Lisbon",
		Status:           models.StatusDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if mutate != nil {
		mutate(org)
	}
	return org
}

func createTestOrg(t *testing.T, store *Store, id string, mutate func(*models.Organization)) *models.Organization {
	t.Helper()
	org := testOrg(id, mutate)
	require.NoError(t, store.CreateOrganization(context.Background(), org))
	return org
}

func TestOrganizationCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("create and get round-trips all fields", func(t *testing.T) {
		org := testOrg("org-rt", func(o *models.Organization) {
			o.Description = strPtr("A longer description for round-tripping")
			o.Stage = strPtr("scaling")
			o.OutcomeStatus = strPtr("active")
			o.Lat = floatPtr(38.72)
			o.Lng = floatPtr(-9.14)
			o.Tags = []string{"solar", "community"}
			o.Technology = []string{"golang"}
			o.Notes = strPtr("internal note")
			o.YearFounded = intPtr(2015)
		})
		require.NoError(t, store.CreateOrganization(ctx, org))

		got, err := store.GetOrganizationByID(ctx, "org-rt")
		require.NoError(t, err)
		assert.Equal(t, org.Name, got.Name)
		assert.Equal(t, org.Description, got.Description)
		assert.Equal(t, org.Stage, got.Stage)
		assert.Equal(t, org.OutcomeStatus, got.OutcomeStatus)
		assert.Equal(t, org.Tags, got.Tags)
		assert.Equal(t, org.Technology, got.Technology)
		assert.Nil(t, got.ImpactArea)
		assert.Equal(t, org.Notes, got.Notes)
		assert.Equal(t, org.YearFounded, got.YearFounded)
		assert.Equal(t, models.StatusDraft, got.Status)
		require.NotNil(t, got.Lat)
		assert.InDelta(t, 38.72, *got.Lat, 1e-9)
	})

	t.Run("duplicate id is a conflict", func(t *testing.T) {
		createTestOrg(t, store, "org-dup", nil)
		err := store.CreateOrganization(ctx, testOrg("org-dup", nil))
		require.Error(t, err)
		assert.Equal(t, directory.KindConflict, directory.KindOf(err))
	})

	t.Run("get missing id is not found", func(t *testing.T) {
		_, err := store.GetOrganizationByID(ctx, "nope")
		require.Error(t, err)
		assert.Equal(t, directory.KindNotFound, directory.KindOf(err))
	})

	t.Run("update persists changed fields", func(t *testing.T) {
		org := createTestOrg(t, store, "org-upd", nil)
		org.Name = "Renamed"
		org.City = "Porto"
		org.UpdatedAt = time.Now().UTC()
		require.NoError(t, store.UpdateOrganization(ctx, org))

		got, err := store.GetOrganizationByID(ctx, "org-upd")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, "Porto", got.City)
	})

	t.Run("status update bumps updated_at only", func(t *testing.T) {
		org := createTestOrg(t, store, "org-st", func(o *models.Organization) {
			o.Description = strPtr("keeps every other field intact")
		})
		updatedAt, err := store.UpdateOrganizationStatus(ctx, "org-st", models.StatusInReview)
		require.NoError(t, err)

		got, err := store.GetOrganizationByID(ctx, "org-st")
		require.NoError(t, err)
		assert.Equal(t, models.StatusInReview, got.Status)
		assert.Equal(t, org.Description, got.Description)
		assert.True(t, got.UpdatedAt.After(org.UpdatedAt) || got.UpdatedAt.Equal(org.UpdatedAt))
		// The returned timestamp is the stored one, not a Go-side clock read.
		assert.True(t, updatedAt.Equal(got.UpdatedAt))
	})

	t.Run("status update of missing id is not found", func(t *testing.T) {
		_, err := store.UpdateOrganizationStatus(ctx, "nope", models.StatusInReview)
		assert.Equal(t, directory.KindNotFound, directory.KindOf(err))
	})

	t.Run("delete removes the record", func(t *testing.T) {
		createTestOrg(t, store, "org-del", nil)
		require.NoError(t, store.DeleteOrganization(ctx, "org-del"))
		_, err := store.GetOrganizationByID(ctx, "org-del")
		assert.Equal(t, directory.KindNotFound, directory.KindOf(err))
	})

	t.Run("delete missing id is not found", func(t *testing.T) {
		err := store.DeleteOrganization(ctx, "nope")
		assert.Equal(t, directory.KindNotFound, directory.KindOf(err))
	})
}

func intPtr(i int) *int { return &i }

func TestListOrganizations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestOrg(t, store, "pt-pub", func(o *models.Organization) {
		o.Country = "Portugal"
		o.Description = strPtr("Community solar network")
		o.Status = models.StatusPublished
		o.Lat = floatPtr(38.7)
		o.Lng = floatPtr(-9.1)
	})
	createTestOrg(t, store, "pt-draft", func(o *models.Organization) {
		o.Country = "Portugal"
	})
	createTestOrg(t, store, "es-pub", func(o *models.Organization) {
		o.Name = "Iberia Cámara"
		o.Country = "Spain"
		o.SectorPrimary = "energy"
		o.Status = models.StatusPublished
	})

	t.Run("status filter", func(t *testing.T) {
		orgs, err := store.ListOrganizations(ctx, models.OrganizationFilter{Status: models.StatusPublished})
		require.NoError(t, err)
		assert.Len(t, orgs, 2)
	})

	t.Run("filters combine with AND", func(t *testing.T) {
		orgs, err := store.ListOrganizations(ctx, models.OrganizationFilter{
			Status:  models.StatusPublished,
			Country: "Portugal",
		})
		require.NoError(t, err)
		require.Len(t, orgs, 1)
		assert.Equal(t, "pt-pub", orgs[0].ID)
	})

	t.Run("query matches case and accent insensitively", func(t *testing.T) {
		orgs, err := store.ListOrganizations(ctx, models.OrganizationFilter{Query: "camara"})
		require.NoError(t, err)
		require.Len(t, orgs, 1)
		assert.Equal(t, "es-pub", orgs[0].ID)
	})

	t.Run("query matches city terms", func(t *testing.T) {
		orgs, err := store.ListOrganizations(ctx, models.OrganizationFilter{Query: "lisbon"})
		require.NoError(t, err)
		assert.Len(t, orgs, 2)
	})

	t.Run("query matches country terms", func(t *testing.T) {
		orgs, err := store.ListOrganizations(ctx, models.OrganizationFilter{Query: "spain"})
		require.NoError(t, err)
		require.Len(t, orgs, 1)
		assert.Equal(t, "es-pub", orgs[0].ID)
	})

	t.Run("query matches description terms", func(t *testing.T) {
		orgs, err := store.ListOrganizations(ctx, models.OrganizationFilter{Query: "solar"})
		require.NoError(t, err)
		require.Len(t, orgs, 1)
		assert.Equal(t, "pt-pub", orgs[0].ID)
	})

	t.Run("onlyMappable excludes records without coordinates", func(t *testing.T) {
		orgs, err := store.ListOrganizations(ctx, models.OrganizationFilter{OnlyMappable: true})
		require.NoError(t, err)
		require.Len(t, orgs, 1)
		assert.Equal(t, "pt-pub", orgs[0].ID)
	})

	t.Run("bbox constrains coordinates", func(t *testing.T) {
		bbox, err := models.ParseBoundingBox("38,-10,39,-9")
		require.NoError(t, err)
		orgs, err := store.ListOrganizations(ctx, models.OrganizationFilter{BBox: bbox})
		require.NoError(t, err)
		require.Len(t, orgs, 1)

		far, err := models.ParseBoundingBox("40,-10,41,-9")
		require.NoError(t, err)
		orgs, err = store.ListOrganizations(ctx, models.OrganizationFilter{BBox: far})
		require.NoError(t, err)
		assert.Empty(t, orgs)
	})

	t.Run("limit and offset page the result", func(t *testing.T) {
		page1, err := store.ListOrganizations(ctx, models.OrganizationFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page1, 2)

		page2, err := store.ListOrganizations(ctx, models.OrganizationFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, page2, 1)
	})
}

func TestListOrganizationsMissingCoordinates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestOrg(t, store, "pub-missing", func(o *models.Organization) {
		o.Status = models.StatusPublished
	})
	createTestOrg(t, store, "pub-located", func(o *models.Organization) {
		o.Status = models.StatusPublished
		o.Lat = floatPtr(38.7)
		o.Lng = floatPtr(-9.1)
	})
	createTestOrg(t, store, "draft-missing", nil)
	createTestOrg(t, store, "archived-missing", func(o *models.Organization) {
		o.Status = models.StatusArchived
	})

	// Only published records without coordinates are backfill candidates.
	orgs, err := store.ListOrganizationsMissingCoordinates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "pub-missing", orgs[0].ID)
}

func TestCountFacet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i, country := range []string{"Portugal", "Portugal", "Spain"} {
		createTestOrg(t, store, fmt.Sprintf("org-%d", i), func(o *models.Organization) {
			o.Country = country
			o.Status = models.StatusPublished
			if country == "Spain" {
				o.Stage = strPtr("seed")
			}
		})
	}

	t.Run("orders by count desc then value asc", func(t *testing.T) {
		counts, err := store.CountFacet(ctx, models.OrganizationFilter{Status: models.StatusPublished}, models.FacetCountry)
		require.NoError(t, err)
		require.Len(t, counts, 2)
		assert.Equal(t, models.FacetCount{Value: "Portugal", Count: 2}, counts[0])
		assert.Equal(t, models.FacetCount{Value: "Spain", Count: 1}, counts[1])
	})

	t.Run("omits null values", func(t *testing.T) {
		counts, err := store.CountFacet(ctx, models.OrganizationFilter{}, models.FacetStage)
		require.NoError(t, err)
		require.Len(t, counts, 1)
		assert.Equal(t, "seed", counts[0].Value)
	})

	t.Run("respects remaining filters", func(t *testing.T) {
		counts, err := store.CountFacet(ctx, models.OrganizationFilter{Country: "Spain"}, models.FacetStage)
		require.NoError(t, err)
		require.Len(t, counts, 1)
		assert.Equal(t, 1, counts[0].Count)
	})

	t.Run("rejects unknown facet", func(t *testing.T) {
		_, err := store.CountFacet(ctx, models.OrganizationFilter{}, models.FacetField("bogus"))
		assert.Error(t, err)
	})
}

func TestTaxonomyStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("create, list and deactivate", func(t *testing.T) {
		tax := &models.Taxonomy{Category: "stage", Value: "seed", Label: "Seed", SortOrder: 1}
		require.NoError(t, store.CreateTaxonomy(ctx, tax))
		assert.NotZero(t, tax.ID)

		err := store.CreateTaxonomy(ctx, &models.Taxonomy{Category: "stage", Value: "seed"})
		assert.Equal(t, directory.KindConflict, directory.KindOf(err))

		items, err := store.ListTaxonomies(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Seed", items[0].Label)

		require.NoError(t, store.DeactivateTaxonomy(ctx, "stage", "seed"))
		items, err = store.ListTaxonomies(ctx)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("upsert reactivates", func(t *testing.T) {
		require.NoError(t, store.UpsertTaxonomy(ctx, &models.Taxonomy{Category: "stage", Value: "seed", Label: "Seed stage"}))
		items, err := store.ListTaxonomies(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Seed stage", items[0].Label)
	})
}

func TestUserStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := models.NewUser("admin@example.org", "hash", "Admin", models.UserRoleAdmin)
	require.NoError(t, store.CreateUser(ctx, user))

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		dup := models.NewUser("admin@example.org", "hash2", "Other", models.UserRoleUser)
		err := store.CreateUser(ctx, dup)
		assert.Equal(t, directory.KindConflict, directory.KindOf(err))
	})

	t.Run("lookup by email and id", func(t *testing.T) {
		byEmail, err := store.GetUserByEmail(ctx, "admin@example.org")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)

		byID, err := store.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "admin@example.org", byID.Email)
	})

	t.Run("missing user is not found", func(t *testing.T) {
		_, err := store.GetUserByEmail(ctx, "nobody@example.org")
		assert.Equal(t, directory.KindNotFound, directory.KindOf(err))
	})
}

func TestAuditEventStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, action := range []models.AuditAction{models.AuditActionCreate, models.AuditActionReview, models.AuditActionPublish} {
		event := models.NewOrganizationAudit("org-1", action, "", "", "tester")
		require.NoError(t, store.CreateAuditEvent(ctx, event))
		assert.NotZero(t, event.ID)
	}

	events, err := store.ListAuditEvents(ctx, "organization", "org-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.AuditActionPublish, events[0].Action)
}
