package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/catalog-backend/internal/cache"
	"github.com/javajoker/catalog-backend/internal/config"
	"github.com/javajoker/catalog-backend/internal/database"
	"github.com/javajoker/catalog-backend/internal/models"
	"github.com/javajoker/catalog-backend/internal/utils"
	"github.com/javajoker/catalog-backend/internal/vendors"
)

// fakeAdapter serves a fixed feed and records what it was asked for.
type fakeAdapter struct {
	mu       sync.Mutex
	records  []vendors.RawRecord
	err      error
	testErr  error
	calls    int
	requests []vendors.FetchRequest
	tested   []vendors.Credentials
}

func (f *fakeAdapter) Fetch(ctx context.Context, req vendors.FetchRequest) ([]vendors.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeAdapter) TestConnection(ctx context.Context, creds vendors.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tested = append(f.tested, creds)
	return f.testErr
}

func (f *fakeAdapter) setFeed(records ...vendors.RawRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
	f.err = nil
}

// flatMapping reads raw keys named after the canonical fields.
func flatMapping(slug string, quality models.ImageQuality) *vendors.FieldMapping {
	fields := make(map[vendors.Field]vendors.FieldRule)
	for _, f := range []vendors.Field{
		vendors.FieldUPC, vendors.FieldSKU, vendors.FieldName, vendors.FieldDescription,
		vendors.FieldBrand, vendors.FieldModel, vendors.FieldCategory, vendors.FieldSubcategory1,
		vendors.FieldSubcategory2, vendors.FieldSubcategory3, vendors.FieldImageURL, vendors.FieldCost,
	} {
		fields[f] = vendors.FieldRule{Sources: []string{string(f)}}
	}
	return &vendors.FieldMapping{
		VendorSlug:   slug,
		ImageQuality: quality,
		Fields:       fields,
		SkipRules:    []vendors.SkipRule{{Key: "type", Values: []string{"service"}, Reason: "non-catalog item"}},
	}
}

var envSeq atomic.Int64

type testEnv struct {
	db          *gorm.DB
	cache       *cache.MemoryCache
	queue       *RequestQueue
	registry    *vendors.Registry
	priorities  *PriorityService
	catalog     *CatalogService
	credentials *CredentialService
	vendors     *VendorService
	sync        *SyncService
	adapters    map[string]*fakeAdapter
	cfg         config.SyncConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := fmt.Sprintf("%s_%d", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), envSeq.Add(1))
	db, err := database.OpenSQLite(name)
	require.NoError(t, err)
	require.NoError(t, database.SeedVendors(db))
	t.Cleanup(func() { database.Close(db) })

	mem := cache.NewMemoryCache(0)
	t.Cleanup(func() { mem.Close() })

	cfg := config.SyncConfig{
		QueueConcurrency: 2,
		StaleAfter:       2 * time.Hour,
		FetchAttempts:    1,
	}

	env := &testEnv{
		db:       db,
		cache:    mem,
		queue:    NewRequestQueue(cfg.QueueConcurrency, nil),
		registry: vendors.NewRegistry(cfg),
		adapters: make(map[string]*fakeAdapter),
		cfg:      cfg,
	}

	var seeded []models.Vendor
	require.NoError(t, db.Find(&seeded).Error)
	for _, v := range seeded {
		adapter := &fakeAdapter{}
		env.adapters[v.Slug] = adapter
		env.registry.RegisterAdapter(v.Slug, adapter)
		env.registry.RegisterMapping(flatMapping(v.Slug, v.ImageQuality))
	}

	env.priorities = NewPriorityService(db, mem, time.Minute)
	env.catalog = NewCatalogService(db, env.priorities, nil, nil)
	env.credentials = NewCredentialService(db, utils.NewSecretBox("test-credential-key"))
	env.vendors = NewVendorService(db, env.priorities)
	env.sync = NewSyncService(db, env.registry, env.queue, env.catalog, env.priorities, env.credentials, nil, cfg)
	return env
}

func (e *testEnv) run(t *testing.T, slug string, mode models.SyncMode) *models.SyncRun {
	t.Helper()
	run, err := e.sync.RunSyncPass(context.Background(), RunSyncRequest{VendorSlug: slug, Mode: mode})
	require.NoError(t, err)
	return run
}

func (e *testEnv) product(t *testing.T, upc string) *models.Product {
	t.Helper()
	p, err := e.catalog.GetProduct(context.Background(), upc)
	require.NoError(t, err)
	return p
}
