package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/catalog-backend/internal/models"
	"github.com/javajoker/catalog-backend/internal/reconcile"
	"github.com/javajoker/catalog-backend/internal/utils"
	"github.com/javajoker/catalog-backend/internal/vendors"
)

func rawProduct(upc, image string) vendors.RawRecord {
	return vendors.RawRecord{"upc": upc, "name": "Product " + upc, "brand": "Vortex", "image_url": image}
}

type stubMirror struct {
	calls []string
	url   string
	err   error
}

func (m *stubMirror) Enabled() bool { return true }

func (m *stubMirror) MirrorImage(ctx context.Context, upc, sourceURL string) (string, error) {
	m.calls = append(m.calls, sourceURL)
	return m.url, m.err
}

func TestApplyCandidate_NoChangeStillRefreshesMapping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ranks, err := env.priorities.Ranks(ctx, "cascade")
	require.NoError(t, err)
	cand := &reconcile.Candidate{UPC: exampleUPC, VendorSKU: "C-1", Name: "Scope"}

	res, err := env.catalog.ApplyCandidate(ctx, cand, ranks, CandidateScope{RunID: 1})
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeInsert, res.Outcome)

	before := env.product(t, exampleUPC)

	cand.VendorSKU = "C-1b"
	res, err = env.catalog.ApplyCandidate(ctx, cand, ranks, CandidateScope{RunID: 2, TenantID: "store-7"})
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeNoChange, res.Outcome)

	after := env.product(t, exampleUPC)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt, "no product write on NoChange")
	require.Len(t, after.Sources, 2)
	assert.Equal(t, "store-7", after.Sources[1].TenantID)
	assert.Equal(t, "C-1b", after.Sources[1].VendorSKU)
}

func TestApplyCandidate_MirrorsAdoptedImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mirror := &stubMirror{url: "https://cdn.example.com/products/000111222333/ab.jpg"}
	env.catalog.mirror = mirror

	ranks, err := env.priorities.Ranks(ctx, "ridgeline")
	require.NoError(t, err)

	_, err = env.catalog.ApplyCandidate(ctx, &reconcile.Candidate{
		UPC: exampleUPC, ImageURL: "https://vendor.example.com/b.jpg",
	}, ranks, CandidateScope{})
	require.NoError(t, err)

	p := env.product(t, exampleUPC)
	assert.Equal(t, []string{"https://vendor.example.com/b.jpg"}, mirror.calls)
	assert.Equal(t, mirror.url, p.ImageURL)
	assert.Equal(t, "https://vendor.example.com/b.jpg", p.SourceImageURL)

	// Same tier, no adoption, no mirror call.
	_, err = env.catalog.ApplyCandidate(ctx, &reconcile.Candidate{
		UPC: exampleUPC, ImageURL: "https://vendor.example.com/other.jpg",
	}, ranks, CandidateScope{})
	require.NoError(t, err)
	assert.Len(t, mirror.calls, 1)
}

func TestApplyCandidate_MirrorFailureKeepsVendorURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.catalog.mirror = &stubMirror{err: errors.New("bucket unavailable")}

	ranks, err := env.priorities.Ranks(ctx, "cascade")
	require.NoError(t, err)
	res, err := env.catalog.ApplyCandidate(ctx, &reconcile.Candidate{
		UPC: exampleUPC, ImageURL: "https://vendor.example.com/a.jpg",
	}, ranks, CandidateScope{})
	require.NoError(t, err)
	assert.True(t, res.ImageAdopted)

	assert.Equal(t, "https://vendor.example.com/a.jpg", env.product(t, exampleUPC).ImageURL)
}

func TestSearchProducts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.adapters["ridgeline"].setFeed(rawProduct("000111222333", ""), rawProduct("000111222334", ""))
	env.adapters["cascade"].setFeed(vendors.RawRecord{"upc": "000111222335", "name": "Bipod", "brand": "Harris", "category": "Accessories"})
	env.run(t, "ridgeline", models.SyncModeFull)
	env.run(t, "cascade", models.SyncModeFull)

	params := func() ProductSearchParams {
		return ProductSearchParams{PaginationParams: utils.PaginationParams{Page: 1, Limit: 10, Sort: "upc", Order: "asc"}}
	}

	p := params()
	products, total, err := env.catalog.SearchProducts(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, "000111222333", products[0].UPC)

	p = params()
	p.Brand = "vortex"
	_, total, err = env.catalog.SearchProducts(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	p = params()
	p.Vendor = "cascade"
	products, total, err = env.catalog.SearchProducts(ctx, p)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, "Bipod", products[0].Name)

	p = params()
	p.Category = "Accessories"
	p.Search = "bip"
	_, total, err = env.catalog.SearchProducts(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, err = env.catalog.ArchiveProduct(ctx, "000111222335", "ops")
	require.NoError(t, err)
	_, total, err = env.catalog.SearchProducts(ctx, params())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestArchiveProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.adapters["prairie"].setFeed(rawProduct(exampleUPC, ""))
	env.run(t, "prairie", models.SyncModeFull)

	p, err := env.catalog.ArchiveProduct(ctx, exampleUPC, "ops")
	require.NoError(t, err)
	assert.Equal(t, models.ProductStatusArchived, p.Status)

	// A later pass does not bring it back.
	env.run(t, "prairie", models.SyncModeFull)
	assert.Equal(t, models.ProductStatusArchived, env.product(t, exampleUPC).Status)

	_, err = env.catalog.ArchiveProduct(ctx, "999999999999", "ops")
	assert.ErrorIs(t, err, ErrProductNotFound)

	var count int64
	env.db.Model(&models.AuditLog{}).Where("action = ?", "ARCHIVE_PRODUCT").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRecalculatePreferredVendors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.adapters["ridgeline"].setFeed(rawProduct(exampleUPC, ""))
	env.adapters["prairie"].setFeed(rawProduct(exampleUPC, ""), rawProduct("000111222334", ""))
	env.run(t, "prairie", models.SyncModeFull)
	env.run(t, "ridgeline", models.SyncModeFull)
	assert.Equal(t, "ridgeline", env.product(t, exampleUPC).PreferredVendor)

	_, err := env.vendors.Reorder(ctx, []string{"prairie", "cascade", "ridgeline"}, "ops")
	require.NoError(t, err)

	changed, err := env.catalog.RecalculatePreferredVendors(ctx)
	require.NoError(t, err)

	// 000111222334 only has prairie; its stored rank moves from 3 to 1.
	assert.Equal(t, 2, changed)
	p := env.product(t, exampleUPC)
	assert.Equal(t, "prairie", p.PreferredVendor)
	assert.Equal(t, 1, p.PreferredPriority)
	assert.NotNil(t, p.PriorityRecalculatedAt)

	changed, err = env.catalog.RecalculatePreferredVendors(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestGetProduct_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.catalog.GetProduct(context.Background(), exampleUPC)
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = env.catalog.ListProductSources(context.Background(), exampleUPC)
	assert.ErrorIs(t, err, ErrProductNotFound)
}
