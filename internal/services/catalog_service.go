package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/catalog-backend/internal/database"
	"github.com/javajoker/catalog-backend/internal/metrics"
	"github.com/javajoker/catalog-backend/internal/models"
	"github.com/javajoker/catalog-backend/internal/reconcile"
	"github.com/javajoker/catalog-backend/internal/utils"
)

const recalculateBatchSize = 500

// ImageMirror copies an adopted vendor image to storage the catalog owns.
type ImageMirror interface {
	Enabled() bool
	MirrorImage(ctx context.Context, upc, sourceURL string) (string, error)
}

// CatalogService is the only writer of canonical products.
type CatalogService struct {
	db         *gorm.DB
	priorities *PriorityService
	mirror     ImageMirror
	metrics    *metrics.Collector
	now        func() time.Time
}

// CandidateScope ties an applied candidate to the pass that produced it.
type CandidateScope struct {
	TenantID string
	RunID    uint
}

type ProductSearchParams struct {
	utils.PaginationParams
	Brand    string                `json:"brand,omitempty"`
	Category string                `json:"category,omitempty"`
	Vendor   string                `json:"vendor,omitempty"`
	Status   *models.ProductStatus `json:"status,omitempty"`
}

func NewCatalogService(db *gorm.DB, priorities *PriorityService, mirror ImageMirror, m *metrics.Collector) *CatalogService {
	return &CatalogService{
		db:         db,
		priorities: priorities,
		mirror:     mirror,
		metrics:    m,
		now:        time.Now,
	}
}

// ApplyCandidate merges one candidate in its own transaction and refreshes
// the vendor-product mapping whatever the outcome. NoChange writes no
// product columns.
func (s *CatalogService) ApplyCandidate(ctx context.Context, cand *reconcile.Candidate, ranks *RankTable, scope CandidateScope) (*reconcile.Result, error) {
	now := s.now().UTC()

	var result *reconcile.Result
	var err error
	// A concurrent first sighting of the same UPC by another vendor loses
	// the insert race; the retry sees the row and merges into it.
	for attempt := 0; attempt < 2; attempt++ {
		result, err = s.applyOnce(ctx, cand, ranks, scope, now)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	if result.ImageAdopted && s.mirror != nil && s.mirror.Enabled() {
		s.mirrorImage(ctx, cand.UPC, cand.ImageURL)
	}

	return result, nil
}

func (s *CatalogService) applyOnce(ctx context.Context, cand *reconcile.Candidate, ranks *RankTable, scope CandidateScope, now time.Time) (*reconcile.Result, error) {
	var result *reconcile.Result

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findProductForUpdate(tx, cand.UPC)
		if err != nil {
			return err
		}

		category := cand.Category.Category
		if existing != nil && existing.Category != "" {
			category = existing.Category
		}

		result, err = reconcile.Merge(existing, cand, ranks.Source(category), now)
		if err != nil {
			return err
		}

		switch result.Outcome {
		case reconcile.OutcomeInsert:
			if err := tx.Create(result.Product).Error; err != nil {
				return fmt.Errorf("failed to insert product: %w", err)
			}
		case reconcile.OutcomeUpdate:
			if err := tx.Model(&models.Product{}).Where("upc = ?", cand.UPC).
				Updates(result.Changes).Error; err != nil {
				return fmt.Errorf("failed to update product: %w", err)
			}
		}

		return upsertVendorProduct(tx, cand, ranks.VendorSlug, scope, now)
	})

	return result, err
}

func findProductForUpdate(tx *gorm.DB, upc string) (*models.Product, error) {
	query := tx
	if database.IsPostgres(tx) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var product models.Product
	err := query.Where("upc = ?", upc).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return &product, nil
}

// upsertVendorProduct keeps the vendor's last pricing snapshot when this
// candidate carries none.
func upsertVendorProduct(tx *gorm.DB, cand *reconcile.Candidate, vendorSlug string, scope CandidateScope, now time.Time) error {
	link := models.VendorProduct{
		UPC:        cand.UPC,
		VendorSlug: vendorSlug,
		TenantID:   scope.TenantID,
		VendorSKU:  cand.VendorSKU,
		LastSeenAt: now,
		LastRunID:  scope.RunID,
	}
	columns := []string{"vendor_sku", "last_seen_at", "last_run_id", "updated_at"}

	if !cand.Pricing.IsEmpty() {
		link.Cost = cand.Pricing.Cost
		link.MAPPrice = cand.Pricing.MAPPrice
		link.MSRP = cand.Pricing.MSRP
		link.Quantity = cand.Pricing.Quantity
		link.PricingUpdatedAt = cand.Pricing.UpdatedAt
		if link.PricingUpdatedAt == nil {
			link.PricingUpdatedAt = &now
		}
		columns = append(columns, "cost", "map_price", "msrp", "quantity", "pricing_updated_at")
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "upc"}, {Name: "vendor_slug"}, {Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&link).Error
	if err != nil {
		return fmt.Errorf("failed to upsert vendor product: %w", err)
	}
	return nil
}

func (s *CatalogService) mirrorImage(ctx context.Context, upc, sourceURL string) {
	mirrored, err := s.mirror.MirrorImage(ctx, upc, sourceURL)
	if err != nil {
		s.metrics.ImageMirrorFailed()
		logrus.WithFields(logrus.Fields{
			"upc":   upc,
			"image": sourceURL,
			"error": err.Error(),
		}).Warn("Image mirror failed, keeping vendor URL")
		return
	}
	if mirrored == sourceURL {
		return
	}

	// Only replace the URL if no later merge has adopted a different image.
	err = s.db.WithContext(ctx).Model(&models.Product{}).
		Where("upc = ? AND source_image_url = ?", upc, sourceURL).
		Update("image_url", mirrored).Error
	if err != nil {
		logrus.WithError(err).WithField("upc", upc).Error("Failed to store mirrored image URL")
	}
}

func (s *CatalogService) GetProduct(ctx context.Context, upc string) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).Preload("Sources", func(db *gorm.DB) *gorm.DB {
		return db.Order("vendor_slug, tenant_id")
	}).Where("upc = ?", upc).Take(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &product, nil
}

func (s *CatalogService) SearchProducts(ctx context.Context, params ProductSearchParams) ([]models.Product, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Product{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	} else {
		// Default to active products only
		query = query.Where("status = ?", models.ProductStatusActive)
	}

	if params.Brand != "" {
		query = query.Where("LOWER(brand) = ?", strings.ToLower(params.Brand))
	}

	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}

	if params.Vendor != "" {
		query = query.Where("upc IN (?)",
			s.db.Model(&models.VendorProduct{}).Select("upc").Where("vendor_slug = ?", params.Vendor))
	}

	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(brand) LIKE ? OR LOWER(model) LIKE ? OR upc = ?",
			searchTerm, searchTerm, searchTerm, params.Search)
	}

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	allowedSortFields := []string{"updated_at", "created_at", "upc", "name", "brand"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)

	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch products: %w", err)
	}

	return products, total, nil
}

func (s *CatalogService) ListProductSources(ctx context.Context, upc string) ([]models.VendorProduct, error) {
	if _, err := s.GetProduct(ctx, upc); err != nil {
		return nil, err
	}

	var sources []models.VendorProduct
	if err := s.db.WithContext(ctx).Where("upc = ?", upc).
		Order("vendor_slug, tenant_id").Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch product sources: %w", err)
	}
	return sources, nil
}

// ArchiveProduct hides a product from the default read surface. Products are
// never deleted; a later sync does not reactivate an archived product.
func (s *CatalogService) ArchiveProduct(ctx context.Context, upc, actor string) (*models.Product, error) {
	var product models.Product
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.Where("upc = ?", upc).Take(&product).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}
		if product.Status == models.ProductStatusArchived {
			return nil
		}

		old := product.Status
		if err := tx.Model(&product).Update("status", models.ProductStatusArchived).Error; err != nil {
			return fmt.Errorf("failed to archive product: %w", err)
		}
		product.Status = models.ProductStatusArchived

		return recordAudit(tx, actor, "ARCHIVE_PRODUCT", "product", upc,
			models.JSONB{"status": old}, models.JSONB{"status": product.Status})
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// RecalculatePreferredVendors re-derives every product's preferred vendor
// from its current vendor mappings and ranks. Disabled and unranked vendors
// are never preferred. It returns the number of products changed.
func (s *CatalogService) RecalculatePreferredVendors(ctx context.Context) (int, error) {
	now := s.now().UTC()
	changed := 0
	lastUPC := ""

	for {
		var batch []models.Product
		if err := s.db.WithContext(ctx).
			Select("upc", "category", "preferred_vendor", "preferred_priority").
			Where("upc > ?", lastUPC).Order("upc").Limit(recalculateBatchSize).
			Find(&batch).Error; err != nil {
			return changed, fmt.Errorf("failed to load products: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		upcs := make([]string, len(batch))
		for i := range batch {
			upcs[i] = batch[i].UPC
		}

		var links []models.VendorProduct
		if err := s.db.WithContext(ctx).Select("upc", "vendor_slug").
			Where("upc IN ?", upcs).Find(&links).Error; err != nil {
			return changed, fmt.Errorf("failed to load vendor products: %w", err)
		}
		vendorsByUPC := make(map[string][]string)
		for _, link := range links {
			vendorsByUPC[link.UPC] = append(vendorsByUPC[link.UPC], link.VendorSlug)
		}

		for i := range batch {
			p := &batch[i]
			best, bestPriority := s.preferredFor(ctx, p.Category, vendorsByUPC[p.UPC])
			if best == p.PreferredVendor && bestPriority == p.PreferredPriority {
				continue
			}

			err := s.db.WithContext(ctx).Model(&models.Product{}).Where("upc = ?", p.UPC).
				Updates(map[string]interface{}{
					reconcile.ColPreferredVendor:        best,
					reconcile.ColPreferredPriority:      bestPriority,
					reconcile.ColPriorityRecalculatedAt: now,
				}).Error
			if err != nil {
				return changed, fmt.Errorf("failed to update preferred vendor for %s: %w", p.UPC, err)
			}
			changed++
		}

		lastUPC = batch[len(batch)-1].UPC
	}

	logrus.WithField("changed", changed).Info("Preferred vendors recalculated")
	return changed, nil
}

func (s *CatalogService) preferredFor(ctx context.Context, category string, slugs []string) (string, int) {
	sort.Strings(slugs)
	best, bestPriority := "", 0
	for i, slug := range slugs {
		if i > 0 && slugs[i-1] == slug {
			continue
		}
		table, err := s.priorities.Ranks(ctx, slug)
		if err != nil || !table.Enabled {
			continue
		}
		p, ranked := table.Priority(category)
		if !ranked {
			continue
		}
		if best == "" || p < bestPriority {
			best, bestPriority = slug, p
		}
	}
	return best, bestPriority
}
