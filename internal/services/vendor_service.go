package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/javajoker/catalog-backend/internal/database"
	"github.com/javajoker/catalog-backend/internal/models"
	"github.com/javajoker/catalog-backend/internal/utils"
)

// VendorService administers vendor identity, ranks and image tiers. Every
// change is audited and drops the vendor's cached ranks.
type VendorService struct {
	db         *gorm.DB
	priorities *PriorityService
}

type CatalogStats struct {
	TotalProducts     int64            `json:"total_products"`
	ArchivedProducts  int64            `json:"archived_products"`
	HighImageProducts int64            `json:"high_image_products"`
	NoImageProducts   int64            `json:"no_image_products"`
	EnabledVendors    int64            `json:"enabled_vendors"`
	ActiveSyncRuns    int64            `json:"active_sync_runs"`
	FailedRunsToday   int64            `json:"failed_runs_today"`
	ProductsByVendor  map[string]int64 `json:"products_by_vendor"`
}

type CreateVendorRequest struct {
	Slug         string              `json:"slug" validate:"required,slug"`
	DisplayName  string              `json:"display_name" validate:"required,max=100"`
	Priority     int                 `json:"priority" validate:"min=0"`
	ImageQuality models.ImageQuality `json:"image_quality" validate:"required,oneof=high low"`
	FeedType     models.FeedType     `json:"feed_type" validate:"required,oneof=rest soap ftp_csv"`
	Endpoint     string              `json:"endpoint" validate:"required,max=255"`
	FeedPath     string              `json:"feed_path" validate:"max=255"`
}

type AuditLogFilter struct {
	utils.PaginationParams
	Actor        string `json:"actor,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
}

func NewVendorService(db *gorm.DB, priorities *PriorityService) *VendorService {
	return &VendorService{db: db, priorities: priorities}
}

func (s *VendorService) GetCatalogStats(ctx context.Context) (*CatalogStats, error) {
	stats := &CatalogStats{ProductsByVendor: make(map[string]int64)}
	db := s.db.WithContext(ctx)
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	counts := []struct {
		name  string
		query *gorm.DB
		dest  *int64
	}{
		{"active products", db.Model(&models.Product{}).Where("status = ?", models.ProductStatusActive), &stats.TotalProducts},
		{"archived products", db.Model(&models.Product{}).Where("status = ?", models.ProductStatusArchived), &stats.ArchivedProducts},
		{"high image products", db.Model(&models.Product{}).Where("image_quality = ?", models.ImageQualityHigh), &stats.HighImageProducts},
		{"imageless products", db.Model(&models.Product{}).Where("image_url = '' OR image_url IS NULL"), &stats.NoImageProducts},
		{"enabled vendors", db.Model(&models.Vendor{}).Where("enabled = ?", true), &stats.EnabledVendors},
		{"active sync runs", db.Model(&models.SyncRun{}).Where("status = ?", models.SyncStatusInProgress), &stats.ActiveSyncRuns},
		{"failed sync runs", db.Model(&models.SyncRun{}).
			Where("status = ? AND started_at >= ?", models.SyncStatusError, dayStart), &stats.FailedRunsToday},
	}
	for _, q := range counts {
		if err := q.query.Count(q.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", q.name, err)
		}
	}

	var rows []struct {
		VendorSlug string
		Total      int64
	}
	if err := db.Model(&models.VendorProduct{}).
		Select("vendor_slug, COUNT(DISTINCT upc) AS total").
		Group("vendor_slug").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count vendor products: %w", err)
	}
	for _, row := range rows {
		stats.ProductsByVendor[row.VendorSlug] = row.Total
	}

	return stats, nil
}

func (s *VendorService) ListVendors(ctx context.Context) ([]models.Vendor, error) {
	var vendors []models.Vendor
	if err := s.db.WithContext(ctx).Preload("CategoryPriorities", func(db *gorm.DB) *gorm.DB {
		return db.Order("category")
	}).Order("priority").Find(&vendors).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch vendors: %w", err)
	}
	return vendors, nil
}

func (s *VendorService) GetVendor(ctx context.Context, slug string) (*models.Vendor, error) {
	return findVendor(s.db.WithContext(ctx).Preload("CategoryPriorities"), slug)
}

// CreateVendor registers a vendor at rank Priority, shifting the vendors
// from that rank down by one. A zero priority appends it after the current
// lowest-precedence vendor.
func (s *VendorService) CreateVendor(ctx context.Context, req *CreateVendorRequest, actor string) (*models.Vendor, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	vendor := &models.Vendor{
		Slug:         req.Slug,
		DisplayName:  req.DisplayName,
		ImageQuality: req.ImageQuality,
		Enabled:      true,
		FeedType:     req.FeedType,
		Endpoint:     req.Endpoint,
		FeedPath:     req.FeedPath,
	}

	var order []string
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if _, err := findVendor(tx, req.Slug); err == nil {
			return ErrVendorExists
		} else if !errors.Is(err, ErrVendorNotFound) {
			return err
		}

		ranks, err := currentRanks(tx)
		if err != nil {
			return err
		}
		pos := req.Priority
		if pos == 0 {
			pos = len(ranks) + 1
		}
		if pos > len(ranks)+1 {
			return ErrInvalidPriority
		}

		// Parked until applyRanks places it.
		vendor.Priority = -(len(ranks) + 1)
		if err := tx.Create(vendor).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicatePriority
			}
			return fmt.Errorf("failed to create vendor: %w", err)
		}

		held := rankMap(ranks)
		held[vendor.Slug] = vendor.Priority
		order = moveInOrder(slugsOf(ranks), vendor.Slug, pos)
		if err := applyRanks(tx, held, order); err != nil {
			return err
		}
		vendor.Priority = pos

		return recordAudit(tx, actor, "CREATE_VENDOR", "vendor", vendor.Slug, nil, models.JSONB{
			"priority":      vendor.Priority,
			"image_quality": vendor.ImageQuality,
			"feed_type":     vendor.FeedType,
		})
	})
	if err != nil {
		return nil, err
	}

	s.priorities.Invalidate(ctx, order...)
	return vendor, nil
}

// SetPriority moves the vendor to the given global rank. Vendors between
// the old and new rank shift by one so ranks stay 1..N.
func (s *VendorService) SetPriority(ctx context.Context, slug string, priority int, actor string) (*models.Vendor, error) {
	if priority < 1 {
		return nil, ErrInvalidPriority
	}

	var order []string
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		vendor, err := findVendor(tx, slug)
		if err != nil {
			return err
		}
		ranks, err := currentRanks(tx)
		if err != nil {
			return err
		}
		if priority > len(ranks) {
			return ErrInvalidPriority
		}
		if vendor.Priority == priority {
			return nil
		}

		order = moveInOrder(slugsOf(ranks), slug, priority)
		if err := applyRanks(tx, rankMap(ranks), order); err != nil {
			return err
		}

		return recordAudit(tx, actor, "UPDATE_VENDOR_PRIORITY", "vendor", slug,
			models.JSONB{"priority": vendor.Priority}, models.JSONB{"priority": priority})
	})
	if err != nil {
		return nil, err
	}

	s.priorities.Invalidate(ctx, order...)
	return s.GetVendor(ctx, slug)
}

// Reorder reassigns dense ranks 1..N in the given order. slugs must name
// every vendor exactly once.
func (s *VendorService) Reorder(ctx context.Context, slugs []string, actor string) ([]models.Vendor, error) {
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		ranks, err := currentRanks(tx)
		if err != nil {
			return err
		}
		if !sameVendorSet(ranks, slugs) {
			return ErrInvalidOrder
		}

		before := make(models.JSONB, len(ranks))
		for _, v := range ranks {
			before[v.Slug] = v.Priority
		}
		if err := applyRanks(tx, rankMap(ranks), slugs); err != nil {
			return err
		}
		after := make(models.JSONB, len(slugs))
		for i, slug := range slugs {
			after[slug] = i + 1
		}

		return recordAudit(tx, actor, "REORDER_VENDORS", "vendor", "", before, after)
	})
	if err != nil {
		return nil, err
	}

	s.priorities.Invalidate(ctx, slugs...)
	return s.ListVendors(ctx)
}

// SetCategoryPriority sets the vendor's rank inside one category. A zero
// priority removes the override so the global rank applies again.
func (s *VendorService) SetCategoryPriority(ctx context.Context, slug, category string, priority int, actor string) (*models.Vendor, error) {
	if priority < 0 {
		return nil, ErrInvalidPriority
	}
	if category == "" {
		return nil, fmt.Errorf("validation failed: category is required")
	}

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if _, err := findVendor(tx, slug); err != nil {
			return err
		}

		var existing models.VendorCategoryPriority
		err := tx.Where("vendor_slug = ? AND category = ?", slug, category).Take(&existing).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("database error: %w", err)
		}

		old := models.JSONB{"category": category}
		if found {
			old["priority"] = existing.Priority
		}

		switch {
		case priority == 0 && !found:
			return nil
		case priority == 0:
			if err := tx.Delete(&existing).Error; err != nil {
				return fmt.Errorf("failed to remove category priority: %w", err)
			}
		default:
			var holder models.VendorCategoryPriority
			err := tx.Where("category = ? AND priority = ? AND vendor_slug <> ?", category, priority, slug).
				Take(&holder).Error
			if err == nil {
				return ErrDuplicatePriority
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("database error: %w", err)
			}

			if found {
				err = tx.Model(&existing).Update("priority", priority).Error
			} else {
				err = tx.Create(&models.VendorCategoryPriority{
					VendorSlug: slug,
					Category:   category,
					Priority:   priority,
				}).Error
			}
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicatePriority
			}
			if err != nil {
				return fmt.Errorf("failed to set category priority: %w", err)
			}
		}

		return recordAudit(tx, actor, "UPDATE_VENDOR_CATEGORY_PRIORITY", "vendor", slug,
			old, models.JSONB{"category": category, "priority": priority})
	})
	if err != nil {
		return nil, err
	}

	s.priorities.Invalidate(ctx, slug)
	return s.GetVendor(ctx, slug)
}

func (s *VendorService) SetEnabled(ctx context.Context, slug string, enabled bool, actor string) (*models.Vendor, error) {
	return s.updateVendor(ctx, slug, actor, "UPDATE_VENDOR_STATUS", "enabled", enabled,
		func(v *models.Vendor) interface{} { return v.Enabled })
}

// SetImageQuality changes the tier applied to the vendor's future image
// contributions. Images already adopted keep the tier they were stored with.
func (s *VendorService) SetImageQuality(ctx context.Context, slug string, quality models.ImageQuality, actor string) (*models.Vendor, error) {
	if !quality.Valid() {
		return nil, ErrInvalidImageQuality
	}
	return s.updateVendor(ctx, slug, actor, "UPDATE_VENDOR_IMAGE_QUALITY", "image_quality", quality,
		func(v *models.Vendor) interface{} { return v.ImageQuality })
}

func (s *VendorService) updateVendor(ctx context.Context, slug, actor, action, column string, value interface{}, current func(*models.Vendor) interface{}) (*models.Vendor, error) {
	var vendor *models.Vendor
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var err error
		if vendor, err = findVendor(tx, slug); err != nil {
			return err
		}

		old := current(vendor)
		if err := tx.Model(vendor).Update(column, value).Error; err != nil {
			return fmt.Errorf("failed to update vendor: %w", err)
		}

		return recordAudit(tx, actor, action, "vendor", slug,
			models.JSONB{column: old}, models.JSONB{column: value})
	})
	if err != nil {
		return nil, err
	}

	s.priorities.Invalidate(ctx, slug)
	return s.GetVendor(ctx, slug)
}

func (s *VendorService) GetAuditLogs(ctx context.Context, filter AuditLogFilter) ([]models.AuditLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filter.Actor != "" {
		query = query.Where("actor = ?", filter.Actor)
	}
	if filter.ResourceType != "" {
		query = query.Where("resource_type = ?", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		query = query.Where("resource_id = ?", filter.ResourceID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	allowedSortFields := []string{"created_at", "action", "actor"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var logs []models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}
	return logs, total, nil
}

func findVendor(db *gorm.DB, slug string) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := db.Where("slug = ?", slug).Take(&vendor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVendorNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &vendor, nil
}

type vendorRank struct {
	Slug     string
	Priority int
}

func currentRanks(tx *gorm.DB) ([]vendorRank, error) {
	var ranks []vendorRank
	if err := tx.Model(&models.Vendor{}).Select("slug, priority").
		Order("priority").Scan(&ranks).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return ranks, nil
}

func slugsOf(ranks []vendorRank) []string {
	out := make([]string, len(ranks))
	for i, r := range ranks {
		out[i] = r.Slug
	}
	return out
}

func rankMap(ranks []vendorRank) map[string]int {
	out := make(map[string]int, len(ranks))
	for _, r := range ranks {
		out[r.Slug] = r.Priority
	}
	return out
}

// moveInOrder returns order with slug placed at 1-based position pos.
// slug is inserted when it is not already present.
func moveInOrder(order []string, slug string, pos int) []string {
	out := make([]string, 0, len(order)+1)
	for _, s := range order {
		if s != slug {
			out = append(out, s)
		}
	}
	if pos > len(out)+1 {
		pos = len(out) + 1
	}
	out = append(out, "")
	copy(out[pos:], out[pos-1:])
	out[pos-1] = slug
	return out
}

// applyRanks writes rank i+1 to order[i] for every vendor whose rank
// changes. Those rows are parked on negative values first so the unique
// index never sees two vendors on one rank.
func applyRanks(tx *gorm.DB, held map[string]int, order []string) error {
	var moved []int
	for i, slug := range order {
		if held[slug] == i+1 {
			continue
		}
		if err := tx.Model(&models.Vendor{}).Where("slug = ?", slug).
			Update("priority", -(i + 1)).Error; err != nil {
			return fmt.Errorf("failed to rank vendors: %w", err)
		}
		moved = append(moved, i)
	}
	for _, i := range moved {
		if err := tx.Model(&models.Vendor{}).Where("slug = ?", order[i]).
			Update("priority", i+1).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicatePriority
			}
			return fmt.Errorf("failed to rank vendors: %w", err)
		}
	}
	return nil
}

func sameVendorSet(current []vendorRank, slugs []string) bool {
	if len(current) != len(slugs) {
		return false
	}
	seen := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		if seen[slug] {
			return false
		}
		seen[slug] = true
	}
	for _, v := range current {
		if !seen[v.Slug] {
			return false
		}
	}
	return true
}

func recordAudit(tx *gorm.DB, actor, action, resourceType, resourceID string, oldValues, newValues models.JSONB) error {
	auditLog := &models.AuditLog{
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
	}
	if err := tx.Create(auditLog).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
