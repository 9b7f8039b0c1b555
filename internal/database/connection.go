// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/catalog-backend/internal/config"
	"github.com/javajoker/catalog-backend/internal/models"
)

var DB *gorm.DB

// GormConfig is shared by production and test connections so that both
// translate driver errors into gorm sentinels.
func GormConfig(logLevel string) *gorm.Config {
	level := logger.Info
	switch logLevel {
	case "silent":
		level = logger.Silent
	case "error":
		level = logger.Error
	case "warn":
		level = logger.Warn
	}

	return &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	}
}

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error

	// Connect to database
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), GormConfig(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Database connection established successfully")
	return DB, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed successfully")
	}
}

// IsPostgres reports whether db talks to PostgreSQL. Row locks and
// Postgres-only indexes are skipped on other dialects.
func IsPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	// Run auto-migrations
	err := db.AutoMigrate(
		&models.Vendor{},
		&models.VendorCategoryPriority{},
		&models.Product{},
		&models.VendorProduct{},
		&models.SyncRun{},
		&models.VendorCredential{},
		&models.AuditLog{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// The active-run guard is what keeps two passes for one vendor apart, so
	// unlike the lookup indexes it must exist.
	if err := db.Exec(activeRunIndex).Error; err != nil {
		return fmt.Errorf("failed to create active sync run index: %w", err)
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

const activeRunIndex = "CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_runs_active ON sync_runs(vendor_slug) WHERE status = 'in_progress'"

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Product indexes
		"CREATE INDEX IF NOT EXISTS idx_products_category_status ON products(category, status)",
		"CREATE INDEX IF NOT EXISTS idx_products_brand_status ON products(brand, status)",
		"CREATE INDEX IF NOT EXISTS idx_products_updated_at ON products(updated_at DESC)",

		// Vendor product indexes
		"CREATE INDEX IF NOT EXISTS idx_vendor_products_vendor_seen ON vendor_products(vendor_slug, last_seen_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_vendor_products_vendor_sku ON vendor_products(vendor_slug, vendor_sku)",

		// Sync run indexes
		"CREATE INDEX IF NOT EXISTS idx_sync_runs_vendor_status ON sync_runs(vendor_slug, status, started_at DESC)",

		// Admin indexes
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_actor_action ON audit_logs(actor, action)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",
	}

	if IsPostgres(db) {
		// Full-text search indexes
		indexes = append(indexes,
			"CREATE INDEX IF NOT EXISTS idx_products_search ON products USING GIN(to_tsvector('english', coalesce(name, '') || ' ' || coalesce(description, '')))",
		)
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// Seed vendors, one per feed transport. Ranks and tiers of existing rows are
// left alone; operators own them after the first boot.
func SeedVendors(db *gorm.DB) error {
	logrus.Info("Seeding vendors...")

	defaultVendors := []models.Vendor{
		{
			Slug:         "ridgeline",
			DisplayName:  "Ridgeline Distributing",
			Priority:     1,
			ImageQuality: models.ImageQualityHigh,
			Enabled:      true,
			FeedType:     models.FeedTypeREST,
			Endpoint:     "https://api.ridgeline.example.com",
			FeedPath:     "/v2/catalog/items",
		},
		{
			Slug:         "cascade",
			DisplayName:  "Cascade Outdoor Supply",
			Priority:     2,
			ImageQuality: models.ImageQualityLow,
			Enabled:      true,
			FeedType:     models.FeedTypeSOAP,
			Endpoint:     "https://ws.cascadeoutdoor.example.com/CatalogService.asmx",
		},
		{
			Slug:         "prairie",
			DisplayName:  "Prairie Wholesale",
			Priority:     3,
			ImageQuality: models.ImageQualityLow,
			Enabled:      true,
			FeedType:     models.FeedTypeFTPCSV,
			Endpoint:     "ftp.prairiewholesale.example.com:21",
			FeedPath:     "/outgoing/catalog.csv",
		},
	}

	for _, vendor := range defaultVendors {
		var count int64
		db.Model(&models.Vendor{}).Where("slug = ?", vendor.Slug).Count(&count)

		if count == 0 {
			if err := db.Create(&vendor).Error; err != nil {
				logrus.WithError(err).WithField("vendor", vendor.Slug).Warn("Failed to seed vendor")
			}
		}
	}

	logrus.Info("Vendor seeding completed")
	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
