package services

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/javajoker/catalog-backend/internal/cache"
	"github.com/javajoker/catalog-backend/internal/config"
	"github.com/javajoker/catalog-backend/internal/metrics"
	"github.com/javajoker/catalog-backend/internal/utils"
	"github.com/javajoker/catalog-backend/internal/vendors"
)

// Container holds the services one process shares. The API server and the
// sync command build it the same way so both go through one request queue.
type Container struct {
	Queue       *RequestQueue
	Priorities  *PriorityService
	Storage     *StorageService
	Catalog     *CatalogService
	Credentials *CredentialService
	Vendors     *VendorService
	Sync        *SyncService
}

func NewContainer(db *gorm.DB, cfg *config.Config, c cache.Cache, registry *vendors.Registry, m *metrics.Collector) (*Container, error) {
	queue := NewRequestQueue(cfg.Sync.QueueConcurrency, m)

	storage, err := NewStorageService(cfg, queue)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image storage: %w", err)
	}

	priorities := NewPriorityService(db, c, cfg.Cache.PriorityTTL)
	catalog := NewCatalogService(db, priorities, storage, m)
	credentials := NewCredentialService(db, utils.NewSecretBox(cfg.Security.CredentialKey))

	return &Container{
		Queue:       queue,
		Priorities:  priorities,
		Storage:     storage,
		Catalog:     catalog,
		Credentials: credentials,
		Vendors:     NewVendorService(db, priorities),
		Sync:        NewSyncService(db, registry, queue, catalog, priorities, credentials, m, cfg.Sync),
	}, nil
}
