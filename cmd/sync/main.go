// Command sync runs one sync pass for one vendor and exits. It is meant for
// cron:
//
//	sync --vendor ridgeline --mode incremental
//
// Exit status is 0 on success, 1 when the pass fails, 2 when another pass for
// the vendor is already running and 3 on any setup error.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/javajoker/catalog-backend/internal/cache"
	"github.com/javajoker/catalog-backend/internal/config"
	"github.com/javajoker/catalog-backend/internal/database"
	"github.com/javajoker/catalog-backend/internal/models"
	"github.com/javajoker/catalog-backend/internal/services"
	"github.com/javajoker/catalog-backend/internal/vendors"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitConflict = 2
	exitSetup    = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	vendorSlug := flag.StringP("vendor", "v", "", "vendor slug to sync (required)")
	mode := flag.StringP("mode", "m", string(models.SyncModeFull), "sync mode: full or incremental")
	tenant := flag.StringP("tenant", "t", "", "tenant whose credentials and mappings to use")
	flag.Parse()

	if *vendorSlug == "" {
		fmt.Fprintln(os.Stderr, "sync: --vendor is required")
		flag.Usage()
		return exitSetup
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Error("Failed to load configuration")
		return exitSetup
	}
	cfg.ConfigureLogging()

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.WithError(err).Error("Failed to initialize database")
		return exitSetup
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		logrus.WithError(err).Error("Failed to run migrations")
		return exitSetup
	}

	store, err := cache.New(cfg)
	if err != nil {
		logrus.WithError(err).Error("Failed to initialize cache")
		return exitSetup
	}
	defer store.Close()

	registry := vendors.NewRegistry(cfg.Sync, vendors.DefaultMappings()...)
	svc, err := services.NewContainer(db, cfg, store, registry, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to initialize services")
		return exitSetup
	}

	// SIGTERM cancels the pass; the run is still finalized.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := svc.Sync.RunSyncPass(ctx, services.RunSyncRequest{
		VendorSlug: *vendorSlug,
		Mode:       models.SyncMode(*mode),
		TenantID:   *tenant,
	})
	return exitCode(run, err)
}

func exitCode(run *models.SyncRun, err error) int {
	var batchErr *services.BatchError
	switch {
	case err == nil:
		fmt.Printf("run %d: created=%d updated=%d unchanged=%d skipped=%d failed=%d\n",
			run.ID, run.Created, run.Updated, run.Unchanged, run.Skipped, run.Failed)
		return exitOK
	case errors.As(err, &batchErr):
		fmt.Fprintf(os.Stderr, "run %d failed (%s): %s\n", batchErr.RunID, batchErr.Kind, batchErr.Message)
		return exitFailed
	case errors.Is(err, services.ErrSyncInProgress):
		fmt.Fprintln(os.Stderr, "sync: a pass is already running for this vendor")
		return exitConflict
	default:
		fmt.Fprintf(os.Stderr, "sync: %v\n", err)
		return exitSetup
	}
}
