package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/catalog-backend/internal/config"
	"github.com/javajoker/catalog-backend/internal/database"
	"github.com/javajoker/catalog-backend/internal/metrics"
	"github.com/javajoker/catalog-backend/internal/models"
	"github.com/javajoker/catalog-backend/internal/reconcile"
	"github.com/javajoker/catalog-backend/internal/utils"
	"github.com/javajoker/catalog-backend/internal/vendors"
)

// progressEvery controls how often in-flight counts are saved so status
// queries see a pass advance.
const progressEvery = 250

// SyncService drives vendor sync passes.
type SyncService struct {
	db          *gorm.DB
	registry    *vendors.Registry
	queue       *RequestQueue
	catalog     *CatalogService
	priorities  *PriorityService
	credentials *CredentialService
	metrics     *metrics.Collector
	cfg         config.SyncConfig
	now         func() time.Time

	// background passes started by StartSyncPass
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

type RunSyncRequest struct {
	VendorSlug string          `json:"vendor_slug" validate:"required,slug"`
	Mode       models.SyncMode `json:"mode"`
	TenantID   string          `json:"tenant_id" validate:"max=64"`
}

// BatchError is a pass-level failure. The run it ended is finalized with
// Kind and Message before the error is returned.
type BatchError struct {
	RunID   uint
	Kind    models.ErrorKind
	Message string
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("sync run %d failed (%s): %s", e.RunID, e.Kind, e.Message)
}

func (e *BatchError) Unwrap() error { return e.Err }

type ConnectionResult struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	ErrorKind models.ErrorKind `json:"error_kind,omitempty"`
}

type tally struct {
	created, updated, skipped, failed, unchanged int
}

func NewSyncService(
	db *gorm.DB,
	registry *vendors.Registry,
	queue *RequestQueue,
	catalog *CatalogService,
	priorities *PriorityService,
	credentials *CredentialService,
	m *metrics.Collector,
	cfg config.SyncConfig,
) *SyncService {
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &SyncService{
		bgCtx:       bgCtx,
		bgCancel:    bgCancel,
		db:          db,
		registry:    registry,
		queue:       queue,
		catalog:     catalog,
		priorities:  priorities,
		credentials: credentials,
		metrics:     m,
		cfg:         cfg,
		now:         time.Now,
	}
}

// RunSyncPass runs one pass to completion. A batch failure is returned as a
// *BatchError together with the finalized run.
func (s *SyncService) RunSyncPass(ctx context.Context, req RunSyncRequest) (*models.SyncRun, error) {
	run, err := s.BeginSyncPass(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.ExecuteSyncPass(ctx, run)
}

// StartSyncPass records the run and executes it in the background. The
// returned run is a snapshot taken before the fetch begins.
func (s *SyncService) StartSyncPass(ctx context.Context, req RunSyncRequest) (*models.SyncRun, error) {
	run, err := s.BeginSyncPass(ctx, req)
	if err != nil {
		return nil, err
	}
	snapshot := *run

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		// ExecuteSyncPass logs and finalizes its own failures.
		_, _ = s.ExecuteSyncPass(s.bgCtx, run)
	}()

	return &snapshot, nil
}

// Shutdown waits for background passes. When ctx expires first they are
// cancelled, finalized as transient errors, and ctx's error is returned.
func (s *SyncService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.bgCancel()
		<-done
		return ctx.Err()
	}
}

// BeginSyncPass records a new in_progress run. It fails with
// ErrSyncInProgress if the vendor already has a fresh active run; a stale
// one is finalized as an error first. No network call is made.
func (s *SyncService) BeginSyncPass(ctx context.Context, req RunSyncRequest) (*models.SyncRun, error) {
	if req.Mode == "" {
		req.Mode = models.SyncModeFull
	}
	if !req.Mode.Valid() {
		return nil, ErrInvalidSyncMode
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	vendor, err := s.loadVendor(ctx, req.VendorSlug)
	if err != nil {
		return nil, err
	}
	if !vendor.Enabled {
		return nil, ErrVendorDisabled
	}

	now := s.now().UTC()
	run := &models.SyncRun{
		VendorSlug: vendor.Slug,
		TenantID:   req.TenantID,
		Mode:       req.Mode,
		Status:     models.SyncStatusInProgress,
		StartedAt:  now,
	}

	err = database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		query := tx
		if database.IsPostgres(tx) {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var active models.SyncRun
		err := query.Where("vendor_slug = ? AND status = ?", vendor.Slug, models.SyncStatusInProgress).
			Take(&active).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return fmt.Errorf("failed to check active runs: %w", err)
		case !active.IsStale(now, s.cfg.StaleAfter):
			return ErrSyncInProgress
		default:
			logrus.WithFields(logrus.Fields{
				"vendor":     vendor.Slug,
				"run_id":     active.ID,
				"started_at": active.StartedAt,
			}).Warn("Resetting stale sync run")
			if err := tx.Model(&active).Updates(map[string]interface{}{
				"status":        models.SyncStatusError,
				"error_kind":    models.ErrorKindStale,
				"error_message": "stale run reset",
				"finished_at":   now,
			}).Error; err != nil {
				return fmt.Errorf("failed to reset stale run: %w", err)
			}
		}

		if err := tx.Create(run).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrSyncInProgress
			}
			return fmt.Errorf("failed to create sync run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return run, nil
}

// ExecuteSyncPass fetches the feed through the request queue and merges
// every record. Per-record failures are counted, never fatal.
func (s *SyncService) ExecuteSyncPass(ctx context.Context, run *models.SyncRun) (*models.SyncRun, error) {
	log := logrus.WithFields(logrus.Fields{
		"vendor": run.VendorSlug,
		"run_id": run.ID,
		"mode":   run.Mode,
	})
	if run.TenantID != "" {
		log = log.WithField("tenant", run.TenantID)
	}
	log.Info("Sync pass started")

	var counts tally
	fail := func(kind models.ErrorKind, err error) (*models.SyncRun, error) {
		return s.finalizeError(ctx, run, counts, kind, err, log)
	}

	vendor, err := s.loadVendor(ctx, run.VendorSlug)
	if err != nil {
		return fail(models.ErrorKindConfig, err)
	}
	adapter, err := s.registry.Adapter(vendor)
	if err != nil {
		return fail(models.ErrorKindConfig, err)
	}
	mapping, err := s.registry.Mapping(vendor.Slug)
	if err != nil {
		return fail(models.ErrorKindConfig, err)
	}

	creds, err := s.credentials.Resolve(ctx, vendor.Slug, run.TenantID)
	if err != nil && !errors.Is(err, ErrCredentialsNotFound) {
		return fail(models.ErrorKindConfig, err)
	}

	fetch := vendors.FetchRequest{Credentials: creds, TenantID: run.TenantID}
	if run.Mode == models.SyncModeIncremental {
		since, err := s.lastSuccessStart(ctx, run)
		if err != nil {
			return fail(models.ErrorKindInternal, err)
		}
		fetch.Since = since
	}

	records, err := Enqueue(ctx, s.queue, "sync:"+vendor.Slug, func(ctx context.Context) ([]vendors.RawRecord, error) {
		return adapter.Fetch(ctx, fetch)
	})
	if err != nil {
		return fail(ClassifyError(err), err)
	}
	log.WithField("records", len(records)).Info("Vendor feed fetched")

	// Ranks are read once per pass; a lookup failure leaves the vendor
	// unranked rather than failing the pass.
	ranks, err := s.priorities.Ranks(ctx, vendor.Slug)
	if err != nil {
		log.WithError(err).Error("Priority lookup failed, treating vendor as unranked")
		ranks = &RankTable{VendorSlug: vendor.Slug, ImageQuality: vendor.ImageQuality}
	}
	scope := CandidateScope{TenantID: run.TenantID, RunID: run.ID}

	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			return fail(models.ErrorKindTransient, fmt.Errorf("sync pass interrupted: %w", err))
		}

		outcome := s.processRecord(ctx, log, mapping, ranks, scope, raw)
		counts.add(outcome)
		s.metrics.Candidate(vendor.Slug, outcome)

		if (i+1)%progressEvery == 0 {
			s.saveProgress(ctx, run, counts, log)
		}
	}

	return s.finalizeSuccess(ctx, run, counts, log)
}

// processRecord maps and merges one raw record and names the counter it
// lands in.
func (s *SyncService) processRecord(ctx context.Context, log *logrus.Entry, mapping *vendors.FieldMapping, ranks *RankTable, scope CandidateScope, raw vendors.RawRecord) string {
	cand, err := mapping.Apply(raw)
	if errors.Is(err, vendors.ErrSkipRecord) {
		return "skipped"
	}
	if err != nil {
		log.WithFields(logrus.Fields{
			"upc":   mapping.Value(raw, vendors.FieldUPC),
			"sku":   mapping.Value(raw, vendors.FieldSKU),
			"error": err.Error(),
			"raw":   map[string]string(raw),
		}).Warn("Vendor record rejected")
		return "failed"
	}

	result, err := s.catalog.ApplyCandidate(ctx, cand, ranks, scope)
	if err != nil {
		log.WithFields(logrus.Fields{
			"upc":   cand.UPC,
			"sku":   cand.VendorSKU,
			"error": err.Error(),
			"raw":   map[string]string(raw),
		}).Warn("Candidate merge failed")
		return "failed"
	}

	switch result.Outcome {
	case reconcile.OutcomeInsert:
		return "created"
	case reconcile.OutcomeUpdate:
		return "updated"
	default:
		return "unchanged"
	}
}

func (t *tally) add(outcome string) {
	switch outcome {
	case "created":
		t.created++
	case "updated":
		t.updated++
	case "skipped":
		t.skipped++
	case "unchanged":
		t.unchanged++
	default:
		t.failed++
	}
}

func (t tally) columns() map[string]interface{} {
	return map[string]interface{}{
		"created":   t.created,
		"updated":   t.updated,
		"skipped":   t.skipped,
		"failed":    t.failed,
		"unchanged": t.unchanged,
	}
}

func (t tally) apply(run *models.SyncRun) {
	run.Created = t.created
	run.Updated = t.updated
	run.Skipped = t.skipped
	run.Failed = t.failed
	run.Unchanged = t.unchanged
}

func (s *SyncService) saveProgress(ctx context.Context, run *models.SyncRun, counts tally, log *logrus.Entry) {
	if err := s.db.WithContext(ctx).Model(run).Updates(counts.columns()).Error; err != nil {
		log.WithError(err).Warn("Failed to save sync progress")
	}
}

func (s *SyncService) finalizeSuccess(ctx context.Context, run *models.SyncRun, counts tally, log *logrus.Entry) (*models.SyncRun, error) {
	now := s.now().UTC()
	cols := counts.columns()
	cols["status"] = models.SyncStatusSuccess
	cols["finished_at"] = now

	if err := s.finish(ctx, run, cols); err != nil {
		return nil, err
	}
	counts.apply(run)
	run.Status = models.SyncStatusSuccess
	run.FinishedAt = &now

	elapsed := now.Sub(run.StartedAt)
	s.metrics.SyncFinished(run.VendorSlug, string(run.Status), elapsed)
	log.WithFields(logrus.Fields{
		"created":   run.Created,
		"updated":   run.Updated,
		"skipped":   run.Skipped,
		"failed":    run.Failed,
		"unchanged": run.Unchanged,
		"duration":  elapsed.String(),
	}).Info("Sync pass completed")

	return run, nil
}

func (s *SyncService) finalizeError(ctx context.Context, run *models.SyncRun, counts tally, kind models.ErrorKind, cause error, log *logrus.Entry) (*models.SyncRun, error) {
	now := s.now().UTC()
	cols := counts.columns()
	cols["status"] = models.SyncStatusError
	cols["error_kind"] = kind
	cols["error_message"] = cause.Error()
	cols["finished_at"] = now

	if err := s.finish(ctx, run, cols); err != nil {
		return nil, err
	}
	counts.apply(run)
	run.Status = models.SyncStatusError
	run.ErrorKind = kind
	run.ErrorMessage = cause.Error()
	run.FinishedAt = &now

	s.metrics.SyncFinished(run.VendorSlug, string(run.Status), now.Sub(run.StartedAt))
	log.WithFields(logrus.Fields{
		"error_kind": kind,
		"error":      cause.Error(),
		"processed":  run.Processed(),
	}).Error("Sync pass failed")

	return run, &BatchError{RunID: run.ID, Kind: kind, Message: cause.Error(), Err: cause}
}

// finish writes the terminal state in one statement. It runs even when ctx
// is cancelled so a run is never left in_progress by its own pass.
func (s *SyncService) finish(ctx context.Context, run *models.SyncRun, cols map[string]interface{}) error {
	err := s.db.WithContext(context.WithoutCancel(ctx)).Model(run).Updates(cols).Error
	if err != nil {
		return fmt.Errorf("failed to finalize sync run %d: %w", run.ID, err)
	}
	return nil
}

// ClassifyError maps an adapter or setup error to the kind stored on a run.
func ClassifyError(err error) models.ErrorKind {
	switch {
	case errors.Is(err, vendors.ErrAuth):
		return models.ErrorKindAuth
	case errors.Is(err, vendors.ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return models.ErrorKindTransient
	case errors.Is(err, vendors.ErrMalformedFeed):
		return models.ErrorKindMalformed
	case errors.Is(err, vendors.ErrFeedConfig), errors.Is(err, vendors.ErrNoMapping):
		return models.ErrorKindConfig
	default:
		return models.ErrorKindInternal
	}
}

// TestConnection checks a vendor's feed with the supplied credentials, or
// the stored ones when creds is nil. Feed failures are reported in the
// result; the error return is for unknown vendors and setup faults.
func (s *SyncService) TestConnection(ctx context.Context, slug, tenantID string, creds *vendors.Credentials) (*ConnectionResult, error) {
	vendor, err := s.loadVendor(ctx, slug)
	if err != nil {
		return nil, err
	}

	adapter, err := s.registry.Adapter(vendor)
	if err != nil {
		return &ConnectionResult{Message: err.Error(), ErrorKind: models.ErrorKindConfig}, nil
	}

	var use vendors.Credentials
	if creds != nil {
		use = *creds
	} else {
		use, err = s.credentials.Resolve(ctx, slug, tenantID)
		if err != nil && !errors.Is(err, ErrCredentialsNotFound) {
			return nil, err
		}
	}

	err = s.queue.Do(ctx, "test:"+slug, func(ctx context.Context) error {
		return adapter.TestConnection(ctx, use)
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"vendor": slug,
			"error":  err.Error(),
		}).Info("Vendor connection test failed")
		return &ConnectionResult{Message: err.Error(), ErrorKind: ClassifyError(err)}, nil
	}

	return &ConnectionResult{Success: true, Message: "connection successful"}, nil
}

func (s *SyncService) LatestRun(ctx context.Context, slug string) (*models.SyncRun, error) {
	var run models.SyncRun
	err := s.db.WithContext(ctx).Where("vendor_slug = ?", slug).
		Order("started_at DESC, id DESC").Take(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &run, nil
}

func (s *SyncService) ListRuns(ctx context.Context, slug string, params utils.PaginationParams) ([]models.SyncRun, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.SyncRun{}).Where("vendor_slug = ?", slug)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sync runs: %w", err)
	}

	var runs []models.SyncRun
	if err := utils.ApplyPagination(query.Order("started_at DESC, id DESC"), params).
		Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch sync runs: %w", err)
	}
	return runs, total, nil
}

func (s *SyncService) GetRun(ctx context.Context, id uint) (*models.SyncRun, error) {
	var run models.SyncRun
	if err := s.db.WithContext(ctx).First(&run, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &run, nil
}

func (s *SyncService) QueueStats() QueueStats {
	return s.queue.Stats()
}

func (s *SyncService) loadVendor(ctx context.Context, slug string) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := s.db.WithContext(ctx).First(&vendor, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVendorNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &vendor, nil
}

// lastSuccessStart returns the start of the vendor's last successful pass
// for the same tenant, or nil if there is none.
func (s *SyncService) lastSuccessStart(ctx context.Context, run *models.SyncRun) (*time.Time, error) {
	var last models.SyncRun
	err := s.db.WithContext(ctx).
		Where("vendor_slug = ? AND tenant_id = ? AND status = ? AND id <> ?",
			run.VendorSlug, run.TenantID, models.SyncStatusSuccess, run.ID).
		Order("started_at DESC").Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last successful run: %w", err)
	}
	since := last.StartedAt
	return &since, nil
}
