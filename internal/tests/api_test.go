// internal/tests/api_test.go
package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/javajoker/catalog-backend/internal/cache"
	"github.com/javajoker/catalog-backend/internal/config"
	"github.com/javajoker/catalog-backend/internal/database"
	"github.com/javajoker/catalog-backend/internal/i18n"
	"github.com/javajoker/catalog-backend/internal/models"
	"github.com/javajoker/catalog-backend/internal/router"
	"github.com/javajoker/catalog-backend/internal/services"
	"github.com/javajoker/catalog-backend/internal/utils"
	"github.com/javajoker/catalog-backend/internal/vendors"
)

const exampleUPC = "000111222333"

type feed struct {
	mu      sync.Mutex
	records []vendors.RawRecord
	err     error
}

func (f *feed) Fetch(ctx context.Context, req vendors.FetchRequest) ([]vendors.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, f.err
}

func (f *feed) TestConnection(ctx context.Context, creds vendors.Credentials) error {
	if creds.APIKey == "" {
		return fmt.Errorf("%w: missing api key", vendors.ErrAuth)
	}
	return nil
}

func (f *feed) set(err error, records ...vendors.RawRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records, f.err = records, err
}

func mapping(slug string, quality models.ImageQuality) *vendors.FieldMapping {
	fields := make(map[vendors.Field]vendors.FieldRule)
	for _, f := range []vendors.Field{
		vendors.FieldUPC, vendors.FieldSKU, vendors.FieldName, vendors.FieldBrand,
		vendors.FieldCategory, vendors.FieldImageURL,
	} {
		fields[f] = vendors.FieldRule{Sources: []string{string(f)}}
	}
	return &vendors.FieldMapping{VendorSlug: slug, ImageQuality: quality, Fields: fields}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

var dbSeq atomic.Int64

type APITestSuite struct {
	suite.Suite
	db            *gorm.DB
	svc           *services.Container
	router        *gin.Engine
	feeds         map[string]*feed
	adminToken    string
	operatorToken string
}

func (s *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	s.Require().NoError(i18n.Initialize("en"))
}

func (s *APITestSuite) SetupTest() {
	db, err := database.OpenSQLite(fmt.Sprintf("api_%d", dbSeq.Add(1)))
	s.Require().NoError(err)
	s.Require().NoError(database.SeedVendors(db))
	s.db = db

	cfg := &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins:   []string{"http://localhost:3000"},
			RateLimitRPS:     1000,
			RateLimitBurst:   1000,
			SyncTriggerBurst: 1000,
		},
		JWT:      config.JWTConfig{SecretKey: "test-secret"},
		Cache:    config.CacheConfig{Type: "memory", PriorityTTL: time.Minute},
		Sync:     config.SyncConfig{QueueConcurrency: 2, StaleAfter: 2 * time.Hour, FetchAttempts: 1},
		Security: config.SecurityConfig{CredentialKey: "test-credential-key"},
		I18n:     config.I18nConfig{DefaultLocale: "en"},
	}

	registry := vendors.NewRegistry(cfg.Sync)
	s.feeds = make(map[string]*feed)
	var seeded []models.Vendor
	s.Require().NoError(db.Find(&seeded).Error)
	for _, v := range seeded {
		f := &feed{}
		s.feeds[v.Slug] = f
		registry.RegisterAdapter(v.Slug, f)
		registry.RegisterMapping(mapping(v.Slug, v.ImageQuality))
	}

	svc, err := services.NewContainer(db, cfg, cache.NewMemoryCache(0), registry, nil)
	s.Require().NoError(err)
	s.svc = svc

	s.router, err = router.Initialize(db, cfg, svc, nil)
	s.Require().NoError(err)

	s.adminToken, err = utils.GenerateJWT("alice", utils.RoleAdmin, time.Hour)
	s.Require().NoError(err)
	s.operatorToken, err = utils.GenerateJWT("bob", utils.RoleOperator, time.Hour)
	s.Require().NoError(err)
}

func (s *APITestSuite) TearDownTest() {
	s.Require().NoError(s.svc.Sync.Shutdown(context.Background()))
	// let async audit writes land before the database goes away
	time.Sleep(20 * time.Millisecond)
	database.Close(s.db)
}

func (s *APITestSuite) request(method, path, token string, body interface{}) (int, envelope) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func (s *APITestSuite) decode(raw json.RawMessage, dst interface{}) {
	s.Require().NoError(json.Unmarshal(raw, dst))
}

func (s *APITestSuite) TestHealthIsPublic() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"healthy"`)
}

func (s *APITestSuite) TestMetricsEndpoint() {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "go_goroutines")
}

func (s *APITestSuite) TestAuthRequired() {
	code, resp := s.request(http.MethodGet, "/v1/products", "", nil)
	s.Equal(http.StatusUnauthorized, code)
	s.False(resp.Success)
	s.Equal("UNAUTHORIZED", resp.Error.Code)

	code, _ = s.request(http.MethodGet, "/v1/products", "not-a-jwt", nil)
	s.Equal(http.StatusUnauthorized, code)
}

func (s *APITestSuite) TestOperatorCanReadButNotMutate() {
	code, _ := s.request(http.MethodGet, "/v1/admin/vendors", s.operatorToken, nil)
	s.Equal(http.StatusOK, code)

	code, resp := s.request(http.MethodPut, "/v1/admin/vendors/cascade/priority", s.operatorToken, gin.H{"priority": 9})
	s.Equal(http.StatusForbidden, code)
	s.Equal("FORBIDDEN", resp.Error.Code)
}

func (s *APITestSuite) TestSyncThenReadProduct() {
	s.feeds["ridgeline"].set(nil, vendors.RawRecord{
		"upc": exampleUPC, "sku": "RL-1", "name": "Strike Eagle 1-8x24",
		"brand": "Vortex", "category": "Optics", "image_url": "https://img.example.com/b.jpg",
	})

	code, resp := s.request(http.MethodPost, "/v1/admin/vendors/ridgeline/sync", s.adminToken, gin.H{"mode": "full"})
	s.Require().Equal(http.StatusOK, code)
	var run models.SyncRun
	s.decode(resp.Data, &run)
	s.Equal(models.SyncStatusSuccess, run.Status)
	s.Equal(1, run.Created)

	code, resp = s.request(http.MethodGet, "/v1/products/"+exampleUPC, s.operatorToken, nil)
	s.Require().Equal(http.StatusOK, code)
	var product models.Product
	s.decode(resp.Data, &product)
	s.Equal("Strike Eagle 1-8x24", product.Name)
	s.Equal("ridgeline", product.PreferredVendor)
	s.Equal(models.ImageQualityHigh, product.ImageQuality)

	code, resp = s.request(http.MethodGet, "/v1/products?brand=vortex", s.operatorToken, nil)
	s.Require().Equal(http.StatusOK, code)
	var list []models.Product
	s.decode(resp.Data, &list)
	s.Len(list, 1)

	code, resp = s.request(http.MethodGet, "/v1/products/"+exampleUPC+"/sources", s.operatorToken, nil)
	s.Require().Equal(http.StatusOK, code)
	var sources struct {
		Sources []models.VendorProduct `json:"sources"`
	}
	s.decode(resp.Data, &sources)
	s.Require().Len(sources.Sources, 1)
	s.Equal("RL-1", sources.Sources[0].VendorSKU)

	code, resp = s.request(http.MethodGet, "/v1/admin/vendors/ridgeline/sync-runs/latest", s.operatorToken, nil)
	s.Equal(http.StatusOK, code)
	var latest models.SyncRun
	s.decode(resp.Data, &latest)
	s.Equal(run.ID, latest.ID)

	code, _ = s.request(http.MethodGet, fmt.Sprintf("/v1/admin/sync-runs/%d", run.ID), s.operatorToken, nil)
	s.Equal(http.StatusOK, code)
}

func (s *APITestSuite) TestProductNotFoundAndInvalidUPC() {
	code, resp := s.request(http.MethodGet, "/v1/products/999999999999", s.operatorToken, nil)
	s.Equal(http.StatusNotFound, code)
	s.Equal("Product not found", resp.Error.Message)

	code, _ = s.request(http.MethodGet, "/v1/products/abc", s.operatorToken, nil)
	s.Equal(http.StatusBadRequest, code)

	code, _ = s.request(http.MethodGet, "/v1/admin/sync-runs/42", s.operatorToken, nil)
	s.Equal(http.StatusNotFound, code)
}

func (s *APITestSuite) TestPriorityMoveKeepsRanksDense() {
	code, resp := s.request(http.MethodPut, "/v1/admin/vendors/cascade/priority", s.adminToken, gin.H{"priority": 1})
	s.Require().Equal(http.StatusOK, code)
	var vendor models.Vendor
	s.decode(resp.Data, &vendor)
	s.Equal(1, vendor.Priority)

	code, resp = s.request(http.MethodGet, "/v1/admin/vendors/ridgeline", s.operatorToken, nil)
	s.Require().Equal(http.StatusOK, code)
	s.decode(resp.Data, &vendor)
	s.Equal(2, vendor.Priority)

	code, resp = s.request(http.MethodPut, "/v1/admin/vendors/cascade/priority", s.adminToken, gin.H{"priority": 7})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("BAD_REQUEST", resp.Error.Code)
}

func (s *APITestSuite) TestDuplicateCategoryPriorityConflicts() {
	code, _ := s.request(http.MethodPut, "/v1/admin/vendors/cascade/category-priority", s.adminToken,
		gin.H{"category": "Optics", "priority": 1})
	s.Require().Equal(http.StatusOK, code)

	code, resp := s.request(http.MethodPut, "/v1/admin/vendors/prairie/category-priority", s.adminToken,
		gin.H{"category": "Optics", "priority": 1})
	s.Equal(http.StatusConflict, code)
	s.Equal("CONFLICT", resp.Error.Code)
}

func (s *APITestSuite) TestSyncWhileRunningConflicts() {
	_, err := s.svc.Sync.BeginSyncPass(context.Background(), services.RunSyncRequest{VendorSlug: "cascade"})
	s.Require().NoError(err)

	code, resp := s.request(http.MethodPost, "/v1/admin/vendors/cascade/sync", s.adminToken, gin.H{})
	s.Equal(http.StatusConflict, code)
	s.Equal("CONFLICT", resp.Error.Code)
}

func (s *APITestSuite) TestSyncFailureReportsErrorKind() {
	s.feeds["prairie"].set(fmt.Errorf("%w: 530 login incorrect", vendors.ErrAuth))

	code, resp := s.request(http.MethodPost, "/v1/admin/vendors/prairie/sync", s.adminToken, gin.H{"mode": "full"})
	s.Equal(http.StatusBadGateway, code)
	s.Equal("SYNC_FAILED", resp.Error.Code)

	var details struct {
		ErrorKind models.ErrorKind `json:"error_kind"`
		Run       models.SyncRun   `json:"run"`
	}
	s.decode(resp.Error.Details, &details)
	s.Equal(models.ErrorKindAuth, details.ErrorKind)
	s.Equal(models.SyncStatusError, details.Run.Status)
	s.Zero(details.Run.Processed())
}

func (s *APITestSuite) TestAsyncSync() {
	s.feeds["cascade"].set(nil, vendors.RawRecord{"upc": exampleUPC, "sku": "C-1", "name": "Scope"})

	code, resp := s.request(http.MethodPost, "/v1/admin/vendors/cascade/sync", s.adminToken, gin.H{"async": true})
	s.Require().Equal(http.StatusAccepted, code)
	var started struct {
		Run models.SyncRun `json:"run"`
	}
	s.decode(resp.Data, &started)
	s.Equal(models.SyncStatusInProgress, started.Run.Status)

	s.Require().NoError(s.svc.Sync.Shutdown(context.Background()))

	run, err := s.svc.Sync.GetRun(context.Background(), started.Run.ID)
	s.Require().NoError(err)
	s.Equal(models.SyncStatusSuccess, run.Status)
	s.Equal(1, run.Created)
}

func (s *APITestSuite) TestUnknownAndDisabledVendor() {
	code, _ := s.request(http.MethodPost, "/v1/admin/vendors/nobody/sync", s.adminToken, gin.H{})
	s.Equal(http.StatusNotFound, code)

	code, _ = s.request(http.MethodPut, "/v1/admin/vendors/cascade/status", s.adminToken, gin.H{"enabled": false})
	s.Require().Equal(http.StatusOK, code)

	code, _ = s.request(http.MethodPost, "/v1/admin/vendors/cascade/sync", s.adminToken, gin.H{})
	s.Equal(http.StatusConflict, code)
}

func (s *APITestSuite) TestValidationErrors() {
	code, resp := s.request(http.MethodPut, "/v1/admin/vendors/cascade/image-quality", s.adminToken, gin.H{"image_quality": "medium"})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("VALIDATION_ERROR", resp.Error.Code)

	code, _ = s.request(http.MethodPost, "/v1/admin/vendors/cascade/sync", s.adminToken, gin.H{"mode": "sometimes"})
	s.Equal(http.StatusBadRequest, code)

	code, _ = s.request(http.MethodPut, "/v1/admin/vendors/order", s.adminToken, gin.H{"slugs": []string{"ridgeline"}})
	s.Equal(http.StatusBadRequest, code)
}

func (s *APITestSuite) TestReorderAndRecalculate() {
	s.feeds["ridgeline"].set(nil, vendors.RawRecord{"upc": exampleUPC, "sku": "R", "name": "Scope"})
	s.feeds["prairie"].set(nil, vendors.RawRecord{"upc": exampleUPC, "sku": "P", "name": "Scope"})
	for _, slug := range []string{"ridgeline", "prairie"} {
		code, _ := s.request(http.MethodPost, "/v1/admin/vendors/"+slug+"/sync", s.adminToken, gin.H{})
		s.Require().Equal(http.StatusOK, code)
	}

	code, resp := s.request(http.MethodPut, "/v1/admin/vendors/order", s.adminToken,
		gin.H{"slugs": []string{"prairie", "cascade", "ridgeline"}})
	s.Require().Equal(http.StatusOK, code)
	var ordered struct {
		Vendors []models.Vendor `json:"vendors"`
	}
	s.decode(resp.Data, &ordered)
	s.Require().Len(ordered.Vendors, 3)
	s.Equal("prairie", ordered.Vendors[0].Slug)
	s.Equal(1, ordered.Vendors[0].Priority)

	code, resp = s.request(http.MethodPost, "/v1/admin/priorities/recalculate", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, code)
	var result struct {
		Changed int `json:"changed"`
	}
	s.decode(resp.Data, &result)
	s.Equal(1, result.Changed)

	code, resp = s.request(http.MethodGet, "/v1/products/"+exampleUPC, s.operatorToken, nil)
	s.Require().Equal(http.StatusOK, code)
	var product models.Product
	s.decode(resp.Data, &product)
	s.Equal("prairie", product.PreferredVendor)
}

func (s *APITestSuite) TestCredentialsAndConnectionTest() {
	code, resp := s.request(http.MethodPost, "/v1/admin/vendors/ridgeline/test-connection", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, code)
	var result services.ConnectionResult
	s.decode(resp.Data, &result)
	s.False(result.Success)
	s.Equal(models.ErrorKindAuth, result.ErrorKind)

	code, resp = s.request(http.MethodPut, "/v1/admin/vendors/ridgeline/credentials", s.adminToken,
		gin.H{"username": "svc", "password": "hunter2", "api_key": "k-123"})
	s.Require().Equal(http.StatusOK, code)
	s.NotContains(string(resp.Data), "hunter2")
	s.NotContains(string(resp.Data), "k-123")
	s.Contains(string(resp.Data), `"has_api_key":true`)

	code, resp = s.request(http.MethodPost, "/v1/admin/vendors/ridgeline/test-connection", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, code)
	s.decode(resp.Data, &result)
	s.True(result.Success)
}

func (s *APITestSuite) TestArchiveProduct() {
	s.feeds["ridgeline"].set(nil, vendors.RawRecord{"upc": exampleUPC, "sku": "R", "name": "Scope"})
	code, _ := s.request(http.MethodPost, "/v1/admin/vendors/ridgeline/sync", s.adminToken, gin.H{})
	s.Require().Equal(http.StatusOK, code)

	code, _ = s.request(http.MethodPut, "/v1/admin/products/"+exampleUPC+"/archive", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, code)

	code, resp := s.request(http.MethodGet, "/v1/products", s.operatorToken, nil)
	s.Require().Equal(http.StatusOK, code)
	var list []models.Product
	s.decode(resp.Data, &list)
	s.Empty(list)

	code, resp = s.request(http.MethodGet, "/v1/products?status=archived", s.operatorToken, nil)
	s.Require().Equal(http.StatusOK, code)
	s.decode(resp.Data, &list)
	s.Len(list, 1)
}

func (s *APITestSuite) TestMutationsAreAudited() {
	code, _ := s.request(http.MethodPut, "/v1/admin/vendors/cascade/image-quality", s.adminToken, gin.H{"image_quality": "high"})
	s.Require().Equal(http.StatusOK, code)

	code, resp := s.request(http.MethodGet, "/v1/admin/audit-logs?resource_type=vendor&resource_id=cascade", s.operatorToken, nil)
	s.Require().Equal(http.StatusOK, code)
	var logs []models.AuditLog
	s.decode(resp.Data, &logs)
	s.Require().NotEmpty(logs)
	s.Equal("alice", logs[0].Actor)

	// the request-level row is written asynchronously
	s.Eventually(func() bool {
		var count int64
		s.db.Model(&models.AuditLog{}).
			Where("action = ? AND actor = ?", "PUT /v1/admin/vendors/:slug/image-quality", "alice").
			Count(&count)
		return count == 1
	}, time.Second, 10*time.Millisecond)
}

func (s *APITestSuite) TestQueueStatsAndCatalogStats() {
	code, resp := s.request(http.MethodGet, "/v1/admin/queue", s.operatorToken, nil)
	s.Require().Equal(http.StatusOK, code)
	var stats services.QueueStats
	s.decode(resp.Data, &stats)
	s.Equal(2, stats.Limit)

	code, _ = s.request(http.MethodGet, "/v1/admin/stats", s.operatorToken, nil)
	s.Equal(http.StatusOK, code)
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
