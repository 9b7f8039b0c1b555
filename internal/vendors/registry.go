package vendors

import (
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/javajoker/catalog-backend/internal/config"
	"github.com/javajoker/catalog-backend/internal/models"
)

// Registry builds adapters for vendor rows and holds the field mapping table.
type Registry struct {
	cfg        config.SyncConfig
	httpClient *http.Client

	mu        sync.RWMutex
	mappings  map[string]*FieldMapping
	overrides map[string]Adapter
	limiters  map[string]*rate.Limiter
}

func NewRegistry(cfg config.SyncConfig, mappings ...*FieldMapping) *Registry {
	r := &Registry{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		mappings:   make(map[string]*FieldMapping),
		overrides:  make(map[string]Adapter),
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, m := range mappings {
		r.RegisterMapping(m)
	}
	return r
}

func (r *Registry) RegisterMapping(m *FieldMapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[m.VendorSlug] = m
}

// RegisterAdapter replaces the transport-derived adapter for one vendor.
func (r *Registry) RegisterAdapter(slug string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[slug] = a
}

func (r *Registry) Mapping(slug string) (*FieldMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappings[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoMapping, slug)
	}
	return m, nil
}

func (r *Registry) Mappings() []*FieldMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*FieldMapping, 0, len(r.mappings))
	for _, m := range r.mappings {
		out = append(out, m)
	}
	return out
}

func (r *Registry) Adapter(v *models.Vendor) (Adapter, error) {
	r.mu.RLock()
	override, ok := r.overrides[v.Slug]
	r.mu.RUnlock()
	if ok {
		return override, nil
	}

	retry := RetryPolicy{
		Attempts:  r.cfg.FetchAttempts,
		BaseDelay: r.cfg.BackoffBase,
	}

	switch v.FeedType {
	case models.FeedTypeREST:
		return NewRESTAdapter(RESTOptions{
			Vendor:      v.Slug,
			BaseURL:     v.Endpoint,
			Path:        v.FeedPath,
			PageSize:    r.cfg.PageSize,
			MaxPages:    r.cfg.MaxPages,
			HTTPClient:  r.httpClient,
			RateLimiter: r.limiter(v.Slug),
			Retry:       retry,
		}), nil
	case models.FeedTypeSOAP:
		return NewSOAPAdapter(SOAPOptions{
			Vendor:      v.Slug,
			Endpoint:    v.Endpoint,
			HTTPClient:  r.httpClient,
			RateLimiter: r.limiter(v.Slug),
			Retry:       retry,
		}), nil
	case models.FeedTypeFTPCSV:
		return NewFTPCSVAdapter(FTPCSVOptions{
			Vendor:  v.Slug,
			Addr:    v.Endpoint,
			Path:    v.FeedPath,
			Timeout: r.cfg.HTTPTimeout,
			Retry:   retry,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unsupported feed type %q", ErrFeedConfig, v.FeedType)
	}
}

// limiter returns the outbound limiter shared by every adapter for slug.
func (r *Registry) limiter(slug string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[slug]
	if !ok {
		limit := rate.Inf
		if r.cfg.RequestsPerSec > 0 {
			limit = rate.Limit(r.cfg.RequestsPerSec)
		}
		l = rate.NewLimiter(limit, 1)
		r.limiters[slug] = l
	}
	return l
}
