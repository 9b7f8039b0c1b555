package vendors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RESTAdapter reads a paginated JSON catalog endpoint.
type RESTAdapter struct {
	vendor      string
	baseURL     string
	path        string
	pageSize    int
	maxPages    int
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	retry       RetryPolicy
}

type RESTOptions struct {
	Vendor      string
	BaseURL     string
	Path        string
	PageSize    int
	MaxPages    int
	HTTPClient  *http.Client
	RateLimiter *rate.Limiter
	Retry       RetryPolicy
}

func NewRESTAdapter(opts RESTOptions) *RESTAdapter {
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1000
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.RateLimiter == nil {
		opts.RateLimiter = rate.NewLimiter(rate.Inf, 1)
	}

	return &RESTAdapter{
		vendor:      opts.Vendor,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		path:        opts.Path,
		pageSize:    opts.PageSize,
		maxPages:    opts.MaxPages,
		httpClient:  opts.HTTPClient,
		rateLimiter: opts.RateLimiter,
		retry:       opts.Retry,
	}
}

type restPage struct {
	records []RawRecord
	// nextPage is 0 when the feed has no further pages.
	nextPage int
}

func (a *RESTAdapter) Fetch(ctx context.Context, req FetchRequest) ([]RawRecord, error) {
	var records []RawRecord

	page := 1
	for fetched := 0; ; fetched++ {
		if fetched >= a.maxPages {
			return nil, fmt.Errorf("%w: more than %d pages", ErrMalformedFeed, a.maxPages)
		}

		reqURL := a.pageURL(page, a.pageSize, req.Since)
		result, err := withRetry(ctx, a.retry, a.vendor, func() (*restPage, error) {
			return a.getPage(ctx, reqURL, req.Credentials, a.pageSize)
		})
		if err != nil {
			return nil, err
		}

		records = append(records, result.records...)
		if result.nextPage == 0 {
			break
		}
		if result.nextPage < 0 {
			page++
		} else if result.nextPage > page {
			page = result.nextPage
		} else {
			return nil, fmt.Errorf("%w: next_page %d does not advance", ErrMalformedFeed, result.nextPage)
		}
	}

	logrus.WithFields(logrus.Fields{
		"vendor":  a.vendor,
		"records": len(records),
		"pages":   page,
	}).Debug("REST feed fetched")

	return records, nil
}

func (a *RESTAdapter) TestConnection(ctx context.Context, creds Credentials) error {
	reqURL := a.pageURL(1, 1, nil)
	_, err := withRetry(ctx, a.retry, a.vendor, func() (*restPage, error) {
		return a.getPage(ctx, reqURL, creds, 1)
	})
	return err
}

func (a *RESTAdapter) pageURL(page, pageSize int, since *time.Time) string {
	params := url.Values{}
	params.Add("page", strconv.Itoa(page))
	params.Add("page_size", strconv.Itoa(pageSize))
	if since != nil {
		params.Add("updated_since", since.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("%s%s?%s", a.baseURL, a.path, params.Encode())
}

func (a *RESTAdapter) getPage(ctx context.Context, reqURL string, creds Credentials, pageSize int) (*restPage, error) {
	// Wait for rate limiter
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedConfig, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "catalog-sync/1.0")
	setAuth(httpReq, creds)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransient, err)
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return parseRESTPage(body, pageSize)
}

func setAuth(req *http.Request, creds Credentials) {
	switch {
	case creds.APIKey != "":
		req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	case creds.Username != "":
		req.SetBasicAuth(creds.Username, creds.Password)
	}
	if creds.AccountID != "" {
		req.Header.Set("X-Account-ID", creds.AccountID)
	}
}

// classifyStatus maps an HTTP status onto the feed error taxonomy.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, status)
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return fmt.Errorf("%w: status %d", ErrTransient, status)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", ErrFeedConfig, status)
	default:
		return fmt.Errorf("%w: status %d, body: %s", ErrMalformedFeed, status, truncate(string(body), 200))
	}
}

// parseRESTPage accepts {"items":[...],"next_page":n} or a bare array. A bare
// array that fills the page implies another page follows (nextPage -1).
func parseRESTPage(body []byte, pageSize int) (*restPage, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	var items []interface{}
	page := &restPage{}

	switch v := doc.(type) {
	case []interface{}:
		items = v
		if len(items) >= pageSize {
			page.nextPage = -1
		}
	case map[string]interface{}:
		raw, ok := v["items"]
		if !ok {
			return nil, fmt.Errorf("%w: missing items", ErrMalformedFeed)
		}
		if raw != nil {
			if items, ok = raw.([]interface{}); !ok {
				return nil, fmt.Errorf("%w: items is not an array", ErrMalformedFeed)
			}
		}
		if n, ok := v["next_page"].(json.Number); ok {
			next, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("%w: next_page: %v", ErrMalformedFeed, err)
			}
			page.nextPage = int(next)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected top-level JSON", ErrMalformedFeed)
	}

	page.records = make([]RawRecord, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			// A non-object row still counts as a candidate so it is tallied as failed.
			page.records = append(page.records, RawRecord{})
			continue
		}
		rec := RawRecord{}
		flatten(rec, "", obj)
		page.records = append(page.records, rec)
	}

	return page, nil
}

// flatten writes nested objects as dotted keys. Scalar arrays are joined with
// "|"; object arrays are indexed ("images.0.url").
func flatten(rec RawRecord, prefix string, v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			flatten(rec, joinKey(prefix, k), child)
		}
	case []interface{}:
		var scalars []string
		for i, child := range val {
			switch child.(type) {
			case map[string]interface{}, []interface{}:
				flatten(rec, joinKey(prefix, strconv.Itoa(i)), child)
			default:
				if s, ok := scalarString(child); ok {
					scalars = append(scalars, s)
				}
			}
		}
		if len(scalars) > 0 {
			rec[prefix] = strings.Join(scalars, "|")
		}
	default:
		if s, ok := scalarString(val); ok {
			rec[prefix] = s
		}
	}
}

func scalarString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
