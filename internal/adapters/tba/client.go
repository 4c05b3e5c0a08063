// Package tba is a caching client for The Blue Alliance read API.
package tba

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/pkg/logger"
	"github.com/okian/scoutcalc/pkg/metrics"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the TBA v3 API root.
const DefaultBaseURL = "https://www.thebluealliance.com/api/v3"

const (
	defaultTimeout      = 5 * time.Second
	defaultRatePerSec   = 5
	headerAuthKey       = "X-TBA-Auth-Key"
	headerIfNoneMatch   = "If-None-Match"
	headerETag          = "ETag"
	outcomeOK           = "ok"
	outcomeNotModified  = "not_modified"
	outcomeError        = "error"
	maxErrorBodyPreview = 256
)

// Cache persists responses by API path.
type Cache interface {
	GetTBACache(ctx context.Context, url string) (store.TBACacheEntry, bool, error)
	UpdateTBACache(ctx context.Context, url string, data any, etag string) error
}

// Client fetches TBA paths with etag revalidation against Cache.
type Client struct {
	baseURL string
	authKey string
	cache   Cache
	http    *http.Client
	limiter *rate.Limiter
	log     logger.Logger
}

// New creates a client. authKey is sent with every request.
func New(baseURL, authKey string, cache Cache, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		authKey: authKey,
		cache:   cache,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(defaultRatePerSec, 1),
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the decoded response for path. A 304 answer returns the
// cached body. Network failures return ErrUnavailable and leave the cache
// untouched.
func (c *Client) Get(ctx context.Context, path string) (any, error) {
	path = strings.TrimLeft(path, "/")
	cached, hit, err := c.cache.GetTBACache(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read tba cache %s: %w", path, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(headerAuthKey, c.authKey)
	if hit && cached.ETag != "" {
		req.Header.Set(headerIfNoneMatch, cached.ETag)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordTBARequest(outcomeError, elapsed)
		c.log.Warn(ctx, "tba request failed", logger.String("path", path), logger.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		metrics.RecordTBARequest(outcomeNotModified, elapsed)
		if !hit {
			return nil, fmt.Errorf("%w: 304 for uncached %s", ErrUnexpectedStatus, path)
		}
		c.log.Debug(ctx, "tba not modified", logger.String("path", path))
		return cached.Data, nil
	case http.StatusOK:
		var data any
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			metrics.RecordTBARequest(outcomeError, elapsed)
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		metrics.RecordTBARequest(outcomeOK, elapsed)
		if err := c.cache.UpdateTBACache(ctx, path, data, resp.Header.Get(headerETag)); err != nil {
			return nil, fmt.Errorf("update tba cache %s: %w", path, err)
		}
		return data, nil
	default:
		metrics.RecordTBARequest(outcomeError, elapsed)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyPreview))
		c.log.Warn(ctx, "tba unexpected status",
			logger.String("path", path),
			logger.Int("status", resp.StatusCode),
			logger.String("body", string(body)))
		return nil, fmt.Errorf("%w: %d for %s", ErrUnexpectedStatus, resp.StatusCode, path)
	}
}

// Cached returns the last stored response for path without a request.
func (c *Client) Cached(ctx context.Context, path string) (any, bool, error) {
	e, ok, err := c.cache.GetTBACache(ctx, strings.TrimLeft(path, "/"))
	return e.Data, ok, err
}

// MatchesPath is the qualification and playoff match list of an event.
func MatchesPath(event string) string { return "event/" + event + "/matches" }

// TeamsPath is the simple team list of an event.
func TeamsPath(event string) string { return "event/" + event + "/teams/simple" }

// RankingsPath is the ranking table of an event.
func RankingsPath(event string) string { return "event/" + event + "/rankings" }
