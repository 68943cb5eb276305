package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Common errors
var (
	ErrFetch  = errors.New("fetch failed")
	ErrDecode = errors.New("decode failed")
)

// Fetcher retrieves asset bytes by URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches over HTTP, keeping recent responses in memory so a
// preloaded URL is never requested twice
type HTTPFetcher struct {
	client *http.Client
	cache  *lru.Cache[string, []byte]
	group  singleflight.Group
	logger zerolog.Logger
}

// NewHTTPFetcher creates a fetcher caching up to entries responses
func NewHTTPFetcher(timeout time.Duration, entries int, logger zerolog.Logger) (*HTTPFetcher, error) {
	if entries <= 0 {
		entries = 1
	}
	cache, err := lru.New[string, []byte](entries)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		cache:  cache,
		logger: logger.With().Str("component", "fetcher").Logger(),
	}, nil
}

// Fetch returns the body of url
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if body, ok := f.cache.Get(url); ok {
		return body, nil
	}
	v, err, _ := f.group.Do(url, func() (any, error) {
		if body, ok := f.cache.Get(url); ok {
			return body, nil
		}
		body, err := f.get(ctx, url)
		if err != nil {
			return nil, err
		}
		f.cache.Add(url, body)
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) ([]byte, error) {
	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		f.logger.Warn().
			Int("status", resp.StatusCode).
			Str("url", url).
			Msg("Asset request failed")
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetch, url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrFetch, err)
	}

	f.logger.Debug().
		Str("url", url).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(startTime)).
		Msg("Asset fetched")
	return body, nil
}

// Cached reports whether url is held in memory
func (f *HTTPFetcher) Cached(url string) bool {
	return f.cache.Contains(url)
}

// Purge drops every cached response
func (f *HTTPFetcher) Purge() {
	f.cache.Purge()
}
