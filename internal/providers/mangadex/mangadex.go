// Package mangadex is the secondary catalog metadata client. It keeps its own
// persistent cache of lookups, misses included, and maps MangaDex records
// into the shared metadata shape.
package mangadex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/config"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/providers"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CacheStore persists the lookup cache. *store.Store satisfies it.
type CacheStore interface {
	MangadexCache(ctx context.Context) (map[string]models.CacheRecord, error)
	SaveMangadexCache(ctx context.Context, cache map[string]models.CacheRecord) error
}

// Client implements providers.MetadataProvider for MangaDex.
type Client struct {
	client          *http.Client
	apiBaseURL      string
	coverArtBaseURL string
	limiter         *rate.Limiter
	maxRetries      int
	backoffBase     time.Duration
	ttl             time.Duration
	cache           CacheStore
	log             *zap.Logger

	cacheMu sync.Mutex

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// New creates an instance of the MangaDex client.
func New(cfg config.ProviderConfig, cache CacheStore, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Client{
		client:          &http.Client{Timeout: timeout},
		apiBaseURL:      strings.TrimRight(cfg.URL, "/"),
		coverArtBaseURL: strings.TrimRight(cfg.CoverURL, "/"),
		limiter:         providers.NewLimiter(cfg.MinInterval),
		maxRetries:      cfg.MaxRetries,
		backoffBase:     cfg.BackoffBase,
		ttl:             ttl,
		cache:           cache,
		log:             log.Named("mangadex"),
		Sleep:           providers.SleepContext,
		Now:             time.Now,
	}
}

var _ providers.MetadataProvider = (*Client)(nil)

// CacheKey is the cache slot for a title.
func CacheKey(title string) string {
	return strings.TrimSpace(strings.ToLower(title))
}

// FetchByTitle returns the first search result for title. A fresh cache
// record answers without a network call, including cached misses.
func (p *Client) FetchByTitle(ctx context.Context, title string) (*models.CatalogMetadata, error) {
	key := CacheKey(title)
	if key == "" {
		return nil, nil
	}

	if rec, ok := p.cached(ctx, key); ok {
		if rec.Data.IsNotFound() {
			return nil, nil
		}
		return rec.Data.Clone(), nil
	}

	result, definitive, err := p.search(ctx, title)
	if err != nil {
		return nil, err
	}
	if !definitive {
		// Retries ran out. Not cached so the next pass can try again.
		return nil, nil
	}

	now := p.Now()
	data := result
	if data == nil {
		data = models.NotFound(title, "", now.UnixMilli())
	}
	p.store(ctx, key, models.CacheRecord{Data: data, Timestamp: now.UnixMilli()})
	return result.Clone(), nil
}

func (p *Client) cached(ctx context.Context, key string) (models.CacheRecord, bool) {
	if p.cache == nil {
		return models.CacheRecord{}, false
	}
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()

	cache, err := p.cache.MangadexCache(ctx)
	if err != nil {
		p.log.Warn("cache read failed", zap.Error(err))
		return models.CacheRecord{}, false
	}
	rec, ok := cache[key]
	if !ok || rec.Data == nil {
		return models.CacheRecord{}, false
	}
	age := p.Now().Sub(time.UnixMilli(rec.Timestamp))
	return rec, age < p.ttl
}

// store writes one record and drops expired ones.
func (p *Client) store(ctx context.Context, key string, rec models.CacheRecord) {
	if p.cache == nil {
		return
	}
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()

	cache, err := p.cache.MangadexCache(ctx)
	if err != nil {
		p.log.Warn("cache read failed", zap.Error(err))
		return
	}
	now := p.Now()
	for k, r := range cache {
		if now.Sub(time.UnixMilli(r.Timestamp)) >= p.ttl {
			delete(cache, k)
		}
	}
	cache[key] = rec
	if err := p.cache.SaveMangadexCache(ctx, cache); err != nil {
		p.log.Warn("cache write failed", zap.String("title", key), zap.Error(err))
	}
}

// search runs the retry loop. definitive is false when retries were
// exhausted without an answer.
func (p *Client) search(ctx context.Context, title string) (result *models.CatalogMetadata, definitive bool, err error) {
	for retry := 0; retry <= p.maxRetries; retry++ {
		data, retryAfter, err := p.get(ctx, title)
		switch {
		case ctx.Err() != nil:
			return nil, false, ctx.Err()
		case errors.Is(err, providers.ErrRateLimited):
			if err := p.Sleep(ctx, providers.RateLimitDelay(retryAfter, p.backoffBase, retry)); err != nil {
				return nil, false, err
			}
		case errors.Is(err, providers.ErrTransient):
			if err := p.Sleep(ctx, providers.Backoff(p.backoffBase, retry)); err != nil {
				return nil, false, err
			}
		case err != nil:
			p.log.Debug("malformed response", zap.String("title", title), zap.Error(err))
			return nil, true, nil
		case len(data) == 0:
			return nil, true, nil
		default:
			return p.transform(data[0]), true, nil
		}
	}
	p.log.Warn("retries exhausted", zap.String("title", title), zap.Int("attempt", p.maxRetries))
	return nil, false, nil
}

// get sends a request to the MangaDex API to search for manga.
func (p *Client) get(ctx context.Context, title string) ([]MangaData, string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/manga", p.apiBaseURL), nil)
	if err != nil {
		return nil, "", err
	}

	q := req.URL.Query()
	q.Add("title", title)
	q.Add("limit", "5")
	q.Add("includes[]", "cover_art")
	q.Add("order[relevance]", "desc")
	req.URL.RawQuery = q.Encode()

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(providers.ErrTransient, err.Error())
	}
	defer resp.Body.Close()

	if err := providers.Classify(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.Header.Get("Retry-After"), errors.Wrapf(err, "status %d", resp.StatusCode)
	}

	var apiResponse MangaListResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, "", errors.Wrap(providers.ErrMalformed, err.Error())
	}
	if apiResponse.Result == "error" {
		return nil, "", providers.ErrMalformed
	}
	return apiResponse.Data, "", nil
}
