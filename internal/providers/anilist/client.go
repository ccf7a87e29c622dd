// Package anilist is the primary catalog metadata client. It talks to the
// AniList GraphQL endpoint and walks a fixed sequence of title-cleaning
// strategies before giving up on a title.
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/config"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/providers"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client resolves titles against AniList. One instance owns the rate limiter
// for every caller in the process.
type Client struct {
	client      *http.Client
	apiURL      string
	limiter     *rate.Limiter
	maxRetries  int
	backoffBase time.Duration
	log         *zap.Logger

	// Sleep waits between retries. Tests replace it to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client from the provider configuration.
func New(cfg config.ProviderConfig, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		client:      &http.Client{Timeout: timeout},
		apiURL:      cfg.URL,
		limiter:     providers.NewLimiter(cfg.MinInterval),
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		log:         log.Named("anilist"),
		Sleep:       providers.SleepContext,
	}
}

var _ providers.MetadataProvider = (*Client)(nil)

// FetchByTitle searches for title and returns the best-ranked candidate. It
// returns nil, nil when nothing matched or every attempt failed; the only
// error it reports is context cancellation.
func (c *Client) FetchByTitle(ctx context.Context, title string) (*models.CatalogMetadata, error) {
	attempt := 0     // advances the cleaning strategy
	rateRetries := 0 // 429s, which retry the same search term
	lastTerm := ""

	for attempt <= c.maxRetries {
		term := searchTerm(title, attempt)
		if term == "" || (term == lastTerm && attempt > 0) {
			// This strategy produces the same search as the one that just
			// came back empty.
			if attempt >= strategyAggressive {
				break
			}
			attempt++
			continue
		}

		var resp searchResponse
		retryAfter, err := c.post(ctx, graphQLRequest{
			Query:     searchQuery,
			Variables: map[string]any{"search": term},
		}, &resp)

		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()

		case errors.Is(err, providers.ErrRateLimited):
			if rateRetries >= c.maxRetries {
				c.log.Warn("rate limit retries exhausted", zap.String("title", title), zap.Int("attempt", attempt))
				return nil, nil
			}
			delay := providers.RateLimitDelay(retryAfter, c.backoffBase, rateRetries)
			c.log.Debug("rate limited, retrying same search", zap.String("term", term), zap.Duration("delay", delay))
			rateRetries++
			if err := c.Sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue

		case errors.Is(err, providers.ErrTransient):
			c.log.Debug("transient failure", zap.String("term", term), zap.Int("attempt", attempt), zap.Error(err))
			if err := c.Sleep(ctx, providers.Backoff(c.backoffBase, attempt)); err != nil {
				return nil, err
			}
			attempt++
			continue

		case err != nil:
			// Malformed bodies count as zero results.
			c.log.Debug("malformed response", zap.String("term", term), zap.Error(err))
		case len(resp.Errors) > 0:
			c.log.Debug("response carried errors", zap.String("term", term), zap.String("error", resp.Errors[0].Message))
		default:
			if best := pickBest(resp.Data.Page.Media); best != nil {
				return best.toMetadata(), nil
			}
		}

		lastTerm = term
		if attempt >= strategyAggressive {
			// Later attempts would repeat the aggressive search.
			break
		}
		attempt++
	}

	c.log.Info("no match", zap.String("title", title), zap.Int("attempt", attempt))
	return nil, nil
}

// FetchByID loads a known AniList id. It follows the same retry rules as
// FetchByTitle without the cleaning strategies.
func (c *Client) FetchByID(ctx context.Context, id models.ProviderID) (*models.CatalogMetadata, error) {
	n, err := strconv.Atoi(id.String())
	if err != nil {
		return nil, nil
	}

	rateRetries := 0
	for attempt := 0; attempt <= c.maxRetries; {
		var resp mediaResponse
		retryAfter, err := c.post(ctx, graphQLRequest{
			Query:     byIDQuery,
			Variables: map[string]any{"id": n},
		}, &resp)

		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, providers.ErrRateLimited):
			if rateRetries >= c.maxRetries {
				return nil, nil
			}
			if err := c.Sleep(ctx, providers.RateLimitDelay(retryAfter, c.backoffBase, rateRetries)); err != nil {
				return nil, err
			}
			rateRetries++
		case errors.Is(err, providers.ErrTransient):
			if err := c.Sleep(ctx, providers.Backoff(c.backoffBase, attempt)); err != nil {
				return nil, err
			}
			attempt++
		case err != nil, len(resp.Errors) > 0, resp.Data.Media == nil:
			c.log.Info("id lookup returned nothing", zap.String("id", id.String()))
			return nil, nil
		default:
			return resp.Data.Media.toMetadata(), nil
		}
	}
	return nil, nil
}

// post sends one GraphQL request after waiting for the limiter. For 429
// responses it returns the Retry-After header alongside ErrRateLimited.
func (c *Client) post(ctx context.Context, body graphQLRequest, out any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", errors.Wrap(err, "encode request")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(providers.ErrTransient, err.Error())
	}
	defer resp.Body.Close()

	if err := providers.Classify(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return resp.Header.Get("Retry-After"), errors.Wrapf(err, "status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", errors.Wrap(providers.ErrMalformed, err.Error())
	}
	return "", nil
}
