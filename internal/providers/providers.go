// Package providers holds the contract shared by the catalog metadata clients
// and the retry helpers both of them use.
package providers

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"golang.org/x/time/rate"
)

// MetadataProvider resolves a free-text title to catalog metadata. A nil
// result with a nil error means "not found", including when retries ran out.
type MetadataProvider interface {
	FetchByTitle(ctx context.Context, title string) (*models.CatalogMetadata, error)
}

// Classified request failures. They never cross a client's public API; the
// retry loops use them to pick the next step.
var (
	ErrRateLimited = errors.New("provider: rate limited")
	ErrTransient   = errors.New("provider: transient failure")
	ErrMalformed   = errors.New("provider: malformed response")
)

// Classify maps an HTTP status code onto the error taxonomy. A nil return
// means the body should be parsed.
func Classify(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return ErrTransient
	case status >= 400:
		return ErrMalformed
	}
	return nil
}

// NewLimiter returns a limiter that lets one request through per interval.
// Callers arriving early are delayed by Wait, never rejected.
func NewLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Backoff returns base * 2^retry.
func Backoff(base time.Duration, retry int) time.Duration {
	return time.Duration(float64(base) * math.Pow(2, float64(retry)))
}

// RateLimitDelay is min(Retry-After, base * 2^retry). A missing or invalid
// header falls back to the backoff alone.
func RateLimitDelay(header string, base time.Duration, retry int) time.Duration {
	backoff := Backoff(base, retry)
	suggested, ok := parseRetryAfter(header)
	if !ok || suggested > backoff {
		return backoff
	}
	return suggested
}

func parseRetryAfter(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(header); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
