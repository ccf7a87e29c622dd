package library

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/providers/mangadex"
	"go.uber.org/zap"
)

// NeedsEnrichment reports whether the sweep should look entry up again.
//
// A NOT_FOUND sentinel is retried only once cooldown has passed since it was
// stamped. Otherwise an entry qualifies when it has no metadata, or has a
// provider id but no chapter count, and it was never checked or last checked
// at least retryWindow ago.
func NeedsEnrichment(entry models.LibraryEntry, now time.Time, retryWindow, cooldown time.Duration) bool {
	nowMs := now.UnixMilli()
	if entry.AnilistData.IsNotFound() {
		checked := entry.AnilistData.LastChecked
		if checked == 0 {
			checked = entry.LastChecked
		}
		return nowMs-checked >= cooldown.Milliseconds()
	}

	meta := entry.AnilistData
	missing := meta == nil || (meta.ID != "" && meta.Chapters == 0)
	if !missing {
		return false
	}
	return entry.LastChecked == 0 || nowMs-entry.LastChecked >= retryWindow.Milliseconds()
}

// enrichment is the metadata-only result of looking one entry up.
type enrichment struct {
	title           string
	identity        string
	meta            *models.CatalogMetadata
	lastChecked     int64
	mangadexChecked models.CheckedAt
	found           bool
}

// enrich looks one entry up. It never holds e.mu. A non-nil error means
// ctx ended during a lookup and the result must be discarded.
func (e *Engine) enrich(ctx context.Context, entry models.LibraryEntry) (enrichment, error) {
	now := e.nowMillis()
	out := enrichment{
		title:           entry.Title,
		identity:        identityKey(&entry),
		lastChecked:     now,
		mangadexChecked: entry.MangadexChecked,
	}

	primary, err := e.lookupPrimary(ctx, entry)
	if err != nil {
		return out, err
	}

	// The secondary is a fallback when the primary has nothing, and a
	// backfill source for incomplete records at most once per cooldown.
	var secondary *models.CatalogMetadata
	if e.secondary != nil && primary.Incomplete() {
		backfillDue := entry.MangadexChecked == 0 ||
			now-int64(entry.MangadexChecked) >= e.cfg.NotFoundCooldown.Milliseconds()
		if primary == nil || backfillDue {
			if secondary, err = e.secondary.FetchByTitle(ctx, entry.Title); err != nil {
				if interrupted(ctx, err) {
					return out, err
				}
				e.log.Warn("secondary lookup failed", zap.String("title", entry.Title), zap.Error(err))
			}
			out.mangadexChecked = models.CheckedAt(now)
		}
	}

	out.meta = mangadex.Backfill(primary, secondary)
	switch {
	case out.meta != nil:
		out.found = true
	case entry.HasMetadata():
		// A failed refresh never throws away metadata we already have.
		out.meta = entry.AnilistData
	default:
		format := ""
		if entry.AnilistData != nil {
			format = entry.AnilistData.Format
		}
		out.meta = models.NotFound(entry.Title, format, now)
	}
	return out, nil
}

// lookupPrimary returns an error only when ctx ended; other provider
// failures are logged and read as no match.
func (e *Engine) lookupPrimary(ctx context.Context, entry models.LibraryEntry) (*models.CatalogMetadata, error) {
	if e.primary == nil {
		return nil, nil
	}
	if byID, ok := e.primary.(idFetcher); ok && entry.HasMetadata() && entry.AnilistData.Source == "" {
		meta, err := byID.FetchByID(ctx, entry.AnilistData.ID)
		if interrupted(ctx, err) {
			return nil, err
		}
		if err != nil {
			e.log.Warn("primary id lookup failed", zap.String("title", entry.Title), zap.Error(err))
		}
		if meta != nil {
			return meta, nil
		}
	}
	meta, err := e.primary.FetchByTitle(ctx, entry.Title)
	if interrupted(ctx, err) {
		return nil, err
	}
	if err != nil {
		e.log.Warn("primary lookup failed", zap.String("title", entry.Title), zap.Error(err))
	}
	return meta, nil
}

// interrupted reports whether a lookup failed because ctx was cancelled
// or timed out, as opposed to the provider having no answer.
func interrupted(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
