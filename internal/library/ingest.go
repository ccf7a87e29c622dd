package library

import (
	"context"
	"strings"

	"github.com/vrsandeep/mango-tracker/internal/events"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/providers/mangadex"
	"github.com/vrsandeep/mango-tracker/internal/util"
	"go.uber.org/zap"
)

// ReadingEvent is one chapter read on a supported site.
type ReadingEvent struct {
	Title     string `json:"title"`
	Chapter   string `json:"chapter"`
	Slug      string `json:"slug,omitempty"` // "solo-leveling.12345"
	ReadCount *int   `json:"readCount,omitempty"`
	Source    string `json:"source,omitempty"`
	SourceID  string `json:"sourceId,omitempty"`
}

// resolution is the outcome of a provider lookup for a new title.
type resolution struct {
	meta             *models.CatalogMetadata
	secondaryChecked bool
}

// Ingest records an event in the background. Failures are logged.
func (e *Engine) Ingest(ev ReadingEvent) {
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		if err := e.RecordReadingEvent(context.Background(), ev); err != nil {
			e.log.Error("failed to record reading event",
				zap.String("title", ev.Title),
				zap.String("chapter", ev.Chapter),
				zap.Error(err))
		}
	}()
}

// RecordReadingEvent folds a reading event into the library. A known title
// is updated without any provider call. An unknown one is resolved against
// the providers outside the lock and then appended, unless another flow
// created it in the meantime.
func (e *Engine) RecordReadingEvent(ctx context.Context, ev ReadingEvent) error {
	ev.Title = strings.TrimSpace(ev.Title)
	ev.Chapter = strings.TrimSpace(ev.Chapter)
	ev.Slug = strings.TrimSpace(ev.Slug)
	if ev.Title == "" {
		return ErrEmptyTitle
	}

	matched, err := e.applyIfKnown(ctx, ev)
	if err != nil || matched {
		return err
	}

	// Concurrent events for the same new title share one lookup.
	v, err, _ := e.resolves.Do(util.IdentityKey(ev.Slug, ev.Title), func() (any, error) {
		return e.resolve(ctx, ev.Title)
	})
	if err != nil {
		return err
	}
	return e.insertResolved(ctx, ev, v.(resolution))
}

// applyIfKnown is the fast path.
func (e *Engine) applyIfKnown(ctx context.Context, ev ReadingEvent) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, history, err := e.loadLibrary(ctx)
	if err != nil {
		return false, err
	}
	entries = Dedupe(entries)

	i := findMatch(entries, ev.Title, ev.Slug)
	if i < 0 {
		return false, nil
	}
	e.applyEvent(ctx, &entries[i], ev, history)
	if err := e.store.SaveLibrary(ctx, entries, history); err != nil {
		return true, err
	}
	e.publish(ctx, events.TopicLibraryUpdated, LibraryUpdate{Action: "read", Title: entries[i].Title})
	return true, nil
}

// insertResolved is the second half of the slow path. The library is
// re-read and the match re-validated, since other flows may have written
// while the providers were consulted.
func (e *Engine) insertResolved(ctx context.Context, ev ReadingEvent, res resolution) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, history, err := e.loadLibrary(ctx)
	if err != nil {
		return err
	}
	entries = Dedupe(entries)
	now := e.nowMillis()

	i := findMatch(entries, ev.Title, ev.Slug)
	if i < 0 && res.meta != nil && !res.meta.IsNotFound() {
		// Same title under another name.
		i = findByProviderID(entries, res.meta.ID)
	}

	action := "read"
	if i >= 0 {
		entry := &entries[i]
		if !entry.HasMetadata() && res.meta != nil {
			entry.AnilistData = res.meta
			entry.LastChecked = now
		}
		e.applyEvent(ctx, entry, ev, history)
	} else {
		action = "added"
		recordChapter(history, ev.Title, ev.Chapter)
		entry := models.LibraryEntry{
			Title:           ev.Title,
			Status:          models.StatusReading,
			MangaSlug:       ev.Slug,
			LastChapterRead: models.FlexString(ev.Chapter),
			ReadChapters:    models.ChapterCount(resolveReadCount(history, ev.ReadCount, ev.Title, ev.Slug)),
			LastRead:        now,
			LastUpdated:     now,
			LastChecked:     now,
			AnilistData:     res.meta,
			Source:          ev.Source,
			SourceID:        models.FlexString(ev.SourceID),
		}
		if res.secondaryChecked {
			entry.MangadexChecked = models.CheckedAt(now)
		}
		entries = append(entries, entry)
		i = len(entries) - 1
	}

	title := entries[i].Title
	if err := e.store.SaveLibrary(ctx, entries, history); err != nil {
		return err
	}
	e.publish(ctx, events.TopicLibraryUpdated, LibraryUpdate{Action: action, Title: title})
	return nil
}

// applyEvent updates a matched entry in place. Callers hold e.mu.
func (e *Engine) applyEvent(ctx context.Context, entry *models.LibraryEntry, ev ReadingEvent, history models.ReadingHistory) {
	now := e.nowMillis()
	recordChapter(history, ev.Title, ev.Chapter)

	entry.LastRead = now
	entry.LastUpdated = now
	if ev.Chapter != "" {
		entry.LastChapterRead = models.FlexString(ev.Chapter)
	}
	if ev.Slug != "" {
		entry.MangaSlug = ev.Slug
	}
	if ev.Source != "" {
		entry.Source = ev.Source
	}
	if ev.SourceID != "" {
		entry.SourceID = models.FlexString(ev.SourceID)
	}

	// The count never regresses.
	if n := models.ChapterCount(resolveReadCount(history, ev.ReadCount, ev.Title, ev.Slug)); n > entry.ReadChapters {
		entry.ReadChapters = n
	}

	if e.shouldAutoComplete(ctx, entry, ev.Chapter) {
		entry.Status = models.StatusCompleted
	}
}

// shouldAutoComplete applies the smart auto-complete rule: the flag is on,
// the series is finished with a known chapter total, and the chapter just
// read reaches it.
func (e *Engine) shouldAutoComplete(ctx context.Context, entry *models.LibraryEntry, chapter string) bool {
	if entry.Status == models.StatusCompleted || !entry.HasMetadata() {
		return false
	}
	meta := entry.AnilistData
	if meta.Chapters <= 0 || meta.Status != models.SeriesFinished {
		return false
	}
	n, ok := util.ParseChapterNumber(chapter)
	if !ok || n < float64(meta.Chapters) {
		return false
	}
	return e.store.SmartAutoComplete(ctx)
}

// resolve looks a new title up: primary first, the secondary as a fallback
// or backfill. Both failing yields a NOT_FOUND sentinel. If ctx ends during
// a lookup the error is returned and nothing is resolved.
func (e *Engine) resolve(ctx context.Context, title string) (resolution, error) {
	var res resolution
	var primary *models.CatalogMetadata
	if e.primary != nil {
		var err error
		if primary, err = e.primary.FetchByTitle(ctx, title); err != nil {
			if interrupted(ctx, err) {
				return res, err
			}
			e.log.Warn("primary lookup failed", zap.String("title", title), zap.Error(err))
		}
	}

	var secondary *models.CatalogMetadata
	if e.secondary != nil && primary.Incomplete() {
		var err error
		if secondary, err = e.secondary.FetchByTitle(ctx, title); err != nil {
			if interrupted(ctx, err) {
				return res, err
			}
			e.log.Warn("secondary lookup failed", zap.String("title", title), zap.Error(err))
		}
		res.secondaryChecked = true
	}

	res.meta = mangadex.Backfill(primary, secondary)
	if res.meta == nil {
		res.meta = models.NotFound(title, "", e.nowMillis())
	}
	return res, nil
}
