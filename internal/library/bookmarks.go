package library

import (
	"context"
	"strings"

	"github.com/vrsandeep/mango-tracker/internal/events"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/scraper"
	"github.com/vrsandeep/mango-tracker/internal/util"
	"go.uber.org/zap"
)

// BookmarkResult counts what folding bookmarks into the library changed.
type BookmarkResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// ApplyBookmarkPage stores one scraped page in the raw bookmark list and
// folds it into the library.
func (e *Engine) ApplyBookmarkPage(ctx context.Context, page []models.Bookmark) (BookmarkResult, error) {
	page = cleanBookmarks(page)
	if len(page) == 0 {
		return BookmarkResult{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	stored, err := e.store.Bookmarks(ctx)
	if err != nil {
		return BookmarkResult{}, err
	}
	if err := e.store.SaveBookmarks(ctx, UpsertBookmarks(stored, page)); err != nil {
		return BookmarkResult{}, err
	}
	return e.foldBookmarks(ctx, page)
}

// ReconcileBookmarks folds the whole stored bookmark list into the library.
func (e *Engine) ReconcileBookmarks(ctx context.Context) (BookmarkResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stored, err := e.store.Bookmarks(ctx)
	if err != nil {
		return BookmarkResult{}, err
	}
	return e.foldBookmarks(ctx, cleanBookmarks(stored))
}

// ImportFromSource paginates src until its empty-page signal and applies
// every page as it arrives.
func (e *Engine) ImportFromSource(ctx context.Context, src scraper.Source, maxPages int) (BookmarkResult, error) {
	var total BookmarkResult
	res, err := scraper.Paginate(ctx, src, maxPages, func(ctx context.Context, page int, items []models.Bookmark) error {
		r, err := e.ApplyBookmarkPage(ctx, items)
		total.Added += r.Added
		total.Updated += r.Updated
		return err
	})
	e.log.Info("bookmark import finished",
		zap.String("source", src.Name()),
		zap.Int("pages", res.Pages),
		zap.Int("items", res.Items),
		zap.Int("added", total.Added))
	return total, err
}

// foldBookmarks matches bookmarks against the library. Callers hold e.mu.
// Matched entries take the scraped status; the rest become new entries
// without metadata for the sweep to enrich.
func (e *Engine) foldBookmarks(ctx context.Context, bookmarks []models.Bookmark) (BookmarkResult, error) {
	var res BookmarkResult
	if len(bookmarks) == 0 {
		return res, nil
	}

	entries, err := e.store.Entries(ctx)
	if err != nil {
		return res, err
	}
	now := e.nowMillis()

	for _, b := range bookmarks {
		if i := findBookmarkMatch(entries, b.Title); i >= 0 {
			entry := &entries[i]
			changed := false
			if b.Status != "" && entry.Status != b.Status {
				entry.Status = b.Status
				changed = true
			}
			if b.ReadChapters > entry.ReadChapters {
				entry.ReadChapters = b.ReadChapters
				changed = true
			}
			if changed {
				entry.LastUpdated = now
				res.Updated++
			}
			continue
		}

		status := b.Status
		if status == "" {
			status = models.StatusPlanToRead
		}
		entries = append(entries, models.LibraryEntry{
			Title:        b.Title,
			Status:       status,
			ReadChapters: b.ReadChapters,
			LastUpdated:  now,
		})
		res.Added++
	}

	if res.Added == 0 && res.Updated == 0 {
		return res, nil
	}
	if err := e.store.SaveEntries(ctx, Dedupe(entries)); err != nil {
		return res, err
	}
	e.publish(ctx, events.TopicLibraryUpdated, LibraryUpdate{Action: "bookmarks", Count: res.Added + res.Updated})
	return res, nil
}

// UpsertBookmarks merges incoming into stored keyed by normalized title;
// incoming wins on collision. Neither input is modified.
func UpsertBookmarks(stored, incoming []models.Bookmark) []models.Bookmark {
	out := make([]models.Bookmark, 0, len(stored)+len(incoming))
	index := make(map[string]int, len(stored)+len(incoming))
	for _, list := range [][]models.Bookmark{stored, incoming} {
		for _, b := range list {
			key := util.Normalize(b.Title)
			if i, ok := index[key]; ok {
				out[i] = b
				continue
			}
			index[key] = len(out)
			out = append(out, b)
		}
	}
	return out
}

func cleanBookmarks(in []models.Bookmark) []models.Bookmark {
	out := make([]models.Bookmark, 0, len(in))
	for _, b := range in {
		b.Title = strings.TrimSpace(b.Title)
		if b.Title == "" {
			continue
		}
		b.Status = util.NormalizeStatus(b.Status)
		out = append(out, b)
	}
	return out
}
