// Package scraper drives bookmark-page sources. A source returns the raw
// (title, status) pairs of one page; an empty page ends the pagination.
package scraper

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/models"
)

// Source is one site's bookmark or history listing.
type Source interface {
	Name() string
	// FetchPage returns the bookmarks on a 1-based page. An empty result
	// means there are no more pages.
	FetchPage(ctx context.Context, page int) ([]models.Bookmark, error)
}

// PageFunc consumes one non-empty page.
type PageFunc func(ctx context.Context, page int, items []models.Bookmark) error

// Result summarizes a pagination run.
type Result struct {
	Pages int `json:"pages"`
	Items int `json:"items"`
}

// Paginate requests pages 1, 2, ... until a page comes back empty or
// maxPages pages were consumed. maxPages <= 0 means no limit.
func Paginate(ctx context.Context, src Source, maxPages int, fn PageFunc) (Result, error) {
	var res Result
	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		items, err := src.FetchPage(ctx, page)
		if err != nil {
			return res, errors.Wrapf(err, "%s: page %d", src.Name(), page)
		}
		if len(items) == 0 {
			break
		}
		if err := fn(ctx, page, items); err != nil {
			return res, err
		}
		res.Pages++
		res.Items += len(items)
	}
	return res, nil
}

// StaticSource serves pre-split pages. It backs tests and file-based imports.
type StaticSource struct {
	SourceName string
	Pages      [][]models.Bookmark
	Requested  []int
}

func (s *StaticSource) Name() string { return s.SourceName }

func (s *StaticSource) FetchPage(_ context.Context, page int) ([]models.Bookmark, error) {
	s.Requested = append(s.Requested, page)
	if page < 1 || page > len(s.Pages) {
		return nil, nil
	}
	return s.Pages[page-1], nil
}
