package transfer

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/library"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/store"
	"github.com/vrsandeep/mango-tracker/internal/util"
	"go.uber.org/zap"
)

// ParseMAL reads a MyAnimeList manga export:
//
//	<myanimelist><manga><manga_title/><my_status/><my_read_chapters/></manga>...</myanimelist>
//
// Nodes without a title are skipped. Statuses are normalized, so "On-Hold"
// becomes "On Hold".
func ParseMAL(data []byte) ([]models.Bookmark, error) {
	data, err := maybeDecompress(data)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "decompress: %v", err)
	}
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "xml: %v", err)
	}
	nodes, err := xmlquery.QueryAll(doc, "//manga")
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "xml: %v", err)
	}
	if len(nodes) == 0 {
		return nil, errors.Wrap(ErrInvalidSnapshot, "no <manga> nodes")
	}

	out := make([]models.Bookmark, 0, len(nodes))
	for _, n := range nodes {
		title := strings.TrimSpace(childText(n, "manga_title"))
		if title == "" {
			continue
		}
		b := models.Bookmark{
			Title:  title,
			Status: util.NormalizeStatus(childText(n, "my_status")),
		}
		if c, err := strconv.Atoi(strings.TrimSpace(childText(n, "my_read_chapters"))); err == nil && c > 0 {
			b.ReadChapters = models.ChapterCount(c)
		}
		out = append(out, b)
	}
	return out, nil
}

func childText(n *xmlquery.Node, name string) string {
	if c := xmlquery.FindOne(n, name); c != nil {
		return c.InnerText()
	}
	return ""
}

// ImportMAL stores the bookmarks of a MAL export in the raw bookmark list.
// The library itself is left to bookmark reconciliation.
func (s *Service) ImportMAL(ctx context.Context, data []byte) (int, error) {
	bookmarks, err := ParseMAL(data)
	if err != nil {
		return 0, err
	}
	err = s.engine.Exclusive(ctx, func(ctx context.Context, st *store.Store) error {
		stored, err := st.Bookmarks(ctx)
		if err != nil {
			return err
		}
		return st.SaveBookmarks(ctx, library.UpsertBookmarks(stored, bookmarks))
	})
	if err != nil {
		return 0, errors.Wrap(err, "transfer: mal import")
	}
	s.log.Info("MAL export imported", zap.Int("bookmarks", len(bookmarks)))
	s.engine.Notify(ctx, library.LibraryUpdate{Action: "bookmarks", Count: len(bookmarks)})
	return len(bookmarks), nil
}
