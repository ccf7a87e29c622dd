package library

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/util"
)

// mangaNamespace scopes the name-based ids of personal data records.
var mangaNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/vrsandeep/mango-tracker/manga"))

// MangaID derives the stable personal-data key of a title from its
// slug-identity, so the key survives site-specific slug suffixes.
func MangaID(slug, title string) string {
	return uuid.NewSHA1(mangaNamespace, []byte(util.IdentityKey(slug, title))).String()
}

// EntryMangaID is MangaID for a stored entry.
func EntryMangaID(e models.LibraryEntry) string {
	return MangaID(e.MangaSlug, e.Title)
}

// PersonalData returns the annotations stored under id.
func (e *Engine) PersonalData(ctx context.Context, id string) (models.PersonalData, bool, error) {
	all, err := e.store.PersonalData(ctx)
	if err != nil {
		return models.PersonalData{}, false, err
	}
	data, ok := all[id]
	if data.Tags == nil {
		data.Tags = []string{}
	}
	return data, ok, nil
}

// SetPersonalData replaces the annotations under id. The rating is clamped
// to 0..10, tags are trimmed and deduplicated, and lastModified is stamped.
func (e *Engine) SetPersonalData(ctx context.Context, id string, data models.PersonalData) (models.PersonalData, error) {
	data = sanitizePersonalData(data)
	data.LastModified = e.nowMillis()

	e.mu.Lock()
	defer e.mu.Unlock()

	all, err := e.store.PersonalData(ctx)
	if err != nil {
		return models.PersonalData{}, err
	}
	all[id] = data
	if err := e.store.SavePersonalData(ctx, all); err != nil {
		return models.PersonalData{}, err
	}
	return data, nil
}

func sanitizePersonalData(data models.PersonalData) models.PersonalData {
	switch {
	case data.Rating < 0:
		data.Rating = 0
	case data.Rating > 10:
		data.Rating = 10
	}
	data.Notes = strings.TrimSpace(data.Notes)

	tags := make([]string, 0, len(data.Tags))
	seen := make(map[string]struct{}, len(data.Tags))
	for _, t := range data.Tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, t)
	}
	data.Tags = tags
	return data
}
