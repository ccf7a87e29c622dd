package library

import (
	"context"
	"sort"

	"github.com/vrsandeep/mango-tracker/internal/events"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/util"
)

// richness orders entries by how much we know about them: real metadata,
// then a NOT_FOUND sentinel, then nothing.
func richness(e *models.LibraryEntry) int {
	switch {
	case e.HasMetadata():
		return 2
	case e.AnilistData != nil:
		return 1
	}
	return 0
}

// identityKey is the slug-identity of a stored entry.
func identityKey(e *models.LibraryEntry) string {
	return util.IdentityKey(e.MangaSlug, e.Title)
}

// Dedupe returns entries with duplicate identities removed. Entries are
// ranked by richness and then by most recent read; the best entry of every
// provider id and slug-identity survives. The input is not modified and
// Dedupe(Dedupe(x)) equals Dedupe(x).
func Dedupe(entries []models.LibraryEntry) []models.LibraryEntry {
	sorted := make([]models.LibraryEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := richness(&sorted[i]), richness(&sorted[j])
		if ri != rj {
			return ri > rj
		}
		return sorted[i].LastRead > sorted[j].LastRead
	})

	seenIDs := make(map[models.ProviderID]struct{})
	seenKeys := make(map[string]struct{})
	out := make([]models.LibraryEntry, 0, len(sorted))
	for i := range sorted {
		e := &sorted[i]
		id := e.ProviderID()
		key := identityKey(e)
		if _, dup := seenIDs[id]; id != "" && dup {
			continue
		}
		if _, dup := seenKeys[key]; key != "" && dup {
			continue
		}
		if id != "" {
			seenIDs[id] = struct{}{}
		}
		if key != "" {
			seenKeys[key] = struct{}{}
		}
		out = append(out, *e)
	}
	return out
}

// Deduplicate runs the dedupe pass over the stored library and returns the
// number of entries removed.
func (e *Engine) Deduplicate(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.store.Entries(ctx)
	if err != nil {
		return 0, err
	}
	deduped := Dedupe(entries)
	removed := len(entries) - len(deduped)
	if removed == 0 {
		return 0, nil
	}
	if err := e.store.SaveEntries(ctx, deduped); err != nil {
		return 0, err
	}
	e.publish(ctx, events.TopicLibraryUpdated, LibraryUpdate{Action: "dedupe", Count: removed})
	return removed, nil
}

// findMatch returns the index of the entry matching a title and slug by
// normalized title or by slug-identity, or -1.
func findMatch(entries []models.LibraryEntry, title, slug string) int {
	norm := util.Normalize(title)
	key := util.IdentityKey(slug, title)
	for i := range entries {
		if norm != "" && util.Normalize(entries[i].Title) == norm {
			return i
		}
		if key != "" && identityKey(&entries[i]) == key {
			return i
		}
	}
	return -1
}

// findByProviderID returns the index of the entry carrying id, or -1.
func findByProviderID(entries []models.LibraryEntry, id models.ProviderID) int {
	if id == "" {
		return -1
	}
	for i := range entries {
		if entries[i].ProviderID() == id {
			return i
		}
	}
	return -1
}

// findBookmarkMatch matches a scraped title, which carries no slug, against
// stored entries. Strict normalization tolerates punctuation drift.
func findBookmarkMatch(entries []models.LibraryEntry, title string) int {
	key := util.IdentityKey("", title)
	for i := range entries {
		if util.SameTitle(entries[i].Title, title) {
			return i
		}
		if key != "" && identityKey(&entries[i]) == key {
			return i
		}
	}
	return -1
}
