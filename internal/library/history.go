package library

import (
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/util"
)

// recordChapter appends chapter to the history under key, keeping the list
// sorted and free of duplicates.
func recordChapter(history models.ReadingHistory, key, chapter string) {
	if key == "" {
		return
	}
	if labels, added := util.AddChapter(history[key], chapter); added {
		history[key] = labels
	}
}

// resolveReadCount derives the read-chapter count for an event. The first
// source that yields a value wins: the explicit count, the history under the
// exact title, under the normalized slug-identity, then under the raw slug.
func resolveReadCount(history models.ReadingHistory, explicit *int, title, slug string) int {
	if explicit != nil && *explicit >= 0 {
		return *explicit
	}
	keys := []string{title}
	if slug != "" {
		keys = append(keys, util.Normalize(util.SlugIdentity(slug)), slug)
	}
	for _, k := range keys {
		if labels, ok := history[k]; ok && k != "" {
			return len(labels)
		}
	}
	return 0
}
