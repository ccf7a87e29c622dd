package transfer

import (
	"strings"

	"github.com/vrsandeep/mango-tracker/internal/library"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/util"
)

// MergeSnapshots combines two snapshots. Keyed lists are merged by
// normalized title (markers by name) with incoming winning on collision,
// history chapter lists are unioned, the cache and settings are shallow
// merged with incoming winning, and personal data keeps the most recently
// modified record. Neither input is modified.
func MergeSnapshots(local, incoming Snapshot) Snapshot {
	merged := Snapshot{Metadata: incoming.Metadata}
	if merged.Metadata == nil {
		merged.Metadata = local.Metadata
	}

	if local.Entries != nil || incoming.Entries != nil {
		merged.Entries = mergeKeyed(local.Entries, incoming.Entries, func(e models.LibraryEntry) string {
			return util.Normalize(e.Title)
		})
	}
	if local.Bookmarks != nil || incoming.Bookmarks != nil {
		merged.Bookmarks = library.UpsertBookmarks(local.Bookmarks, incoming.Bookmarks)
	}
	if local.Markers != nil || incoming.Markers != nil {
		merged.Markers = mergeKeyed(local.Markers, incoming.Markers, func(m models.Marker) string {
			return strings.ToLower(strings.TrimSpace(m.Name))
		})
	}
	if local.History != nil || incoming.History != nil {
		merged.History = mergeHistory(local.History, incoming.History)
	}
	if local.MangadexCache != nil || incoming.MangadexCache != nil {
		merged.MangadexCache = mergeMaps(local.MangadexCache, incoming.MangadexCache)
	}
	if local.PersonalData != nil || incoming.PersonalData != nil {
		merged.PersonalData = mergePersonalData(local.PersonalData, incoming.PersonalData)
	}
	if len(local.Settings) > 0 || len(incoming.Settings) > 0 {
		merged.Settings = mergeMaps(local.Settings, incoming.Settings)
	}
	return merged
}

// mergeKeyed keeps local order and appends incoming items with new keys.
// Items with an empty key are never collapsed.
func mergeKeyed[T any](local, incoming []T, key func(T) string) []T {
	out := make([]T, 0, len(local)+len(incoming))
	index := make(map[string]int, len(local)+len(incoming))
	for _, list := range [][]T{local, incoming} {
		for _, item := range list {
			k := key(item)
			if i, ok := index[k]; ok && k != "" {
				out[i] = item
				continue
			}
			index[k] = len(out)
			out = append(out, item)
		}
	}
	return out
}

func mergeHistory(local, incoming models.ReadingHistory) models.ReadingHistory {
	out := make(models.ReadingHistory, len(local)+len(incoming))
	for k, labels := range local {
		out[k] = util.UnionChapters(labels, nil)
	}
	for k, labels := range incoming {
		out[k] = util.UnionChapters(out[k], labels)
	}
	return out
}

func mergeMaps[V any](local, incoming map[string]V) map[string]V {
	out := make(map[string]V, len(local)+len(incoming))
	for k, v := range local {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

// mergePersonalData keeps the newer record per id; incoming wins ties.
func mergePersonalData(local, incoming map[string]models.PersonalData) map[string]models.PersonalData {
	out := mergeMaps(local, nil)
	for id, in := range incoming {
		if cur, ok := out[id]; ok && cur.LastModified > in.LastModified {
			continue
		}
		out[id] = in
	}
	return out
}
