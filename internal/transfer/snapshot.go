// Package transfer moves the library in and out of the tracker: snapshot
// export and import, the cross-device merge rules, the legacy MAL XML
// bookmark import and the sync-folder watcher.
package transfer

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/store"
)

// FormatVersion is written into the metadata block of every export.
const FormatVersion = "2.1.0"

// Category names used in the metadata block.
const (
	CategoryLibrary      = "library"
	CategoryBookmarks    = "bookmarks"
	CategoryHistory      = "history"
	CategoryCache        = "cache"
	CategoryPersonalData = "personalData"
	CategoryMarkers      = "markers"
	CategorySettings     = "settings"
)

// AllCategories selects everything.
var AllCategories = Categories{
	CategoryLibrary:      true,
	CategoryBookmarks:    true,
	CategoryHistory:      true,
	CategoryCache:        true,
	CategoryPersonalData: true,
	CategoryMarkers:      true,
	CategorySettings:     true,
}

// Categories selects which collections an export carries.
type Categories map[string]bool

// ParseCategories reads a comma separated category list. An empty list
// selects everything.
func ParseCategories(list string) (Categories, error) {
	cats := Categories{}
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !AllCategories[name] {
			return nil, errors.Errorf("transfer: unknown category %q", name)
		}
		cats[name] = true
	}
	if len(cats) == 0 {
		return AllCategories, nil
	}
	return cats, nil
}

// Metadata is the optional header of an export file.
type Metadata struct {
	Version    string     `json:"version"`
	ExportDate time.Time  `json:"exportDate"`
	Categories Categories `json:"categories,omitempty"`
}

// Snapshot is a full or partial copy of the persisted state. A nil
// collection is absent from the document; an empty one is present.
type Snapshot struct {
	Metadata      *Metadata
	Entries       []models.LibraryEntry
	Bookmarks     []models.Bookmark
	History       models.ReadingHistory
	MangadexCache map[string]models.CacheRecord
	PersonalData  map[string]models.PersonalData
	Markers       []models.Marker
	Settings      map[string]json.RawMessage
}

// Empty reports whether the snapshot carries no collection at all.
func (s *Snapshot) Empty() bool {
	return s.Entries == nil && s.Bookmarks == nil && s.History == nil &&
		s.MangadexCache == nil && s.PersonalData == nil && s.Markers == nil &&
		len(s.Settings) == 0
}

// MarshalJSON writes the flat document: one top-level key per persisted
// key plus "metadata".
func (s Snapshot) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, 8)
	if s.Metadata != nil {
		doc["metadata"] = s.Metadata
	}
	put := func(key string, present bool, v any) {
		if present {
			doc[key] = v
		}
	}
	put(store.KeyEntries, s.Entries != nil, s.Entries)
	put(store.KeyBookmarks, s.Bookmarks != nil, s.Bookmarks)
	put(store.KeyHistory, s.History != nil, s.History)
	put(store.KeyMangadexCache, s.MangadexCache != nil, s.MangadexCache)
	put(store.KeyPersonalData, s.PersonalData != nil, s.PersonalData)
	put(store.KeyMarkers, s.Markers != nil, s.Markers)
	for k, v := range s.Settings {
		doc[k] = v
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads the flat document. Unknown top-level keys are
// ignored; a known key with the wrong shape is an error.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return errors.New("document is not a JSON object")
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*s = Snapshot{}
	fields := []struct {
		key string
		out any
	}{
		{"metadata", &s.Metadata},
		{store.KeyEntries, &s.Entries},
		{store.KeyBookmarks, &s.Bookmarks},
		{store.KeyHistory, &s.History},
		{store.KeyMangadexCache, &s.MangadexCache},
		{store.KeyPersonalData, &s.PersonalData},
		{store.KeyMarkers, &s.Markers},
	}
	for _, f := range fields {
		raw, ok := doc[f.key]
		if !ok || isNull(raw) {
			continue
		}
		if err := json.Unmarshal(raw, f.out); err != nil {
			return errors.Wrapf(err, "key %q", f.key)
		}
	}
	ensurePresent(s, doc)

	for _, k := range store.SettingKeys {
		if raw, ok := doc[k]; ok && !isNull(raw) {
			if s.Settings == nil {
				s.Settings = map[string]json.RawMessage{}
			}
			s.Settings[k] = raw
		}
	}
	return nil
}

// ensurePresent turns collections that were present in the document but
// decoded to nil (for example "[]" after a custom decoder) into empty ones.
func ensurePresent(s *Snapshot, doc map[string]json.RawMessage) {
	has := func(k string) bool {
		raw, ok := doc[k]
		return ok && !isNull(raw)
	}
	if has(store.KeyEntries) && s.Entries == nil {
		s.Entries = []models.LibraryEntry{}
	}
	if has(store.KeyBookmarks) && s.Bookmarks == nil {
		s.Bookmarks = []models.Bookmark{}
	}
	if has(store.KeyHistory) && s.History == nil {
		s.History = models.ReadingHistory{}
	}
	if has(store.KeyMangadexCache) && s.MangadexCache == nil {
		s.MangadexCache = map[string]models.CacheRecord{}
	}
	if has(store.KeyPersonalData) && s.PersonalData == nil {
		s.PersonalData = map[string]models.PersonalData{}
	}
	if has(store.KeyMarkers) && s.Markers == nil {
		s.Markers = []models.Marker{}
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
