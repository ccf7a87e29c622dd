// Package store is the typed data access layer over the key-value state.
// Every persisted key the tracker owns has a getter and a setter here, so the
// rest of the code never spells a storage key.
package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/kv"
	"github.com/vrsandeep/mango-tracker/internal/models"
)

// Persisted keys.
const (
	KeyEntries       = "savedEntriesMerged"
	KeyBookmarks     = "userBookmarks"
	KeyHistory       = "savedReadChapters"
	KeyMangadexCache = "mangadexCache"
	KeyPersonalData  = "libraryPersonalData"
	KeyMarkers       = "customMarkers"

	KeySmartAutoComplete = "smartAutoComplete"
	KeyAutoSync          = "autoSyncEnabled"
)

// SettingKeys are the feature-flag and preference keys carried in exports.
var SettingKeys = []string{KeySmartAutoComplete, KeyAutoSync}

// Store provides typed access to the persisted state.
type Store struct {
	kv                kv.Store
	smartAutoComplete bool
}

// New creates a Store. smartAutoComplete is the flag value used while the
// settings key has never been written.
func New(s kv.Store, smartAutoComplete bool) *Store {
	return &Store{kv: s, smartAutoComplete: smartAutoComplete}
}

// KV exposes the underlying key-value store for bulk snapshot code.
func (s *Store) KV() kv.Store {
	return s.kv
}

func (s *Store) load(ctx context.Context, key string, out any) error {
	_, err := kv.GetJSON(ctx, s.kv, key, out)
	return errors.Wrapf(err, "store: load %s", key)
}

func (s *Store) save(ctx context.Context, key string, value any) error {
	return errors.Wrapf(s.kv.Set(ctx, map[string]any{key: value}), "store: save %s", key)
}

// Entries returns the library entries. A missing key is an empty library.
func (s *Store) Entries(ctx context.Context) ([]models.LibraryEntry, error) {
	var entries []models.LibraryEntry
	if err := s.load(ctx, KeyEntries, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) SaveEntries(ctx context.Context, entries []models.LibraryEntry) error {
	if entries == nil {
		entries = []models.LibraryEntry{}
	}
	return s.save(ctx, KeyEntries, entries)
}

// History returns the reading history, never nil.
func (s *Store) History(ctx context.Context) (models.ReadingHistory, error) {
	history := models.ReadingHistory{}
	if err := s.load(ctx, KeyHistory, &history); err != nil {
		return nil, err
	}
	if history == nil {
		history = models.ReadingHistory{}
	}
	return history, nil
}

func (s *Store) SaveHistory(ctx context.Context, history models.ReadingHistory) error {
	return s.save(ctx, KeyHistory, history)
}

// SaveLibrary writes the entries and the history in a single Set.
func (s *Store) SaveLibrary(ctx context.Context, entries []models.LibraryEntry, history models.ReadingHistory) error {
	if entries == nil {
		entries = []models.LibraryEntry{}
	}
	err := s.kv.Set(ctx, map[string]any{KeyEntries: entries, KeyHistory: history})
	return errors.Wrap(err, "store: save library")
}

func (s *Store) Bookmarks(ctx context.Context) ([]models.Bookmark, error) {
	var bookmarks []models.Bookmark
	if err := s.load(ctx, KeyBookmarks, &bookmarks); err != nil {
		return nil, err
	}
	return bookmarks, nil
}

func (s *Store) SaveBookmarks(ctx context.Context, bookmarks []models.Bookmark) error {
	if bookmarks == nil {
		bookmarks = []models.Bookmark{}
	}
	return s.save(ctx, KeyBookmarks, bookmarks)
}

func (s *Store) Markers(ctx context.Context) ([]models.Marker, error) {
	var markers []models.Marker
	if err := s.load(ctx, KeyMarkers, &markers); err != nil {
		return nil, err
	}
	return markers, nil
}

func (s *Store) SaveMarkers(ctx context.Context, markers []models.Marker) error {
	if markers == nil {
		markers = []models.Marker{}
	}
	return s.save(ctx, KeyMarkers, markers)
}

// PersonalData returns the side table keyed by MangaID.
func (s *Store) PersonalData(ctx context.Context) (map[string]models.PersonalData, error) {
	data := map[string]models.PersonalData{}
	if err := s.load(ctx, KeyPersonalData, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]models.PersonalData{}
	}
	return data, nil
}

func (s *Store) SavePersonalData(ctx context.Context, data map[string]models.PersonalData) error {
	return s.save(ctx, KeyPersonalData, data)
}

// MangadexCache returns the secondary provider's cache, never nil.
func (s *Store) MangadexCache(ctx context.Context) (map[string]models.CacheRecord, error) {
	cache := map[string]models.CacheRecord{}
	if err := s.load(ctx, KeyMangadexCache, &cache); err != nil {
		return nil, err
	}
	if cache == nil {
		cache = map[string]models.CacheRecord{}
	}
	return cache, nil
}

func (s *Store) SaveMangadexCache(ctx context.Context, cache map[string]models.CacheRecord) error {
	return s.save(ctx, KeyMangadexCache, cache)
}

// SmartAutoComplete reads the feature flag. A read failure counts as the
// configured default.
func (s *Store) SmartAutoComplete(ctx context.Context) bool {
	var on bool
	ok, err := kv.GetJSON(ctx, s.kv, KeySmartAutoComplete, &on)
	if err != nil || !ok {
		return s.smartAutoComplete
	}
	return on
}

func (s *Store) SetSmartAutoComplete(ctx context.Context, on bool) error {
	return s.save(ctx, KeySmartAutoComplete, on)
}

// Settings returns the raw values of every stored setting key.
func (s *Store) Settings(ctx context.Context) (map[string]json.RawMessage, error) {
	values, err := s.kv.Get(ctx, SettingKeys...)
	return values, errors.Wrap(err, "store: load settings")
}
