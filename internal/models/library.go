// This file defines the library data structures shared by the reconciliation
// engine, the import/export code and the HTTP bridge.

package models

// Reading statuses. Custom markers may replace the status for display but
// never change it.
const (
	StatusReading    = "Reading"
	StatusCompleted  = "Completed"
	StatusPlanToRead = "Plan to Read"
	StatusOnHold     = "On Hold"
	StatusDropped    = "Dropped"
	StatusRereading  = "Re-reading"
	StatusRead       = "Read"
)

// Statuses lists the built-in reading statuses.
var Statuses = []string{
	StatusReading,
	StatusCompleted,
	StatusPlanToRead,
	StatusOnHold,
	StatusDropped,
	StatusRereading,
	StatusRead,
}

// LibraryEntry is one tracked title in the library.
type LibraryEntry struct {
	Title           string           `json:"title"`
	Status          string           `json:"status"`
	MangaSlug       string           `json:"mangaSlug,omitempty"`
	LastChapterRead FlexString       `json:"lastChapterRead,omitempty"`
	ReadChapters    ChapterCount     `json:"readChapters"`
	LastRead        int64            `json:"lastRead,omitempty"`     // epoch ms
	LastUpdated     int64            `json:"lastUpdated"`            // epoch ms
	LastChecked     int64            `json:"lastChecked,omitempty"`  // last metadata fetch attempt, epoch ms
	AnilistData     *CatalogMetadata `json:"anilistData"`            // metadata, NOT_FOUND sentinel or nil
	CustomMarker    string           `json:"customMarker,omitempty"` // overrides status styling
	Source          string           `json:"source,omitempty"`
	SourceID        FlexString       `json:"sourceId,omitempty"`
	MangadexChecked CheckedAt        `json:"mangadexChecked,omitempty"` // last secondary backfill, epoch ms
}

// HasMetadata reports whether the entry carries real (non-sentinel) metadata.
func (e *LibraryEntry) HasMetadata() bool {
	return e.AnilistData != nil && !e.AnilistData.IsNotFound()
}

// ProviderID returns the metadata provider id, or "" if there is none.
func (e *LibraryEntry) ProviderID() ProviderID {
	if !e.HasMetadata() {
		return ""
	}
	return e.AnilistData.ID
}

// Bookmark is a raw scraped or legacy bookmark, before reconciliation.
type Bookmark struct {
	Title        string       `json:"title"`
	Status       string       `json:"status"`
	ReadChapters ChapterCount `json:"readChapters"`
}

// Marker is a user-defined status marker.
type Marker struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Style string `json:"style,omitempty"`
}

// PersonalData holds user annotations for one title. It lives in a side
// table keyed by MangaID instead of being embedded in the entry.
type PersonalData struct {
	Tags         []string `json:"tags"`
	Notes        string   `json:"notes"`
	Rating       int      `json:"rating"` // 0..10
	LastModified int64    `json:"lastModified"`
}

// ReadingHistory maps a history key to the ordered labels of the chapters
// read under it.
type ReadingHistory map[string][]string

// CacheRecord is one secondary-provider cache slot. Data is a NOT_FOUND
// sentinel for cached misses.
type CacheRecord struct {
	Data      *CatalogMetadata `json:"data"`
	Timestamp int64            `json:"timestamp"`
}
