package models

import (
	"bytes"
	"encoding/json"
)

// StatusNotFound marks a CatalogMetadata value as a negative-cache sentinel.
const StatusNotFound = "NOT_FOUND"

// Series status values, in the primary provider's vocabulary.
const (
	SeriesFinished  = "FINISHED"
	SeriesReleasing = "RELEASING"
	SeriesHiatus    = "HIATUS"
	SeriesCancelled = "CANCELLED"
	SeriesUpcoming  = "NOT_YET_RELEASED"
)

// CatalogTitle holds the localized titles of a catalog record.
type CatalogTitle struct {
	English string `json:"english,omitempty"`
	Romaji  string `json:"romaji,omitempty"`
	Native  string `json:"native,omitempty"`
}

// UnmarshalJSON accepts the object form as well as the bare string that
// NOT_FOUND sentinels carry.
func (t *CatalogTitle) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, null) {
		*t = CatalogTitle{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = CatalogTitle{English: s}
		return nil
	}
	type plain CatalogTitle
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = CatalogTitle(p)
	return nil
}

// Preferred returns the first non-empty title, English first.
func (t CatalogTitle) Preferred() string {
	switch {
	case t.English != "":
		return t.English
	case t.Romaji != "":
		return t.Romaji
	}
	return t.Native
}

type CoverImage struct {
	ExtraLarge string `json:"extraLarge,omitempty"`
	Large      string `json:"large,omitempty"`
	Medium     string `json:"medium,omitempty"`
}

type FuzzyDate struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`
}

type ExternalLink struct {
	URL  string `json:"url"`
	Site string `json:"site"`
}

// CatalogMetadata is the provider-agnostic enrichment payload of a library
// entry. Both provider clients map their raw responses into this shape.
type CatalogMetadata struct {
	ID              ProviderID     `json:"id,omitempty"`
	Title           CatalogTitle   `json:"title"`
	CoverImage      CoverImage     `json:"coverImage"`
	BannerImage     string         `json:"bannerImage,omitempty"`
	Format          string         `json:"format,omitempty"`
	CountryOfOrigin string         `json:"countryOfOrigin,omitempty"`
	Genres          []string       `json:"genres,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Status          string         `json:"status,omitempty"`
	Chapters        int            `json:"chapters,omitempty"`
	Volumes         int            `json:"volumes,omitempty"`
	AverageScore    int            `json:"averageScore,omitempty"`
	Popularity      int            `json:"popularity,omitempty"`
	Description     string         `json:"description,omitempty"`
	StartDate       FuzzyDate      `json:"startDate"`
	ExternalLinks   []ExternalLink `json:"externalLinks,omitempty"`
	Source          string         `json:"source,omitempty"`

	// LastChecked is only set on NOT_FOUND sentinels.
	LastChecked int64 `json:"lastChecked,omitempty"`
}

// NotFound builds a negative-cache sentinel for a failed lookup.
func NotFound(title, format string, now int64) *CatalogMetadata {
	return &CatalogMetadata{
		Status:      StatusNotFound,
		LastChecked: now,
		Title:       CatalogTitle{English: title},
		Format:      format,
	}
}

// IsNotFound reports whether m is a NOT_FOUND sentinel.
func (m *CatalogMetadata) IsNotFound() bool {
	return m != nil && m.Status == StatusNotFound
}

// Clone returns a copy that shares no slices with m.
func (m *CatalogMetadata) Clone() *CatalogMetadata {
	if m == nil {
		return nil
	}
	c := *m
	c.Genres = append([]string(nil), m.Genres...)
	c.Tags = append([]string(nil), m.Tags...)
	c.ExternalLinks = append([]ExternalLink(nil), m.ExternalLinks...)
	return &c
}

// Incomplete reports whether any of the fields the secondary provider can
// backfill is missing.
func (m *CatalogMetadata) Incomplete() bool {
	if m == nil {
		return true
	}
	return m.BannerImage == "" ||
		m.Description == "" ||
		m.CoverImage.Large == "" ||
		len(m.Genres) == 0 ||
		m.Chapters == 0
}
