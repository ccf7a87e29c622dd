package library

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/events"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/store"
	"github.com/vrsandeep/mango-tracker/internal/util"
)

// ErrEntryNotFound is returned when no entry matches a title.
var ErrEntryNotFound = errors.New("library: entry not found")

// Entries returns the stored library.
func (e *Engine) Entries(ctx context.Context) ([]models.LibraryEntry, error) {
	entries, err := e.store.Entries(ctx)
	if entries == nil && err == nil {
		entries = []models.LibraryEntry{}
	}
	return entries, err
}

// UpdateStatus sets the status of the entry matching title. An empty status
// leaves it unchanged. customMarker, when non-nil, replaces the marker; an
// empty marker clears it.
func (e *Engine) UpdateStatus(ctx context.Context, title, status string, customMarker *string) (models.LibraryEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.store.Entries(ctx)
	if err != nil {
		return models.LibraryEntry{}, err
	}
	i := findBookmarkMatch(entries, title)
	if i < 0 {
		return models.LibraryEntry{}, ErrEntryNotFound
	}

	entry := &entries[i]
	if status = util.NormalizeStatus(status); status != "" {
		entry.Status = status
	}
	if customMarker != nil {
		entry.CustomMarker = strings.TrimSpace(*customMarker)
	}
	entry.LastUpdated = e.nowMillis()

	if err := e.store.SaveEntries(ctx, entries); err != nil {
		return models.LibraryEntry{}, err
	}
	e.publish(ctx, events.TopicLibraryUpdated, LibraryUpdate{Action: "status", Title: entry.Title})
	return *entry, nil
}

// DeleteEntry removes the entry whose title matches exactly or after strict
// normalization. Its reading history is kept.
func (e *Engine) DeleteEntry(ctx context.Context, title string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.store.Entries(ctx)
	if err != nil {
		return err
	}
	out := entries[:0:0]
	for _, entry := range entries {
		if entry.Title == title || util.SameTitle(entry.Title, title) {
			continue
		}
		out = append(out, entry)
	}
	if len(out) == len(entries) {
		return ErrEntryNotFound
	}
	if err := e.store.SaveEntries(ctx, out); err != nil {
		return err
	}
	e.publish(ctx, events.TopicLibraryUpdated, LibraryUpdate{Action: "deleted", Title: title})
	return nil
}

// Reset wipes the library, the reading history and the raw bookmarks.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.store.KV().Remove(ctx, store.KeyEntries, store.KeyHistory, store.KeyBookmarks)
	if err != nil {
		return errors.Wrap(err, "library: reset")
	}
	e.publish(ctx, events.TopicLibraryUpdated, LibraryUpdate{Action: "reset"})
	return nil
}

// Markers returns the user-defined status markers.
func (e *Engine) Markers(ctx context.Context) ([]models.Marker, error) {
	markers, err := e.store.Markers(ctx)
	if markers == nil && err == nil {
		markers = []models.Marker{}
	}
	return markers, err
}

// SaveMarker creates or replaces a marker, matched by case-insensitive name.
func (e *Engine) SaveMarker(ctx context.Context, m models.Marker) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return errors.New("library: marker name is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	markers, err := e.store.Markers(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range markers {
		if strings.EqualFold(markers[i].Name, m.Name) {
			markers[i] = m
			replaced = true
		}
	}
	if !replaced {
		markers = append(markers, m)
	}
	return e.store.SaveMarkers(ctx, markers)
}

// DeleteMarker removes a marker and clears it from every entry using it.
func (e *Engine) DeleteMarker(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	markers, err := e.store.Markers(ctx)
	if err != nil {
		return err
	}
	kept := markers[:0:0]
	for _, m := range markers {
		if !strings.EqualFold(m.Name, name) {
			kept = append(kept, m)
		}
	}
	if err := e.store.SaveMarkers(ctx, kept); err != nil {
		return err
	}

	entries, err := e.store.Entries(ctx)
	if err != nil {
		return err
	}
	cleared := 0
	for i := range entries {
		if strings.EqualFold(entries[i].CustomMarker, name) {
			entries[i].CustomMarker = ""
			cleared++
		}
	}
	if cleared == 0 {
		return nil
	}
	return e.store.SaveEntries(ctx, entries)
}
