package transfer_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-tracker/internal/config"
	"github.com/vrsandeep/mango-tracker/internal/events"
	"github.com/vrsandeep/mango-tracker/internal/kv"
	"github.com/vrsandeep/mango-tracker/internal/library"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/store"
	"github.com/vrsandeep/mango-tracker/internal/transfer"
	"go.uber.org/zap"
)

var exportTime = time.Date(2025, 4, 2, 8, 30, 0, 0, time.UTC)

type env struct {
	svc    *transfer.Service
	store  *store.Store
	mem    *kv.Memory
	events *events.Recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mem := kv.NewMemory()
	st := store.New(mem, false)
	rec := events.NewRecorder()
	engine := library.New(st, nil, nil, rec, config.LibraryConfig{}, zap.NewNop())
	svc := transfer.NewService(engine, rec, zap.NewNop())
	svc.Now = func() time.Time { return exportTime }
	return &env{svc: svc, store: st, mem: mem, events: rec}
}

func (e *env) seedLibrary(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.SaveEntries(ctx, []models.LibraryEntry{
		{Title: "Solo Leveling", Status: models.StatusReading, MangaSlug: "solo-leveling.1"},
		{Title: "Berserk", Status: models.StatusOnHold},
	}))
	require.NoError(t, e.store.SaveHistory(ctx, models.ReadingHistory{"Berserk": {"1", "2"}}))
	require.NoError(t, e.store.SaveMarkers(ctx, []models.Marker{{Name: "Fav", Color: "#f00"}}))
	require.NoError(t, e.store.SetSmartAutoComplete(ctx, true))
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	e.seedLibrary(t)

	snap, err := e.svc.Export(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, snap.Metadata)
	assert.Equal(t, transfer.FormatVersion, snap.Metadata.Version)
	assert.Equal(t, exportTime, snap.Metadata.ExportDate)
	assert.Len(t, snap.Entries, 2)
	assert.NotNil(t, snap.Bookmarks, "selected collections are present even when empty")

	data, err := transfer.Marshal(snap, false)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"metadata", store.KeyEntries, store.KeyHistory, store.KeyMarkers, store.KeySmartAutoComplete} {
		assert.Contains(t, doc, key)
	}
}

func TestExport_Categories(t *testing.T) {
	e := newEnv(t)
	e.seedLibrary(t)

	snap, err := e.svc.Export(context.Background(), transfer.Categories{transfer.CategoryHistory: true})
	require.NoError(t, err)
	assert.Nil(t, snap.Entries)
	assert.Equal(t, models.ReadingHistory{"Berserk": {"1", "2"}}, snap.History)
	assert.True(t, snap.Metadata.Categories[transfer.CategoryHistory])
}

func TestImport_OverwriteRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		src := newEnv(t)
		src.seedLibrary(t)
		snap, err := src.svc.Export(context.Background(), nil)
		require.NoError(t, err)
		data, err := transfer.Marshal(snap, compress)
		require.NoError(t, err)
		assert.Equal(t, compress, transfer.IsGzip(data))

		dst := newEnv(t)
		ctx := context.Background()
		require.NoError(t, dst.store.SaveBookmarks(ctx, []models.Bookmark{{Title: "Stale"}}))

		res, err := dst.svc.Import(ctx, data, transfer.ModeOverwrite)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Entries)

		entries, err := dst.store.Entries(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
		bookmarks, err := dst.store.Bookmarks(ctx)
		require.NoError(t, err)
		assert.Empty(t, bookmarks, "overwrite replaces the stored bookmarks")
		assert.True(t, dst.store.SmartAutoComplete(ctx))
		assert.Contains(t, dst.events.Topics(), events.TopicImportDone)
	}
}

func TestImport_OverwriteRemovesAbsentCollections(t *testing.T) {
	e := newEnv(t)
	e.seedLibrary(t)
	ctx := context.Background()

	_, err := e.svc.Import(ctx, []byte(`{"savedEntriesMerged": [{"title": "Only"}]}`), transfer.ModeOverwrite)
	require.NoError(t, err)

	history, err := e.store.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
	markers, err := e.store.Markers(ctx)
	require.NoError(t, err)
	assert.Empty(t, markers)
	assert.True(t, e.store.SmartAutoComplete(ctx), "settings missing from the file are kept")
}

func TestImport_MergeDedupes(t *testing.T) {
	e := newEnv(t)
	e.seedLibrary(t)
	ctx := context.Background()

	doc := `{
		"metadata": {"version": "2.0.0", "exportDate": "2025-01-01T00:00:00Z"},
		"savedEntriesMerged": [
			{"title": "Na Honjaman Level Up", "mangaSlug": "solo-leveling.77", "anilistData": {"id": 777, "title": {"english": "Solo Leveling"}}},
			{"title": "Vagabond"}
		],
		"savedReadChapters": {"Berserk": ["3"]}
	}`
	res, err := e.svc.Import(ctx, []byte(doc), transfer.ModeMerge)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DuplicatesCut)
	assert.Equal(t, 3, res.Entries)

	entries, err := e.store.Entries(ctx)
	require.NoError(t, err)
	titles := make([]string, 0, len(entries))
	for _, en := range entries {
		titles = append(titles, en.Title)
	}
	assert.ElementsMatch(t, []string{"Na Honjaman Level Up", "Berserk", "Vagabond"}, titles)

	history, err := e.store.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, history["Berserk"])

	markers, err := e.store.Markers(ctx)
	require.NoError(t, err)
	assert.Len(t, markers, 1, "local collections missing from the file survive a merge")
}

func TestImport_RejectsBadInputWithoutWriting(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"not json", `{"savedEntriesMerged": [`, transfer.ErrInvalidSnapshot},
		{"not an object", `[1, 2]`, transfer.ErrInvalidSnapshot},
		{"wrong shape", `{"savedEntriesMerged": {"title": "x"}}`, transfer.ErrInvalidSnapshot},
		{"no data", `{"metadata": {"version": "2.0.0"}}`, transfer.ErrInvalidSnapshot},
		{"future major", `{"metadata": {"version": "3.0.0"}, "savedEntriesMerged": []}`, transfer.ErrUnsupportedVersion},
		{"garbage version", `{"metadata": {"version": "banana"}, "savedEntriesMerged": []}`, transfer.ErrUnsupportedVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.seedLibrary(t)
			before := e.mem.SetCalls()

			_, err := e.svc.Import(context.Background(), []byte(tt.doc), transfer.ModeOverwrite)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Import() error = %v, want %v", err, tt.want)
			}
			if got := e.mem.SetCalls(); got != before {
				t.Errorf("store written %d times on rejected input", got-before)
			}
		})
	}
}

func TestImport_UnknownMode(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Import(context.Background(), []byte(`{"savedEntriesMerged": []}`), transfer.Mode("replace"))
	assert.Error(t, err)
}

func TestImportMAL(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.SaveBookmarks(ctx, []models.Bookmark{{Title: "Existing", Status: models.StatusReading}}))

	xml := `<?xml version="1.0" encoding="UTF-8"?>
<myanimelist>
	<myinfo><user_name>reader</user_name></myinfo>
	<manga>
		<manga_title><![CDATA[Berserk]]></manga_title>
		<my_status>On-Hold</my_status>
		<my_read_chapters>120</my_read_chapters>
	</manga>
	<manga>
		<manga_title>Vinland Saga</manga_title>
		<my_status>Completed</my_status>
		<my_read_chapters>0</my_read_chapters>
	</manga>
</myanimelist>`

	n, err := e.svc.ImportMAL(ctx, []byte(xml))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	bookmarks, err := e.store.Bookmarks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Bookmark{
		{Title: "Existing", Status: models.StatusReading},
		{Title: "Berserk", Status: models.StatusOnHold, ReadChapters: 120},
		{Title: "Vinland Saga", Status: models.StatusCompleted},
	}, bookmarks)

	entries, err := e.store.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "MAL import only touches the bookmark list")
}

func TestParseMAL_Invalid(t *testing.T) {
	_, err := transfer.ParseMAL([]byte(`<myanimelist></myanimelist>`))
	assert.ErrorIs(t, err, transfer.ErrInvalidSnapshot)
}
