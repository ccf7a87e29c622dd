package library_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-tracker/internal/events"
	"github.com/vrsandeep/mango-tracker/internal/library"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/testutil"
)

func TestRecordReadingEvent_NewTitle(t *testing.T) {
	primary := testutil.NewFakeProvider(map[string]*models.CatalogMetadata{
		"Solo Leveling": meta("777", 200, models.SeriesReleasing),
	})
	env := newTestEnv(t, primary, nil)

	err := env.engine.RecordReadingEvent(context.Background(), library.ReadingEvent{
		Title: "Solo Leveling", Chapter: "179", Slug: "solo-leveling.12345",
	})
	require.NoError(t, err)

	entries := env.entries(t)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, models.StatusReading, e.Status)
	assert.Equal(t, "solo-leveling.12345", e.MangaSlug)
	assert.Equal(t, models.ChapterCount(1), e.ReadChapters)
	require.NotNil(t, e.AnilistData)
	assert.Equal(t, models.ProviderID("777"), e.AnilistData.ID)
	assert.Equal(t, models.FlexString("179"), e.LastChapterRead)
	assert.Equal(t, baseTime.UnixMilli(), e.LastRead)

	assert.Equal(t, []string{"179"}, env.history(t)["Solo Leveling"])
	assert.Contains(t, env.events.Topics(), events.TopicLibraryUpdated)
}

func TestRecordReadingEvent_FastPathHasNoNetworkCall(t *testing.T) {
	primary := testutil.NewFakeProvider(nil)
	secondary := testutil.NewFakeProvider(nil)
	env := newTestEnv(t, primary, secondary)
	env.seed(t, models.LibraryEntry{
		Title:       "Solo Leveling",
		Status:      models.StatusReading,
		MangaSlug:   "solo-leveling.12345",
		AnilistData: meta("777", 200, models.SeriesReleasing),
	})

	ctx := context.Background()
	// Matched by normalized title.
	require.NoError(t, env.engine.RecordReadingEvent(ctx, library.ReadingEvent{Title: "solo  leveling", Chapter: "180"}))
	// Matched by slug identity under a different site title.
	require.NoError(t, env.engine.RecordReadingEvent(ctx, library.ReadingEvent{Title: "Na Honjaman Level Up", Chapter: "181", Slug: "solo-leveling.999"}))

	assert.Zero(t, primary.CallCount())
	assert.Zero(t, secondary.CallCount())

	entries := env.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.FlexString("181"), entries[0].LastChapterRead)
	assert.Equal(t, "solo-leveling.999", entries[0].MangaSlug)
}

func TestRecordReadingEvent_HistoryMonotonicAndSorted(t *testing.T) {
	env := newTestEnv(t, testutil.NewFakeProvider(nil), nil)
	ctx := context.Background()

	for _, ch := range []string{"10", "2", "10", "1.5", "Prologue", "2", "100"} {
		require.NoError(t, env.engine.RecordReadingEvent(ctx, library.ReadingEvent{
			Title: "Berserk", Chapter: ch, Slug: "berserk.1",
		}))
	}

	labels := env.history(t)["Berserk"]
	assert.Equal(t, []string{"1.5", "2", "10", "100", "Prologue"}, labels)

	e := env.find(t, "Berserk")
	assert.Equal(t, models.ChapterCount(5), e.ReadChapters)
}

func TestRecordReadingEvent_ReadCountNeverRegresses(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seed(t, models.LibraryEntry{Title: "Vagabond", Status: models.StatusReading, ReadChapters: 40})
	ctx := context.Background()

	require.NoError(t, env.engine.RecordReadingEvent(ctx, library.ReadingEvent{Title: "Vagabond", Chapter: "41"}))
	assert.Equal(t, models.ChapterCount(40), env.find(t, "Vagabond").ReadChapters)

	require.NoError(t, env.engine.RecordReadingEvent(ctx, library.ReadingEvent{Title: "Vagabond", Chapter: "42", ReadCount: intPtr(42)}))
	assert.Equal(t, models.ChapterCount(42), env.find(t, "Vagabond").ReadChapters)
}

func TestRecordReadingEvent_CountFromSlugHistory(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, env.store.SaveHistory(ctx, models.ReadingHistory{
		"tower-of-god": {"1", "2", "3", "4"},
	}))
	env.seed(t, models.LibraryEntry{Title: "Tower of God", Status: models.StatusReading})

	// No chapter label, so nothing lands under the title key and the
	// slug-identity history is counted instead.
	require.NoError(t, env.engine.RecordReadingEvent(ctx, library.ReadingEvent{
		Title: "Tower of God", Slug: "tower-of-god.95",
	}))
	assert.Equal(t, models.ChapterCount(4), env.find(t, "Tower of God").ReadChapters)
}

func TestRecordReadingEvent_SmartComplete(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	env.seed(t, models.LibraryEntry{
		Title:       "Chainsaw Man",
		Status:      models.StatusReading,
		MangaSlug:   "chainsaw-man",
		AnilistData: meta("9", 50, models.SeriesFinished),
	})

	// Flag off: nothing changes.
	require.NoError(t, env.engine.RecordReadingEvent(ctx, library.ReadingEvent{Title: "Chainsaw Man", Chapter: "50", Slug: "chainsaw-man"}))
	assert.Equal(t, models.StatusReading, env.find(t, "Chainsaw Man").Status)

	require.NoError(t, env.store.SetSmartAutoComplete(ctx, true))

	require.NoError(t, env.engine.RecordReadingEvent(ctx, library.ReadingEvent{Title: "Chainsaw Man", Chapter: "49", Slug: "chainsaw-man"}))
	assert.Equal(t, models.StatusReading, env.find(t, "Chainsaw Man").Status)

	require.NoError(t, env.engine.RecordReadingEvent(ctx, library.ReadingEvent{Title: "Chainsaw Man", Chapter: "50", Slug: "chainsaw-man"}))
	assert.Equal(t, models.StatusCompleted, env.find(t, "Chainsaw Man").Status)
}

func TestRecordReadingEvent_SmartCompleteNeedsFinishedSeries(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, env.store.SetSmartAutoComplete(ctx, true))
	env.seed(t, models.LibraryEntry{
		Title:       "One Piece",
		Status:      models.StatusReading,
		AnilistData: meta("30013", 1100, models.SeriesReleasing),
	})

	require.NoError(t, env.engine.RecordReadingEvent(ctx, library.ReadingEvent{Title: "One Piece", Chapter: "1200"}))
	assert.Equal(t, models.StatusReading, env.find(t, "One Piece").Status)
}

func TestRecordReadingEvent_ProviderIDAlreadyPresent(t *testing.T) {
	primary := testutil.NewFakeProvider(map[string]*models.CatalogMetadata{
		"Na Honjaman Level Up": meta("777", 200, models.SeriesFinished),
	})
	env := newTestEnv(t, primary, nil)
	env.seed(t, models.LibraryEntry{
		Title:       "Solo Leveling",
		Status:      models.StatusReading,
		MangaSlug:   "solo-leveling.1",
		AnilistData: meta("777", 200, models.SeriesFinished),
	})

	err := env.engine.RecordReadingEvent(context.Background(), library.ReadingEvent{
		Title: "Na Honjaman Level Up", Chapter: "12", Slug: "na-honjaman-level-up.5",
	})
	require.NoError(t, err)

	entries := env.entries(t)
	require.Len(t, entries, 1, "resolved id must fold into the existing entry")
	assert.Equal(t, "Solo Leveling", entries[0].Title)
	assert.Equal(t, models.FlexString("12"), entries[0].LastChapterRead)
}

func TestRecordReadingEvent_BothProvidersMissWritesSentinel(t *testing.T) {
	primary := testutil.NewFakeProvider(nil)
	secondary := testutil.NewFakeProvider(nil)
	env := newTestEnv(t, primary, secondary)

	require.NoError(t, env.engine.RecordReadingEvent(context.Background(), library.ReadingEvent{Title: "Unknown Webtoon", Chapter: "1"}))

	e := env.find(t, "Unknown Webtoon")
	assert.True(t, e.AnilistData.IsNotFound())
	assert.Equal(t, baseTime.UnixMilli(), e.AnilistData.LastChecked)
	assert.NotZero(t, e.MangadexChecked)
	assert.Equal(t, []string{"Unknown Webtoon"}, secondary.Calls())
}

func TestRecordReadingEvent_CancelledLookupWritesNothing(t *testing.T) {
	primary := testutil.NewFakeProvider(map[string]*models.CatalogMetadata{
		"Berserk": meta("5", 370, models.SeriesReleasing),
	})
	secondary := testutil.NewFakeProvider(nil)
	env := newTestEnv(t, primary, secondary)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	primary.Hook = func(context.Context, string) { cancel() }

	err := env.engine.RecordReadingEvent(ctx, library.ReadingEvent{Title: "Berserk", Chapter: "1"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, env.entries(t), "no NOT_FOUND sentinel for an interrupted lookup")
	assert.Empty(t, env.history(t))
	assert.Zero(t, secondary.CallCount())

	primary.Hook = nil
	require.NoError(t, env.engine.RecordReadingEvent(context.Background(), library.ReadingEvent{Title: "Berserk", Chapter: "1"}))
	assert.Equal(t, models.ProviderID("5"), env.find(t, "Berserk").ProviderID())
}

func TestRecordReadingEvent_SecondaryFallback(t *testing.T) {
	primary := testutil.NewFakeProvider(nil)
	secondary := testutil.NewFakeProvider(map[string]*models.CatalogMetadata{
		"Tower of God": {ID: "uuid-1", Chapters: 550, Source: "mangadex", Genres: []string{"Action"}},
	})
	env := newTestEnv(t, primary, secondary)

	require.NoError(t, env.engine.RecordReadingEvent(context.Background(), library.ReadingEvent{Title: "Tower of God", Chapter: "1"}))

	e := env.find(t, "Tower of God")
	require.True(t, e.HasMetadata())
	assert.Equal(t, "mangadex", e.AnilistData.Source)
	assert.Equal(t, 550, e.AnilistData.Chapters)
}

func TestRecordReadingEvent_ConcurrentTitles(t *testing.T) {
	primary := testutil.NewFakeProvider(nil)
	for i := 0; i < 20; i++ {
		primary.Set(fmt.Sprintf("Title %d", i), meta(fmt.Sprint(1000+i), 10, models.SeriesReleasing))
	}
	env := newTestEnv(t, primary, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		for _, ch := range []string{"1", "2"} {
			wg.Add(1)
			go func(i int, ch string) {
				defer wg.Done()
				err := env.engine.RecordReadingEvent(context.Background(), library.ReadingEvent{
					Title: fmt.Sprintf("Title %d", i), Chapter: ch,
				})
				assert.NoError(t, err)
			}(i, ch)
		}
	}
	wg.Wait()

	entries := env.entries(t)
	assert.Len(t, entries, 20, "no lost writes and no duplicates")
	history := env.history(t)
	for i := 0; i < 20; i++ {
		assert.Equal(t, []string{"1", "2"}, history[fmt.Sprintf("Title %d", i)])
	}
	for _, e := range entries {
		assert.Equal(t, models.ChapterCount(2), e.ReadChapters, e.Title)
	}
}

func TestIngest_FireAndForget(t *testing.T) {
	env := newTestEnv(t, testutil.NewFakeProvider(nil), nil)
	env.engine.Ingest(library.ReadingEvent{Title: "Dandadan", Chapter: "3"})
	env.engine.Ingest(library.ReadingEvent{Title: "  "})
	env.engine.Wait()

	assert.Len(t, env.entries(t), 1)
}

func TestRecordReadingEvent_StorageFailure(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seed(t, models.LibraryEntry{Title: "Dandadan", Status: models.StatusReading})
	boom := errors.New("quota exceeded")
	env.mem.FailSets(boom)

	err := env.engine.RecordReadingEvent(context.Background(), library.ReadingEvent{Title: "Dandadan", Chapter: "2"})
	assert.True(t, errors.Is(err, boom))

	env.mem.FailSets(nil)
	require.NoError(t, env.engine.RecordReadingEvent(context.Background(), library.ReadingEvent{Title: "Dandadan", Chapter: "2"}))
	assert.Equal(t, []string{"2"}, env.history(t)["Dandadan"])
}

func TestRecordReadingEvent_EmptyTitle(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	err := env.engine.RecordReadingEvent(context.Background(), library.ReadingEvent{Title: " "})
	assert.True(t, errors.Is(err, library.ErrEmptyTitle))
	assert.Empty(t, env.entries(t))
}
