package library_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-tracker/internal/config"
	"github.com/vrsandeep/mango-tracker/internal/events"
	"github.com/vrsandeep/mango-tracker/internal/kv"
	"github.com/vrsandeep/mango-tracker/internal/library"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/providers"
	"github.com/vrsandeep/mango-tracker/internal/store"
	"go.uber.org/zap"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	engine *library.Engine
	store  *store.Store
	mem    *kv.Memory
	events *events.Recorder
	now    time.Time
}

func newTestEnv(t *testing.T, primary, secondary providers.MetadataProvider) *testEnv {
	t.Helper()
	mem := kv.NewMemory()
	st := store.New(mem, false)
	rec := events.NewRecorder()

	env := &testEnv{store: st, mem: mem, events: rec, now: baseTime}
	env.engine = library.New(st, primary, secondary, rec, config.LibraryConfig{
		SweepBatchSize:   2,
		RetryWindow:      24 * time.Hour,
		NotFoundCooldown: 7 * 24 * time.Hour,
	}, zap.NewNop())
	env.engine.Now = func() time.Time { return env.now }
	env.engine.Sleep = func(context.Context, time.Duration) error { return nil }
	return env
}

func (env *testEnv) seed(t *testing.T, entries ...models.LibraryEntry) {
	t.Helper()
	require.NoError(t, env.store.SaveEntries(context.Background(), entries))
}

func (env *testEnv) entries(t *testing.T) []models.LibraryEntry {
	t.Helper()
	entries, err := env.store.Entries(context.Background())
	require.NoError(t, err)
	return entries
}

func (env *testEnv) history(t *testing.T) models.ReadingHistory {
	t.Helper()
	h, err := env.store.History(context.Background())
	require.NoError(t, err)
	return h
}

func (env *testEnv) find(t *testing.T, title string) *models.LibraryEntry {
	t.Helper()
	for _, e := range env.entries(t) {
		if e.Title == title {
			e := e
			return &e
		}
	}
	t.Fatalf("no entry titled %q", title)
	return nil
}

func meta(id string, chapters int, status string) *models.CatalogMetadata {
	return &models.CatalogMetadata{
		ID:       models.ProviderID(id),
		Chapters: chapters,
		Status:   status,
		Format:   "MANGA",
	}
}

func intPtr(n int) *int { return &n }
