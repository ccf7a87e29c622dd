package store

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-tracker/internal/kv"
	"github.com/vrsandeep/mango-tracker/internal/models"
)

func TestStore_EmptyState(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(), false)

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	history, err := s.History(ctx)
	require.NoError(t, err)
	assert.NotNil(t, history)

	cache, err := s.MangadexCache(ctx)
	require.NoError(t, err)
	assert.NotNil(t, cache)

	personal, err := s.PersonalData(ctx)
	require.NoError(t, err)
	assert.NotNil(t, personal)
}

func TestStore_SaveLibraryWritesBothKeys(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := New(mem, false)

	entries := []models.LibraryEntry{{Title: "Solo Leveling", Status: models.StatusReading, ReadChapters: 2}}
	history := models.ReadingHistory{"Solo Leveling": {"1", "2"}}
	require.NoError(t, s.SaveLibrary(ctx, entries, history))
	assert.Equal(t, 1, mem.SetCalls())

	gotEntries, err := s.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, entries, gotEntries)

	gotHistory, err := s.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, history, gotHistory)
}

func TestStore_SmartAutoCompleteDefault(t *testing.T) {
	ctx := context.Background()

	s := New(kv.NewMemory(), true)
	if !s.SmartAutoComplete(ctx) {
		t.Errorf("Expected configured default to be used when the key is absent")
	}

	require.NoError(t, s.SetSmartAutoComplete(ctx, false))
	if s.SmartAutoComplete(ctx) {
		t.Errorf("Expected stored value to win over the default")
	}

	settings, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, "false", string(settings[KeySmartAutoComplete]))
}

func TestStore_WriteFailureIsWrapped(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	boom := errors.New("disk full")
	mem.FailSets(boom)

	s := New(mem, false)
	err := s.SaveBookmarks(ctx, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), KeyBookmarks)
}
