package backup_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-tracker/internal/backup"
	"github.com/vrsandeep/mango-tracker/internal/config"
	"github.com/vrsandeep/mango-tracker/internal/kv"
	"github.com/vrsandeep/mango-tracker/internal/library"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/store"
	"github.com/vrsandeep/mango-tracker/internal/transfer"
	"go.uber.org/zap"
)

type device struct {
	store  *store.Store
	syncer *backup.Syncer
}

func newDevice(t *testing.T, blobs backup.BlobStore, entries ...models.LibraryEntry) *device {
	t.Helper()
	st := store.New(kv.NewMemory(), false)
	require.NoError(t, st.SaveEntries(context.Background(), entries))
	engine := library.New(st, nil, nil, nil, config.LibraryConfig{}, zap.NewNop())
	svc := transfer.NewService(engine, nil, zap.NewNop())
	return &device{store: st, syncer: backup.NewSyncer(svc, blobs, "", zap.NewNop())}
}

func (d *device) titles(t *testing.T) []string {
	t.Helper()
	entries, err := d.store.Entries(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Title)
	}
	return out
}

func TestSync_TwoDevicesConverge(t *testing.T) {
	blobs := backup.NewMemoryStore()
	ctx := context.Background()
	phone := newDevice(t, blobs, models.LibraryEntry{Title: "Berserk"})
	laptop := newDevice(t, blobs, models.LibraryEntry{Title: "Vagabond"})

	res, err := phone.syncer.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, res.RemoteFound, "a missing remote object is an empty snapshot")
	assert.Positive(t, res.Bytes)

	res, err = laptop.syncer.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, res.RemoteFound)
	assert.ElementsMatch(t, []string{"Berserk", "Vagabond"}, laptop.titles(t))

	_, err = phone.syncer.Sync(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Berserk", "Vagabond"}, phone.titles(t))
}

func TestUpload_WritesGzipSnapshot(t *testing.T) {
	blobs := backup.NewMemoryStore()
	d := newDevice(t, blobs, models.LibraryEntry{Title: "Berserk"})

	_, err := d.syncer.Upload(context.Background())
	require.NoError(t, err)

	data, err := blobs.Get(context.Background(), "mango-tracker/backup.json.gz")
	require.NoError(t, err)
	assert.True(t, transfer.IsGzip(data))
	snap, err := transfer.Parse(data)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
}

func TestSync_CorruptRemoteIsRefused(t *testing.T) {
	blobs := backup.NewMemoryStore()
	require.NoError(t, blobs.Put(context.Background(), "mango-tracker/backup.json.gz", []byte("not json")))
	d := newDevice(t, blobs, models.LibraryEntry{Title: "Berserk"})

	_, err := d.syncer.Sync(context.Background())
	assert.ErrorIs(t, err, transfer.ErrInvalidSnapshot)

	data, err := blobs.Get(context.Background(), "mango-tracker/backup.json.gz")
	require.NoError(t, err)
	assert.Equal(t, "not json", string(data), "remote left untouched")
}

func TestDirStore(t *testing.T) {
	s, err := backup.NewDirStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Get(ctx, "nested/backup.json.gz")
	assert.ErrorIs(t, err, backup.ErrObjectNotFound)

	require.NoError(t, s.Put(ctx, "nested/backup.json.gz", []byte("data")))
	data, err := s.Get(ctx, "nested/backup.json.gz")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
