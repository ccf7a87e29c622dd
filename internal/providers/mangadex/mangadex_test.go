package mangadex

// It uses a mock HTTP server to avoid making real network requests.

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-tracker/internal/config"
	"github.com/vrsandeep/mango-tracker/internal/kv"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/store"
	"go.uber.org/zap"
)

const towerOfGod = `{"data":[{"id":"series-1","attributes":{
	"title":{"en":"Tower of God"},
	"altTitles":[{"ko":"신의 탑"},{"ko-ro":"Sin-ui Tap"}],
	"description":{"en":"Bam climbs the tower."},
	"originalLanguage":"ko",
	"lastChapter":"550",
	"status":"ongoing",
	"year":2010,
	"links":{"al":"85143"},
	"tags":[
		{"attributes":{"name":{"en":"Action"},"group":"genre"}},
		{"attributes":{"name":{"en":"Long Strip"},"group":"format"}}
	]},
	"relationships":[{"type":"author"},{"type":"cover_art","attributes":{"fileName":"cover.jpg"}}]}]}`

// setupTestServer creates a mock HTTP server that answers every search with
// body and counts the requests.
func setupTestServer(body string, hits *int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/manga", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})
	return httptest.NewServer(mux)
}

func newTestClient(url string, cache CacheStore) *Client {
	c := New(config.ProviderConfig{
		URL:         url,
		CoverURL:    url + "/coverArt",
		MaxRetries:  2,
		BackoffBase: time.Second,
		CacheTTL:    7 * 24 * time.Hour,
	}, cache, zap.NewNop())
	c.Sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestFetchByTitle_Transform(t *testing.T) {
	var hits int32
	server := setupTestServer(towerOfGod, &hits)
	defer server.Close()

	p := newTestClient(server.URL, nil)
	got, err := p.FetchByTitle(context.Background(), "Tower of God")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, models.ProviderID("series-1"), got.ID)
	assert.Equal(t, "Tower of God", got.Title.English)
	assert.Equal(t, "Sin-ui Tap", got.Title.Romaji)
	assert.Equal(t, "신의 탑", got.Title.Native)
	assert.Equal(t, "Manhwa", got.Format)
	assert.Equal(t, "KR", got.CountryOfOrigin)
	assert.Equal(t, models.SeriesReleasing, got.Status)
	assert.Equal(t, 550, got.Chapters)
	assert.Equal(t, []string{"Action"}, got.Genres)
	assert.Equal(t, []string{"Long Strip"}, got.Tags)
	assert.Equal(t, server.URL+"/coverArt/covers/series-1/cover.jpg.512.jpg", got.CoverImage.Large)
	assert.Equal(t, SourceTag, got.Source)
	require.Len(t, got.ExternalLinks, 1)
	assert.Equal(t, "https://anilist.co/manga/85143", got.ExternalLinks[0].URL)
}

func TestFetchByTitle_PlaceholderCover(t *testing.T) {
	var hits int32
	server := setupTestServer(`{"data":[{"id":"x","attributes":{"title":{"ja":"ワンパンマン"},"originalLanguage":"ja","status":"completed"}}]}`, &hits)
	defer server.Close()

	got, err := newTestClient(server.URL, nil).FetchByTitle(context.Background(), "One Punch Man")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, PlaceholderCover, got.CoverImage.Large)
	assert.Equal(t, "MANGA", got.Format)
	assert.Equal(t, "JP", got.CountryOfOrigin)
	assert.Equal(t, models.SeriesFinished, got.Status)
}

func TestFetchByTitle_CacheShortCircuits(t *testing.T) {
	var hits int32
	server := setupTestServer(towerOfGod, &hits)
	defer server.Close()

	cache := store.New(kv.NewMemory(), false)
	p := newTestClient(server.URL, cache)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p.Now = func() time.Time { return now }

	ctx := context.Background()
	_, err := p.FetchByTitle(ctx, "Tower of God")
	require.NoError(t, err)

	// Same key after lower-casing and trimming.
	got, err := p.FetchByTitle(ctx, "  TOWER OF GOD ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	records, err := cache.MangadexCache(ctx)
	require.NoError(t, err)
	assert.Contains(t, records, "tower of god")

	// Past the TTL the network is consulted again.
	now = now.Add(7*24*time.Hour + time.Minute)
	_, err = p.FetchByTitle(ctx, "Tower of God")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchByTitle_NegativeResultsAreCached(t *testing.T) {
	var hits int32
	server := setupTestServer(`{"result":"ok","data":[]}`, &hits)
	defer server.Close()

	cache := store.New(kv.NewMemory(), false)
	p := newTestClient(server.URL, cache)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := p.FetchByTitle(ctx, "Nonexistent Title")
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	records, err := cache.MangadexCache(ctx)
	require.NoError(t, err)
	assert.True(t, records["nonexistent title"].Data.IsNotFound())
}

func TestFetchByTitle_ExhaustedRetriesAreNotCached(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/manga", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cache := store.New(kv.NewMemory(), false)
	p := newTestClient(server.URL, cache)

	got, err := p.FetchByTitle(context.Background(), "Berserk")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits), "max retries 2 means three requests")

	records, _ := cache.MangadexCache(context.Background())
	assert.Empty(t, records)
}

func TestBackfill(t *testing.T) {
	primary := &models.CatalogMetadata{ID: "5", Genres: []string{}, Chapters: 0, CoverImage: models.CoverImage{Large: "primary.jpg"}}
	secondary := &models.CatalogMetadata{ID: "uuid", Description: "text", Genres: []string{"Action"}, Chapters: 80, BannerImage: "banner", CoverImage: models.CoverImage{Large: "secondary.jpg"}}

	got := Backfill(primary, secondary)
	assert.Equal(t, models.ProviderID("5"), got.ID)
	assert.Equal(t, "text", got.Description)
	assert.Equal(t, []string{"Action"}, got.Genres)
	assert.Equal(t, 80, got.Chapters)
	assert.Equal(t, "banner", got.BannerImage)
	assert.Equal(t, "primary.jpg", got.CoverImage.Large, "present primary fields are kept")
	assert.Empty(t, primary.Description, "inputs are not modified")

	assert.Equal(t, secondary.ID, Backfill(nil, secondary).ID)
	assert.Nil(t, Backfill(nil, models.NotFound("x", "", 1)))
	assert.Equal(t, primary.ID, Backfill(primary, nil).ID)
}

func TestDeriveFormat(t *testing.T) {
	longStrip := Tag{}
	longStrip.Attributes.Name = MultiLingualString{"en": "Long Strip"}
	oneshot := Tag{}
	oneshot.Attributes.Name = MultiLingualString{"en": "Oneshot"}

	tests := []struct {
		lang string
		tags []Tag
		want string
	}{
		{"ja", nil, "MANGA"},
		{"ja", []Tag{longStrip}, "MANGA"},
		{"ko", nil, "Manhwa"},
		{"zh-hk", nil, "Manhua"},
		{"en", []Tag{longStrip}, "Manhwa"},
		{"ko", []Tag{oneshot}, "ONE_SHOT"},
	}
	for _, tt := range tests {
		got := deriveFormat(MangaAttributes{OriginalLanguage: tt.lang, Tags: tt.tags})
		if got != tt.want {
			t.Errorf("deriveFormat(%s, %d tags) = %q, want %q", tt.lang, len(tt.tags), got, tt.want)
		}
	}
}
