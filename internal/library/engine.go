// Package library is the reconciliation engine. It folds reading events and
// scraped bookmarks into one deduplicated library and enriches the entries
// from the catalog metadata providers.
//
// Every read-modify-write of the persisted library goes through Engine.mu,
// and no provider call is ever made while it is held.
package library

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/config"
	"github.com/vrsandeep/mango-tracker/internal/events"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/providers"
	"github.com/vrsandeep/mango-tracker/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrSweepRunning is returned when a sweep or re-sync is already in flight.
var ErrSweepRunning = errors.New("library: enrichment sweep already running")

// ErrEmptyTitle rejects reading events without a title.
var ErrEmptyTitle = errors.New("library: event has no title")

// idFetcher is implemented by primary providers that can load a known id.
type idFetcher interface {
	FetchByID(ctx context.Context, id models.ProviderID) (*models.CatalogMetadata, error)
}

// Engine owns the library state.
type Engine struct {
	store     *store.Store
	primary   providers.MetadataProvider
	secondary providers.MetadataProvider
	pub       events.Publisher
	cfg       config.LibraryConfig
	log       *zap.Logger

	mu       sync.Mutex
	resolves singleflight.Group
	pending  sync.WaitGroup

	sweeping    atomic.Bool
	cancelSweep atomic.Bool

	// Now and Sleep are replaced in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates an engine. secondary and pub may be nil.
func New(st *store.Store, primary, secondary providers.MetadataProvider, pub events.Publisher, cfg config.LibraryConfig, log *zap.Logger) *Engine {
	if pub == nil {
		pub = events.Nop{}
	}
	if cfg.RetryWindow <= 0 {
		cfg.RetryWindow = 24 * time.Hour
	}
	if cfg.NotFoundCooldown <= 0 {
		cfg.NotFoundCooldown = 7 * 24 * time.Hour
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 5
	}
	return &Engine{
		store:     st,
		primary:   primary,
		secondary: secondary,
		pub:       pub,
		cfg:       cfg,
		log:       log.Named("library"),
		Now:       time.Now,
		Sleep:     providers.SleepContext,
	}
}

// Store returns the typed store the engine writes to.
func (e *Engine) Store() *store.Store {
	return e.store
}

func (e *Engine) nowMillis() int64 {
	return e.Now().UnixMilli()
}

// publish is best effort.
func (e *Engine) publish(ctx context.Context, topic string, payload any) {
	if err := e.pub.Publish(ctx, topic, payload); err != nil {
		e.log.Debug("publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

// Wait blocks until every fire-and-forget ingestion has finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}

// loadLibrary reads entries and history. Callers hold e.mu.
func (e *Engine) loadLibrary(ctx context.Context) ([]models.LibraryEntry, models.ReadingHistory, error) {
	entries, err := e.store.Entries(ctx)
	if err != nil {
		return nil, nil, err
	}
	history, err := e.store.History(ctx)
	if err != nil {
		return nil, nil, err
	}
	return entries, history, nil
}

// LibraryUpdate is the payload of library.updated events.
type LibraryUpdate struct {
	Action string `json:"action"`
	Title  string `json:"title,omitempty"`
	Count  int    `json:"count,omitempty"`
}

// Exclusive runs fn while holding the library lock, so bulk writers such as
// snapshot import never interleave with ingestion or sweep write-back. fn
// must not call back into the engine.
func (e *Engine) Exclusive(ctx context.Context, fn func(ctx context.Context, st *store.Store) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(ctx, e.store)
}

// Notify publishes a library.updated event on behalf of a bulk writer.
func (e *Engine) Notify(ctx context.Context, update LibraryUpdate) {
	e.publish(ctx, events.TopicLibraryUpdated, update)
}
