package core

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vrsandeep/mango-tracker/internal/auth"
	"github.com/vrsandeep/mango-tracker/internal/backup"
	"github.com/vrsandeep/mango-tracker/internal/config"
	"github.com/vrsandeep/mango-tracker/internal/db"
	"github.com/vrsandeep/mango-tracker/internal/events"
	"github.com/vrsandeep/mango-tracker/internal/jobs"
	"github.com/vrsandeep/mango-tracker/internal/kv"
	"github.com/vrsandeep/mango-tracker/internal/library"
	"github.com/vrsandeep/mango-tracker/internal/logger"
	"github.com/vrsandeep/mango-tracker/internal/providers"
	"github.com/vrsandeep/mango-tracker/internal/providers/anilist"
	"github.com/vrsandeep/mango-tracker/internal/providers/mangadex"
	"github.com/vrsandeep/mango-tracker/internal/store"
	"github.com/vrsandeep/mango-tracker/internal/transfer"
	"github.com/vrsandeep/mango-tracker/internal/websocket"
	"go.uber.org/zap"
)

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	config    *config.Config
	DB        *sql.DB
	log       *zap.Logger
	Store     *store.Store
	engine    *library.Engine
	transfer  *transfer.Service
	syncer    *backup.Syncer
	Hub       *websocket.Hub
	publisher events.Publisher
	Jobs      *jobs.JobManager

	// TokenHash verifies API requests. GeneratedToken is set only on the
	// start that created the token.
	TokenHash      string
	GeneratedToken string

	cleanups []func()
}

// New loads config.yml from the current directory and builds the App.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewWithConfig(context.Background(), cfg)
}

// NewWithConfig opens the database, builds the real provider clients and
// the backup target, and assembles the App.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(database, log); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg.Backup, log)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to set up backup target: %w", err)
	}

	app, err := Assemble(ctx, Options{
		Config: cfg,
		DB:     database,
		Logger: log,
		Providers: func(st *store.Store) (providers.MetadataProvider, providers.MetadataProvider) {
			return anilist.New(cfg.Anilist, log), mangadex.New(cfg.Mangadex, st, log)
		},
		Blobs: blobs,
	})
	if err != nil {
		database.Close()
		return nil, err
	}
	// The database closes last.
	app.cleanups = append([]func(){func() { database.Close() }}, app.cleanups...)
	return app, nil
}

// Options are the pieces Assemble does not build itself.
type Options struct {
	Config *config.Config
	// DB must already be migrated. Assemble does not close it.
	DB     *sql.DB
	Logger *zap.Logger
	// Providers builds the primary and secondary clients once the store
	// exists. Nil means no providers.
	Providers func(st *store.Store) (primary, secondary providers.MetadataProvider)
	// Blobs is the backup target. Nil disables backup sync.
	Blobs backup.BlobStore
}

// Assemble wires the store, the event publishers, the engine and the
// services on top of an open database.
func Assemble(ctx context.Context, opts Options) (*App, error) {
	cfg, log := opts.Config, opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	app := &App{config: cfg, DB: opts.DB, log: log}

	kvStore := kv.NewSQLite(opts.DB)
	app.Store = store.New(kvStore, cfg.Library.SmartAutoComplete)

	var err error
	app.TokenHash, app.GeneratedToken, err = auth.EnsureToken(ctx, kvStore, cfg.API.TokenHash)
	if err != nil {
		return nil, fmt.Errorf("failed to provision api token: %w", err)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	app.Hub = websocket.NewHubWithLogger(log)
	go app.Hub.Run(hubCtx)
	app.cleanups = append(app.cleanups, stopHub)

	publishers := []events.Publisher{app.Hub}
	if cfg.NATS.URL != "" {
		nc, closeNATS, err := events.ConnectNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			// Events still reach websocket clients.
			log.Warn("NATS unavailable, events stay local", zap.Error(err))
		} else {
			publishers = append(publishers, nc)
			app.cleanups = append(app.cleanups, closeNATS)
		}
	}
	app.publisher = events.NewFanout(log, publishers...)

	var primary, secondary providers.MetadataProvider
	if opts.Providers != nil {
		primary, secondary = opts.Providers(app.Store)
	}
	app.engine = library.New(app.Store, primary, secondary, app.publisher, cfg.Library, log)
	app.cleanups = append(app.cleanups, app.engine.Wait, app.engine.CancelSweep)

	app.transfer = transfer.NewService(app.engine, app.publisher, log)
	if opts.Blobs != nil {
		app.syncer = backup.NewSyncer(app.transfer, opts.Blobs, cfg.Backup.Key, log)
	}

	app.Jobs = jobs.NewManager(log)
	jobs.RegisterDefaultJobs(app.Jobs)

	log.Info("core application setup complete")
	return app, nil
}

// newBlobStore picks S3 when a bucket is configured, a local folder when a
// directory is, and nothing otherwise.
func newBlobStore(ctx context.Context, cfg config.BackupConfig, log *zap.Logger) (backup.BlobStore, error) {
	switch {
	case cfg.Bucket != "":
		return backup.NewS3Store(ctx, cfg, log)
	case cfg.Dir != "":
		return backup.NewDirStore(cfg.Dir)
	}
	return nil, nil
}

func (a *App) Config() *config.Config      { return a.config }
func (a *App) Engine() *library.Engine     { return a.engine }
func (a *App) Transfer() *transfer.Service { return a.transfer }
func (a *App) Syncer() *backup.Syncer      { return a.syncer }
func (a *App) Publisher() events.Publisher { return a.publisher }
func (a *App) Logger() *zap.Logger         { return a.log }

// Close releases everything New acquired, newest first.
func (a *App) Close() {
	if a.Jobs != nil {
		a.Jobs.Wait()
	}
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
	_ = a.log.Sync()
}
