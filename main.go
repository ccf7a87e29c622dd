package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vrsandeep/mango-tracker/internal/api"
	"github.com/vrsandeep/mango-tracker/internal/core"
	"github.com/vrsandeep/mango-tracker/internal/jobs"
	"github.com/vrsandeep/mango-tracker/internal/transfer"
	"go.uber.org/zap"
)

func main() {
	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()
	logger := app.Logger()

	// --- First Token Provisioning ---
	if app.GeneratedToken != "" {
		logger.Info("==================================================")
		logger.Info("API token created. It is shown only once.")
		logger.Info("token", zap.String("value", app.GeneratedToken))
		logger.Info("==================================================")
	}

	// Start the scheduled sweep and backup sync
	scheduler := jobs.StartScheduler(app, app.Jobs)
	defer scheduler.Stop()

	// Merge snapshots dropped into the sync folder
	if dir := app.Config().Sync.WatchDir; dir != "" {
		watcher := transfer.NewWatcher(app.Transfer(), dir, 0, logger)
		if err := watcher.Start(); err != nil {
			logger.Warn("sync folder watcher not started", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	// Setup the API server
	server := api.NewServer(app)
	addr := fmt.Sprintf(":%d", app.Config().Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}
	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		logger.Info("starting web server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Create a context with a timeout to allow existing connections to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app.Engine().CancelSweep()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
