// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vrsandeep/mango-tracker/internal/auth"
	"github.com/vrsandeep/mango-tracker/internal/core"
	"github.com/vrsandeep/mango-tracker/internal/library"
	"go.uber.org/zap"
)

// maxUploadBytes bounds import bodies.
const maxUploadBytes = 64 << 20

// Server holds the dependencies for our API.
type Server struct {
	app      *core.App
	engine   *library.Engine
	verifier *auth.Verifier
	log      *zap.Logger
}

// NewServer creates a new Server instance. Requests are verified against
// the app's token hash; an empty hash disables auth.
func NewServer(app *core.App) *Server {
	s := &Server{
		app:    app,
		engine: app.Engine(),
		log:    app.Logger().Named("api"),
	}
	if app.TokenHash != "" {
		s.verifier = auth.NewVerifier(app.TokenHash)
	}
	return s
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLogger)
	r.Use(middleware.Recoverer) // Recovers from panics
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.AuthMiddleware)

		r.Route("/api", func(r chi.Router) {
			r.Post("/events/read", s.handleReadingEvent)

			// Library Routes
			r.Get("/library", s.handleListLibrary)
			r.Delete("/library", s.handleResetLibrary)
			r.Put("/library/status", s.handleUpdateStatus)
			r.Delete("/library/entry", s.handleDeleteEntry)
			r.Post("/library/dedupe", s.handleDedupe)
			r.Post("/library/sweep", s.handleStartSweep)
			r.Post("/library/resync", s.handleStartResync)
			r.Post("/library/sweep/cancel", s.handleCancelSweep)

			r.Get("/markers", s.handleListMarkers)
			r.Put("/markers", s.handleSaveMarker)
			r.Delete("/markers/{name}", s.handleDeleteMarker)

			r.Post("/bookmarks/page", s.handleBookmarkPage)
			r.Post("/bookmarks/reconcile", s.handleReconcileBookmarks)

			r.Get("/personal/{mangaID}", s.handleGetPersonalData)
			r.Put("/personal/{mangaID}", s.handleSetPersonalData)

			// Transfer Routes
			r.Get("/export", s.handleExport)
			r.Post("/import", s.handleImport)
			r.Post("/import/mal", s.handleImportMAL)
			r.Post("/backup/upload", s.handleBackupUpload)
			r.Post("/backup/sync", s.handleBackupSync)

			// Job Routes
			r.Get("/jobs/status", s.handleGetJobsStatus)
			r.Post("/jobs/run", s.handleRunJob)
		})

		// WebSocket route
		r.Get("/ws/events", func(w http.ResponseWriter, r *http.Request) {
			s.app.Hub.ServeWs(w, r)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DB.PingContext(r.Context()); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
