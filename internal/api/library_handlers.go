package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/jobs"
	"github.com/vrsandeep/mango-tracker/internal/library"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"go.uber.org/zap"
)

// handleReadingEvent queues a chapter-read event. The response does not
// wait for provider lookups.
func (s *Server) handleReadingEvent(w http.ResponseWriter, r *http.Request) {
	var ev library.ReadingEvent
	if !decodeJSON(w, r, &ev) {
		return
	}
	if strings.TrimSpace(ev.Title) == "" {
		RespondWithError(w, http.StatusBadRequest, "title is required")
		return
	}
	s.engine.Ingest(ev)
	RespondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Event accepted."})
}

func (s *Server) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.Entries(r.Context())
	if err != nil {
		s.internalError(w, "list library", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, entries)
}

func (s *Server) handleResetLibrary(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(r.Context()); err != nil {
		s.internalError(w, "reset library", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title        string  `json:"title"`
		Status       string  `json:"status"`
		CustomMarker *string `json:"customMarker"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	entry, err := s.engine.UpdateStatus(r.Context(), payload.Title, payload.Status, payload.CustomMarker)
	if errors.Is(err, library.ErrEntryNotFound) {
		RespondWithError(w, http.StatusNotFound, "Entry not found")
		return
	}
	if err != nil {
		s.internalError(w, "update status", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if title == "" {
		RespondWithError(w, http.StatusBadRequest, "title is required")
		return
	}
	err := s.engine.DeleteEntry(r.Context(), title)
	if errors.Is(err, library.ErrEntryNotFound) {
		RespondWithError(w, http.StatusNotFound, "Entry not found")
		return
	}
	if err != nil {
		s.internalError(w, "delete entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDedupe(w http.ResponseWriter, r *http.Request) {
	removed, err := s.engine.Deduplicate(r.Context())
	if err != nil {
		s.internalError(w, "dedupe", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleStartSweep(w http.ResponseWriter, r *http.Request) {
	s.startJob(w, jobs.JobSweep)
}

func (s *Server) handleStartResync(w http.ResponseWriter, r *http.Request) {
	s.startJob(w, jobs.JobResync)
}

func (s *Server) handleCancelSweep(w http.ResponseWriter, r *http.Request) {
	if !s.engine.SweepRunning() {
		RespondWithError(w, http.StatusConflict, "No sweep is running")
		return
	}
	s.engine.CancelSweep()
	RespondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Cancellation requested."})
}

func (s *Server) handleListMarkers(w http.ResponseWriter, r *http.Request) {
	markers, err := s.engine.Markers(r.Context())
	if err != nil {
		s.internalError(w, "list markers", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, markers)
}

func (s *Server) handleSaveMarker(w http.ResponseWriter, r *http.Request) {
	var m models.Marker
	if !decodeJSON(w, r, &m) {
		return
	}
	if strings.TrimSpace(m.Name) == "" {
		RespondWithError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := s.engine.SaveMarker(r.Context(), m); err != nil {
		s.internalError(w, "save marker", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMarker(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteMarker(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.internalError(w, "delete marker", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBookmarkPage(w http.ResponseWriter, r *http.Request) {
	var page []models.Bookmark
	if !decodeJSON(w, r, &page) {
		return
	}
	res, err := s.engine.ApplyBookmarkPage(r.Context(), page)
	if err != nil {
		s.internalError(w, "apply bookmark page", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, res)
}

func (s *Server) handleReconcileBookmarks(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ReconcileBookmarks(r.Context())
	if err != nil {
		s.internalError(w, "reconcile bookmarks", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetPersonalData(w http.ResponseWriter, r *http.Request) {
	data, _, err := s.engine.PersonalData(r.Context(), chi.URLParam(r, "mangaID"))
	if err != nil {
		s.internalError(w, "get personal data", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, data)
}

func (s *Server) handleSetPersonalData(w http.ResponseWriter, r *http.Request) {
	var data models.PersonalData
	if !decodeJSON(w, r, &data) {
		return
	}
	saved, err := s.engine.SetPersonalData(r.Context(), chi.URLParam(r, "mangaID"), data)
	if err != nil {
		s.internalError(w, "set personal data", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, saved)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error(op+" failed", zap.Error(err))
	RespondWithError(w, http.StatusInternalServerError, "Failed to "+op)
}
