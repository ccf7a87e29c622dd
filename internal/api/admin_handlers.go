package api

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/jobs"
)

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Job string `json:"job"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	s.startJob(w, payload.Job)
}

func (s *Server) startJob(w http.ResponseWriter, jobID string) {
	err := s.app.Jobs.RunJob(jobID, s.app)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		RespondWithError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		RespondWithError(w, http.StatusConflict, err.Error()) // 409 Conflict if a job is already running
		return
	}

	RespondWithJSON(w, http.StatusAccepted, map[string]string{
		"message": "Job '" + jobID + "' started successfully.",
	})
}

func (s *Server) handleGetJobsStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.app.Jobs.GetStatus()
	RespondWithJSON(w, http.StatusOK, statuses)
}
