package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/transfer"
)

// handleExport streams a snapshot as a download. ?categories= selects the
// collections and ?gzip=true compresses the document.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	cats, err := transfer.ParseCategories(r.URL.Query().Get("categories"))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	compress, _ := strconv.ParseBool(r.URL.Query().Get("gzip"))

	snap, err := s.app.Transfer().Export(r.Context(), cats)
	if err != nil {
		s.internalError(w, "export", err)
		return
	}
	data, err := transfer.Marshal(snap, compress)
	if err != nil {
		s.internalError(w, "export", err)
		return
	}

	name := "mango-tracker-" + snap.Metadata.ExportDate.Format("2006-01-02") + ".json"
	contentType := "application/json"
	if compress {
		name += ".gz"
		contentType = "application/gzip"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleImport applies an uploaded snapshot. The mode defaults to merge.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	modeParam := r.URL.Query().Get("mode")
	if modeParam == "" {
		modeParam = string(transfer.ModeMerge)
	}
	mode, err := transfer.ParseMode(modeParam)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, ok := readUpload(w, r)
	if !ok {
		return
	}

	res, err := s.app.Transfer().Import(r.Context(), data, mode)
	if isBadSnapshot(err) {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "import", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, res)
}

func (s *Server) handleImportMAL(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r)
	if !ok {
		return
	}
	n, err := s.app.Transfer().ImportMAL(r.Context(), data)
	if isBadSnapshot(err) {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "import MAL export", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]int{"bookmarks": n})
}

func (s *Server) handleBackupUpload(w http.ResponseWriter, r *http.Request) {
	syncer := s.app.Syncer()
	if syncer == nil {
		RespondWithError(w, http.StatusNotFound, "No backup target configured")
		return
	}
	n, err := syncer.Upload(r.Context())
	if err != nil {
		s.internalError(w, "upload backup", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]int{"bytes": n})
}

func (s *Server) handleBackupSync(w http.ResponseWriter, r *http.Request) {
	syncer := s.app.Syncer()
	if syncer == nil {
		RespondWithError(w, http.StatusNotFound, "No backup target configured")
		return
	}
	res, err := syncer.Sync(r.Context())
	if isBadSnapshot(err) {
		// The remote copy is refused, never overwritten.
		RespondWithError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "sync backup", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, res)
}

// readUpload reads a raw request body, bounded by maxUploadBytes.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		RespondWithError(w, http.StatusRequestEntityTooLarge, "Upload too large")
		return nil, false
	}
	if len(data) == 0 {
		RespondWithError(w, http.StatusBadRequest, "Empty upload")
		return nil, false
	}
	return data, true
}

func isBadSnapshot(err error) bool {
	return errors.Is(err, transfer.ErrInvalidSnapshot) || errors.Is(err, transfer.ErrUnsupportedVersion)
}
