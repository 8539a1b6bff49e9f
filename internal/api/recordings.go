package api

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/lecture-agent/internal/library"
)

// RecordingsHandler exposes the recording index over HTTP.
type RecordingsHandler struct {
	lib RecordingLibrary
	log zerolog.Logger
}

func NewRecordingsHandler(lib RecordingLibrary, log zerolog.Logger) *RecordingsHandler {
	return &RecordingsHandler{
		lib: lib,
		log: log.With().Str("handler", "recordings").Logger(),
	}
}

// Routes registers the recording endpoints.
func (h *RecordingsHandler) Routes(r chi.Router) {
	r.Get("/recordings", h.List)
	r.Delete("/recordings", h.Delete)
}

// List handles GET /api/v1/recordings. With ?discover=true the index is
// merged with untracked audio files found in the recordings directory.
func (h *RecordingsHandler) List(w http.ResponseWriter, r *http.Request) {
	var recs []library.Recording
	if discover, _ := QueryBool(r, "discover"); discover {
		recs = h.lib.GetAllWithDiscovered()
	} else {
		recs = h.lib.GetAll()
	}
	if recs == nil {
		recs = []library.Recording{}
	}
	WriteJSON(w, http.StatusOK, recs)
}

type deleteRecordingRequest struct {
	Path       string `json:"path"`
	DeleteFile bool   `json:"delete_file"`
}

// Delete handles DELETE /api/v1/recordings. Removes the entry from the index
// and, when delete_file is set, the audio file itself. A missing file is not
// an error: the index entry is stale and removing it is the point.
func (h *RecordingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRecordingRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Path == "" {
		WriteError(w, http.StatusBadRequest, "path is required")
		return
	}

	if err := h.lib.RemoveByPath(req.Path); err != nil {
		h.log.Error().Err(err).Str("path", req.Path).Msg("failed to remove recording from index")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.DeleteFile {
		if err := os.Remove(req.Path); err != nil && !os.IsNotExist(err) {
			h.log.Warn().Err(err).Str("path", req.Path).Msg("failed to delete recording file")
			WriteErrorDetail(w, http.StatusInternalServerError, "index entry removed but file deletion failed", err.Error())
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
