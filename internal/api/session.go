package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/lecture-agent/internal/library"
	"github.com/snarg/lecture-agent/internal/recorder"
	"github.com/snarg/lecture-agent/internal/uploader"
)

// SessionController is the recording session surface the handler drives.
type SessionController interface {
	Start(ctx context.Context) (string, error)
	Pause()
	Resume()
	Stop() string
	Cancel()
	Snapshot() recorder.Snapshot
}

// RecordingLibrary is the recording index the handler registers stops into.
type RecordingLibrary interface {
	Add(rec library.Recording) error
	RemoveByPath(path string) error
	GetAll() []library.Recording
	GetAllWithDiscovered() []library.Recording
}

// TaskQueue is the upload queue surface the handlers enqueue into.
type TaskQueue interface {
	AddTask(filePath, title, language string) uploader.Task
	Retry(id string) error
	Remove(id string) error
	Tasks() []uploader.Task
}

// SessionHandler exposes the recording session over HTTP. Stopping a session
// registers the artifact in the library and enqueues its upload in one step.
type SessionHandler struct {
	session SessionController
	lib     RecordingLibrary
	queue   TaskQueue
	log     zerolog.Logger
}

func NewSessionHandler(session SessionController, lib RecordingLibrary, queue TaskQueue, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		session: session,
		lib:     lib,
		queue:   queue,
		log:     log.With().Str("handler", "session").Logger(),
	}
}

// Routes registers the session endpoints.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Get("/session", h.Get)
	r.Post("/session/start", h.Start)
	r.Post("/session/pause", h.Pause)
	r.Post("/session/resume", h.Resume)
	r.Post("/session/stop", h.Stop)
	r.Post("/session/cancel", h.Cancel)
}

// Get handles GET /api/v1/session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// Start handles POST /api/v1/session/start.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	path, err := h.session.Start(r.Context())
	if err != nil {
		if errors.Is(err, recorder.ErrAlreadyRecording) {
			WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("failed to start recording")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{"path": path})
}

// Pause handles POST /api/v1/session/pause.
func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.session.Pause()
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// Resume handles POST /api/v1/session/resume.
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.session.Resume()
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

type stopRequest struct {
	Title    string `json:"title"`
	Language string `json:"language"`
}

type stopResponse struct {
	Recording library.Recording `json:"recording"`
	Task      uploader.Task     `json:"task"`
}

// Stop handles POST /api/v1/session/stop. The optional body supplies a title
// and language for the captured artifact. The recording is indexed and its
// upload enqueued before the response is written, so a crash right after the
// response cannot lose the artifact.
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if r.ContentLength > 0 {
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	path := h.session.Stop()
	if path == "" {
		WriteError(w, http.StatusConflict, "no recording in progress")
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	rec := library.Recording{
		Path:      path,
		Title:     title,
		Language:  req.Language,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := h.lib.Add(rec); err != nil {
		// The file is on disk and discoverable; indexing failure is not fatal.
		h.log.Error().Err(err).Str("path", path).Msg("failed to index recording")
	}

	task := h.queue.AddTask(path, title, req.Language)
	WriteJSON(w, http.StatusOK, stopResponse{Recording: rec, Task: task})
}

// Cancel handles POST /api/v1/session/cancel. The in-progress artifact is
// discarded.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.session.Cancel()
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}
