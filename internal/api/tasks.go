package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/lecture-agent/internal/uploader"
)

// TasksHandler exposes the upload task queue over HTTP.
type TasksHandler struct {
	queue TaskQueue
	log   zerolog.Logger
}

func NewTasksHandler(queue TaskQueue, log zerolog.Logger) *TasksHandler {
	return &TasksHandler{
		queue: queue,
		log:   log.With().Str("handler", "tasks").Logger(),
	}
}

// Routes registers the task endpoints.
func (h *TasksHandler) Routes(r chi.Router) {
	r.Get("/tasks", h.List)
	r.Post("/tasks", h.Create)
	r.Post("/tasks/{id}/retry", h.Retry)
	r.Delete("/tasks/{id}", h.Delete)
}

// List handles GET /api/v1/tasks.
func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks := h.queue.Tasks()
	if tasks == nil {
		tasks = []uploader.Task{}
	}
	WriteJSON(w, http.StatusOK, tasks)
}

type createTaskRequest struct {
	Path     string `json:"path"`
	Title    string `json:"title"`
	Language string `json:"language"`
}

// Create handles POST /api/v1/tasks. Enqueues an upload for an existing
// recording. Adding a path that already has a live task returns that task.
func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Path == "" {
		WriteError(w, http.StatusBadRequest, "path is required")
		return
	}

	task := h.queue.AddTask(req.Path, req.Title, req.Language)
	WriteJSON(w, http.StatusAccepted, task)
}

// Retry handles POST /api/v1/tasks/{id}/retry.
func (h *TasksHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	switch err := h.queue.Retry(id); {
	case errors.Is(err, uploader.ErrTaskNotFound):
		WriteError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, uploader.ErrNotFailed):
		WriteError(w, http.StatusConflict, "task is not in failed state")
	case err != nil:
		h.log.Error().Err(err).Str("task_id", id).Msg("retry failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// Delete handles DELETE /api/v1/tasks/{id}. Cancels any in-flight phase and
// removes the task from the queue.
func (h *TasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.queue.Remove(id); err != nil {
		WriteError(w, http.StatusNotFound, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
