package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/lecture-agent/internal/library"
	"github.com/snarg/lecture-agent/internal/recorder"
	"github.com/snarg/lecture-agent/internal/uploader"
)

type fakeSession struct {
	startPath string
	startErr  error
	stopPath  string
	state     string

	started, paused, resumed, stopped, cancelled int
}

func (s *fakeSession) Start(ctx context.Context) (string, error) {
	if s.startErr != nil {
		return "", s.startErr
	}
	s.started++
	return s.startPath, nil
}
func (s *fakeSession) Pause()       { s.paused++ }
func (s *fakeSession) Resume()      { s.resumed++ }
func (s *fakeSession) Stop() string { s.stopped++; return s.stopPath }
func (s *fakeSession) Cancel()      { s.cancelled++ }
func (s *fakeSession) Snapshot() recorder.Snapshot {
	return recorder.Snapshot{State: s.state}
}

type fakeLibrary struct {
	added      []library.Recording
	removed    []string
	recordings []library.Recording
	discovered []library.Recording
	addErr     error
	removeErr  error
}

func (l *fakeLibrary) Add(rec library.Recording) error {
	if l.addErr != nil {
		return l.addErr
	}
	l.added = append(l.added, rec)
	return nil
}
func (l *fakeLibrary) RemoveByPath(path string) error {
	if l.removeErr != nil {
		return l.removeErr
	}
	l.removed = append(l.removed, path)
	return nil
}
func (l *fakeLibrary) GetAll() []library.Recording { return l.recordings }
func (l *fakeLibrary) GetAllWithDiscovered() []library.Recording {
	return l.discovered
}

type fakeQueue struct {
	tasks    []uploader.Task
	addCalls []uploader.Task
	retryErr error
	retried  []string
	delErr   error
	deleted  []string
}

func (q *fakeQueue) AddTask(path, title, language string) uploader.Task {
	task := uploader.Task{ID: "t-1", FilePath: path, Title: title, Language: language, Status: uploader.TaskUploading}
	q.addCalls = append(q.addCalls, task)
	return task
}
func (q *fakeQueue) Retry(id string) error {
	if q.retryErr != nil {
		return q.retryErr
	}
	q.retried = append(q.retried, id)
	return nil
}
func (q *fakeQueue) Remove(id string) error {
	if q.delErr != nil {
		return q.delErr
	}
	q.deleted = append(q.deleted, id)
	return nil
}
func (q *fakeQueue) Tasks() []uploader.Task { return q.tasks }

func sessionRouter(s *fakeSession, l *fakeLibrary, q *fakeQueue) http.Handler {
	r := chi.NewRouter()
	NewSessionHandler(s, l, q, zerolog.Nop()).Routes(r)
	return r
}

func TestSessionStart(t *testing.T) {
	sess := &fakeSession{startPath: "/rec/20260823-101500.m4a"}
	r := sessionRouter(sess, &fakeLibrary{}, &fakeQueue{})

	req := httptest.NewRequest("POST", "/session/start", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["path"] != sess.startPath {
		t.Errorf("path = %q, want %q", resp["path"], sess.startPath)
	}
}

func TestSessionStartConflict(t *testing.T) {
	sess := &fakeSession{startErr: recorder.ErrAlreadyRecording}
	r := sessionRouter(sess, &fakeLibrary{}, &fakeQueue{})

	req := httptest.NewRequest("POST", "/session/start", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestSessionStopIndexesAndEnqueues(t *testing.T) {
	sess := &fakeSession{stopPath: "/rec/20260823-101500.m4a"}
	lib := &fakeLibrary{}
	queue := &fakeQueue{}
	r := sessionRouter(sess, lib, queue)

	body := strings.NewReader(`{"title":"Linear Algebra","language":"en"}`)
	req := httptest.NewRequest("POST", "/session/stop", body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	if len(lib.added) != 1 {
		t.Fatalf("library adds = %d, want 1", len(lib.added))
	}
	rec := lib.added[0]
	if rec.Path != sess.stopPath || rec.Title != "Linear Algebra" || rec.Language != "en" {
		t.Errorf("indexed recording = %+v", rec)
	}
	if rec.CreatedAt == 0 {
		t.Error("CreatedAt not set")
	}

	if len(queue.addCalls) != 1 {
		t.Fatalf("enqueued tasks = %d, want 1", len(queue.addCalls))
	}
	if queue.addCalls[0].FilePath != sess.stopPath {
		t.Errorf("enqueued path = %q, want %q", queue.addCalls[0].FilePath, sess.stopPath)
	}

	var resp stopResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Task.ID == "" || resp.Recording.Path != sess.stopPath {
		t.Errorf("response = %+v", resp)
	}
}

func TestSessionStopDefaultsTitleFromFilename(t *testing.T) {
	sess := &fakeSession{stopPath: "/rec/20260823-101500.m4a"}
	lib := &fakeLibrary{}
	r := sessionRouter(sess, lib, &fakeQueue{})

	req := httptest.NewRequest("POST", "/session/stop", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if lib.added[0].Title != "20260823-101500" {
		t.Errorf("title = %q, want filename-derived", lib.added[0].Title)
	}
}

func TestSessionStopWhileIdle(t *testing.T) {
	sess := &fakeSession{stopPath: ""}
	lib := &fakeLibrary{}
	queue := &fakeQueue{}
	r := sessionRouter(sess, lib, queue)

	req := httptest.NewRequest("POST", "/session/stop", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	if len(lib.added) != 0 || len(queue.addCalls) != 0 {
		t.Error("idle stop must not index or enqueue anything")
	}
}

func TestSessionCancel(t *testing.T) {
	sess := &fakeSession{state: "idle"}
	r := sessionRouter(sess, &fakeLibrary{}, &fakeQueue{})

	req := httptest.NewRequest("POST", "/session/cancel", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if sess.cancelled != 1 {
		t.Errorf("cancelled = %d, want 1", sess.cancelled)
	}
}

func TestSessionGet(t *testing.T) {
	sess := &fakeSession{state: "recording"}
	r := sessionRouter(sess, &fakeLibrary{}, &fakeQueue{})

	req := httptest.NewRequest("GET", "/session", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var snap recorder.Snapshot
	json.NewDecoder(w.Body).Decode(&snap)
	if snap.State != "recording" {
		t.Errorf("state = %q, want recording", snap.State)
	}
}
