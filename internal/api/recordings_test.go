package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/lecture-agent/internal/library"
)

func recordingsRouter(l *fakeLibrary) http.Handler {
	r := chi.NewRouter()
	NewRecordingsHandler(l, zerolog.Nop()).Routes(r)
	return r
}

func TestRecordingsList(t *testing.T) {
	lib := &fakeLibrary{
		recordings: []library.Recording{{Path: "/rec/a.m4a", Title: "a"}},
		discovered: []library.Recording{
			{Path: "/rec/a.m4a", Title: "a"},
			{Path: "/rec/b.m4a", Title: "b"},
		},
	}
	r := recordingsRouter(lib)

	req := httptest.NewRequest("GET", "/recordings", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var got []library.Recording
	json.NewDecoder(w.Body).Decode(&got)
	if len(got) != 1 {
		t.Errorf("recordings = %+v, want persisted list only", got)
	}
}

func TestRecordingsListWithDiscovery(t *testing.T) {
	lib := &fakeLibrary{
		recordings: []library.Recording{{Path: "/rec/a.m4a", Title: "a"}},
		discovered: []library.Recording{
			{Path: "/rec/a.m4a", Title: "a"},
			{Path: "/rec/b.m4a", Title: "b"},
		},
	}
	r := recordingsRouter(lib)

	req := httptest.NewRequest("GET", "/recordings?discover=true", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var got []library.Recording
	json.NewDecoder(w.Body).Decode(&got)
	if len(got) != 2 {
		t.Errorf("recordings = %+v, want merged list", got)
	}
}

func TestRecordingsDelete(t *testing.T) {
	lib := &fakeLibrary{}
	r := recordingsRouter(lib)

	body := strings.NewReader(`{"path":"/rec/a.m4a"}`)
	req := httptest.NewRequest("DELETE", "/recordings", body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", w.Code, w.Body.String())
	}
	if len(lib.removed) != 1 || lib.removed[0] != "/rec/a.m4a" {
		t.Errorf("removed = %v", lib.removed)
	}
}

func TestRecordingsDeleteWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.m4a")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	lib := &fakeLibrary{}
	r := recordingsRouter(lib)

	body := strings.NewReader(`{"path":"` + path + `","delete_file":true}`)
	req := httptest.NewRequest("DELETE", "/recordings", body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still exists after delete_file")
	}
}

func TestRecordingsDeleteMissingFileIsOK(t *testing.T) {
	lib := &fakeLibrary{}
	r := recordingsRouter(lib)

	body := strings.NewReader(`{"path":"/does/not/exist.m4a","delete_file":true}`)
	req := httptest.NewRequest("DELETE", "/recordings", body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204 for stale index entry", w.Code)
	}
}

func TestRecordingsDeleteMissingPath(t *testing.T) {
	r := recordingsRouter(&fakeLibrary{})

	req := httptest.NewRequest("DELETE", "/recordings", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
