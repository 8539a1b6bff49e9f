package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeStore struct {
	mu       sync.Mutex
	saved    map[string][]byte
	types    map[string]string
	existing map[string]bool
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		saved:    make(map[string][]byte),
		types:    make(map[string]string),
		existing: make(map[string]bool),
	}
}

func (f *fakeStore) Save(ctx context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[key] = data
	f.types[key] = contentType
	return nil
}

func (f *fakeStore) Exists(ctx context.Context, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[key]
}

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func writeRecording(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("audio data"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestArchiverUploads(t *testing.T) {
	store := newFakeStore()
	a := NewArchiver(store, 4, zerolog.Nop())
	a.Start(1)

	path := writeRecording(t, "lecture.m4a")
	a.Enqueue(path)
	a.Stop()

	if store.savedCount() != 1 {
		t.Fatalf("saved = %d, want 1", store.savedCount())
	}
	for key, data := range store.saved {
		if filepath.Base(key) != "lecture.m4a" {
			t.Errorf("key = %q, want date-sharded basename", key)
		}
		if string(data) != "audio data" {
			t.Errorf("data = %q", data)
		}
		if store.types[key] != "audio/mp4" {
			t.Errorf("content type = %q, want audio/mp4", store.types[key])
		}
	}
}

func TestArchiverSkipsExisting(t *testing.T) {
	store := newFakeStore()
	path := writeRecording(t, "lecture.m4a")
	store.existing[objectKeyFor(path)] = true

	a := NewArchiver(store, 4, zerolog.Nop())
	a.Start(1)
	a.Enqueue(path)
	a.Stop()

	if store.savedCount() != 0 {
		t.Errorf("saved = %d, want 0 for already-archived object", store.savedCount())
	}
}

func TestArchiverSurvivesFailures(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("bucket unavailable")

	a := NewArchiver(store, 4, zerolog.Nop())
	a.Start(2)
	a.Enqueue(writeRecording(t, "a.m4a"))
	a.Enqueue("/does/not/exist.m4a")
	a.Stop()

	// Both jobs drain without panics or retries.
	if store.savedCount() != 0 {
		t.Errorf("saved = %d, want 0", store.savedCount())
	}
}

func TestArchiverEnqueueAfterStop(t *testing.T) {
	a := NewArchiver(newFakeStore(), 4, zerolog.Nop())
	a.Start(1)
	a.Stop()

	// Must not panic on the closed channel.
	a.Enqueue("/rec/x.m4a")
}

func TestObjectKeyUsesModTime(t *testing.T) {
	path := writeRecording(t, "lecture.m4a")
	mtime := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	if key := objectKeyFor(path); key != "2026-03-14/lecture.m4a" {
		t.Errorf("key = %q, want 2026-03-14/lecture.m4a", key)
	}
}

func TestContentTypes(t *testing.T) {
	cases := map[string]string{
		"x.m4a": "audio/mp4",
		"x.mp3": "audio/mpeg",
		"x.bin": "application/octet-stream",
	}
	for name, want := range cases {
		if got := contentTypeFor(name); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}
