package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// memKV is an in-memory KV for tests.
type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Get(key string) ([]byte, error) { return m.data[key], nil }
func (m *memKV) Put(key string, value []byte) error {
	m.data[key] = value
	return nil
}

func TestStore_AddIdempotentByPath(t *testing.T) {
	s := NewStore(newMemKV(), t.TempDir(), zerolog.Nop())

	s.Add(Recording{Path: "/a.m4a", Title: "first", CreatedAt: 1})
	s.Add(Recording{Path: "/a.m4a", Title: "second", CreatedAt: 2})

	all := s.GetAll()
	if len(all) != 1 {
		t.Fatalf("len = %d, want 1", len(all))
	}
	if all[0].Title != "first" {
		t.Errorf("title = %q, want the original entry kept", all[0].Title)
	}
}

func TestStore_NewestFirst(t *testing.T) {
	s := NewStore(newMemKV(), t.TempDir(), zerolog.Nop())

	s.Add(Recording{Path: "/old.m4a", CreatedAt: 1})
	s.Add(Recording{Path: "/new.m4a", CreatedAt: 2})

	all := s.GetAll()
	if all[0].Path != "/new.m4a" {
		t.Errorf("head = %q, want newest insertion first", all[0].Path)
	}
}

func TestStore_RemoveByPath(t *testing.T) {
	s := NewStore(newMemKV(), t.TempDir(), zerolog.Nop())

	s.Add(Recording{Path: "/a.m4a"})
	s.Add(Recording{Path: "/b.m4a"})
	if err := s.RemoveByPath("/a.m4a"); err != nil {
		t.Fatalf("RemoveByPath: %v", err)
	}

	all := s.GetAll()
	if len(all) != 1 || all[0].Path != "/b.m4a" {
		t.Errorf("remaining = %+v, want only /b.m4a", all)
	}
}

func TestStore_SurvivesRestart(t *testing.T) {
	kv := newMemKV()
	dir := t.TempDir()

	s := NewStore(kv, dir, zerolog.Nop())
	s.Add(Recording{Path: "/a.m4a", Title: "lecture A", CreatedAt: 42})

	// New Store over the same durable storage simulates a process restart.
	s2 := NewStore(kv, dir, zerolog.Nop())
	all := s2.GetAll()
	if len(all) != 1 || all[0].Title != "lecture A" {
		t.Errorf("after restart = %+v", all)
	}
}

func TestStore_CorruptIndexFallsBackToEmpty(t *testing.T) {
	kv := newMemKV()
	kv.data[indexKey] = []byte("{not json")

	s := NewStore(kv, t.TempDir(), zerolog.Nop())
	if all := s.GetAll(); len(all) != 0 {
		t.Errorf("corrupt index returned %+v, want empty", all)
	}

	// Store remains usable after the fallback.
	if err := s.Add(Recording{Path: "/a.m4a"}); err != nil {
		t.Errorf("Add after corrupt load: %v", err)
	}
}

func TestStore_GetAllWithDiscovered(t *testing.T) {
	dir := t.TempDir()

	aPath := filepath.Join(dir, "a.m4a")
	bPath := filepath.Join(dir, "b.m4a")
	os.WriteFile(aPath, []byte("a"), 0o644)
	os.WriteFile(bPath, []byte("b"), 0o644)

	// Make b clearly newer than the persisted entry for a.
	bTime := time.Now()
	os.Chtimes(bPath, bTime, bTime)

	s := NewStore(newMemKV(), dir, zerolog.Nop())
	s.Add(Recording{Path: aPath, Title: "persisted title", CreatedAt: 1000})

	all := s.GetAllWithDiscovered()
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(all), all)
	}

	// Sorted newest first: discovered b leads.
	if all[0].Path != bPath {
		t.Errorf("head = %q, want discovered %q", all[0].Path, bPath)
	}
	if all[0].Title != "b" {
		t.Errorf("synthesized title = %q, want %q", all[0].Title, "b")
	}
	if all[0].CreatedAt != bTime.UnixMilli() {
		t.Errorf("discovered createdAt = %d, want file mtime %d", all[0].CreatedAt, bTime.UnixMilli())
	}

	// Persisted entry keeps its original title.
	if all[1].Path != aPath || all[1].Title != "persisted title" {
		t.Errorf("persisted entry = %+v", all[1])
	}
}

func TestStore_DiscoveryIgnoresNonAudio(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub.m4a"), 0o755)

	s := NewStore(newMemKV(), dir, zerolog.Nop())
	if all := s.GetAllWithDiscovered(); len(all) != 0 {
		t.Errorf("discovered %+v, want nothing", all)
	}
}

func TestStore_DiscoveryDegradesOnFSError(t *testing.T) {
	s := NewStore(newMemKV(), "/nonexistent-dir-for-test", zerolog.Nop())
	s.Add(Recording{Path: "/a.m4a", Title: "kept"})

	all := s.GetAllWithDiscovered()
	if len(all) != 1 || all[0].Title != "kept" {
		t.Errorf("degraded result = %+v, want persisted list only", all)
	}
}
