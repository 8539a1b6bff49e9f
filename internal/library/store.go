package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// indexKey is the single storage key the whole recording index lives under.
const indexKey = "recordings.index"

// Recording is one locally captured audio artifact. Identity key is Path.
type Recording struct {
	Path      string `json:"path"`
	Title     string `json:"title"`
	Language  string `json:"language,omitempty"`
	CreatedAt int64  `json:"created_at"` // epoch millis
}

// KV is the durable storage the index persists into.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

// Store maintains a durable, restart-surviving index of captured recordings
// and reconciles it against the recordings directory on demand.
//
// The index is persisted as one JSON list under a single key and rewritten
// in full on every mutation. Lists are small (a user's own recordings), so
// simplicity wins over incremental formats.
type Store struct {
	kv  KV
	dir string
	log zerolog.Logger

	mu         sync.Mutex
	loaded     bool
	recordings []Recording // newest first
}

// NewStore creates a recording index over kv, reconciling against dir.
func NewStore(kv KV, dir string, log zerolog.Logger) *Store {
	return &Store{
		kv:  kv,
		dir: dir,
		log: log.With().Str("component", "library").Logger(),
	}
}

// Add inserts a recording at the head of the index and persists. Idempotent
// by path: adding an already-indexed path is a no-op.
func (s *Store) Add(rec Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()

	for _, r := range s.recordings {
		if r.Path == rec.Path {
			return nil
		}
	}
	s.recordings = append([]Recording{rec}, s.recordings...)
	return s.persistLocked()
}

// RemoveByPath removes any entries with the given path and persists.
func (s *Store) RemoveByPath(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()

	kept := s.recordings[:0]
	for _, r := range s.recordings {
		if r.Path != path {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(s.recordings) {
		return nil
	}
	s.recordings = kept
	return s.persistLocked()
}

// GetAll returns the persisted index, loading it from durable storage on
// first access and caching it for the process lifetime.
func (s *Store) GetAll() []Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()

	out := make([]Recording, len(s.recordings))
	copy(out, s.recordings)
	return out
}

// GetAllWithDiscovered returns the persisted index merged with audio files
// found in the recordings directory that the index doesn't know about.
// Discovered entries get the file base name as title and the file's
// modification time as CreatedAt. Persisted entries win on path conflicts.
// Filesystem errors degrade to the persisted list.
func (s *Store) GetAllWithDiscovered() []Recording {
	merged := s.GetAll()

	known := make(map[string]bool, len(merged))
	for _, r := range merged {
		known[r.Path] = true
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", s.dir).Msg("discovery scan failed, returning persisted index only")
		return merged
	}

	for _, e := range entries {
		if e.IsDir() || !isAudioFile(e.Name()) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if known[path] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		merged = append(merged, Recording{
			Path:      path,
			Title:     titleFromFilename(e.Name()),
			CreatedAt: info.ModTime().UnixMilli(),
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt > merged[j].CreatedAt
	})
	return merged
}

// loadLocked lazily loads the persisted index. A corrupt payload falls back
// to an empty index: losing the index beats crashing the agent.
func (s *Store) loadLocked() {
	if s.loaded {
		return
	}
	s.loaded = true

	data, err := s.kv.Get(indexKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read recording index, starting empty")
		return
	}
	if data == nil {
		return
	}
	if err := json.Unmarshal(data, &s.recordings); err != nil {
		s.log.Warn().Err(err).Msg("recording index corrupt, starting empty")
		s.recordings = nil
	}
}

func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.recordings)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := s.kv.Put(indexKey, data); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

func titleFromFilename(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// isAudioFile returns true for the audio extensions this agent captures or adopts.
func isAudioFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m4a", ".mp3", ".wav", ".ogg", ".flac", ".aac":
		return true
	default:
		return false
	}
}
