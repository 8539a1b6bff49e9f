package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ObjectStore is the blob storage the archiver writes into.
type ObjectStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) bool
}

// Archiver copies successfully transcribed recordings to object storage in
// the background. The local file is the source of truth; an archive failure
// is logged and dropped, never retried into the agent's upload pipeline.
type Archiver struct {
	store    ObjectStore
	ch       chan string
	log      zerolog.Logger
	stopped  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewArchiver creates an archiver with the given queue depth.
func NewArchiver(store ObjectStore, bufferSize int, log zerolog.Logger) *Archiver {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Archiver{
		store: store,
		ch:    make(chan string, bufferSize),
		log:   log.With().Str("component", "archiver").Logger(),
	}
}

// Enqueue schedules a recording for archival. Non-blocking: drops with a
// warning when the queue is full or the archiver is stopped.
func (a *Archiver) Enqueue(path string) {
	if a.stopped.Load() {
		return
	}
	select {
	case a.ch <- path:
	default:
		a.log.Warn().Str("path", path).Msg("archive queue full, skipping (file safe on disk)")
	}
}

// Start launches worker goroutines.
func (a *Archiver) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	a.log.Info().Int("workers", workers).Int("buffer", cap(a.ch)).Msg("archiver started")
}

// Stop signals workers to drain the queue and waits for them.
func (a *Archiver) Stop() {
	a.stopped.Store(true)
	a.stopOnce.Do(func() { close(a.ch) })
	a.wg.Wait()
}

func (a *Archiver) worker() {
	defer a.wg.Done()
	for path := range a.ch {
		a.archive(path)
	}
}

func (a *Archiver) archive(path string) {
	key := objectKeyFor(path)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if a.store.Exists(ctx, key) {
		a.log.Debug().Str("key", key).Msg("already archived")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		a.log.Error().Err(err).Str("path", path).Msg("archive read failed")
		return
	}

	if err := a.store.Save(ctx, key, data, contentTypeFor(path)); err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("archive upload failed (file safe on disk)")
		return
	}
	a.log.Info().Str("key", key).Int("bytes", len(data)).Msg("recording archived")
}

// objectKeyFor shards archived objects by capture date.
func objectKeyFor(path string) string {
	base := filepath.Base(path)
	date := time.Now().UTC().Format("2006-01-02")

	info, err := os.Stat(path)
	if err == nil {
		date = info.ModTime().UTC().Format("2006-01-02")
	}
	return date + "/" + base
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m4a":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".aac":
		return "audio/aac"
	default:
		return "application/octet-stream"
	}
}
