package library

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// AdoptionWatcher monitors the recordings directory and adopts audio files
// the index doesn't know about. It is the live counterpart of
// GetAllWithDiscovered: files dropped in by other tools (or recovered after
// a crash) show up in the index without a manual rescan.
type AdoptionWatcher struct {
	store *Store
	dir   string
	log   zerolog.Logger

	watcher *fsnotify.Watcher

	// Debounce: a file being captured receives a stream of Write events;
	// adoption waits until the file has been quiet for the full window.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	adopted atomic.Int64
}

// NewAdoptionWatcher creates a watcher over the store's recordings directory.
func NewAdoptionWatcher(store *Store, dir string, log zerolog.Logger) *AdoptionWatcher {
	return &AdoptionWatcher{
		store:          store,
		dir:            dir,
		log:            log.With().Str("component", "adoption-watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
	}
}

// Start initializes the fsnotify watcher and begins watching.
func (w *AdoptionWatcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	w.log.Info().Str("dir", w.dir).Msg("adoption watcher started")
	go w.watchLoop()
	return nil
}

// Stop closes the fsnotify watcher.
func (w *AdoptionWatcher) Stop() {
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.log.Info().Int64("adopted", w.adopted.Load()).Msg("adoption watcher stopped")
}

func (w *AdoptionWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isAudioFile(event.Name) {
				continue
			}
			w.scheduleAdopt(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleAdopt debounces adoption by 2s so files still being written
// (including an in-progress capture) are not indexed prematurely.
func (w *AdoptionWatcher) scheduleAdopt(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(2 * time.Second)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(2*time.Second, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.adopt(path)
	})
}

func (w *AdoptionWatcher) adopt(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	if err := w.store.Add(Recording{
		Path:      path,
		Title:     titleFromFilename(info.Name()),
		CreatedAt: info.ModTime().UnixMilli(),
	}); err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to adopt recording")
		return
	}

	w.adopted.Add(1)
	w.log.Debug().Str("path", path).Msg("adopted recording")
}
