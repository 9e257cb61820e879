package audio

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DropWatcher monitors a drop directory for incoming recordings and
// moves them into the audio store. Files follow the naming convention
// {transcription_id}_{variant}.{ext}, variant original or procesado,
// which is how the processing pipeline hands audio over.
type DropWatcher struct {
	store  Store
	dir    string
	onFile func(id int64, variant, key string)
	log    zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
	status         atomic.Value // string: "starting", "watching", "stopped"
}

// NewDropWatcher creates a watcher over dir. onFile runs after each
// successful ingest and may be nil.
func NewDropWatcher(store Store, dir string, onFile func(id int64, variant, key string), log zerolog.Logger) *DropWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	dw := &DropWatcher{
		store:          store,
		dir:            dir,
		onFile:         onFile,
		log:            log.With().Str("component", "drop-watcher").Logger(),
		ctx:            ctx,
		cancel:         cancel,
		debounceTimers: make(map[string]*time.Timer),
	}
	dw.status.Store("starting")
	return dw
}

// Start initializes the fsnotify watcher and begins watching.
func (dw *DropWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dw.watcher = w

	if err := w.Add(dw.dir); err != nil {
		w.Close()
		return err
	}

	dw.log.Info().Str("dir", dw.dir).Msg("drop watcher initialized")
	dw.status.Store("watching")
	go dw.watchLoop()
	return nil
}

// Stop closes the fsnotify watcher and cancels in-flight processing.
func (dw *DropWatcher) Stop() {
	dw.status.Store("stopped")
	dw.cancel()
	if dw.watcher != nil {
		dw.watcher.Close()
	}
	dw.log.Info().
		Int64("files_processed", dw.filesProcessed.Load()).
		Int64("files_skipped", dw.filesSkipped.Load()).
		Msg("drop watcher stopped")
}

// Status returns the current watcher state for the health endpoint.
func (dw *DropWatcher) Status() string {
	s, _ := dw.status.Load().(string)
	return s
}

func (dw *DropWatcher) watchLoop() {
	for {
		select {
		case <-dw.ctx.Done():
			return

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isAudioFile(event.Name) {
				continue
			}
			dw.scheduleProcess(event.Name)

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces file processing by 500ms. This coalesces rapid
// Create+Write events and ensures the file is fully written before reading.
func (dw *DropWatcher) scheduleProcess(path string) {
	dw.debounceMu.Lock()
	defer dw.debounceMu.Unlock()

	if t, ok := dw.debounceTimers[path]; ok {
		t.Reset(500 * time.Millisecond)
		return
	}

	dw.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		dw.debounceMu.Lock()
		delete(dw.debounceTimers, path)
		dw.debounceMu.Unlock()

		dw.processFile(path)
	})
}

func (dw *DropWatcher) processFile(path string) {
	id, variant, ok := ParseDropFilename(filepath.Base(path))
	if !ok {
		dw.filesSkipped.Add(1)
		dw.log.Warn().Str("path", path).Msg("dropped file does not match naming convention, skipping")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		dw.log.Warn().Err(err).Str("path", path).Msg("failed to read dropped file")
		return
	}

	key := strconv.FormatInt(id, 10) + "/" + variant + filepath.Ext(path)
	if err := dw.store.Save(dw.ctx, key, data, ContentType(path)); err != nil {
		dw.log.Error().Err(err).Str("key", key).Msg("failed to store dropped file")
		return
	}

	if err := os.Remove(path); err != nil {
		dw.log.Warn().Err(err).Str("path", path).Msg("failed to remove dropped file after ingest")
	}

	dw.filesProcessed.Add(1)
	dw.log.Info().Int64("transcription_id", id).Str("variant", variant).Str("key", key).Msg("audio ingested")

	if dw.onFile != nil {
		dw.onFile(id, variant, key)
	}
}

// ParseDropFilename extracts the transcription ID and variant from a
// dropped filename like "12_original.mp3" or "12_procesado.wav".
func ParseDropFilename(name string) (int64, string, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	idStr, variant, found := strings.Cut(base, "_")
	if !found {
		return 0, "", false
	}
	if variant != "original" && variant != "procesado" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, variant, true
}

func isAudioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".wav", ".m4a", ".ogg", ".flac":
		return true
	}
	return false
}
