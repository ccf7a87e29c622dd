// This file implements the sync-folder watcher. Snapshot files dropped into
// the folder (by another device, a sync client or the user) are merged into
// the library and renamed once imported.

package transfer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ImportedSuffix is appended to files once they were merged.
const ImportedSuffix = ".imported"

// Watcher watches a folder for snapshot files and merges them.
type Watcher struct {
	svc           *Service
	dir           string
	log           *zap.Logger
	watcher       *fsnotify.Watcher
	changedPaths  map[string]bool
	mu            sync.Mutex
	debounceTimer *time.Timer
	debounceDelay time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// NewWatcher creates a watcher for dir. Imports run debounce after the last
// change to a file, so partially written files are not picked up.
func NewWatcher(svc *Service, dir string, debounce time.Duration, log *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		svc:           svc,
		dir:           dir,
		log:           log.Named("watcher"),
		changedPaths:  make(map[string]bool),
		debounceDelay: debounce,
		stopChan:      make(chan struct{}),
	}
}

// IsSnapshotFile reports whether name looks like an export document.
func IsSnapshotFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".json.gz")
}

// Start imports files already in the folder and then watches it.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "transfer: create watcher")
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "transfer: watch %s", w.dir)
	}
	w.watcher = watcher
	w.log.Info("sync folder watcher started", zap.String("dir", w.dir))

	if _, err := w.ImportPending(context.Background()); err != nil {
		w.log.Error("initial sync folder scan failed", zap.Error(err))
	}

	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	close(w.stopChan)
	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()

	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("sync folder watcher error", zap.Error(err))

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	if !IsSnapshotFile(event.Name) {
		return
	}

	w.mu.Lock()
	w.changedPaths[event.Name] = true
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.importChanged)
	w.mu.Unlock()
}

func (w *Watcher) importChanged() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.changedPaths))
	for p := range w.changedPaths {
		paths = append(paths, p)
	}
	w.changedPaths = make(map[string]bool)
	w.mu.Unlock()

	sort.Strings(paths)
	for _, p := range paths {
		if err := w.ImportFile(context.Background(), p); err != nil {
			w.log.Error("sync folder import failed", zap.String("path", p), zap.Error(err))
		}
	}
}

// ImportPending merges every snapshot file currently in the folder and
// returns how many were imported.
func (w *Watcher) ImportPending(ctx context.Context) (int, error) {
	dirEntries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, errors.Wrapf(err, "transfer: read %s", w.dir)
	}
	imported := 0
	for _, de := range dirEntries {
		if de.IsDir() || !IsSnapshotFile(de.Name()) {
			continue
		}
		path := filepath.Join(w.dir, de.Name())
		if err := w.ImportFile(ctx, path); err != nil {
			w.log.Error("sync folder import failed", zap.String("path", path), zap.Error(err))
			continue
		}
		imported++
	}
	return imported, nil
}

// ImportFile merges one file and renames it with ImportedSuffix. A file that
// vanished in the meantime is not an error. Invalid files are left in place.
func (w *Watcher) ImportFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "transfer: read %s", path)
	}
	res, err := w.svc.Import(ctx, data, ModeMerge)
	if err != nil {
		return err
	}
	if err := os.Rename(path, path+ImportedSuffix); err != nil {
		return errors.Wrapf(err, "transfer: rename %s", path)
	}
	w.log.Info("sync folder snapshot merged", zap.String("path", path), zap.Int("entries", res.Entries))
	return nil
}
