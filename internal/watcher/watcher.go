// Package watcher observes catalog directories for sidecar changes and
// turns them into badge refresh requests. An editor touching an .xmp
// file next to an indexed image shows up as a sync state change without
// any user action.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

// RecordLookup resolves a sidecar path to the owning record ids.
type RecordLookup interface {
	IDsForSidecar(ctx context.Context, sidecarPath string) ([]int64, error)
}

// Refresher receives the record ids to re-analyze.
type Refresher interface {
	Refresh(ids []int64, reason string)
}

// Watcher monitors directories for .xmp create/write/remove events.
type Watcher struct {
	lookup    RecordLookup
	refresher Refresher
}

// New creates a Watcher that reports sidecar changes to refresher.
func New(lookup RecordLookup, refresher Refresher) *Watcher {
	return &Watcher{lookup: lookup, refresher: refresher}
}

// Watch blocks observing the given directories (recursively) until ctx
// is cancelled. Directories created while watching are added on the fly.
func (w *Watcher) Watch(ctx context.Context, dirs ...string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return err
	}
	defer func() {
		if err := fsw.Close(); err != nil {
			logging.Error("failed to close file watcher: %v", err)
		}
	}()

	count := 0
	for _, dir := range dirs {
		count += addTree(fsw, dir)
	}
	metrics.WatcherDirectories.Set(float64(count))
	logging.Debug("sidecar watcher started, watching %d directories", count)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Error("watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

// addTree registers dir and its subdirectories, skipping hidden ones.
func addTree(fsw *fsnotify.Watcher, dir string) int {
	count := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && !strings.HasPrefix(info.Name(), ".") {
			if addErr := fsw.Add(path); addErr != nil {
				logging.Warn("failed to watch %s: %v", path, addErr)
				metrics.WatcherErrors.Inc()
			} else {
				count++
			}
		}
		return nil
	})
	if err != nil {
		logging.Error("failed to walk %s for watcher: %v", dir, err)
		metrics.WatcherErrors.Inc()
	}
	return count
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	if strings.Contains(event.Name, "/.") {
		return
	}
	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	// New directories join the watch set.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fsw.Add(event.Name); err != nil {
				logging.Warn("failed to watch new directory %s: %v", event.Name, err)
				metrics.WatcherErrors.Inc()
			} else {
				metrics.WatcherDirectories.Inc()
			}
			return
		}
	}

	if !isSidecar(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	ids, err := w.lookup.IDsForSidecar(ctx, event.Name)
	if err != nil {
		logging.Warn("sidecar lookup failed for %s: %v", event.Name, err)
		return
	}
	if len(ids) == 0 {
		return
	}
	logging.Debug("sidecar %s changed, refreshing %d records", event.Name, len(ids))
	w.refresher.Refresh(ids, "sidecar-change")
}

func isSidecar(path string) bool {
	ext := filepath.Ext(path)
	return strings.EqualFold(ext, ".xmp")
}

func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
