package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeLookup struct {
	ids map[string][]int64
}

func (f *fakeLookup) IDsForSidecar(_ context.Context, path string) ([]int64, error) {
	return f.ids[path], nil
}

type fakeRefresher struct {
	mu      sync.Mutex
	batches [][]int64
	reasons []string
	notify  chan struct{}
}

func (f *fakeRefresher) Refresh(ids []int64, reason string) {
	f.mu.Lock()
	f.batches = append(f.batches, ids)
	f.reasons = append(f.reasons, reason)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func TestWatcherReportsSidecarChanges(t *testing.T) {
	dir := t.TempDir()
	sidecar := filepath.Join(dir, "IMG_0001.xmp")

	lookup := &fakeLookup{ids: map[string][]int64{sidecar: {7}}}
	refresher := &fakeRefresher{notify: make(chan struct{}, 4)}
	w := New(lookup, refresher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Watch(ctx, dir)
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(sidecar, []byte("<xmp/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-refresher.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("no refresh observed for sidecar write")
	}

	refresher.mu.Lock()
	defer refresher.mu.Unlock()
	if len(refresher.batches) == 0 || len(refresher.batches[0]) != 1 || refresher.batches[0][0] != 7 {
		t.Errorf("batches = %v", refresher.batches)
	}
	if refresher.reasons[0] != "sidecar-change" {
		t.Errorf("reason = %q", refresher.reasons[0])
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancellation")
	}
}

func TestWatcherIgnoresNonSidecarFiles(t *testing.T) {
	dir := t.TempDir()
	lookup := &fakeLookup{ids: map[string][]int64{}}
	refresher := &fakeRefresher{notify: make(chan struct{}, 4)}
	w := New(lookup, refresher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx, dir) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-refresher.notify:
		t.Fatal("non-sidecar file must not trigger a refresh")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestIsSidecar(t *testing.T) {
	if !isSidecar("/p/a.xmp") || !isSidecar("/p/a.XMP") {
		t.Error("xmp extensions must match case-insensitively")
	}
	if isSidecar("/p/a.jpg") || isSidecar("/p/xmp") {
		t.Error("non-sidecar paths matched")
	}
}
