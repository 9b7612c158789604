package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func startWatcher(t *testing.T, root string, fired *atomic.Int32) {
	t.Helper()

	w, err := New(root, func(context.Context) { fired.Add(1) })
	if err != nil {
		t.Fatalf("creating watcher: %v", err)
	}
	w.debounceTime = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register the tree before events start.
	time.Sleep(100 * time.Millisecond)
}

func waitFor(t *testing.T, fired *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if fired.Load() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("callback fired %d times, want at least %d", fired.Load(), want)
}

func TestWatcherFiresOnChange(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0755); err != nil {
		t.Fatal(err)
	}

	var fired atomic.Int32
	startWatcher(t, root, &fired)

	if err := os.WriteFile(filepath.Join(root, "src", "main.rs"), []byte("fn main() {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, &fired, 1)
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	var fired atomic.Int32
	startWatcher(t, root, &fired)

	// An editor save burst lands as several events in quick succession.
	for i := range 5 {
		name := filepath.Join(root, "file"+string(rune('a'+i))+".rs")
		if err := os.WriteFile(name, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, &fired, 1)

	// The burst collapses into a single callback.
	time.Sleep(200 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Errorf("burst fired %d callbacks, want 1", n)
	}
}

func TestWatcherIgnoresBuildOutput(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "target", "debug"), 0755); err != nil {
		t.Fatal(err)
	}

	var fired atomic.Int32
	startWatcher(t, root, &fired)

	if err := os.WriteFile(filepath.Join(root, "target", "debug", "out.o"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Errorf("build output change fired %d callbacks, want 0", n)
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()
	var fired atomic.Int32
	startWatcher(t, root, &fired)

	sub := filepath.Join(root, "src")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	waitFor(t, &fired, 1)

	if err := os.WriteFile(filepath.Join(sub, "lib.rs"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, &fired, 2)
}
