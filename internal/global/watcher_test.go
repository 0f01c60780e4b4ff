package global

import (
	"context"
	"testing"
	"time"

	"agentdock/internal/logging"
)

func TestWatcher_ReloadsOnSave(t *testing.T) {
	dir := t.TempDir()
	store := NewConfigStore(dir)
	if _, err := store.LoadOrInit(); err != nil {
		t.Fatalf("LoadOrInit failed: %v", err)
	}

	w := NewWatcher(store.Path(), logging.Discard())
	w.debounce = 20 * time.Millisecond
	got := make(chan GlobalConfig, 4)
	w.OnReload(func(cfg GlobalConfig) { got <- cfg })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give fsnotify a moment to register the directory watch.
	time.Sleep(50 * time.Millisecond)
	if err := store.Save(GlobalConfig{Scripts: ScriptsConfig{Python: "python3"}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	select {
	case cfg := <-got:
		if cfg.Scripts.Python != "python3" {
			t.Fatalf("expected reloaded python3, got %q", cfg.Scripts.Python)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
