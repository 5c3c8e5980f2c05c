package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "luaproc.toml", "[logging]\nlevel = \"info\"\n")

	changes := make(chan *Config, 4)
	errs := make(chan error, 4)
	w, err := NewWatcher(path, func(cfg *Config) { changes <- cfg },
		WithDebounce(20*time.Millisecond),
		WithErrorHandler(func(err error) { errs <- err }))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if cfg.Logging.Level != "debug" {
			t.Errorf("reloaded Logging.Level = %q, want debug", cfg.Logging.Level)
		}
	case err := <-errs:
		t.Fatalf("reload error = %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		t.Fatalf("invalid config was applied: %+v", cfg)
	case <-errs:
	case <-time.After(5 * time.Second):
		t.Fatal("no error after invalid write")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	path := writeFile(t, "luaproc.yaml", "logging:\n  level: info\n")

	changes := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) { changes <- cfg }, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	other := filepath.Join(filepath.Dir(path), "other.yaml")
	if err := os.WriteFile(other, []byte("x: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		t.Fatalf("unrelated write triggered reload: %+v", cfg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing", "c.toml"), func(*Config) {})
	if err == nil {
		t.Error("NewWatcher() on missing directory should fail")
	}
}
