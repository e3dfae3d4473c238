package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Listen != ":8080" {
		t.Errorf("expected listen ':8080', got '%s'", cfg.Listen)
	}
	if cfg.PublicURL != "/files" {
		t.Errorf("expected public url '/files', got '%s'", cfg.PublicURL)
	}
	if cfg.Suggest.Timeout != 30*time.Second {
		t.Errorf("expected suggest timeout 30s, got %v", cfg.Suggest.Timeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %q", cfg.Log.Level)
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("/non/existent/path/config.yaml")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("expected defaults, got listen %q", cfg.Listen)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:9000"
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	cfg.Suggest.Timeout = 45 * time.Second
	cfg.Log.File = "/var/log/taskpro.log"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if loaded.Listen != "127.0.0.1:9000" {
		t.Errorf("Listen = %q", loaded.Listen)
	}
	if len(loaded.AllowedOrigins) != 1 || loaded.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("AllowedOrigins = %v", loaded.AllowedOrigins)
	}
	if loaded.Suggest.Timeout != 45*time.Second {
		t.Errorf("Suggest.Timeout = %v", loaded.Suggest.Timeout)
	}
	if loaded.Log.File != "/var/log/taskpro.log" {
		t.Errorf("Log.File = %q", loaded.Log.File)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \":7000\"\nlog:\n  level: debug\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKPRO_LISTEN", ":7100")
	t.Setenv("TASKPRO_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TASKPRO_SUGGEST_TIMEOUT", "5s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Listen != ":7100" {
		t.Errorf("env should win, got %q", cfg.Listen)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("file value should survive, got %q", cfg.Log.Level)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.Suggest.Timeout != 5*time.Second {
		t.Errorf("Suggest.Timeout = %v", cfg.Suggest.Timeout)
	}

	t.Setenv("TASKPRO_SUGGEST_TIMEOUT", "soon")
	if _, err := Load(path); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown log level")
	}

	cfg = DefaultConfig()
	cfg.Listen = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty listen address")
	}
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	ready := make(chan error, 1)
	go func() {
		ready <- Watch(ctx, path, func(c *Config) {
			select {
			case reloaded <- c:
			case <-ctx.Done():
			}
		}, nil)
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0600); err != nil {
		t.Fatal(err)
	}

	// A write can be seen half done, so wait for the final content.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-reloaded:
			if c.Log.Level == "debug" {
				return
			}
		case err := <-ready:
			t.Fatalf("watch stopped early: %v", err)
		case <-timeout:
			t.Fatal("config was not reloaded")
		}
	}
}
