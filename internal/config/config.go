// Package config loads the service configuration from YAML and the
// environment.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config holds the complete configuration.
type Config struct {
	// Listen is the HTTP listen address for the API server
	Listen string `yaml:"listen"`

	// DBPath is the SQLite database file
	DBPath string `yaml:"db_path"`

	// UploadsDir stores uploaded images; PublicURL is the URL they are served under
	UploadsDir string `yaml:"uploads_dir"`
	PublicURL  string `yaml:"public_url"`

	// StagingDir holds images attached to drafts that are not submitted yet
	StagingDir string `yaml:"staging_dir"`

	// HooksDir holds scripts named after events (task.created, ...)
	HooksDir string `yaml:"hooks_dir"`

	// AllowedOrigins for CORS; empty allows any origin
	AllowedOrigins []string `yaml:"allowed_origins"`

	Log     LogConfig     `yaml:"log"`
	Suggest SuggestConfig `yaml:"suggest"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
	// File enables a rotating log file next to stderr
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// SuggestConfig configures the suggestion source.
type SuggestConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Listen:     ":8080",
		DBPath:     filepath.Join(dataDir, "tasks.db"),
		UploadsDir: filepath.Join(dataDir, "uploads"),
		PublicURL:  "/files",
		StagingDir: filepath.Join(dataDir, "staging"),
		HooksDir:   filepath.Join(configDir(), "hooks"),
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Suggest: SuggestConfig{
			Timeout: 30 * time.Second,
		},
	}
}

// DataDir returns the default data directory.
func DataDir() string {
	if dir := os.Getenv("TASKPRO_DATA_DIR"); dir != "" {
		return expandPath(dir)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "taskpro")
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "taskpro")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if p := os.Getenv("TASKPRO_CONFIG"); p != "" {
		return expandPath(p)
	}
	return filepath.Join(configDir(), "config.yaml")
}

// Load loads configuration from the given path. A missing file yields the
// defaults. Environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"TASKPRO_LISTEN":      &c.Listen,
		"TASKPRO_DB":          &c.DBPath,
		"TASKPRO_UPLOADS_DIR": &c.UploadsDir,
		"TASKPRO_PUBLIC_URL":  &c.PublicURL,
		"TASKPRO_STAGING_DIR": &c.StagingDir,
		"TASKPRO_HOOKS_DIR":   &c.HooksDir,
		"TASKPRO_LOG_LEVEL":   &c.Log.Level,
		"TASKPRO_LOG_FILE":    &c.Log.File,
		"TASKPRO_MODEL":       &c.Suggest.Model,
		"ANTHROPIC_API_KEY":   &c.Suggest.APIKey,
		"ANTHROPIC_BASE_URL":  &c.Suggest.BaseURL,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v := os.Getenv("TASKPRO_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	if v := os.Getenv("TASKPRO_SUGGEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TASKPRO_SUGGEST_TIMEOUT: %w", err)
		}
		c.Suggest.Timeout = d
	}
	if v := os.Getenv("TASKPRO_LOG_MAX_SIZE_MB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TASKPRO_LOG_MAX_SIZE_MB: %w", err)
		}
		c.Log.MaxSizeMB = n
	}
	return nil
}

func (c *Config) expandPaths() {
	c.DBPath = expandPath(c.DBPath)
	c.UploadsDir = expandPath(c.UploadsDir)
	c.StagingDir = expandPath(c.StagingDir)
	c.HooksDir = expandPath(c.HooksDir)
	c.Log.File = expandPath(c.Log.File)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Suggest.Timeout < 0 {
		return fmt.Errorf("suggest timeout must not be negative")
	}
	return nil
}

// Save saves configuration to the given path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Watch reloads the configuration whenever the file changes and passes the
// result to onChange. Reload errors go to onError. Watch blocks until ctx is
// done.
func Watch(ctx context.Context, path string, onChange func(*Config), onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
