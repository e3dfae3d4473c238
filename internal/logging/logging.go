// Package logging builds the charmbracelet loggers shared by the service,
// optionally teeing into a rotating log file.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/config"
)

// Logging owns the output shared by every component logger.
type Logging struct {
	root *log.Logger
	file *lumberjack.Logger

	mu      sync.Mutex
	loggers []*log.Logger
}

// New creates the root logger from cfg. Output goes to stderr and, when
// cfg.File is set, to a rotating file.
func New(cfg config.LogConfig) *Logging {
	return newWithStderr(cfg, os.Stderr)
}

func newWithStderr(cfg config.LogConfig, stderr io.Writer) *Logging {
	l := &Logging{}
	var w io.Writer = stderr
	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(stderr, l.file)
	}
	l.root = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           ParseLevel(cfg.Level),
	})
	l.loggers = append(l.loggers, l.root)
	return l
}

// Root returns the unprefixed logger.
func (l *Logging) Root() *log.Logger {
	return l.root
}

// For returns a logger for one component, e.g. "webapi".
func (l *Logging) For(prefix string) *log.Logger {
	lg := l.root.WithPrefix(prefix)
	l.mu.Lock()
	l.loggers = append(l.loggers, lg)
	l.mu.Unlock()
	return lg
}

// SetLevel changes the level of every logger handed out so far.
func (l *Logging) SetLevel(level string) {
	lvl := ParseLevel(level)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, lg := range l.loggers {
		lg.SetLevel(lvl)
	}
}

// Close flushes and closes the log file, if any.
func (l *Logging) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps a config level to a log level. Unknown levels mean info.
func ParseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
