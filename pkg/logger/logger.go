package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes how the service logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Audit       AuditConfig
}

// AuditConfig controls the audit log channel.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

var (
	mu          sync.RWMutex
	serviceLog  *slog.Logger
	auditLog    *slog.Logger
	openClosers []io.Closer
)

// Init configures the global logger instances. Calling it twice replaces
// the previous configuration; writers opened earlier stay open until Sync.
func Init(cfg Config) error {
	handler, err := buildHandler(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	serviceLog = slog.New(handler)
	auditLog = serviceLog
	if cfg.Audit.Enabled {
		audit, err := buildAudit(cfg.Audit)
		if err != nil {
			return err
		}
		auditLog = audit
	}
	return nil
}

// L returns the service logger, initialising a stdout default if needed.
func L() *slog.Logger {
	mu.RLock()
	log := serviceLog
	mu.RUnlock()
	if log != nil {
		return log
	}
	_ = Init(Config{})
	mu.RLock()
	defer mu.RUnlock()
	return serviceLog
}

// Audit returns the audit logger.
func Audit() *slog.Logger {
	mu.RLock()
	log := auditLog
	mu.RUnlock()
	if log != nil {
		return log
	}
	return L()
}

// Named returns a child logger grouped under the component name.
func Named(name string) *slog.Logger {
	return L().WithGroup(name)
}

// Sync closes every file writer opened by Init.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	for _, closer := range openClosers {
		err = errors.Join(err, closer.Close())
	}
	openClosers = nil
	return err
}

func buildHandler(cfg Config) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: true}

	writers := make([]io.Writer, 0, len(cfg.OutputPaths))
	for _, out := range cfg.OutputPaths {
		writer, closer, err := openWriter(out)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			mu.Lock()
			openClosers = append(openClosers, closer)
			mu.Unlock()
		}
		writers = append(writers, writer)
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	var writer io.Writer = writers[0]
	if len(writers) > 1 {
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(writer, opts), nil
	}
	return slog.NewJSONHandler(writer, opts), nil
}

func buildAudit(cfg AuditConfig) (*slog.Logger, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}
	writer, err := newRotatingWriter(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups)
	if err != nil {
		return nil, err
	}
	openClosers = append(openClosers, writer)
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler), nil
}

func openWriter(path string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		return file, file, nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
