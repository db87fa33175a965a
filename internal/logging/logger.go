// Package logging provides config-driven categorized file-based logging for
// dyschat. Logs are written to ~/.dyschat/logs/ with separate files per
// category. When debug mode is off, every call is a silent no-op so library
// code can log unconditionally.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup and config loading
	CategoryAuth    Category = "auth"    // Token provider, login flow
	CategorySession Category = "session" // Session controller, onboarding gate
	CategoryBackend Category = "backend" // Backend API calls, failover
	CategoryStream  Category = "stream"  // Query streaming, SSE decoding
	CategoryUI      Category = "ui"      // TUI lifecycle
)

// Options mirrors config.LoggingConfig to avoid a circular import.
type Options struct {
	DebugMode  bool
	Level      string
	Categories map[string]bool
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	opts      Options
	optsMu    sync.RWMutex
	logLevel  int
)

// Initialize sets up the logging directory from the loaded config.
// Should be called once at startup. A no-op unless debug mode is enabled.
func Initialize(dir string, o Options) error {
	optsMu.Lock()
	opts = o
	switch o.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	optsMu.Unlock()

	if !o.DebugMode {
		return nil
	}

	logsDir = filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== dyschat logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", o.Level)
	return nil
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return opts.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	optsMu.RLock()
	defer optsMu.RUnlock()

	if !opts.DebugMode {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	// Date-prefixed file names for easy rotation.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootError logs error to the boot category.
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Auth logs to the auth category.
func Auth(format string, args ...interface{}) {
	Get(CategoryAuth).Info(format, args...)
}

// AuthDebug logs debug to the auth category.
func AuthDebug(format string, args ...interface{}) {
	Get(CategoryAuth).Debug(format, args...)
}

// AuthWarn logs warning to the auth category.
func AuthWarn(format string, args ...interface{}) {
	Get(CategoryAuth).Warn(format, args...)
}

// AuthError logs error to the auth category.
func AuthError(format string, args ...interface{}) {
	Get(CategoryAuth).Error(format, args...)
}

// Session logs to the session category.
func Session(format string, args ...interface{}) {
	Get(CategorySession).Info(format, args...)
}

// SessionDebug logs debug to the session category.
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}

// SessionWarn logs warning to the session category.
func SessionWarn(format string, args ...interface{}) {
	Get(CategorySession).Warn(format, args...)
}

// Backend logs to the backend category.
func Backend(format string, args ...interface{}) {
	Get(CategoryBackend).Info(format, args...)
}

// BackendDebug logs debug to the backend category.
func BackendDebug(format string, args ...interface{}) {
	Get(CategoryBackend).Debug(format, args...)
}

// BackendWarn logs warning to the backend category.
func BackendWarn(format string, args ...interface{}) {
	Get(CategoryBackend).Warn(format, args...)
}

// BackendError logs error to the backend category.
func BackendError(format string, args ...interface{}) {
	Get(CategoryBackend).Error(format, args...)
}

// Stream logs to the stream category.
func Stream(format string, args ...interface{}) {
	Get(CategoryStream).Info(format, args...)
}

// StreamDebug logs debug to the stream category.
func StreamDebug(format string, args ...interface{}) {
	Get(CategoryStream).Debug(format, args...)
}

// StreamWarn logs warning to the stream category.
func StreamWarn(format string, args ...interface{}) {
	Get(CategoryStream).Warn(format, args...)
}

// UI logs to the ui category.
func UI(format string, args ...interface{}) {
	Get(CategoryUI).Info(format, args...)
}

// UIDebug logs debug to the ui category.
func UIDebug(format string, args ...interface{}) {
	Get(CategoryUI).Debug(format, args...)
}
