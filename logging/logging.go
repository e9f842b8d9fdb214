// Package logging provides structured logging for trapdirector on top of log/slog.
//
// Every trapdirector command logs through this package. The destination is
// one of the trap log destinations: the terminal ("display", "stdout"),
// "stderr", the local syslog daemon ("syslog") or a file path.
//
// # Basic Usage
//
//	if err := logging.Init(logging.Config{Level: "info", Output: "syslog"}); err != nil {
//		return err
//	}
//	defer logging.Shutdown()
//
//	logging.Info("trap received", "source_ip", "10.0.0.5")
//
// # Trap levels
//
// The db_config table stores a numeric level (0 off, 1 error, 2 warning,
// 3 info, 4 debug). LevelFromTrapLevel maps it to a level name:
//
//	level, _ := logging.LevelFromTrapLevel(2) // "warn"
//	logging.SetLevel(level)
//
// # Component-Aware Logging
//
//	log := logging.NewComponentLogger("trapprocessor", "matcher")
//	log.Warn("rule evaluation failed", "rule_id", 12)
//	// Output: ... component=trapprocessor component_type=matcher rule_id=12
//
// # Context-Aware Logging
//
// Trap identifiers stored in the context are added to every message:
//
//	ctx = logging.WithTrap(ctx, "42", "10.0.0.5")
//	logging.InfoContext(ctx, "trap stored")
//	// Output: ... trap_id=42 source_ip=10.0.0.5
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log level constants define the available logging levels.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	// LevelOff silences every message.
	LevelOff = "off"
)

// Log format constants define the available output formats.
const (
	// FormatLogfmt provides key=value structured logging in logfmt format.
	// Example: time=2023-01-01T12:00:00Z level=INFO msg="hello" key=value
	FormatLogfmt = "logfmt"

	// FormatJSON provides machine-readable structured logging in JSON format.
	FormatJSON = "json"
)

// Output destinations other than a file path.
const (
	OutputDisplay = "display"
	OutputStdout  = "stdout"
	OutputStderr  = "stderr"
	OutputSyslog  = "syslog"
)

// levelOff sits above every level slog emits.
const levelOff = slog.Level(100)

// Config holds the logger configuration settings.
type Config struct {
	// Level sets the minimum log level to output.
	// Valid values: "debug", "info", "warn", "error", "off"
	Level string `json:"level" yaml:"level"`

	// Format sets the output format for log messages.
	// Valid values: "logfmt", "json"
	Format string `json:"format" yaml:"format"`

	// Output sets the destination for log messages.
	// Valid values: "display", "stdout", "stderr", "syslog", or a file path.
	// Directories of a file path are created automatically.
	Output string `json:"output" yaml:"output"`

	// AddSource includes source file and line information in log messages.
	AddSource bool `json:"add_source" yaml:"add_source"`
}

// DefaultConfig returns warning level logfmt output on the terminal,
// matching the default trap log level and destination.
func DefaultConfig() Config {
	return Config{
		Level:  LevelWarn,
		Format: FormatLogfmt,
		Output: OutputDisplay,
	}
}

var (
	globalMu       sync.RWMutex
	globalLogger   *slog.Logger
	globalCloser   io.Closer
	globalLevelVar *slog.LevelVar
)

// New creates a logger that does not affect the global logger state.
//
// The returned closer is non-nil when the output is a file or syslog and
// must be closed when the logger is no longer needed.
func New(config Config) (*slog.Logger, io.Closer, error) {
	logger, _, closer, err := build(config)
	return logger, closer, err
}

func build(config Config) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	if config.Level == "" {
		config.Level = LevelInfo
	}
	if !ValidateLevel(config.Level) {
		return nil, nil, nil, fmt.Errorf("invalid log level: %q, must be one of: %s, %s, %s, %s, %s",
			config.Level, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelOff)
	}
	if config.Format != "" && !ValidateFormat(config.Format) {
		return nil, nil, nil, fmt.Errorf("invalid log format: %q, must be one of: %s, %s",
			config.Format, FormatLogfmt, FormatJSON)
	}

	writer, closer, err := openOutput(config.Output)
	if err != nil {
		return nil, nil, nil, err
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(parseLevel(config.Level))
	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == FormatJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler), levelVar, closer, nil
}

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(output) {
	case OutputStdout, OutputDisplay, "":
		return os.Stdout, nil, nil
	case OutputStderr:
		return os.Stderr, nil, nil
	case OutputSyslog:
		w, err := syslog.New(syslog.LOG_WARNING|syslog.LOG_LOCAL0, "trapdirector")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to syslog: %w", err)
		}
		return w, w, nil
	default:
		file, err := openLogFile(output)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		return file, file, nil
	}
}

// Init initializes the global logger with the provided configuration.
// A previous file or syslog output is closed.
func Init(config Config) error {
	logger, levelVar, closer, err := build(config)
	if err != nil {
		return err
	}

	globalMu.Lock()
	previous := globalCloser
	globalLogger = logger
	globalCloser = closer
	globalLevelVar = levelVar
	globalMu.Unlock()

	slog.SetDefault(logger)
	if previous != nil {
		_ = previous.Close()
	}
	return nil
}

// InitWithDefaults initializes the global logger with DefaultConfig.
func InitWithDefaults() error {
	return Init(DefaultConfig())
}

// Shutdown closes the output of the global logger, if any.
// It is safe to call multiple times.
func Shutdown() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCloser != nil {
		err := globalCloser.Close()
		globalCloser = nil
		return err
	}
	return nil
}

// SetLevel changes the level of the global logger at runtime.
func SetLevel(level string) error {
	if !ValidateLevel(level) {
		return fmt.Errorf("invalid log level: %q, must be one of: %s, %s, %s, %s, %s",
			level, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelOff)
	}

	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLevelVar != nil {
		globalLevelVar.Set(parseLevel(level))
	}
	return nil
}

// LevelFromTrapLevel converts a numeric trap log level to a level name.
func LevelFromTrapLevel(level int) (string, error) {
	switch level {
	case 0:
		return LevelOff, nil
	case 1:
		return LevelError, nil
	case 2:
		return LevelWarn, nil
	case 3:
		return LevelInfo, nil
	case 4:
		return LevelDebug, nil
	default:
		return "", fmt.Errorf("invalid trap log level %d, must be between 0 and 4", level)
	}
}

// parseLevel converts a string level to the corresponding slog.Level value.
// The "warning" alias is supported for "warn".
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn, "warning":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelOff:
		return levelOff
	default:
		return slog.LevelInfo
	}
}

// ValidateLevel reports whether level is a valid log level string.
func ValidateLevel(level string) bool {
	switch strings.ToLower(level) {
	case LevelDebug, LevelInfo, LevelWarn, "warning", LevelError, LevelOff:
		return true
	default:
		return false
	}
}

// ValidateFormat reports whether format is a valid log format string.
func ValidateFormat(format string) bool {
	switch strings.ToLower(format) {
	case FormatLogfmt, FormatJSON:
		return true
	default:
		return false
	}
}

// Get returns the global logger instance, initializing it with defaults if necessary.
func Get() *slog.Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}
	if err := InitWithDefaults(); err != nil {
		return slog.Default()
	}
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Debug logs a debug message using the global logger.
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Info logs an informational message using the global logger.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message using the global logger.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message using the global logger.
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

// DebugContext logs a debug message with the trap fields of ctx.
func DebugContext(ctx context.Context, msg string, args ...any) {
	Get().DebugContext(ctx, msg, withContextFields(ctx, args)...)
}

// InfoContext logs an informational message with the trap fields of ctx.
func InfoContext(ctx context.Context, msg string, args ...any) {
	Get().InfoContext(ctx, msg, withContextFields(ctx, args)...)
}

// WarnContext logs a warning message with the trap fields of ctx.
func WarnContext(ctx context.Context, msg string, args ...any) {
	Get().WarnContext(ctx, msg, withContextFields(ctx, args)...)
}

// ErrorContext logs an error message with the trap fields of ctx.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	Get().ErrorContext(ctx, msg, withContextFields(ctx, args)...)
}

// openLogFile opens a log file for appending after validating the path and
// creating parent directories.
func openLogFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return nil, errors.New("log file path cannot be empty")
	}

	cleanPath := filepath.Clean(filePath)
	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid log file path: contains directory traversal: %s", cleanPath)
	}

	if filepath.IsAbs(cleanPath) {
		restricted := []string{"/etc/", "/proc/", "/sys/", "/dev/", "/run/secrets"}
		for _, p := range restricted {
			if strings.HasPrefix(cleanPath+"/", p) || cleanPath == strings.TrimSuffix(p, "/") {
				return nil, fmt.Errorf("log file path not allowed: %s", cleanPath)
			}
		}
	}

	dir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	if info, err := os.Lstat(cleanPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("refusing to open symlink for log file: %s", cleanPath)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("log path must be a regular file: %s", cleanPath)
		}
	}

	return os.OpenFile(cleanPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}
