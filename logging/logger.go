package logging

import (
	"context"
	"io"
	"log/slog"
)

// Logger defines the interface for structured logging operations.
//
// All logging methods accept a message followed by optional key-value pairs.
// Components take a Logger so tests can pass NewNop().
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	// With returns a new Logger with additional key-value pairs pre-configured.
	With(args ...any) Logger
}

// slogWrapper wraps an slog.Logger to implement the Logger interface.
type slogWrapper struct {
	logger *slog.Logger
}

func (s *slogWrapper) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }
func (s *slogWrapper) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s *slogWrapper) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s *slogWrapper) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

func (s *slogWrapper) DebugContext(ctx context.Context, msg string, args ...any) {
	s.logger.DebugContext(ctx, msg, withContextFields(ctx, args)...)
}

func (s *slogWrapper) InfoContext(ctx context.Context, msg string, args ...any) {
	s.logger.InfoContext(ctx, msg, withContextFields(ctx, args)...)
}

func (s *slogWrapper) WarnContext(ctx context.Context, msg string, args ...any) {
	s.logger.WarnContext(ctx, msg, withContextFields(ctx, args)...)
}

func (s *slogWrapper) ErrorContext(ctx context.Context, msg string, args ...any) {
	s.logger.ErrorContext(ctx, msg, withContextFields(ctx, args)...)
}

func (s *slogWrapper) With(args ...any) Logger {
	return &slogWrapper{logger: s.logger.With(args...)}
}

// GetLogger returns the global logger behind the Logger interface.
func GetLogger() Logger {
	return &slogWrapper{logger: Get()}
}

// NewLogger creates a Logger interface from the provided configuration.
func NewLogger(config Config) (Logger, io.Closer, error) {
	logger, closer, err := New(config)
	if err != nil {
		return nil, closer, err
	}
	return &slogWrapper{logger: logger}, closer, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return &slogWrapper{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ComponentLogger is a logger carrying "component" and "component_type"
// attributes on every message.
//
//	log := logging.NewComponentLogger("mibcache", "sync")
//	log.Info("trap found", "oid", ".1.3.6.1.6.3.1.1.5.3")
//	// Output: ... component=mibcache component_type=sync oid=.1.3.6.1.6.3.1.1.5.3
type ComponentLogger struct {
	logger        *slog.Logger
	component     string
	componentType string
}

// NewComponentLogger creates a component logger on top of the global logger.
func NewComponentLogger(component, componentType string) *ComponentLogger {
	return &ComponentLogger{
		logger:        Get().With("component", component, "component_type", componentType),
		component:     component,
		componentType: componentType,
	}
}

func (cl *ComponentLogger) base() *slog.Logger {
	if cl.logger == nil {
		return Get().With("component", cl.component, "component_type", cl.componentType)
	}
	return cl.logger
}

// Debug logs a debug message with component context.
func (cl *ComponentLogger) Debug(msg string, args ...any) { cl.base().Debug(msg, args...) }

// Info logs an info message with component context.
func (cl *ComponentLogger) Info(msg string, args ...any) { cl.base().Info(msg, args...) }

// Warn logs a warning message with component context.
func (cl *ComponentLogger) Warn(msg string, args ...any) { cl.base().Warn(msg, args...) }

// Error logs an error message with component context.
func (cl *ComponentLogger) Error(msg string, args ...any) { cl.base().Error(msg, args...) }

// DebugContext logs a debug message with context and component context.
func (cl *ComponentLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	cl.base().DebugContext(ctx, msg, withContextFields(ctx, args)...)
}

// InfoContext logs an info message with context and component context.
func (cl *ComponentLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	cl.base().InfoContext(ctx, msg, withContextFields(ctx, args)...)
}

// WarnContext logs a warning message with context and component context.
func (cl *ComponentLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	cl.base().WarnContext(ctx, msg, withContextFields(ctx, args)...)
}

// ErrorContext logs an error message with context and component context.
func (cl *ComponentLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	cl.base().ErrorContext(ctx, msg, withContextFields(ctx, args)...)
}

// With returns a new logger with additional attributes.
func (cl *ComponentLogger) With(args ...any) Logger {
	return &ComponentLogger{
		logger:        cl.base().With(args...),
		component:     cl.component,
		componentType: cl.componentType,
	}
}

// GetComponent returns the component name.
func (cl *ComponentLogger) GetComponent() string {
	return cl.component
}

// GetComponentType returns the component type.
func (cl *ComponentLogger) GetComponentType() string {
	return cl.componentType
}
