// Package log is the structured logger used across chainauth.
//
// Components receive a Logger explicitly (usually through an option) and fall
// back to NoopLogger, so nothing in the module writes to a global logger.
package log

// Logger is a leveled, key-value structured logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs and terminates the process when backed by zap.
	Fatal(msg string, keysAndValues ...any)

	// WithKV returns a child logger that attaches key=value to every entry.
	WithKV(key string, value any) Logger
	// WithName returns a child logger named "<parent>.<name>".
	WithName(name string) Logger
	Name() string
}

// Level is the minimum severity a logger emits.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

var _ Logger = NoopLogger{}

// NoopLogger discards everything.
type NoopLogger struct{}

func NewNoopLogger() Logger { return NoopLogger{} }

func (NoopLogger) Debug(string, ...any)          {}
func (NoopLogger) Info(string, ...any)           {}
func (NoopLogger) Warn(string, ...any)           {}
func (NoopLogger) Error(string, ...any)          {}
func (NoopLogger) Fatal(string, ...any)          {}
func (n NoopLogger) WithKV(string, any) Logger   { return n }
func (n NoopLogger) WithName(string) Logger      { return n }
func (NoopLogger) Name() string                  { return "noop" }
