package log

import (
	"os"
	"time"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ Logger = (*ZapLogger)(nil)

// Config selects encoder, level and destination. Field tags are read by
// cleanenv, see internal/config.
type Config struct {
	Format string `yaml:"format" env:"CHAINAUTH_LOG_FORMAT" env-default:"console"` // console, logfmt or json
	Level  Level  `yaml:"level" env:"CHAINAUTH_LOG_LEVEL" env-default:"info"`
	Output string `yaml:"output" env:"CHAINAUTH_LOG_OUTPUT" env-default:"stderr"` // stderr, stdout or a file path
}

// ZapLogger implements Logger on top of a zap.SugaredLogger.
type ZapLogger struct {
	lg *zap.SugaredLogger
}

// NewZapLogger builds a logger from conf. Extra write syncers receive a copy of
// every entry, which tests use to capture output.
func NewZapLogger(conf Config, extra ...zapcore.WriteSyncer) Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = func(ts time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(ts.UTC().Format(time.RFC3339))
	}

	var encoder zapcore.Encoder
	switch conf.Format {
	case "logfmt":
		encoder = zaplogfmt.NewEncoder(encCfg)
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	sinks := append([]zapcore.WriteSyncer{}, extra...)
	if len(extra) == 0 || conf.Output != "" {
		sinks = append(sinks, openOutput(conf.Output))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), zapLevel(conf.Level))
	return &ZapLogger{lg: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()}
}

func openOutput(output string) zapcore.WriteSyncer {
	switch output {
	case "", "stderr":
		return zapcore.Lock(os.Stderr)
	case "stdout":
		return zapcore.Lock(os.Stdout)
	}
	f, err := os.OpenFile(output, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(f)
}

func (l *ZapLogger) Debug(msg string, kv ...any) { l.lg.Debugw(msg, kv...) }
func (l *ZapLogger) Info(msg string, kv ...any)  { l.lg.Infow(msg, kv...) }
func (l *ZapLogger) Warn(msg string, kv ...any)  { l.lg.Warnw(msg, kv...) }
func (l *ZapLogger) Error(msg string, kv ...any) { l.lg.Errorw(msg, kv...) }
func (l *ZapLogger) Fatal(msg string, kv ...any) { l.lg.Fatalw(msg, kv...) }

func (l *ZapLogger) WithKV(key string, value any) Logger {
	return &ZapLogger{lg: l.lg.With(key, value)}
}

func (l *ZapLogger) WithName(name string) Logger {
	return &ZapLogger{lg: l.lg.Named(name)}
}

func (l *ZapLogger) Name() string {
	return l.lg.Desugar().Name()
}

func zapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
