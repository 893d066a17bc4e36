package logging

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultLogLevel = "info"

// Fields carries structured key/value pairs attached to a log entry.
type Fields map[string]interface{}

// LoggerV2 is the structured logger shared by every component of the service.
type LoggerV2 struct {
	zl *zap.Logger
}

var (
	baseOnce sync.Once
	base     *zap.Logger
)

func baseLogger() *zap.Logger {
	baseOnce.Do(func() {
		zl, err := newZap()
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: falling back to nop logger: %v\n", err)
			zl = zap.NewNop()
		}
		base = zl
	})
	return base
}

func newZap() (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))))); err != nil {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey: "message",
		TimeKey:    "timestamp",
		LevelKey:   "severity",
		NameKey:    "logger",
		EncodeTime: zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToUpper(level.String()))
		},
		CallerKey:     "caller",
		EncodeCaller:  zapcore.ShortCallerEncoder,
		StacktraceKey: "stacktrace",
	}

	cfg := zap.Config{
		Level:             level,
		Encoding:          "json",
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}

	return cfg.Build(zap.AddCallerSkip(1))
}

// NewLoggerV2 returns a logger named after the given component.
func NewLoggerV2(name string) *LoggerV2 {
	return &LoggerV2{zl: baseLogger().Named(name)}
}

// NewFromZap wraps an existing zap logger.
func NewFromZap(zl *zap.Logger) *LoggerV2 {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &LoggerV2{zl: zl}
}

// NewNop returns a logger that discards everything.
func NewNop() *LoggerV2 {
	return &LoggerV2{zl: zap.NewNop()}
}

// Named returns a child logger with the name appended.
func (l *LoggerV2) Named(name string) *LoggerV2 {
	return &LoggerV2{zl: l.zap().Named(name)}
}

// With returns a child logger that always carries the given fields.
func (l *LoggerV2) With(fields Fields) *LoggerV2 {
	return &LoggerV2{zl: l.zap().With(toZap(fields)...)}
}

func (l *LoggerV2) Debug(msg string, fields ...Fields) { l.zap().Debug(msg, merge(fields)...) }
func (l *LoggerV2) Info(msg string, fields ...Fields)  { l.zap().Info(msg, merge(fields)...) }
func (l *LoggerV2) Warn(msg string, fields ...Fields)  { l.zap().Warn(msg, merge(fields)...) }
func (l *LoggerV2) Error(msg string, fields ...Fields) { l.zap().Error(msg, merge(fields)...) }
func (l *LoggerV2) Fatal(msg string, fields ...Fields) { l.zap().Fatal(msg, merge(fields)...) }

// Sync flushes buffered entries.
func (l *LoggerV2) Sync() error {
	return l.zap().Sync()
}

func (l *LoggerV2) zap() *zap.Logger {
	if l == nil || l.zl == nil {
		return zap.NewNop()
	}
	return l.zl
}

// Infof logs a formatted message on the process-wide logger.
func Infof(format string, args ...interface{}) {
	baseLogger().Sugar().Infof(format, args...)
}

// Info logs on the process-wide logger.
func Info(msg string, fields ...Fields) {
	baseLogger().Info(msg, merge(fields)...)
}

func merge(fields []Fields) []zap.Field {
	switch len(fields) {
	case 0:
		return nil
	case 1:
		return toZap(fields[0])
	}
	all := Fields{}
	for _, f := range fields {
		for k, v := range f {
			all[k] = v
		}
	}
	return toZap(all)
}

func toZap(fields Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if err, ok := v.(error); ok {
			out = append(out, zap.String(k, err.Error()))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
