package logging

import (
	"errors"
	"net/http"
	"os"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process logger. Its level can be changed at runtime.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
}

// DefaultConfig returns production logger configuration.
func DefaultConfig() Config {
	return Config{Level: "info", OutputPaths: []string{"stdout"}}
}

// DevelopmentConfig returns development logger configuration.
func DevelopmentConfig() Config {
	return Config{Level: "debug", Development: true, OutputPaths: []string{"stdout"}}
}

// New builds a logger. Production loggers write JSON and sample repeated
// entries; development loggers write colored console lines with stack traces
// on warnings.
func New(cfg Config) (*Logger, error) {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	level := zap.NewAtomicLevelAt(lvl)

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig = jsonEncoder()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig = consoleEncoder()
	}
	zcfg.Level = level
	zcfg.OutputPaths = outputs
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.InitialFields = map[string]any{
		"service": "fs-proxy",
		"pid":     os.Getpid(),
	}

	zl, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: zl, level: level}, nil
}

// NewDefault creates a production logger, or a no-op logger if that fails.
func NewDefault() *Logger {
	l, err := New(DefaultConfig())
	if err != nil {
		return Wrap(nil)
	}
	return l
}

// NewDevelopment creates a development logger, or a no-op logger if that fails.
func NewDevelopment() *Logger {
	l, err := New(DevelopmentConfig())
	if err != nil {
		return Wrap(nil)
	}
	return l
}

// Wrap adapts an existing zap logger, e.g. one from zaptest. The reported
// level mirrors l but changing it has no effect on l's core.
func Wrap(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{Logger: l, level: zap.NewAtomicLevelAt(l.Level())}
}

// Level returns the current minimum level
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// SetLevel changes the minimum level of every logger derived from l
func (l *Logger) SetLevel(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	l.level.SetLevel(lvl)
	return nil
}

// LevelHandler serves GET (report) and PUT (change, body {"level":"debug"})
// for the runtime level.
func (l *Logger) LevelHandler() http.Handler {
	return l.level
}

// Sync flushes buffered entries. Errors from syncing a terminal or pipe are
// ignored since those streams cannot be fsynced.
func (l *Logger) Sync() error {
	err := l.Logger.Sync()
	if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EBADF) {
		return nil
	}
	return err
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(level)
}

func jsonEncoder() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	return enc
}

func consoleEncoder() zapcore.EncoderConfig {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return enc
}
