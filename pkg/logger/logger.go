package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	root = newRoot("info", "json")
)

type LogAgent struct {
	name string
}

// NewLogAgent returns a named logger. The underlying zap logger is resolved on
// every call so agents declared at package init pick up Init settings.
func NewLogAgent(name string) *LogAgent {
	return &LogAgent{name: name}
}

// Init replaces the process logger. level is one of debug, info, warn, error;
// format is json or console.
func Init(level, format string) error {
	l, err := build(level, format)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	root = l
	return nil
}

func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

func newRoot(level, format string) *zap.Logger {
	l, err := build(level, format)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func build(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, errors.Errorf("invalid log level %q", level)
	}
	var cfg zap.Config
	switch format {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, errors.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build(zap.AddCallerSkip(1))
}

func (a *LogAgent) l() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(a.name)
}

func (a *LogAgent) Debug(msg string, fields ...zap.Field) { a.l().Debug(msg, fields...) }
func (a *LogAgent) Info(msg string, fields ...zap.Field)  { a.l().Info(msg, fields...) }
func (a *LogAgent) Warn(msg string, fields ...zap.Field)  { a.l().Warn(msg, fields...) }
func (a *LogAgent) Error(msg string, fields ...zap.Field) { a.l().Error(msg, fields...) }

func (a *LogAgent) Debugf(format string, args ...any) { a.l().Debug(fmt.Sprintf(format, args...)) }
func (a *LogAgent) Infof(format string, args ...any)  { a.l().Info(fmt.Sprintf(format, args...)) }
func (a *LogAgent) Warnf(format string, args ...any)  { a.l().Warn(fmt.Sprintf(format, args...)) }
func (a *LogAgent) Errorf(format string, args ...any) { a.l().Error(fmt.Sprintf(format, args...)) }

// With returns a zap logger carrying the given fields, for call sites that log
// several lines about the same entity.
func (a *LogAgent) With(fields ...zap.Field) *zap.Logger {
	return a.l().WithOptions(zap.AddCallerSkip(-1)).With(fields...)
}
