package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultService = "payment-reconciler"

// Logger is a key/value structured logger. A nil *Logger discards everything,
// so components can be built without one in tests.
type Logger struct {
	s *zap.SugaredLogger
}

type LoggerOptions struct {
	Service     string
	Development bool
	Level       string
}

func NewLogger() *Logger {
	lg, err := New(LoggerOptions{Service: DefaultService})
	if err != nil {
		return NewNopLogger()
	}
	return lg
}

func New(opts LoggerOptions) (*Logger, error) {
	if opts.Service == "" {
		opts.Service = DefaultService
	}

	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]any{"service": opts.Service}
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{s: z.Sugar()}, nil
}

func NewNopLogger() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger, e.g. one built on zaptest/observer.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{s: z.Sugar()}
}

func (lg *Logger) With(kv ...any) *Logger {
	if lg == nil {
		return nil
	}
	return &Logger{s: lg.s.With(kv...)}
}

func (lg *Logger) Debug(msg string, kv ...any) {
	if lg == nil {
		return
	}
	lg.s.Debugw(msg, kv...)
}

func (lg *Logger) Info(msg string, kv ...any) {
	if lg == nil {
		return
	}
	lg.s.Infow(msg, kv...)
}

func (lg *Logger) Warn(msg string, kv ...any) {
	if lg == nil {
		return
	}
	lg.s.Warnw(msg, kv...)
}

func (lg *Logger) Error(msg string, kv ...any) {
	if lg == nil {
		return
	}
	lg.s.Errorw(msg, kv...)
}

func (lg *Logger) Sync() error {
	if lg == nil {
		return nil
	}
	return lg.s.Sync()
}
