package observability

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/upb/yapi/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging with context awareness.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
}

// Field represents a structured log field.
type Field = zap.Field

// NewLogger builds a zap logger from the observability configuration.
// Format "console" (or "text") selects the development encoder, anything else JSON.
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	var zcfg zap.Config
	switch strings.ToLower(cfg.LogFormat) {
	case "console", "text":
		zcfg = zap.NewDevelopmentConfig()
	default:
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.TimeKey = "timestamp"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// ContextLogger decorates a zap logger with the request ID found in the context.
type ContextLogger struct {
	base *zap.Logger
}

// NewContextLogger wraps base so that every entry carries request_id when known.
func NewContextLogger(base *zap.Logger) *ContextLogger {
	return &ContextLogger{base: base}
}

// For returns the underlying logger enriched with the request ID of ctx.
func (l *ContextLogger) For(ctx context.Context) *zap.Logger {
	if id := middleware.GetReqID(ctx); id != "" {
		return l.base.With(zap.String("request_id", id))
	}
	return l.base
}

func (l *ContextLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.For(ctx).Debug(msg, fields...)
}

func (l *ContextLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.For(ctx).Info(msg, fields...)
}

func (l *ContextLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.For(ctx).Warn(msg, fields...)
}

func (l *ContextLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.For(ctx).Error(msg, fields...)
}
