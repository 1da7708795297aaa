package log

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logKeyType struct{}

var logKey logKeyType

var defaultLogger *zap.Logger

func init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if os.Getenv("DEBUG") != "" {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	var err error
	if defaultLogger, err = cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel)); err != nil {
		panic(err)
	}
}

// Logger returns the logger attached to the context, or the default logger
func Logger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(logKey).(*zap.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a context whose logger carries the given fields
func With(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, logKey, Logger(ctx).With(fields...))
}

// Fatal logs the message with the default logger and exits
func Fatal(msg string, fields ...zap.Field) {
	defaultLogger.Fatal(msg, fields...)
}
