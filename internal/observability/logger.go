package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type (
	correlationIDKey struct{}
	runIDKey         struct{}
)

// NewLogger builds the JSON production logger used by every binary.
func NewLogger(level string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger.With(zap.String("service", "fieldops")), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		return zapcore.InfoLevel, nil
	}

	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return withValue(ctx, correlationIDKey{}, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, correlationIDKey{})
}

// WithRunID tags ctx with the pipeline run it belongs to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return withValue(ctx, runIDKey{}, runID)
}

func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, runIDKey{})
}

// WithContextLogger adds the correlation and run ids carried by ctx.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	fields := make([]zap.Field, 0, 2)
	if correlationID, ok := CorrelationIDFromContext(ctx); ok {
		fields = append(fields, zap.String("correlationId", correlationID))
	}
	if runID, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, zap.String("runId", runID))
	}
	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

func withValue(ctx context.Context, key any, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key any) (string, bool) {
	if ctx == nil {
		return "", false
	}

	value, ok := ctx.Value(key).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
