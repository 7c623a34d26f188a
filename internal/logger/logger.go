// Package logger configures the process-wide slog logger.
//
// Output is JSON on stdout unless OTEL_ENABLED=true, in which case records
// are bridged to an OTLP/gRPC log exporter. Warnings and errors are sampled
// (1 in ERROR_SAMPLE_RATE) but their counters are always incremented.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)
)

var (
	Logger          *slog.Logger
	errorSampleRate atomic.Int32
	programLevel    = new(slog.LevelVar)
	shutdownFunc    func(context.Context) error
)

// Counters exposed on the stats endpoint. They are incremented regardless of
// sampling.
var (
	TotalErrors         atomic.Int64
	TotalWarnings       atomic.Int64
	Decisions           atomic.Int64
	NoMatch             atomic.Int64
	ProviderErrors      atomic.Int64
	RejectedDefinitions atomic.Int64
	Total5xxErrors      atomic.Int64
	Total4xxErrors      atomic.Int64
)

func init() {
	errorSampleRate.Store(1)

	level, err := ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = LevelInfo
	}
	programLevel.Set(level)

	if sampleStr := os.Getenv("ERROR_SAMPLE_RATE"); sampleStr != "" {
		if rate, err := strconv.Atoi(sampleStr); err == nil && rate > 0 {
			errorSampleRate.Store(int32(rate))
		}
	}

	if strings.EqualFold(os.Getenv("OTEL_ENABLED"), "true") {
		serviceName := os.Getenv("OTEL_SERVICE_NAME")
		if serviceName == "" {
			serviceName = "rulespec"
		}
		shutdown, err := setupOTELLogging(context.Background(), serviceName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to setup OTEL logging, falling back to JSON: %v\n", err)
			SetOutput(os.Stdout)
			return
		}
		shutdownFunc = shutdown
		return
	}

	SetOutput(os.Stdout)
}

// SetOutput replaces the handler with a JSON handler writing to w
func SetOutput(w io.Writer) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: programLevel})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	handler := &levelHandler{
		level:   programLevel,
		handler: otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider)),
	}
	Logger = slog.New(handler)
	slog.SetDefault(Logger)

	return provider.Shutdown, nil
}

// levelHandler filters records below level before handing them on
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OTEL exporter, if any
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

// SetLevel sets the minimum level
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the minimum level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// SetSampleRate logs 1 out of every rate warnings and errors
func SetSampleRate(rate int) {
	if rate < 1 {
		rate = 1
	}
	errorSampleRate.Store(int32(rate))
}

// ParseLevel converts a level name to slog.Level. An empty name is INFO.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

func shouldSample() bool {
	rate := errorSampleRate.Load()
	if rate <= 1 {
		return true
	}
	return rand.IntN(int(rate)) == 0
}

// Trace logs below debug
func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a sampled warning
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs a sampled error
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs and exits
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
	os.Exit(1)
}

// WarnProvider records a failed sample query that was treated as no data
func WarnProvider(key string, err error) {
	ProviderErrors.Add(1)
	Warn("historical data unavailable", "key", key, "error", err)
}

// WarnRejectedDefinition records a rule set that failed to compile
func WarnRejectedDefinition(tenant, name string, err error) {
	RejectedDefinitions.Add(1)
	Warn("rule set rejected", "tenant", tenant, "ruleSet", name, "error", err)
}

// RecordDecision counts an evaluated decision
func RecordDecision(matched bool) {
	Decisions.Add(1)
	if !matched {
		NoMatch.Add(1)
	}
}

// RecordHTTPStatus counts 4xx and 5xx responses
func RecordHTTPStatus(status int) {
	switch {
	case status >= 500:
		Total5xxErrors.Add(1)
		TotalErrors.Add(1)
	case status >= 400:
		Total4xxErrors.Add(1)
		TotalWarnings.Add(1)
	}
}

// Snapshot returns the current counter values
func Snapshot() map[string]int64 {
	return map[string]int64{
		"errors":              TotalErrors.Load(),
		"warnings":            TotalWarnings.Load(),
		"decisions":           Decisions.Load(),
		"noMatch":             NoMatch.Load(),
		"providerErrors":      ProviderErrors.Load(),
		"rejectedDefinitions": RejectedDefinitions.Load(),
		"http4xx":             Total4xxErrors.Load(),
		"http5xx":             Total5xxErrors.Load(),
	}
}
