package monitoring

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// Logger wraps slog with helpers for the request and analysis paths.
type Logger struct {
	*slog.Logger
}

func newHandler(level slog.Level) slog.Handler {
	return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})
}

// NewLogger builds the service logger writing JSON to stdout.
func NewLogger() *Logger {
	return &Logger{
		Logger: slog.New(newHandler(slog.LevelInfo)),
	}
}

// SetLevel replaces the handler with one logging at the given level
func (l *Logger) SetLevel(level slog.Level) {
	l.Logger = slog.New(newHandler(level))
}

// RequestLogger writes the per-request summary line.
func (l *Logger) RequestLogger(method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// AnalysisLogger logs contract analysis details
func (l *Logger) AnalysisLogger(contractHash string, score float64, anomalous bool, risk string, degraded bool, duration time.Duration, cacheHit bool) {
	l.Info("Analysis Completed",
		"contract_hash", contractHash,
		"anomaly_score", score,
		"is_anomaly", anomalous,
		"risk_level", risk,
		"degraded", degraded,
		"duration_ms", duration.Milliseconds(),
		"cache_hit", cacheHit,
	)
}

// TrainingLogger logs model training runs
func (l *Logger) TrainingLogger(corpusSize, featureCount int, threshold float64, duration time.Duration) {
	l.Info("Model Trained",
		"corpus_size", corpusSize,
		"feature_count", featureCount,
		"threshold", threshold,
		"duration_ms", duration.Milliseconds(),
	)
}

// DegradedAnalysisLogger warns when an analysis falls back to raw feature
// values after a schema mismatch
func (l *Logger) DegradedAnalysisLogger(reason string) {
	l.Warn("Degraded Analysis",
		"reason", reason,
	)
}

// APIErrorLogger logs API errors with the call site that reported them
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"caller", caller,
	)
}

// SystemLogger records lifecycle events with process uptime.
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

// SecurityLogger records suspicious request activity.
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
		"timestamp", time.Now().Format(time.RFC3339),
	}
	for key, value := range details {
		attrs = append(attrs, key, value)
	}

	l.Warn("Security Event", attrs...)
}

var startTime = time.Now()
