package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// WithContext returns a context carrying logger.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// Transport wraps an http.RoundTripper and logs every outbound request
// once it completes. 4xx responses log at warn, 5xx and transport failures
// at error.
func Transport(logger *Logger, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{logger: logger.WithComponent(ComponentGateway), next: next}
}

type loggingTransport struct {
	logger *Logger
	next   http.RoundTripper
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(r)
	elapsed := time.Since(start).Milliseconds()

	fields := NewFields().
		WithRequest(r.Method, r.URL.Path).
		WithRequestID(r.Header.Get("X-Request-ID"))

	if err != nil {
		fields.WithResponse(0, elapsed).WithError(err).WithErrorType(ErrorTypeNetwork)
		t.logger.ErrorContext(r.Context(), "HTTP request failed", fields.ToSlice()...)
		return nil, err
	}

	level := slog.LevelInfo
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		level = slog.LevelWarn
	} else if resp.StatusCode >= 500 {
		level = slog.LevelError
	}
	fields.WithResponse(resp.StatusCode, elapsed)
	t.logger.Logger.Log(r.Context(), level, "HTTP request completed",
		append([]any{FieldComponent, t.logger.component}, fields.ToSlice()...)...)
	return resp, nil
}
