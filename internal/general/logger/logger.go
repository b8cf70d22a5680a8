package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorObject is emitted only for error logs.
type ErrorObject struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack"`
}

// Logger writes single-line JSON entries:
// timestamp, level, service, action, message, hostname, request_id, ride_id, details, error.
type Logger struct {
	base     *logrus.Logger
	service  string
	hostname string
}

// New creates a structured logger for the given service writing to stdout at INFO.
func New(service string) *Logger {
	return NewWithOutput(service, "info", os.Stdout)
}

// NewWithOutput creates a logger with an explicit level and writer.
// Unknown levels fall back to INFO.
func NewWithOutput(service, level string, out io.Writer) *Logger {
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}
	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}

	base := logrus.New()
	base.SetOutput(out)
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	base.SetLevel(parseLevel(level))

	return &Logger{base: base, service: service, hostname: hn}
}

// SetLevel changes the minimum level; used after config is loaded.
func (l *Logger) SetLevel(level string) {
	l.base.SetLevel(parseLevel(level))
}

// Debug writes a DEBUG line with optional details.
func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.entry(ctx, action, details).Debug(strings.TrimSpace(msg))
}

// Info writes an INFO line with optional details.
func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.entry(ctx, action, details).Info(strings.TrimSpace(msg))
}

// Warn writes a WARN line with optional details.
func (l *Logger) Warn(ctx context.Context, action, msg string, details any) {
	l.entry(ctx, action, details).Warn(strings.TrimSpace(msg))
}

// Error writes an ERROR line and attaches an error stack trace.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}
	l.entry(ctx, action, details).
		WithField("error", ErrorObject{
			Msg:   strings.TrimSpace(err.Error()),
			Stack: string(debug.Stack()),
		}).
		Error(strings.TrimSpace(msg))
}

func (l *Logger) entry(ctx context.Context, action string, details any) *logrus.Entry {
	fields := logrus.Fields{
		"service":  l.service,
		"action":   safeAction(action),
		"hostname": l.hostname,
	}
	if id := requestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if id := rideID(ctx); id != "" {
		fields["ride_id"] = id
	}
	if details != nil {
		fields["details"] = details
	}
	return l.base.WithFields(fields)
}

// ------------ Context helpers -------------

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "dispatch_request_id"
	ctxKeyRideID    ctxKey = "dispatch_ride_id"
)

// WithRequestID returns a new context carrying request_id.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	return WithRequestID(ctx, reqID)
}

// WithRideID returns a new context carrying ride_id.
func (l *Logger) WithRideID(ctx context.Context, rideID string) context.Context {
	return WithRideID(ctx, rideID)
}

// WithRequestID is the package-level form, for code that has no logger at hand.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if strings.TrimSpace(reqID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, reqID)
}

// WithRideID is the package-level form of (*Logger).WithRideID.
func WithRideID(ctx context.Context, rideID string) context.Context {
	if strings.TrimSpace(rideID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRideID, rideID)
}

// RequestID extracts request_id from ctx (if any).
func RequestID(ctx context.Context) string {
	return requestID(ctx)
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

func rideID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(ctxKeyRideID).(string); ok {
		return s
	}
	return ""
}

// ----- Small utilities -----

func parseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

func safeAction(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return "unspecified"
	}
	return a
}
