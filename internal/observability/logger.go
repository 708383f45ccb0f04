package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
)

// basic global logger, JSON to stdout.
var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

func Logger() zerolog.Logger {
	return logger
}

// Setup replaces the global logger. format is "json" or "console"; an empty
// format picks console when stderr is a terminal. Other formats are rejected.
func Setup(level, format string) error {
	lvl := zerolog.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return err
		}
		lvl = parsed
	}

	var out io.Writer = os.Stdout
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console":
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	case "json":
	case "":
		if isatty.IsTerminal(os.Stderr.Fd()) {
			out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		}
	default:
		return errors.Errorf("unknown log format %q", format)
	}

	SetLogger(zerolog.New(out).Level(lvl).With().Timestamp().Logger())
	return nil
}

// SetLogger swaps the global logger; tests use it to capture output.
func SetLogger(l zerolog.Logger) {
	logger = l
}

// WithFields returns a logger with additional fields.
func WithFields(fields map[string]any) zerolog.Logger {
	return logger.With().Fields(fields).Logger()
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// RequestIDFromContext returns the request_id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	reqID, _ := ctx.Value(ctxKeyRequestID).(string)
	return reqID
}

// LoggerFromContext adds request_id if present.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	reqID := RequestIDFromContext(ctx)
	if reqID == "" {
		l := logger
		return &l
	}
	l := logger.With().Str("request_id", reqID).Logger()
	return &l
}
