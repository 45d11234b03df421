package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type loggerContextKey struct{}

// NewLogger builds the root logger from configuration. Packages derive
// component children with log.With().Str("component", ...).
func NewLogger(cfg LoggingConfig) (zerolog.Logger, error) {
	var writer io.Writer
	switch cfg.Output {
	case "", "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), err
		}
		writer = file
	}

	if cfg.Format == "console" || cfg.Format == "" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}

	log := zerolog.New(writer).With().Timestamp().Logger().Level(parseLogLevel(cfg.Level))
	if cfg.EnableCaller {
		log = log.With().Caller().Logger()
	}
	return log, nil
}

// WithLogger attaches the logger to the context.
func WithLogger(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, log)
}

// FromContext retrieves the context's logger. Contexts without one get
// a disabled logger, so library code can log unconditionally.
func FromContext(ctx context.Context) zerolog.Logger {
	if log, ok := ctx.Value(loggerContextKey{}).(zerolog.Logger); ok {
		return log
	}
	return zerolog.Nop()
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
