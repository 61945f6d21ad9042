package logging

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

type logKey struct{}

var nopLogger = zerolog.Nop()

// Log returns the logger attached to ctx. Without one, events are discarded.
func Log(ctx context.Context) *zerolog.Logger {
	logger, ok := ctx.Value(logKey{}).(*zerolog.Logger)
	if !ok || logger == nil {
		return &nopLogger
	}

	return logger
}

// WithLogger attaches the given logger to the context
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, logKey{}, logger)
}

// New builds the CLI logger. JSON output writes raw events to out, otherwise they are
// rendered by the ConsoleWriter.
func New(out io.Writer, level zerolog.Level, jsonOutput bool) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	if !jsonOutput {
		out = NewConsoleWriter(out)
	}

	logger := zerolog.New(out).Level(level)
	if jsonOutput {
		logger = logger.With().Timestamp().Logger()
	}

	return logger
}
