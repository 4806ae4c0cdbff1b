package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// NewLogger returns a slog.Logger configured for the desired verbosity and format.
// Extra writers receive the same records as stdout.
func NewLogger(level string, json bool, extra ...io.Writer) *slog.Logger {
	handlerLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		handlerLevel = slog.LevelDebug
	case "warn":
		handlerLevel = slog.LevelWarn
	case "error":
		handlerLevel = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: handlerLevel}
	handlers := []slog.Handler{newHandler(os.Stdout, json, opts)}
	for _, w := range extra {
		if w == nil {
			continue
		}
		handlers = append(handlers, newHandler(w, json, opts))
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

func newHandler(w io.Writer, json bool, opts *slog.HandlerOptions) slog.Handler {
	if json {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
