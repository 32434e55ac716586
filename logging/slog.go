package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// NewLogger returns a text logger writing to every given writer.
func NewLogger(level slog.Level, outputs ...io.Writer) *slog.Logger {
	var w io.Writer = io.Discard
	switch len(outputs) {
	case 0:
	case 1:
		w = outputs[0]
	default:
		w = io.MultiWriter(outputs...)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
