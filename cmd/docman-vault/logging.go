// ABOUTME: Logger setup for docman-vault: colour text or JSON, stderr or log file
// ABOUTME: Logs only warnings to stderr unless verbose or logToFile is on

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/docman-vault/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupLogger builds the root logger. With toFile the configured log file
// receives every record at the configured level; otherwise stderr only sees
// warnings and errors unless verbose is set.
func setupLogger(cfg config.LoggingConfig, toFile, verbose bool) (*slog.Logger, io.Closer, error) {
	level := parseLevel(cfg.Level)

	var (
		out     io.Writer = os.Stderr
		closer  io.Closer = nopCloser{}
		noColor           = color.NoColor
	)

	switch {
	case toFile:
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out, closer, noColor = f, f, true
	case verbose:
		level = slog.LevelDebug
	default:
		if level < slog.LevelWarn {
			level = slog.LevelWarn
		}
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = &colorHandler{
			level:   level,
			out:     out,
			noColor: noColor,
			mu:      &sync.Mutex{},
		}
	}

	return slog.New(handler), closer, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu      *sync.Mutex // shared by handlers derived through WithAttrs
	level   slog.Level
	out     io.Writer
	noColor bool
	attrs   []slog.Attr
	groups  []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) paint(c *color.Color, s string) string {
	if h.noColor {
		return s
	}
	return c.Sprint(s)
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	gray := color.New(color.FgHiBlack)
	buf.WriteString(h.paint(gray, r.Time.Format("2006-01-02 15:04:05")+" "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(h.paint(color.New(color.FgMagenta), "DBG "))
	case slog.LevelInfo:
		buf.WriteString(h.paint(color.New(color.FgCyan), "INF "))
	case slog.LevelWarn:
		buf.WriteString(h.paint(color.New(color.FgYellow), "WRN "))
	case slog.LevelError:
		buf.WriteString(h.paint(color.New(color.FgRed, color.Bold), "ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	// Handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(h.paint(gray, " "+a.Key+"="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(h.paint(gray, " "+prefix+a.Key+"="))
		buf.WriteString(a.Value.String())
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	clone := *h
	clone.attrs = newAttrs
	return &clone
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	clone := *h
	clone.groups = newGroups
	return &clone
}
