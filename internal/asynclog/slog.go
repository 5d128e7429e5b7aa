// SPDX-License-Identifier: MIT

package asynclog

import (
	"context"
	"log/slog"
	"strings"
)

// SlogHandler adapts a Logger to slog.Handler so the standard library's
// structured logging API can feed AsyncLogger's lock-free ring instead of
// writing straight to a file. Every cmd/screenrecd entry point builds its
// slog.Logger on top of one of these rather than slog.NewTextHandler,
// keeping every log line on the same non-blocking path regardless of
// whether it was emitted via Logger.Log or slog.Info.
type SlogHandler struct {
	logger *Logger
	level  slog.Leveler
	attrs  []slog.Attr
	group  string
}

// NewSlogHandler wraps l. level filters records before they reach the ring;
// pass nil for slog.LevelInfo.
func NewSlogHandler(l *Logger, level slog.Leveler) *SlogHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &SlogHandler{logger: l, level: level}
}

// Enabled implements slog.Handler.
func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler, formatting the record as a single line
// and publishing it through Logger.Log.
func (h *SlogHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Level.String())
	b.WriteByte(' ')
	if h.group != "" {
		b.WriteString(h.group)
		b.WriteByte('.')
	}
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, a)
		return true
	})

	h.logger.Log("%s", b.String())
	return nil
}

func writeAttr(b *strings.Builder, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	b.WriteByte(' ')
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}

// WithAttrs implements slog.Handler.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

// WithGroup implements slog.Handler.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	next := *h
	if h.group == "" {
		next.group = name
	} else {
		next.group = h.group + "." + name
	}
	return &next
}
