package capture

import (
	"context"
	"log/slog"
	"strings"
)

// Handler tees slog records into a sink while delegating to another handler.
type Handler struct {
	sink  *Buffers
	next  slog.Handler
	attrs []slog.Attr
}

// NewHandler returns a handler that records each record's message and
// attributes into sink under the category for its level, then passes the
// record to next. A nil next only records.
func NewHandler(sink *Buffers, next slog.Handler) *Handler {
	if next == nil {
		next = slog.DiscardHandler
	}
	return &Handler{sink: sink, next: next}
}

// CategoryForLevel maps a slog level onto a log category.
func CategoryForLevel(level slog.Level) Category {
	switch {
	case level >= slog.LevelError:
		return ERR
	case level >= slog.LevelWarn:
		return WRN
	case level >= slog.LevelInfo:
		return LOG
	default:
		return DBG
	}
}

// Enabled reports true for every level so debug output is still captured.
func (h *Handler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle records r and forwards it when next is enabled for its level.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	parts := []any{r.Message}
	for _, a := range h.attrs {
		parts = append(parts, a.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, a.String())
		return true
	})
	h.sink.Append(CategoryForLevel(r.Level), strings.TrimSpace(Format(parts...)))

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs returns a handler carrying attrs on every captured line.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &Handler{sink: h.sink, next: h.next.WithAttrs(attrs), attrs: merged}
}

// WithGroup delegates grouping to next; captured lines stay flat.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{sink: h.sink, next: h.next.WithGroup(name), attrs: h.attrs}
}
