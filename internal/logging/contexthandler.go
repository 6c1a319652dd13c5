package logging

import (
	"context"
	"log/slog"
)

// ContextProvider is a function that returns dynamic context attributes.
// It may be called from any goroutine.
type ContextProvider func() []slog.Attr

// ContextHandler wraps another handler and injects dynamic context attributes
// as one group.
type ContextHandler struct {
	inner    slog.Handler
	group    string
	provider ContextProvider
}

// NewContextHandler creates a handler that adds the provider's attributes to
// each record, under group when it is not empty.
func NewContextHandler(inner slog.Handler, group string, provider ContextProvider) *ContextHandler {
	return &ContextHandler{
		inner:    inner,
		group:    group,
		provider: provider,
	}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		if attrs := h.provider(); len(attrs) > 0 {
			if h.group == "" {
				r.AddAttrs(attrs...)
			} else {
				args := make([]any, len(attrs))
				for i, a := range attrs {
					args[i] = a
				}
				r.AddAttrs(slog.Group(h.group, args...))
			}
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{
		inner:    h.inner.WithAttrs(attrs),
		group:    h.group,
		provider: h.provider,
	}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{
		inner:    h.inner.WithGroup(name),
		group:    h.group,
		provider: h.provider,
	}
}
