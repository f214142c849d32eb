package tlog

import (
	"context"
	"k4llisto/pkg/util"
	"log/slog"
)

// contextHandler copies request-scoped context values into log attributes.
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, record slog.Record) error {
	if channel, ok := ctx.Value(util.ChannelContextKey).(string); ok {
		record.AddAttrs(slog.String("channel", channel))
	}
	if requestID, ok := ctx.Value(util.RequestIDContextKey).(string); ok {
		record.AddAttrs(slog.String("request_id", requestID))
	}

	return h.Handler.Handle(ctx, record)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{h.Handler.WithGroup(name)}
}
