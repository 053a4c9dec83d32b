// Package logging wires the request-scoped slog handler used across the
// module: every log record emitted while handling an HTTP request carries
// the remote IP and request id, the way cmd/dex/logger.go injects
// context values into every record without threading a *slog.Logger
// through every call site by hand.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ContextKey identifies a context value this package knows how to promote
// to a log attribute.
type ContextKey string

const (
	// RequestKeyRemoteIP is the context key for the classified peer IP.
	RequestKeyRemoteIP ContextKey = "remote_ip"
	// RequestKeyRequestID is the context key for a per-request trace id.
	RequestKeyRequestID ContextKey = "request_id"
)

// Formats supported by New.
var Formats = []string{"json", "text"}

// New builds a *slog.Logger writing to stderr in the requested format,
// wrapped so every record picks up request-scoped attributes from its
// context.
func New(level slog.Level, format string) (*slog.Logger, error) {
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("log format is not one of the supported values (%s): %s", strings.Join(Formats, ", "), format)
	}
	return slog.New(newRequestContextHandler(handler)), nil
}

var _ slog.Handler = requestContextHandler{}

type requestContextHandler struct {
	handler slog.Handler
}

func newRequestContextHandler(handler slog.Handler) slog.Handler {
	return requestContextHandler{handler: handler}
}

func (h requestContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h requestContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if v, ok := ctx.Value(RequestKeyRemoteIP).(string); ok {
		record.AddAttrs(slog.String(string(RequestKeyRemoteIP), v))
	}
	if v, ok := ctx.Value(RequestKeyRequestID).(string); ok {
		record.AddAttrs(slog.String(string(RequestKeyRequestID), v))
	}
	return h.handler.Handle(ctx, record)
}

func (h requestContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestContextHandler{h.handler.WithAttrs(attrs)}
}

func (h requestContextHandler) WithGroup(name string) slog.Handler {
	return h.handler.WithGroup(name)
}

// WithRequest returns a context carrying the remote IP and request id for
// the handler chain's loggers to pick up.
func WithRequest(ctx context.Context, remoteIP, requestID string) context.Context {
	ctx = context.WithValue(ctx, RequestKeyRemoteIP, remoteIP)
	ctx = context.WithValue(ctx, RequestKeyRequestID, requestID)
	return ctx
}
