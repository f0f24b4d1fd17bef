package logger

import (
	"context"
	log "log/slog"

	"github.com/google/uuid"
)

// TraceIDKey 同时用作 gin.Context 与 context.Context 的 key
const TraceIDKey = "trace_id"

// WithTraceID 写入链路 id，id 为空时按 prefix 生成
func WithTraceID(ctx context.Context, prefix, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
		if prefix != "" {
			id = prefix + "-" + id
		}
	}
	return context.WithValue(ctx, TraceIDKey, id)
}

func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}

// ContextHandler 从 ctx 中取出 trace_id 附加到每条日志
type ContextHandler struct {
	log.Handler
}

func (h *ContextHandler) Handle(ctx context.Context, r log.Record) error {
	if traceID := TraceID(ctx); traceID != "" {
		r.AddAttrs(log.String(TraceIDKey, traceID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []log.Attr) log.Handler {
	return &ContextHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) log.Handler {
	return &ContextHandler{h.Handler.WithGroup(name)}
}
