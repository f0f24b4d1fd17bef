package logger

import (
	"bytes"
	"context"
	log "log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "job-sweep", "")
	assert.Regexp(t, `^job-sweep-[0-9a-f-]{36}$`, TraceID(ctx))

	ctx = WithTraceID(context.Background(), "http", "abc")
	assert.Equal(t, "abc", TraceID(ctx))
	assert.Empty(t, TraceID(context.Background()))
}

func TestContextHandlerAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	l := log.New(&ContextHandler{log.NewJSONHandler(&buf, nil)}).With("component", "fanout")

	l.InfoContext(WithTraceID(context.Background(), "", "t-1"), "dispatched")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "t-1", rec[TraceIDKey])
	assert.Equal(t, "fanout", rec["component"])
}

func TestRemoteFilterHandler(t *testing.T) {
	var local, remote bytes.Buffer
	h := &TeeHandler{handlers: []log.Handler{
		log.NewJSONHandler(&local, nil),
		&RemoteFilterHandler{next: log.NewJSONHandler(&remote, nil)},
	}}
	l := log.New(&ContextHandler{h})

	l.Info("untraced")
	assert.NotEmpty(t, local.String())
	assert.Empty(t, remote.String())

	l.Warn("warning without trace")
	assert.Contains(t, remote.String(), "warning without trace")

	remote.Reset()
	l.InfoContext(WithTraceID(context.Background(), "kafka", ""), "traced")
	assert.Contains(t, remote.String(), "traced")
}
