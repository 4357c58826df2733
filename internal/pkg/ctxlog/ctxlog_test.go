package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_Default(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestWith_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), base)
	ctx = With(ctx, "incident_id", "inc-1")
	ctx = With(ctx, "worker", 3)

	FromContext(ctx).Info("fired")

	out := buf.String()
	assert.Contains(t, out, "incident_id=inc-1")
	assert.Contains(t, out, "worker=3")
	assert.Contains(t, out, "msg=fired")
}
