package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWith_AccumulatesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	ctx := With(context.Background(), "request_id", int64(7))
	ctx = With(ctx, "operation", "create")
	FromContext(ctx).Infow("sync attempt")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != int64(7) || fields["operation"] != "create" {
		t.Fatalf("unexpected fields: %#v", fields)
	}
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatalf("expected non-nil fallback logger")
	}
}
