package scope_test

import (
	"context"
	"testing"

	"github.com/xraph/approve/scope"
)

func TestCaptureRestore(t *testing.T) {
	ctx := context.Background()
	if got := scope.Capture(ctx); got != "" {
		t.Errorf("empty context: want empty tenant, got %q", got)
	}

	ctx = scope.Restore(ctx, "acme")
	if got := scope.Capture(ctx); got != "acme" {
		t.Errorf("tenant: want %q, got %q", "acme", got)
	}

	// Restoring an empty tenant leaves the context unchanged.
	ctx = scope.Restore(ctx, "")
	if got := scope.Capture(ctx); got != "acme" {
		t.Errorf("tenant after empty restore: want %q, got %q", "acme", got)
	}
}
