package debug

import (
	"context"
	"testing"
)

func TestIsEnabledDefaultsFalse(t *testing.T) {
	if IsEnabled(context.Background()) {
		t.Fatal("expected debug disabled on bare context")
	}
}

func TestWithDebug(t *testing.T) {
	ctx := WithDebug(context.Background(), true)
	if !IsEnabled(ctx) {
		t.Fatal("expected debug enabled")
	}
	ctx = WithDebug(ctx, false)
	if IsEnabled(ctx) {
		t.Fatal("expected debug disabled after override")
	}
}
