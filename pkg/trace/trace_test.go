package trace

import (
	"context"
	"strings"
	"testing"
)

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background(), "abc")
	if id != "abc" || FromContext(ctx) != "abc" {
		t.Errorf("Ensure kept %q / ctx %q, want abc", id, FromContext(ctx))
	}

	existing := WithContext(context.Background(), "from-ctx")
	if _, id := Ensure(existing, ""); id != "from-ctx" {
		t.Errorf("Ensure = %q, want id already in ctx", id)
	}

	ctx, id = Ensure(context.Background(), strings.Repeat("x", 500))
	if id == "" || len(id) > 128 || FromContext(ctx) != id {
		t.Errorf("oversized id not replaced: %q", id)
	}
}
