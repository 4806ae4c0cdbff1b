package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorUnwrap(t *testing.T) {
	root := errors.New("disk locked")
	err := fmt.Errorf("recompute: %w", NewAppError("history.load", "read cycles", root))

	if !errors.Is(err, root) {
		t.Fatalf("expected wrapped root error")
	}
	if op := OpOf(err); op != "history.load" {
		t.Fatalf("unexpected op %q", op)
	}
	if OpOf(root) != "" {
		t.Fatalf("expected empty op for plain error")
	}
}
